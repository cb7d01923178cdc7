package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/clausewise/internal/models"
	"github.com/markdave123-py/clausewise/internal/services"
)

// DocumentService is the document surface the HTTP layer drives.
type DocumentService interface {
	Upload(ctx context.Context, files []services.Upload) ([]models.Document, error)
	Get(documentID string) (models.Document, error)
	List() []models.Document
	Remove(ctx context.Context, documentID string) error
}

// MetricsSource reports aggregate registry numbers.
type MetricsSource interface {
	Metrics() models.Metrics
}

type DocumentHandler struct {
	docs     DocumentService
	metrics  MetricsSource
	maxBytes int64
	logger   *slog.Logger
}

func NewDocumentHandler(docs DocumentService, metrics MetricsSource, maxBytes int64, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{docs: docs, metrics: metrics, maxBytes: maxBytes, logger: logger}
}

// UploadDocuments accepts one or more multipart "files" parts and registers them as one batch.
func (h *DocumentHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, 16*h.maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, h.logger, fmt.Errorf("request body: %w", services.ErrFileTooLarge))
			return
		}
		writeError(w, h.logger, NewBadRequestError("invalid multipart form", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	headers = append(headers, r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeError(w, h.logger, NewBadRequestError("no files", `expected multipart field "files"`))
		return
	}

	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		u, err := h.readPart(fh)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		uploads = append(uploads, u)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	docs, err := h.docs.Upload(ctx, uploads)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, docs)
}

func (h *DocumentHandler) readPart(fh *multipart.FileHeader) (services.Upload, error) {
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return services.Upload{}, fmt.Errorf("%s: %w", fh.Filename, services.ErrFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, NewBadRequestError("invalid file", err.Error())
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return services.Upload{}, NewBadRequestError("invalid file", err.Error())
	}
	return services.Upload{
		Name:        filepath.Base(fh.Filename),
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, h.docs.List())
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, h.metrics.Metrics())
}
