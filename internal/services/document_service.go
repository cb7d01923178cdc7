package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/clausewise/internal/core"
	"github.com/markdave123-py/clausewise/internal/core/ingestion_engine"
	"github.com/markdave123-py/clausewise/internal/models"
)

// ErrFileTooLarge is returned when an upload exceeds the configured size limit.
var ErrFileTooLarge = errors.New("file too large")

// DocumentRegistry is the registry surface the upload path needs.
type DocumentRegistry interface {
	Ingest(files []models.FileDescriptor) []models.Document
	Get(documentID string) (models.Document, error)
	List() []models.Document
}

// DocumentRemover performs guarded removal.
type DocumentRemover interface {
	RemoveDocument(documentID string) error
}

// ProcessingQueue accepts documents for asynchronous processing.
type ProcessingQueue interface {
	Enqueue(job ingestion_engine.Job)
}

// Upload is one file received from a client.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// DocumentService stores raw uploads, registers them and schedules processing.
type DocumentService struct {
	storage  core.ObjectClient
	clauses  core.ClauseStore
	registry DocumentRegistry
	remover  DocumentRemover
	ingestor ProcessingQueue
	maxBytes int64
	logger   *slog.Logger
}

func NewDocumentService(
	storage core.ObjectClient,
	clauses core.ClauseStore,
	registry DocumentRegistry,
	remover DocumentRemover,
	ingestor ProcessingQueue,
	maxBytes int64,
	logger *slog.Logger,
) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		storage:  storage,
		clauses:  clauses,
		registry: registry,
		remover:  remover,
		ingestor: ingestor,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Upload stores every file, then registers the whole batch in one step and enqueues
// processing. A storage failure registers nothing.
func (s *DocumentService) Upload(ctx context.Context, files []Upload) ([]models.Document, error) {
	for _, f := range files {
		if s.maxBytes > 0 && int64(len(f.Data)) > s.maxBytes {
			return nil, fmt.Errorf("%s: %d bytes exceeds %d: %w", f.Name, len(f.Data), s.maxBytes, ErrFileTooLarge)
		}
	}

	descriptors := make([]models.FileDescriptor, 0, len(files))
	var stored []string
	for _, f := range files {
		mediaType := ingestion_engine.MediaTypeFor(f.Name, f.ContentType)
		key := objectKey(f.Name)
		if _, err := s.storage.UploadFile(ctx, key, f.Data, mediaType); err != nil {
			s.rollback(ctx, stored)
			return nil, fmt.Errorf("store %s: %w", f.Name, err)
		}
		stored = append(stored, key)
		descriptors = append(descriptors, models.FileDescriptor{
			Name:       f.Name,
			MediaType:  mediaType,
			SizeBytes:  int64(len(f.Data)),
			StorageKey: key,
		})
	}

	docs := s.registry.Ingest(descriptors)
	for _, d := range docs {
		s.ingestor.Enqueue(ingestion_engine.Job{
			DocumentID: d.ID,
			Name:       d.Name,
			MediaType:  d.MediaType,
			StorageKey: d.StorageKey,
		})
	}
	s.logger.Info("documents uploaded", "count", len(docs))
	return docs, nil
}

// UploadPaths reads local files and uploads them as one batch.
func (s *DocumentService) UploadPaths(ctx context.Context, paths []string) ([]models.Document, error) {
	files := make([]Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, Upload{Name: filepath.Base(p), Data: data})
	}
	return s.Upload(ctx, files)
}

func (s *DocumentService) Get(documentID string) (models.Document, error) {
	return s.registry.Get(documentID)
}

func (s *DocumentService) List() []models.Document {
	return s.registry.List()
}

// Remove deletes a document and best-effort cleans its stored bytes and clauses.
func (s *DocumentService) Remove(ctx context.Context, documentID string) error {
	doc, err := s.registry.Get(documentID)
	if err != nil {
		return err
	}
	if err := s.remover.RemoveDocument(documentID); err != nil {
		return err
	}
	if doc.StorageKey != "" {
		if err := s.storage.DeleteFile(ctx, doc.StorageKey); err != nil {
			s.logger.Warn("delete stored upload", "document_id", documentID, "err", err)
		}
	}
	if err := s.clauses.DeleteByDocument(ctx, documentID); err != nil {
		s.logger.Warn("delete clauses", "document_id", documentID, "err", err)
	}
	return nil
}

func (s *DocumentService) rollback(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := s.storage.DeleteFile(ctx, k); err != nil {
			s.logger.Warn("rollback stored upload", "key", k, "err", err)
		}
	}
}

// objectKey creates a consistent storage key layout.
func objectKey(filename string) string {
	filename = filepath.Base(strings.TrimSpace(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	if filename == "" || filename == "." || filename == "/" {
		filename = "upload"
	}
	return path.Join("documents", uuid.NewString(), filename)
}
