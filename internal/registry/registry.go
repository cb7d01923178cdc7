// Package registry tracks the documents a user has submitted and their processing state.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/clausewise/internal/core"
	"github.com/markdave123-py/clausewise/internal/models"
)

// ErrNotFound is returned when an operation names an unknown document id.
var ErrNotFound = errors.New("document not found")

var _ core.ProcessingSink = (*Registry)(nil)

// Registry holds the ordered collection of documents.
// All mutations go through one exclusive lock so readers never see a half-appended batch.
type Registry struct {
	mu     sync.RWMutex
	docs   []*models.Document
	byID   map[string]*models.Document
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for UploadedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

// New creates an empty registry.
func New(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		byID:   make(map[string]*models.Document),
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ingest creates one unprocessed document per descriptor and appends them in submission order.
// Descriptors are stored as given; validating them is the processing collaborator's job.
func (r *Registry) Ingest(files []models.FileDescriptor) []models.Document {
	if len(files) == 0 {
		return []models.Document{}
	}

	created := make([]*models.Document, 0, len(files))
	uploadedAt := r.now()
	for _, f := range files {
		size := f.SizeBytes
		if size < 0 {
			size = 0
		}
		clauses := f.ClauseCount
		if clauses < 0 {
			clauses = 0
		}
		created = append(created, &models.Document{
			ID:          r.newID(),
			Name:        f.Name,
			MediaType:   f.MediaType,
			SizeBytes:   size,
			StorageKey:  f.StorageKey,
			UploadedAt:  uploadedAt,
			ClauseCount: clauses,
		})
	}

	r.mu.Lock()
	for _, d := range created {
		r.docs = append(r.docs, d)
		r.byID[d.ID] = d
	}
	r.mu.Unlock()

	out := make([]models.Document, len(created))
	for i, d := range created {
		out[i] = *d
	}
	r.logger.Debug("documents ingested", "count", len(out))
	return out
}

// MarkProcessed records the processing collaborator's completion signal.
// Re-delivery is a no-op unless it carries a higher clause count; the count never decreases.
func (r *Registry) MarkProcessed(documentID string, clauseCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[documentID]
	if !ok {
		r.logger.Warn("mark processed: unknown document", "document_id", documentID)
		return fmt.Errorf("mark processed %s: %w", documentID, ErrNotFound)
	}

	if clauseCount > d.ClauseCount {
		d.ClauseCount = clauseCount
	}
	if !d.Processed {
		d.Processed = true
		d.ProcessingError = ""
		r.logger.Info("document processed", "document_id", documentID, "clauses", d.ClauseCount)
	}
	return nil
}

// MarkFailed records a processing failure. Processed documents are left untouched.
func (r *Registry) MarkFailed(documentID string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[documentID]
	if !ok {
		r.logger.Warn("mark failed: unknown document", "document_id", documentID)
		return fmt.Errorf("mark failed %s: %w", documentID, ErrNotFound)
	}
	if d.Processed {
		return nil
	}
	d.ProcessingError = reason
	r.logger.Warn("document processing failed", "document_id", documentID, "reason", reason)
	return nil
}

// Remove deletes a document. Callers that may race an in-flight query should go through
// the orchestrator's guarded removal instead.
func (r *Registry) Remove(documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[documentID]; !ok {
		return fmt.Errorf("remove %s: %w", documentID, ErrNotFound)
	}
	delete(r.byID, documentID)
	for i, d := range r.docs {
		if d.ID == documentID {
			r.docs = append(r.docs[:i], r.docs[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of one document.
func (r *Registry) Get(documentID string) (models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[documentID]
	if !ok {
		return models.Document{}, fmt.Errorf("get %s: %w", documentID, ErrNotFound)
	}
	return *d, nil
}

// List returns a snapshot of all documents in insertion order.
func (r *Registry) List() []models.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Document, len(r.docs))
	for i, d := range r.docs {
		out[i] = *d
	}
	return out
}

// Count returns the number of known documents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// ProcessedCount returns how many documents have completed processing.
func (r *Registry) ProcessedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, d := range r.docs {
		if d.Processed {
			n++
		}
	}
	return n
}

// TotalClauses sums clause counts across all documents.
func (r *Registry) TotalClauses() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, d := range r.docs {
		total += d.ClauseCount
	}
	return total
}

// Pending returns how many documents have not yet received any processing callback.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, d := range r.docs {
		if !d.Processed && d.ProcessingError == "" {
			n++
		}
	}
	return n
}

// Metrics returns count, processed count and clause total from one consistent snapshot.
func (r *Registry) Metrics() models.Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := models.Metrics{DocumentsCount: len(r.docs)}
	for _, d := range r.docs {
		if d.Processed {
			m.ProcessedCount++
		}
		m.TotalClauses += d.ClauseCount
	}
	return m
}
