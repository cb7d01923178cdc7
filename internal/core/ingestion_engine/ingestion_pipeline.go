package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/clausewise/internal/core"
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
// embedder may be nil.
func NewDocumentIngestor(
	store core.ClauseStore,
	obj core.ObjectClient,
	emb core.EmbeddingProvider,
	extractor core.DocumentExtractor,
	sink core.ProcessingSink,
	cfg IngestConfig,
	logger *slog.Logger,
) *DocumentIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentIngestor{
		store:     store,
		obj:       obj,
		embedder:  emb,
		extractor: extractor,
		sink:      sink,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		jobs:      make(chan Job, 64),
		done:      make(chan struct{}),
	}
}

// Start runs cfg.Workers goroutines reading from the job queue until ctx ends.
func (i *DocumentIngestor) Start(ctx context.Context) {
	var once sync.Once
	stop := func() { once.Do(func() { close(i.done) }) }

	for w := 1; w <= i.cfg.Workers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					stop()
					i.logger.Debug("ingest worker shutting down", "worker", w)
					return
				case job := <-i.jobs:
					i.logger.Info("processing document", "document_id", job.DocumentID, "name", job.Name, "worker", w)
					i.handle(ctx, job)
				}
			}
		}(w)
	}
}

// Enqueue schedules a document for processing without blocking the caller.
// When the queue is full the hand-off waits in its own goroutine.
func (i *DocumentIngestor) Enqueue(job Job) {
	select {
	case i.jobs <- job:
		return
	default:
	}
	go func() {
		select {
		case i.jobs <- job:
		case <-i.done:
			i.logger.Warn("ingestor stopped before job was queued", "document_id", job.DocumentID)
		}
	}()
}

// handle processes one job and delivers exactly one completion signal.
func (i *DocumentIngestor) handle(ctx context.Context, job Job) {
	n, err := i.processOne(ctx, job)
	if err != nil {
		i.logger.Warn("document processing failed", "document_id", job.DocumentID, "err", err)
		if serr := i.sink.MarkFailed(job.DocumentID, err.Error()); serr != nil {
			i.logger.Warn("mark failed", "document_id", job.DocumentID, "err", serr)
		}
		return
	}
	if serr := i.sink.MarkProcessed(job.DocumentID, n); serr != nil {
		i.logger.Warn("mark processed", "document_id", job.DocumentID, "err", serr)
	}
}

// processOne fetches, extracts, splits, embeds and persists a single document.
// It returns the number of clauses stored.
func (i *DocumentIngestor) processOne(ctx context.Context, job Job) (int, error) {
	proctx, cancel := context.WithTimeout(ctx, i.cfg.JobTimeout)
	defer cancel()

	data, err := i.obj.GetFile(proctx, job.StorageKey)
	if err != nil {
		return 0, fmt.Errorf("get object: %w", err)
	}

	// A retried job must not leave clauses from an earlier attempt behind.
	if err := i.store.DeleteByDocument(proctx, job.DocumentID); err != nil {
		return 0, fmt.Errorf("reset clauses: %w", err)
	}

	g, gctx := errgroup.WithContext(proctx)

	// bytes -> fragments
	fragCh, err := i.extractor.ExtractText(gctx, g, data, job.MediaType)
	if err != nil {
		return 0, err
	}

	// fragments -> clauses
	clauseCh := i.streamClauses(gctx, g, fragCh, i.cfg.TargetTokens, i.cfg.OverlapTokens)

	// clauses -> embed + persist
	var stored int
	g.Go(func() error {
		var err error
		stored, err = i.embedAndPersist(gctx, job.DocumentID, clauseCh, i.cfg.BatchSize)
		return err
	})

	if err := g.Wait(); err != nil {
		if derr := i.store.DeleteByDocument(context.WithoutCancel(ctx), job.DocumentID); derr != nil {
			i.logger.Warn("cleanup partial clauses", "document_id", job.DocumentID, "err", derr)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("processing timed out after %s", i.cfg.JobTimeout)
		}
		return 0, err
	}
	if stored == 0 {
		return 0, ErrNoText
	}
	return stored, nil
}
