package ingestion_engine

import (
	"log/slog"
	"time"

	"github.com/markdave123-py/clausewise/internal/core"
)

// IngestConfig tunes the processing pipeline.
//
// Workers:        number of concurrent processing goroutines.
// TargetTokens:   approximate tokens per clause before a long section is split.
// OverlapTokens:  tokens carried from the end of one clause into the next (0 disables).
// BatchSize:      clauses embedded and written per batch.
// MaxFragmentLen: long extracted lines are cut into fragments of at most this many runes.
// JobTimeout:     upper bound for processing one document.
type IngestConfig struct {
	Workers        int
	TargetTokens   int
	OverlapTokens  int
	BatchSize      int
	MaxFragmentLen int
	JobTimeout     time.Duration
}

// DefaultIngestConfig returns the settings used when a field is left zero.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Workers:        2,
		TargetTokens:   120,
		BatchSize:      16,
		MaxFragmentLen: 2000,
		JobTimeout:     5 * time.Minute,
	}
}

func (c IngestConfig) withDefaults() IngestConfig {
	d := DefaultIngestConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.TargetTokens <= 0 {
		c.TargetTokens = d.TargetTokens
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.TargetTokens {
		c.OverlapTokens = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxFragmentLen <= 0 {
		c.MaxFragmentLen = d.MaxFragmentLen
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	return c
}

// Job names one stored upload to process.
type Job struct {
	DocumentID string
	Name       string
	MediaType  string
	StorageKey string
}

// clause is the internal representation passed through the pipeline.
//
// Pos:      zero-based position of the clause inside the document.
// Label:    heading-derived label, or "Clause N".
// Page:     1-based page the clause starts on.
// TokenCnt: approximate token count.
type clause struct {
	Pos      int
	Label    string
	Text     string
	Page     int
	TokenCnt int
}

// DocumentIngestor runs the background processing pipeline and reports each
// document's outcome to the sink.
//
// store:     clause persistence.
// obj:       object storage holding raw uploads.
// embedder:  optional embedding provider; nil stores clauses without vectors.
// sink:      receives exactly one MarkProcessed or MarkFailed per job.
// jobs:      in-memory queue of documents to process.
type DocumentIngestor struct {
	store     core.ClauseStore
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	sink      core.ProcessingSink
	cfg       IngestConfig
	logger    *slog.Logger
	jobs      chan Job
	done      chan struct{}
}

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
	maxFragmentLen int
}
