package core

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/clausewise/internal/models"
)

// EmbeddingProvider turns texts into vectors. Output order matches input order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider generates text from a system prompt and a user prompt.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// DocumentExtractor streams text fragments out of a raw upload.
// The producer runs inside g and closes the channel when done.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) (<-chan string, error)
}

// ClauseStore persists clauses and answers similarity searches over them.
type ClauseStore interface {
	SaveClauses(ctx context.Context, clauses []models.Clause) error
	ClausesByDocument(ctx context.Context, documentID string) ([]models.Clause, error)
	// SearchClauses returns at most limit clauses from documentIDs ordered by descending similarity.
	SearchClauses(ctx context.Context, queryVec []float32, documentIDs []string, limit int) ([]models.ScoredClause, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Close() error
}

// ObjectClient holds the raw bytes of uploaded documents.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}

// ProcessingSink receives the document-processing completion signal.
// Exactly one of the two methods is called per processed job.
type ProcessingSink interface {
	MarkProcessed(documentID string, clauseCount int) error
	MarkFailed(documentID string, reason string) error
}
