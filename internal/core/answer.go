package core

import (
	"context"
	"errors"

	"github.com/markdave123-py/clausewise/internal/models"
)

// Collaborator failure kinds. Answerers wrap one of these so callers can classify with errors.Is.
var (
	ErrTimeout       = errors.New("collaborator timeout")
	ErrUpstream      = errors.New("upstream error")
	ErrInvalidResult = errors.New("invalid result")
)

// AnswerRequest is what the orchestrator hands to an answer-generation collaborator.
type AnswerRequest struct {
	Query      string
	Documents  []models.Document
	MaxSources int
}

// Answerer produces a response for a query over the known documents.
// Implementations must honour ctx and return sources sorted by descending relevance.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (*models.QueryResponse, error)
}

// AnswererFunc adapts a plain function to Answerer.
type AnswererFunc func(ctx context.Context, req AnswerRequest) (*models.QueryResponse, error)

func (f AnswererFunc) Answer(ctx context.Context, req AnswerRequest) (*models.QueryResponse, error) {
	return f(ctx, req)
}

// ProcessedDocuments filters docs down to those that finished processing.
func ProcessedDocuments(docs []models.Document) []models.Document {
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if d.Processed {
			out = append(out, d)
		}
	}
	return out
}
