// Package answer holds the answer-generation collaborators consumed by the orchestrator.
package answer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/markdave123-py/clausewise/internal/core"
	"github.com/markdave123-py/clausewise/internal/models"
)

// wrapErr classifies a collaborator error into one of the core failure kinds.
func wrapErr(ctx context.Context, stage string, err error) error {
	if errors.Is(err, core.ErrTimeout) || errors.Is(err, core.ErrUpstream) || errors.Is(err, core.ErrInvalidResult) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", core.ErrTimeout, stage, err)
	}
	return fmt.Errorf("%w: %s: %v", core.ErrUpstream, stage, err)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func pageOf(cl models.Clause) *int {
	if cl.Page <= 0 {
		return nil
	}
	return models.IntPtr(cl.Page)
}

func sortSources(sources []models.Source) {
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Relevance > sources[j].Relevance })
}

func documentNames(docs []models.Document) map[string]string {
	names := make(map[string]string, len(docs))
	for _, d := range docs {
		names[d.ID] = d.Name
	}
	return names
}

func documentIDs(docs []models.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func nothingProcessed() *models.QueryResponse {
	return &models.QueryResponse{
		Answer:    "None of the uploaded documents have finished processing yet. Try again once processing completes.",
		Sources:   []models.Source{},
		Reasoning: "No processed documents were available to search.",
	}
}
