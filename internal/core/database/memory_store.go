package db

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/markdave123-py/clausewise/internal/core"
	"github.com/markdave123-py/clausewise/internal/models"
)

var _ core.ClauseStore = (*MemoryClauseStore)(nil)

// MemoryClauseStore is a process-local ClauseStore used when no DATABASE_URL is set.
type MemoryClauseStore struct {
	mu    sync.RWMutex
	byDoc map[string][]models.Clause
}

func NewMemoryClauseStore() *MemoryClauseStore {
	return &MemoryClauseStore{byDoc: make(map[string][]models.Clause)}
}

func (m *MemoryClauseStore) SaveClauses(ctx context.Context, clauses []models.Clause) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cl := range clauses {
		if cl.Embedding != nil {
			cl.Embedding = append([]float32(nil), cl.Embedding...)
		}
		m.byDoc[cl.DocumentID] = append(m.byDoc[cl.DocumentID], cl)
	}
	for id := range m.byDoc {
		list := m.byDoc[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	}
	return nil
}

func (m *MemoryClauseStore) ClausesByDocument(ctx context.Context, documentID string) ([]models.Clause, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Clause(nil), m.byDoc[documentID]...), nil
}

func (m *MemoryClauseStore) SearchClauses(ctx context.Context, queryVec []float32, documentIDs []string, limit int) ([]models.ScoredClause, error) {
	if len(queryVec) == 0 || limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []models.ScoredClause
	for _, id := range documentIDs {
		for _, cl := range m.byDoc[id] {
			if len(cl.Embedding) != len(queryVec) {
				continue
			}
			hits = append(hits, models.ScoredClause{Clause: cl, Score: cosine(queryVec, cl.Embedding)})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryClauseStore) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byDoc, documentID)
	return nil
}

func (m *MemoryClauseStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
