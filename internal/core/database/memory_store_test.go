package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/clausewise/internal/models"
)

func TestMemoryClauseStoreOrdersByPosition(t *testing.T) {
	s := NewMemoryClauseStore()
	ctx := context.Background()

	require.NoError(t, s.SaveClauses(ctx, []models.Clause{
		{ID: "c2", DocumentID: "d1", Position: 1, Label: "Clause 2"},
		{ID: "c1", DocumentID: "d1", Position: 0, Label: "Clause 1"},
	}))
	require.NoError(t, s.SaveClauses(ctx, []models.Clause{{ID: "c3", DocumentID: "d1", Position: 2}}))

	got, err := s.ClausesByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestMemoryClauseStoreSearch(t *testing.T) {
	s := NewMemoryClauseStore()
	ctx := context.Background()

	require.NoError(t, s.SaveClauses(ctx, []models.Clause{
		{ID: "exact", DocumentID: "d1", Embedding: []float32{1, 0}},
		{ID: "diag", DocumentID: "d1", Embedding: []float32{1, 1}},
		{ID: "orth", DocumentID: "d2", Embedding: []float32{0, 1}},
		{ID: "other", DocumentID: "d3", Embedding: []float32{1, 0}},
		{ID: "noemb", DocumentID: "d1"},
	}))

	hits, err := s.SearchClauses(ctx, []float32{1, 0}, []string{"d1", "d2"}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "diag", hits[1].ID)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)

	none, err := s.SearchClauses(ctx, nil, []string{"d1"}, 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryClauseStoreDelete(t *testing.T) {
	s := NewMemoryClauseStore()
	ctx := context.Background()
	require.NoError(t, s.SaveClauses(ctx, []models.Clause{{ID: "c1", DocumentID: "d1"}}))

	require.NoError(t, s.DeleteByDocument(ctx, "d1"))

	got, err := s.ClausesByDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN("postgres://u:p@localhost:5432/app", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/app", dsn)

	_, err = buildDSN("postgres://u:p@localhost:5432/app", "/does/not/exist.pem")
	require.Error(t, err)
}
