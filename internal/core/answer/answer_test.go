package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/clausewise/internal/core"
	db "github.com/markdave123-py/clausewise/internal/core/database"
	"github.com/markdave123-py/clausewise/internal/models"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type fakeLLM struct {
	reply      string
	err        error
	userPrompt string
}

func (f *fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.userPrompt = userPrompt
	return f.reply, f.err
}

var testDocs = []models.Document{
	{ID: "d1", Name: "policy.pdf", Processed: true},
	{ID: "d2", Name: "terms.docx", Processed: true},
	{ID: "d3", Name: "pending.pdf", Processed: false},
}

func seedStore(t *testing.T) *db.MemoryClauseStore {
	t.Helper()
	s := db.NewMemoryClauseStore()
	require.NoError(t, s.SaveClauses(context.Background(), []models.Clause{
		{ID: "c1", DocumentID: "d1", Position: 0, Label: "Section 4.2.1 - Surgical Procedures", Page: 12,
			Text: "Knee surgery is covered after a waiting period of 24 months.", Embedding: []float32{1, 0}},
		{ID: "c2", DocumentID: "d1", Position: 1, Label: "Section 3.1 - Waiting Periods", Page: 8,
			Text: "Waiting periods apply to all surgical procedures.", Embedding: []float32{1, 1}},
		{ID: "c3", DocumentID: "d2", Position: 0, Label: "Clause 1",
			Text: "Premiums are payable monthly.", Embedding: []float32{0, 1}},
		{ID: "c4", DocumentID: "d3", Position: 0, Label: "Clause 1",
			Text: "Knee surgery excluded entirely.", Embedding: []float32{1, 0}},
	}))
	return s
}

func TestRAGAnswererCitesRetrievedClauses(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"answer\":\"Yes, after 24 months.\",\"confidence\":0.87,\"reasoning\":\"Passage 1 states it.\",\"citations\":[2,1,1,9]}\n```"}
	a := NewRAGAnswerer(&fakeEmbedder{vec: []float32{1, 0}}, llm, seedStore(t), 3, nil)

	resp, err := a.Answer(context.Background(), core.AnswerRequest{Query: "Is knee surgery covered?", Documents: testDocs})

	require.NoError(t, err)
	assert.Equal(t, "Yes, after 24 months.", resp.Answer)
	assert.InDelta(t, 0.87, resp.Confidence, 1e-9)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "Section 4.2.1 - Surgical Procedures", resp.Sources[0].Clause)
	assert.Equal(t, "policy.pdf", resp.Sources[0].Document)
	require.NotNil(t, resp.Sources[0].Page)
	assert.Equal(t, 12, *resp.Sources[0].Page)
	assert.GreaterOrEqual(t, resp.Sources[0].Relevance, resp.Sources[1].Relevance)

	assert.Contains(t, llm.userPrompt, "Question: Is knee surgery covered?")
	assert.NotContains(t, llm.userPrompt, "excluded entirely")
}

func TestRAGAnswererFallsBackToAllHitsWithoutCitations(t *testing.T) {
	llm := &fakeLLM{reply: `{"answer":"Premiums are monthly.","confidence":72,"reasoning":"r"}`}
	a := NewRAGAnswerer(&fakeEmbedder{vec: []float32{0, 1}}, llm, seedStore(t), 2, nil)

	resp, err := a.Answer(context.Background(), core.AnswerRequest{Query: "premiums", Documents: testDocs})

	require.NoError(t, err)
	assert.InDelta(t, 0.72, resp.Confidence, 1e-9)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "Clause 1", resp.Sources[0].Clause)
	assert.Nil(t, resp.Sources[0].Page)
}

func TestRAGAnswererErrors(t *testing.T) {
	store := seedStore(t)
	req := core.AnswerRequest{Query: "q", Documents: testDocs}

	_, err := NewRAGAnswerer(&fakeEmbedder{err: errors.New("quota")}, &fakeLLM{}, store, 3, nil).Answer(context.Background(), req)
	require.ErrorIs(t, err, core.ErrUpstream)

	_, err = NewRAGAnswerer(&fakeEmbedder{err: context.DeadlineExceeded}, &fakeLLM{}, store, 3, nil).Answer(context.Background(), req)
	require.ErrorIs(t, err, core.ErrTimeout)

	_, err = NewRAGAnswerer(&fakeEmbedder{vec: []float32{1, 0}}, &fakeLLM{reply: "not json"}, store, 3, nil).Answer(context.Background(), req)
	require.ErrorIs(t, err, core.ErrInvalidResult)

	_, err = NewRAGAnswerer(&fakeEmbedder{vec: []float32{1, 0}}, &fakeLLM{reply: `{"answer":"x"}`}, store, 3, nil).Answer(context.Background(), req)
	require.ErrorIs(t, err, core.ErrInvalidResult)

	_, err = NewRAGAnswerer(&fakeEmbedder{vec: []float32{1, 0}}, &fakeLLM{err: errors.New("503")}, store, 3, nil).Answer(context.Background(), req)
	require.ErrorIs(t, err, core.ErrUpstream)
}

func TestRAGAnswererWithoutProcessedDocuments(t *testing.T) {
	a := NewRAGAnswerer(&fakeEmbedder{vec: []float32{1, 0}}, &fakeLLM{}, seedStore(t), 3, nil)

	resp, err := a.Answer(context.Background(), core.AnswerRequest{Query: "q", Documents: testDocs[2:]})

	require.NoError(t, err)
	assert.NotEmpty(t, resp.Answer)
	assert.Zero(t, resp.Confidence)
	assert.Empty(t, resp.Sources)
}

func TestExtractiveAnswererRanksByTermOverlap(t *testing.T) {
	a := NewExtractiveAnswerer(seedStore(t), nil)

	resp, err := a.Answer(context.Background(), core.AnswerRequest{Query: "Is knee surgery covered?", Documents: testDocs})

	require.NoError(t, err)
	assert.Equal(t, "Knee surgery is covered after a waiting period of 24 months.", resp.Answer)
	assert.InDelta(t, 1.0, resp.Confidence, 1e-9)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Section 4.2.1 - Surgical Procedures", resp.Sources[0].Clause)
	for i := 1; i < len(resp.Sources); i++ {
		assert.GreaterOrEqual(t, resp.Sources[i-1].Relevance, resp.Sources[i].Relevance)
	}
	for _, s := range resp.Sources {
		assert.NotEqual(t, "pending.pdf", s.Document)
	}
	assert.Contains(t, resp.Reasoning, "3 of 3")
}

func TestExtractiveAnswererNoMatch(t *testing.T) {
	a := NewExtractiveAnswerer(seedStore(t), nil)

	resp, err := a.Answer(context.Background(), core.AnswerRequest{Query: "dental implants", Documents: testDocs})

	require.NoError(t, err)
	assert.Zero(t, resp.Confidence)
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.Answer)
}

func TestExtractiveAnswererHonoursMaxSources(t *testing.T) {
	a := NewExtractiveAnswerer(seedStore(t), nil)

	resp, err := a.Answer(context.Background(), core.AnswerRequest{Query: "surgery waiting premiums", Documents: testDocs, MaxSources: 1})

	require.NoError(t, err)
	assert.Len(t, resp.Sources, 1)
}

func TestExtractiveAnswererCancelled(t *testing.T) {
	a := NewExtractiveAnswerer(seedStore(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Answer(ctx, core.AnswerRequest{Query: "knee surgery", Documents: testDocs})

	require.ErrorIs(t, err, core.ErrUpstream)
}
