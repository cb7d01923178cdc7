package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/clausewise/internal/core"
	"github.com/markdave123-py/clausewise/internal/models"
)

const defaultTopK = 8

const ragSystemPrompt = `You answer questions about insurance policies, contracts and similar documents.
Use only the numbered passages provided. Reply with a JSON object:
{"answer": string, "confidence": number between 0 and 1, "reasoning": string, "citations": [passage numbers]}
Cite every passage the answer relies on. If the passages do not answer the question, say so and use a low confidence.`

// RAGAnswerer retrieves the closest clauses by embedding similarity and asks an LLM
// to answer from them.
type RAGAnswerer struct {
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	store    core.ClauseStore
	topK     int
	logger   *slog.Logger
}

var _ core.Answerer = (*RAGAnswerer)(nil)

func NewRAGAnswerer(embedder core.EmbeddingProvider, llm core.LLMProvider, store core.ClauseStore, topK int, logger *slog.Logger) *RAGAnswerer {
	if topK <= 0 {
		topK = defaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGAnswerer{embedder: embedder, llm: llm, store: store, topK: topK, logger: logger}
}

type llmAnswer struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Citations  []int    `json:"citations"`
}

func (a *RAGAnswerer) Answer(ctx context.Context, req core.AnswerRequest) (*models.QueryResponse, error) {
	docs := core.ProcessedDocuments(req.Documents)
	if len(docs) == 0 {
		return nothingProcessed(), nil
	}

	vecs, err := a.embedder.EmbedTexts(ctx, []string{req.Query})
	if err != nil {
		return nil, wrapErr(ctx, "embed query", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors", core.ErrUpstream, len(vecs))
	}

	hits, err := a.store.SearchClauses(ctx, vecs[0], documentIDs(docs), max(a.topK, req.MaxSources))
	if err != nil {
		return nil, wrapErr(ctx, "search clauses", err)
	}
	if len(hits) == 0 {
		return &models.QueryResponse{
			Answer:    "No passage in the processed documents relates to this question.",
			Sources:   []models.Source{},
			Reasoning: fmt.Sprintf("Searched %d processed documents and found no embedded clauses.", len(docs)),
		}, nil
	}

	names := documentNames(docs)
	raw, err := a.llm.Generate(ctx, ragSystemPrompt, buildPrompt(req.Query, hits, names))
	if err != nil {
		return nil, wrapErr(ctx, "generate", err)
	}

	parsed, err := parseLLMAnswer(raw)
	if err != nil {
		a.logger.Warn("unparsable model reply", "err", err)
		return nil, err
	}

	resp := &models.QueryResponse{
		Answer:     strings.TrimSpace(parsed.Answer),
		Confidence: *parsed.Confidence,
		Reasoning:  strings.TrimSpace(parsed.Reasoning),
		Sources:    citedSources(parsed.Citations, hits, names),
	}
	a.logger.Debug("rag answer", "hits", len(hits), "sources", len(resp.Sources))
	return resp, nil
}

func buildPrompt(query string, hits []models.ScoredClause, names map[string]string) string {
	var b strings.Builder
	b.WriteString("Passages:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s, %s", i+1, names[h.DocumentID], h.Label)
		if h.Page > 0 {
			fmt.Fprintf(&b, ", page %d", h.Page)
		}
		b.WriteString("\n")
		b.WriteString(h.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// parseLLMAnswer decodes the model's JSON reply. Confidence given as a percentage is scaled.
func parseLLMAnswer(raw string) (*llmAnswer, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var out llmAnswer
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("%w: decode model reply: %v", core.ErrInvalidResult, err)
	}
	if strings.TrimSpace(out.Answer) == "" {
		return nil, fmt.Errorf("%w: model reply has no answer", core.ErrInvalidResult)
	}
	if out.Confidence == nil {
		return nil, fmt.Errorf("%w: model reply has no confidence", core.ErrInvalidResult)
	}
	if c := *out.Confidence; c > 1 && c <= 100 {
		c /= 100
		out.Confidence = &c
	}
	return &out, nil
}

// citedSources maps 1-based citation numbers to sources. Unknown or repeated numbers are
// skipped; with no usable citation every retrieved clause is cited.
func citedSources(citations []int, hits []models.ScoredClause, names map[string]string) []models.Source {
	seen := make(map[int]bool, len(citations))
	sources := make([]models.Source, 0, len(citations))
	for _, n := range citations {
		if n < 1 || n > len(hits) || seen[n] {
			continue
		}
		seen[n] = true
		sources = append(sources, toSource(hits[n-1], names))
	}
	if len(sources) == 0 {
		for _, h := range hits {
			sources = append(sources, toSource(h, names))
		}
	}
	sortSources(sources)
	return sources
}

func toSource(h models.ScoredClause, names map[string]string) models.Source {
	return models.Source{
		Document:  names[h.DocumentID],
		Clause:    h.Label,
		Relevance: clamp01(h.Score),
		Page:      pageOf(h.Clause),
	}
}
