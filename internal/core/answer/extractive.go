package answer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/markdave123-py/clausewise/internal/core"
	"github.com/markdave123-py/clausewise/internal/models"
)

const (
	defaultExtractiveSources = 3
	maxAnswerRunes           = 600
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "does": true, "this": true,
	"that": true, "with": true, "what": true, "which": true, "from": true, "have": true, "has": true,
	"any": true, "can": true, "how": true, "there": true, "under": true, "into": true, "will": true,
	"is": true, "of": true, "to": true, "in": true, "on": true, "a": true, "an": true, "or": true,
	"be": true, "it": true, "my": true, "me": true, "do": true, "if": true, "by": true, "at": true,
}

// ExtractiveAnswerer answers without any network call by ranking stored clauses on
// query term overlap and quoting the best one.
type ExtractiveAnswerer struct {
	store  core.ClauseStore
	logger *slog.Logger
}

var _ core.Answerer = (*ExtractiveAnswerer)(nil)

func NewExtractiveAnswerer(store core.ClauseStore, logger *slog.Logger) *ExtractiveAnswerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractiveAnswerer{store: store, logger: logger}
}

type rankedClause struct {
	clause  models.Clause
	matched int
	score   float64
}

func (a *ExtractiveAnswerer) Answer(ctx context.Context, req core.AnswerRequest) (*models.QueryResponse, error) {
	docs := core.ProcessedDocuments(req.Documents)
	if len(docs) == 0 {
		return nothingProcessed(), nil
	}

	terms := queryTerms(req.Query)
	if len(terms) == 0 {
		return &models.QueryResponse{
			Answer:    "The question has no searchable terms. Try naming what you want to find.",
			Sources:   []models.Source{},
			Reasoning: "Every word in the question is too short or too common to match on.",
		}, nil
	}

	var ranked []rankedClause
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, wrapErr(ctx, "rank clauses", err)
		}
		clauses, err := a.store.ClausesByDocument(ctx, d.ID)
		if err != nil {
			return nil, wrapErr(ctx, "load clauses", err)
		}
		for _, cl := range clauses {
			words := wordSet(cl.Text + " " + cl.Label)
			matched := 0
			for t := range terms {
				if words[t] {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			ranked = append(ranked, rankedClause{clause: cl, matched: matched, score: float64(matched) / float64(len(terms))})
		}
	}

	if len(ranked) == 0 {
		return &models.QueryResponse{
			Answer:    "No clause in the processed documents matches the question.",
			Sources:   []models.Source{},
			Reasoning: fmt.Sprintf("None of the %d query terms appear in %d processed documents.", len(terms), len(docs)),
		}, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	limit := req.MaxSources
	if limit <= 0 {
		limit = defaultExtractiveSources
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	names := documentNames(docs)
	sources := make([]models.Source, len(ranked))
	for i, r := range ranked {
		sources[i] = models.Source{
			Document:  names[r.clause.DocumentID],
			Clause:    r.clause.Label,
			Relevance: clamp01(r.score),
			Page:      pageOf(r.clause),
		}
	}

	best := ranked[0]
	return &models.QueryResponse{
		Answer:     truncateRunes(best.clause.Text, maxAnswerRunes),
		Confidence: clamp01(best.score),
		Sources:    sources,
		Reasoning: fmt.Sprintf("Matched %d of %d query terms in %s of %s.",
			best.matched, len(terms), best.clause.Label, names[best.clause.DocumentID]),
	}, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func queryTerms(q string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range tokenize(q) {
		if len([]rune(w)) < 3 || stopwords[w] {
			continue
		}
		terms[w] = true
	}
	return terms
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range tokenize(s) {
		set[w] = true
	}
	return set
}

func truncateRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
