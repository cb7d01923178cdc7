package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/clausewise/internal/core"
)

const (
	defaultGenModel   = "gemini-1.5-flash"
	defaultEmbedModel = "text-embedding-004"

	// maxEmbedBatch is the per-request limit of BatchEmbedContents.
	maxEmbedBatch = 100
)

var errNoAPIKey = errors.New("gemini api key is empty")

// GeminiConfig selects models and generation settings.
type GeminiConfig struct {
	APIKey      string
	GenModel    string
	EmbedModel  string
	Temperature float32
	// JSONOutput makes Generate request an application/json reply.
	JSONOutput bool
}

// Gemini serves both generation and embeddings over one client connection.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errNoAPIKey
	}
	if cfg.GenModel == "" {
		cfg.GenModel = defaultGenModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = defaultEmbedModel
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: cl, cfg: cfg}, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Generate returns the concatenated text parts of the first candidate.
func (g *Gemini) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.cfg.GenModel)
	m.SetTemperature(g.cfg.Temperature)
	m.SetCandidateCount(1)
	if g.cfg.JSONOutput {
		m.ResponseMIMEType = "application/json"
	}
	if systemPrompt != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// EmbedTexts embeds texts in batches, keeping input order.
func (g *Gemini) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := g.client.EmbeddingModel(g.cfg.EmbedModel)
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += maxEmbedBatch {
		chunk := texts[start:min(start+maxEmbedBatch, len(texts))]

		batch := em.NewBatch()
		for _, t := range chunk {
			batch.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		if len(resp.Embeddings) != len(chunk) {
			return nil, fmt.Errorf("gemini batch embed: got %d vectors for %d texts", len(resp.Embeddings), len(chunk))
		}
		for _, e := range resp.Embeddings {
			vectors = append(vectors, e.Values)
		}
	}
	return vectors, nil
}

var (
	_ core.LLMProvider       = (*Gemini)(nil)
	_ core.EmbeddingProvider = (*Gemini)(nil)
)
