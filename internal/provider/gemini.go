package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	// APIKey for the Gemini API. Falls back to GEMINI_API_KEY when empty.
	APIKey string
	// Model is the default generation model (e.g. "gemini-2.5-flash").
	Model string
	// EmbedderModel is the embedding model (e.g. "gemini-embedding-001").
	EmbedderModel string
	// EmbeddingDim truncates output dimensions via OutputDimensionality.
	// gemini-embedding-001 outputs 3072 dimensions by default.
	EmbeddingDim int
	// ModerationKeywords feed the keyword fallback; Gemini has no
	// moderation endpoint.
	ModerationKeywords []string
}

// Gemini implements Client using the google.golang.org/genai SDK.
type Gemini struct {
	client    *genai.Client
	cfg       GeminiConfig
	moderator *KeywordModerator
	logger    *slog.Logger
}

// NewGemini creates a Gemini-backed provider client.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		cfg:       cfg,
		moderator: NewKeywordModerator(cfg.ModerationKeywords),
		logger:    logger,
	}, nil
}

// Name returns the provider identifier.
func (c *Gemini) Name() string { return "gemini" }

// Embed generates one embedding vector per input text.
func (c *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	var embedCfg *genai.EmbedContentConfig
	if c.cfg.EmbeddingDim > 0 {
		dim := int32(c.cfg.EmbeddingDim)
		embedCfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbedderModel, contents, embedCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrNoEmbeddings, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", ErrNoEmbeddings, i)
		}
		vectors[i] = e.Values
	}

	c.logger.Debug("embedded batch", "provider", "gemini", "texts", len(texts), "dim", len(vectors[0]))
	return vectors, nil
}

// Generate produces a completion for the request.
func (c *Gemini) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Prompt == "" {
		return "", ErrEmptyInput
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	genCfg := &genai.GenerateContentConfig{}
	temp := req.Temperature
	genCfg.Temperature = &temp
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return text, nil
}

// Moderate applies the keyword fallback; Gemini exposes no moderation
// endpoint.
func (c *Gemini) Moderate(_ context.Context, text string) (Moderation, error) {
	if text == "" {
		return Moderation{}, ErrEmptyInput
	}
	return c.moderator.Check(text), nil
}
