package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	// APIKey for the OpenAI API. Falls back to OPENAI_API_KEY when empty.
	APIKey string
	// Model is the default generation model (e.g. "gpt-4o-mini").
	Model string
	// EmbedderModel is the embedding model (e.g. "text-embedding-3-small").
	EmbedderModel string
	// EmbeddingDim requests truncated output dimensions. 0 = model default.
	EmbeddingDim int
}

// OpenAI implements Client using the OpenAI API. Chat completions serve
// Generate, the embeddings endpoint serves Embed, and the moderations
// endpoint serves Moderate.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI-backed provider client.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if logger == nil {
		logger = slog.Default()
	}

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingAPIKey)
	}

	return &OpenAI{
		client: openai.NewClient(key),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Name returns the provider identifier.
func (c *OpenAI) Name() string { return "openai" }

// Embed generates one embedding vector per input text.
func (c *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.cfg.EmbedderModel),
	}
	if c.cfg.EmbeddingDim > 0 {
		req.Dimensions = c.cfg.EmbeddingDim
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrNoEmbeddings, len(resp.Data), len(texts))
	}

	// The API may return data out of order; place vectors by index.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", ErrNoEmbeddings, i)
		}
	}

	c.logger.Debug("embedded batch", "provider", "openai", "texts", len(texts), "dim", len(vectors[0]))
	return vectors, nil
}

// Generate produces a chat completion for the request.
func (c *OpenAI) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Prompt == "" {
		return "", ErrEmptyInput
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// Moderate checks text against the OpenAI moderation endpoint.
func (c *OpenAI) Moderate(ctx context.Context, text string) (Moderation, error) {
	if text == "" {
		return Moderation{}, ErrEmptyInput
	}

	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{Input: text})
	if err != nil {
		return Moderation{}, fmt.Errorf("openai moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return Moderation{}, fmt.Errorf("openai moderation: no results returned")
	}

	return Moderation{Flagged: resp.Results[0].Flagged, Source: "openai"}, nil
}
