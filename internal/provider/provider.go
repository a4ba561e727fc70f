// Package provider abstracts the LLM/embedding providers behind a single
// Client interface. Application code composes against Client; concrete
// implementations exist for OpenAI and Gemini. Rate limiting is applied by
// wrapping any Client with WithRateLimit.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates an embed or generate call with no input.
	ErrEmptyInput = errors.New("provider: empty input")

	// ErrNoEmbeddings indicates the provider returned no embedding vectors.
	ErrNoEmbeddings = errors.New("provider: no embeddings returned")

	// ErrMissingAPIKey indicates the provider API key is not configured.
	ErrMissingAPIKey = errors.New("provider: missing API key")
)

// GenerateRequest describes a single text generation call.
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string  // optional
	Model        string  // optional override of the client default
	Temperature  float32 // 0.0 - 2.0
	MaxTokens    int     // 0 = client default
}

// Moderation is the result of a content moderation check.
type Moderation struct {
	Flagged bool
	// Source names what produced the verdict: the provider moderation
	// endpoint or the keyword fallback.
	Source string
}

// Client is the provider abstraction used throughout forge.
//
// Embed converts a batch of texts into embedding vectors, one vector per
// input text, in input order. Generate produces a completion for a prompt.
// Moderate checks text against the provider's content policy, falling back
// to keyword matching when the provider has no moderation endpoint.
type Client interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Moderate(ctx context.Context, text string) (Moderation, error)
}
