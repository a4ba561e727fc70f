package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// validSSLModes are the PostgreSQL SSL modes accepted by the pgx driver.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for consistency.
// Called by Load() immediately after unmarshalling (fail-fast).
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateKnowledge(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateAgent(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateProvider() error {
	switch c.Provider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (must be one of: openai, gemini)", ErrInvalidProvider, c.Provider)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v (must be between 0.0 and 2.0)", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 100_000 {
		return fmt.Errorf("%w: %d (must be between 1 and 100000)", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.EmbeddingDim < 1 || c.EmbeddingDim > MaxEmbeddingDim {
		return fmt.Errorf("%w: %d (must be between 1 and %d)", ErrInvalidEmbeddingDim, c.EmbeddingDim, MaxEmbeddingDim)
	}

	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("%w: embed_batch_size must be at least 1, got %d", ErrInvalidChunking, c.EmbedBatchSize)
	}

	return nil
}

func (c *Config) validateKnowledge() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("%w: collection name must not be empty", ErrInvalidBackend)
	}
	return nil
}

func (c *Config) validateBackend() error {
	switch c.VectorBackend {
	case BackendMemory, BackendSQLite:
		// Local backends need no connection settings.
	case BackendQdrant:
		u, err := url.Parse(c.QdrantURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidQdrantURL, c.QdrantURL)
		}
	case BackendPGVector:
		if strings.TrimSpace(c.PostgresHost) == "" {
			return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d (must be between 1 and 65535)", ErrInvalidPostgresPort, c.PostgresPort)
		}
		if strings.TrimSpace(c.PostgresDBName) == "" {
			return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
		}
		if !validSSLModes[c.PostgresSSLMode] {
			return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
		}
	default:
		return fmt.Errorf("%w: %q (must be one of: memory, sqlite, qdrant, pgvector)",
			ErrInvalidBackend, c.VectorBackend)
	}
	return nil
}

func (c *Config) validateAgent() error {
	if c.AgentWorkers < 1 || c.AgentWorkers > 64 {
		return fmt.Errorf("%w: %d (must be between 1 and 64)", ErrInvalidWorkers, c.AgentWorkers)
	}
	if c.AgentQueueSize < 1 {
		return fmt.Errorf("%w: agent_queue_size must be positive, got %d", ErrInvalidWorkers, c.AgentQueueSize)
	}
	return nil
}
