package config

import (
	"encoding/json"
	"strings"
	"testing"
)

// validConfig returns a configuration that passes Validate with the openai
// provider. Tests that exercise provider validation set API keys via t.Setenv.
func validConfig() *Config {
	return &Config{
		Provider:       ProviderOpenAI,
		Model:          "gpt-4o-mini",
		Temperature:    0.7,
		MaxTokens:      1000,
		EmbedderModel:  DefaultOpenAIEmbedderModel,
		EmbeddingDim:   1536,
		EmbedBatchSize: 64,
		VectorBackend:  BackendMemory,
		Collection:     "default",
		ChunkSize:      1000,
		ChunkOverlap:   200,
		AgentWorkers:   2,
		AgentQueueSize: 64,
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"short fully masked", "secret", maskedValue},
		{"exactly 8 fully masked", "12345678", maskedValue},
		{"long shows edges", "supersecretpassword", "su" + maskedValue + "rd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.input); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMarshalJSON_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "topsecretpassword"
	cfg.QdrantAPIKey = "qdrant-api-key-value"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := string(data)
	if strings.Contains(out, "topsecretpassword") {
		t.Error("postgres password leaked in JSON output")
	}
	if strings.Contains(out, "qdrant-api-key-value") {
		t.Error("qdrant api key leaked in JSON output")
	}
	if !strings.Contains(out, maskedValue) {
		t.Error("expected masked placeholder in JSON output")
	}
}

func TestValidate_Provider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "g-test")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid openai", func(c *Config) {}, nil},
		{"valid gemini", func(c *Config) { c.Provider = ProviderGemini }, nil},
		{"unknown provider", func(c *Config) { c.Provider = "anthropic" }, ErrInvalidProvider},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"max tokens zero", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"embedding dim zero", func(c *Config) { c.EmbeddingDim = 0 }, ErrInvalidEmbeddingDim},
		{"embedding dim too large", func(c *Config) { c.EmbeddingDim = MaxEmbeddingDim + 1 }, ErrInvalidEmbeddingDim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			checkSentinel(t, err, tt.wantErr)
		})
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg := validConfig()
	err := cfg.Validate()
	checkSentinel(t, err, ErrMissingAPIKey)
}

func TestValidate_Knowledge(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"chunk size zero", func(c *Config) { c.ChunkSize = 0 }, ErrInvalidChunking},
		{"overlap negative", func(c *Config) { c.ChunkOverlap = -1 }, ErrInvalidChunking},
		{"overlap equals size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, ErrInvalidChunking},
		{"empty collection", func(c *Config) { c.Collection = "  " }, ErrInvalidBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			checkSentinel(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidate_Backend(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"memory ok", func(c *Config) { c.VectorBackend = BackendMemory }, nil},
		{"sqlite ok", func(c *Config) { c.VectorBackend = BackendSQLite }, nil},
		{"unknown backend", func(c *Config) { c.VectorBackend = "chroma" }, ErrInvalidBackend},
		{"qdrant missing url", func(c *Config) {
			c.VectorBackend = BackendQdrant
			c.QdrantURL = ""
		}, ErrInvalidQdrantURL},
		{"qdrant ok", func(c *Config) {
			c.VectorBackend = BackendQdrant
			c.QdrantURL = "http://localhost:6333"
		}, nil},
		{"pgvector missing host", func(c *Config) {
			c.VectorBackend = BackendPGVector
			c.PostgresPort = 5432
			c.PostgresDBName = "forge"
			c.PostgresSSLMode = "disable"
		}, ErrInvalidPostgresHost},
		{"pgvector bad port", func(c *Config) {
			c.VectorBackend = BackendPGVector
			c.PostgresHost = "localhost"
			c.PostgresPort = 70000
			c.PostgresDBName = "forge"
			c.PostgresSSLMode = "disable"
		}, ErrInvalidPostgresPort},
		{"pgvector bad sslmode", func(c *Config) {
			c.VectorBackend = BackendPGVector
			c.PostgresHost = "localhost"
			c.PostgresPort = 5432
			c.PostgresDBName = "forge"
			c.PostgresSSLMode = "sometimes"
		}, ErrInvalidPostgresSSLMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			checkSentinel(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidate_Agent(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := validConfig()
	cfg.AgentWorkers = 0
	checkSentinel(t, cfg.Validate(), ErrInvalidWorkers)

	cfg = validConfig()
	cfg.AgentWorkers = 65
	checkSentinel(t, cfg.Validate(), ErrInvalidWorkers)

	cfg = validConfig()
	cfg.AgentQueueSize = 0
	checkSentinel(t, cfg.Validate(), ErrInvalidWorkers)
}
