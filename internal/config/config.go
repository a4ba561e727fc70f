// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.forge/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Provider: LLM provider, generation model, embedder model and dimension
//   - Knowledge: vector backend selection, collection, chunking parameters
//   - Storage: local data directory, Qdrant endpoint, PostgreSQL connection
//   - Fetcher: URL ingestion limits (parallelism, delay, timeout)
//   - Agent: task queue sizing
//   - Telemetry: OTLP trace export
//
// Sensitive values (passwords, API keys) are masked in MarshalJSON and the
// config directory is created with 0750 permissions. Validation is fail-fast
// with sentinel errors checked via errors.Is.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the LLM provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidBackend indicates the vector backend is not supported.
	ErrInvalidBackend = errors.New("invalid vector backend")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbeddingDim indicates the embedding dimension is out of range.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidQdrantURL indicates the Qdrant URL is missing or malformed.
	ErrInvalidQdrantURL = errors.New("invalid Qdrant URL")

	// ErrInvalidWorkers indicates the agent worker count is out of range.
	ErrInvalidWorkers = errors.New("invalid worker count")
)

// Provider identifiers used in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Vector backend identifiers used in Config.VectorBackend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendQdrant   = "qdrant"
	BackendPGVector = "pgvector"
)

const (
	// DefaultOpenAIEmbedderModel is the default OpenAI embedder model.
	// text-embedding-3-small outputs 1536 dimensions.
	DefaultOpenAIEmbedderModel = "text-embedding-3-small"

	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultEmbeddingDim is the default embedding dimension.
	DefaultEmbeddingDim = 1536

	// MaxEmbeddingDim bounds the configurable embedding dimension.
	MaxEmbeddingDim = 4096
)

// FetcherConfig holds URL ingestion limits.
type FetcherConfig struct {
	// Parallelism is max concurrent requests per domain (default: 2)
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	// DelayMs is delay between requests in milliseconds (default: 1000)
	DelayMs int `mapstructure:"delay_ms" json:"delay_ms"`
	// TimeoutMs is request timeout in milliseconds (default: 30000)
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`
	// MaxBodyBytes caps a fetched response body (default: 10MB)
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" json:"max_body_bytes"`
}

// TelemetryConfig holds OTLP trace export configuration.
// Traces are exported to a local collector over OTLP HTTP.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`         // collector OTLP HTTP endpoint (default: localhost:4318)
	ServiceName string `mapstructure:"service_name" json:"service_name"` // default: forge
	Environment string `mapstructure:"environment" json:"environment"`   // default: dev
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// Provider configuration
	Provider      string  `mapstructure:"provider" json:"provider"`   // "openai" (default), "gemini"
	Model         string  `mapstructure:"model" json:"model"`         // generation model (e.g. "gpt-4o-mini")
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDim  int     `mapstructure:"embedding_dim" json:"embedding_dim"`

	// Embedding throughput controls
	EmbedBatchSize int     `mapstructure:"embed_batch_size" json:"embed_batch_size"` // texts per embed request
	EmbedRateLimit float64 `mapstructure:"embed_rate_limit" json:"embed_rate_limit"` // requests per second (0 = unlimited)

	// Moderation fallback keyword list (used when the provider has no
	// moderation endpoint)
	ModerationKeywords []string `mapstructure:"moderation_keywords" json:"moderation_keywords"`

	// Knowledge base configuration
	VectorBackend string `mapstructure:"vector_backend" json:"vector_backend"` // "sqlite" (default), "memory", "qdrant", "pgvector"
	Collection    string `mapstructure:"collection" json:"collection"`
	ChunkSize     int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap  int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Local storage (document catalog and sqlite vector backend)
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	// Qdrant configuration (only used when vector_backend is "qdrant")
	QdrantURL    string `mapstructure:"qdrant_url" json:"qdrant_url"`
	QdrantAPIKey string `mapstructure:"qdrant_api_key" json:"qdrant_api_key"` // SENSITIVE: masked in MarshalJSON

	// PostgreSQL configuration (only used when vector_backend is "pgvector")
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// URL ingestion configuration
	Fetcher FetcherConfig `mapstructure:"fetcher" json:"fetcher"`

	// Agent task queue configuration
	AgentWorkers   int `mapstructure:"agent_workers" json:"agent_workers"`
	AgentQueueSize int `mapstructure:"agent_queue_size" json:"agent_queue_size"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".forge")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use defaults
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has highest priority for PostgreSQL config
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(configDir string) {
	// Provider defaults
	viper.SetDefault("provider", ProviderOpenAI)
	viper.SetDefault("model", "gpt-4o-mini")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 1000)
	viper.SetDefault("embedder_model", DefaultOpenAIEmbedderModel)
	viper.SetDefault("embedding_dim", DefaultEmbeddingDim)
	viper.SetDefault("embed_batch_size", 64)
	viper.SetDefault("embed_rate_limit", 5.0)

	// Knowledge base defaults
	viper.SetDefault("vector_backend", BackendSQLite)
	viper.SetDefault("collection", "default")
	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)

	// Local storage defaults
	viper.SetDefault("data_dir", filepath.Join(configDir, "data"))

	// Qdrant defaults
	viper.SetDefault("qdrant_url", "http://localhost:6333")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "forge")
	viper.SetDefault("postgres_password", "forge_dev_password")
	viper.SetDefault("postgres_db_name", "forge")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Fetcher defaults
	viper.SetDefault("fetcher.parallelism", 2)
	viper.SetDefault("fetcher.delay_ms", 1000)
	viper.SetDefault("fetcher.timeout_ms", 30000)
	viper.SetDefault("fetcher.max_body_bytes", int64(10*1024*1024))

	// Agent defaults
	viper.SetDefault("agent_workers", 2)
	viper.SetDefault("agent_queue_size", 64)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "localhost:4318")
	viper.SetDefault("telemetry.service_name", "forge")
	viper.SetDefault("telemetry.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
//
// Provider API keys (OPENAI_API_KEY, GEMINI_API_KEY) are read directly by the
// provider clients, not via Viper; Validate() checks their presence based on
// the selected provider.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a programmer bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "FORGE_PROVIDER")
	mustBind("model", "FORGE_MODEL")
	mustBind("embedder_model", "FORGE_EMBEDDER_MODEL")
	mustBind("vector_backend", "FORGE_VECTOR_BACKEND")
	mustBind("collection", "FORGE_COLLECTION")
	mustBind("data_dir", "FORGE_DATA_DIR")
	mustBind("qdrant_url", "QDRANT_URL")
	mustBind("qdrant_api_key", "QDRANT_API_KEY")
	mustBind("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets show the
// first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + maskedValue + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // drop methods to avoid recursion
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.QdrantAPIKey = maskSecret(a.QdrantAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
