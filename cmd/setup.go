package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/forgeai/forge/internal/agent"
	"github.com/forgeai/forge/internal/catalog"
	"github.com/forgeai/forge/internal/config"
	"github.com/forgeai/forge/internal/database"
	"github.com/forgeai/forge/internal/ingest"
	"github.com/forgeai/forge/internal/knowledge"
	"github.com/forgeai/forge/internal/provider"
	"github.com/forgeai/forge/internal/telemetry"
	"github.com/forgeai/forge/internal/vectorstore"
)

// defaultKnowledgeBase is the knowledge base created on first use.
const defaultKnowledgeBase = "default"

// app bundles everything a command needs, plus the teardown to run when it
// finishes.
type app struct {
	cfg       *config.Config
	catalog   *catalog.Store
	store     vectorstore.Store
	provider  provider.Client
	knowledge *knowledge.System
	logger    *slog.Logger

	closers []func() error
}

// setup loads and validates configuration, then wires the full pipeline:
// telemetry, catalog, vector store, provider and the knowledge system.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger := slog.Default()
	a := &app{cfg: cfg, logger: logger}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTelemetry(ctx)
	})

	db, err := database.Open(filepath.Join(cfg.DataDir, "forge.db"))
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if err := database.Migrate(db); err != nil {
		a.close()
		return nil, err
	}
	a.catalog = catalog.New(db, logger)

	if err := a.ensureKnowledgeBase(ctx); err != nil {
		a.close()
		return nil, err
	}

	store, err := vectorstore.Open(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	client, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.provider = client

	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		Parallelism:  cfg.Fetcher.Parallelism,
		Delay:        time.Duration(cfg.Fetcher.DelayMs) * time.Millisecond,
		Timeout:      time.Duration(cfg.Fetcher.TimeoutMs) * time.Millisecond,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
	}, logger)

	system, err := knowledge.New(ctx, knowledge.Config{
		KnowledgeBase:  defaultKnowledgeBase,
		EmbeddingDim:   cfg.EmbeddingDim,
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		EmbedBatchSize: cfg.EmbedBatchSize,
	}, a.catalog, store, client, fetcher, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.knowledge = system

	return a, nil
}

// ensureKnowledgeBase creates the default knowledge base for the configured
// backend when none is active yet.
func (a *app) ensureKnowledgeBase(ctx context.Context) error {
	_, err := a.catalog.ActiveKnowledgeBase(ctx, a.cfg.VectorBackend)
	if err == nil {
		return nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return err
	}
	return a.catalog.CreateKnowledgeBase(ctx, catalog.KnowledgeBase{
		Name:        defaultKnowledgeBase,
		Description: "default knowledge base",
		Backend:     a.cfg.VectorBackend,
		Collection:  a.cfg.Collection,
		Active:      true,
	})
}

// newOrchestrator builds the agent worker pool over the app's provider and
// knowledge system.
func (a *app) newOrchestrator() *agent.Orchestrator {
	return agent.New(agent.Config{
		Workers:     a.cfg.AgentWorkers,
		QueueSize:   a.cfg.AgentQueueSize,
		ContextTopK: knowledge.DefaultTopK,
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}, a.provider, a.knowledge, a.logger)
}

// close runs teardown in reverse wiring order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("cleanup failed", "error", err)
		}
	}
}

// buildProvider constructs the configured LLM provider, wrapped with the
// embed rate limiter when one is configured.
func buildProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (provider.Client, error) {
	var (
		client provider.Client
		err    error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err = provider.NewOpenAI(provider.OpenAIConfig{
			Model:         cfg.Model,
			EmbedderModel: cfg.EmbedderModel,
			EmbeddingDim:  cfg.EmbeddingDim,
		}, logger)
	case config.ProviderGemini:
		client, err = provider.NewGemini(ctx, provider.GeminiConfig{
			Model:              cfg.Model,
			EmbedderModel:      cfg.EmbedderModel,
			EmbeddingDim:       cfg.EmbeddingDim,
			ModerationKeywords: cfg.ModerationKeywords,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return provider.WithRateLimit(client, cfg.EmbedRateLimit), nil
}
