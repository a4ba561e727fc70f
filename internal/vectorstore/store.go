// Package vectorstore provides vector persistence and similarity search
// behind a single Store interface with four interchangeable backends:
// in-memory, sqlite, Qdrant and PostgreSQL with pgvector.
//
// Scores returned by Search are cosine similarity in [-1, 1]; all backends
// agree on this scale so callers can switch backends without recalibrating
// thresholds.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/forgeai/forge/internal/config"
)

var (
	// ErrDimMismatch is returned when a vector's dimension disagrees with
	// the dimension the store was initialized with.
	ErrDimMismatch = errors.New("vectorstore: embedding dimension mismatch")
	// ErrNotInitialized is returned when a store is used before Init.
	ErrNotInitialized = errors.New("vectorstore: store not initialized")
	// ErrUnknownBackend is returned by Open for an unrecognized backend name.
	ErrUnknownBackend = errors.New("vectorstore: unknown backend")
)

// Entry is one stored chunk with its embedding.
type Entry struct {
	ID         string
	DocumentID string
	Content    string
	Metadata   map[string]string
	Vector     []float32
}

// Match is a search hit: the stored entry plus its cosine similarity to the
// query vector.
type Match struct {
	Entry
	Score float32
}

// Info describes a store's current state.
type Info struct {
	Backend    string
	Collection string
	Count      int64
	Dim        int
}

// Store is the vector persistence interface. Implementations must be safe
// for concurrent use. Init must be called before any other operation.
type Store interface {
	// Init prepares the backend for vectors of the given dimension.
	// Calling Init again with a different dimension is an error.
	Init(ctx context.Context, dim int) error
	// Upsert inserts or replaces entries by ID.
	Upsert(ctx context.Context, entries []Entry) error
	// Search returns up to topK entries most similar to vector, best first.
	// A non-empty filter restricts results to entries whose metadata
	// contains every filter pair.
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Match, error)
	// Delete removes entries by ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids []string) error
	// Info reports backend name, collection and entry count.
	Info(ctx context.Context) (Info, error)
	// Close releases backend resources.
	Close() error
}

// Open constructs the Store selected by cfg.VectorBackend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.VectorBackend {
	case config.BackendMemory:
		return NewMemory(cfg.Collection, logger), nil
	case config.BackendSQLite:
		return NewSQLite(filepath.Join(cfg.DataDir, "forge.db"), cfg.Collection, logger)
	case config.BackendQdrant:
		return NewQdrant(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.Collection,
		}, logger), nil
	case config.BackendPGVector:
		return NewPGVector(ctx, cfg.PostgresURL(), cfg.Collection, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.VectorBackend)
	}
}

// matchesFilter reports whether metadata contains every pair in filter.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Zero vectors yield 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
