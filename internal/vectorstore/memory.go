package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Memory is an in-process Store for tests and small corpora. Nothing is
// persisted: the process exit loses all entries.
type Memory struct {
	collection string
	logger     *slog.Logger

	mu      sync.RWMutex
	dim     int
	entries map[string]Entry
}

// NewMemory creates an empty in-memory store.
func NewMemory(collection string, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		collection: collection,
		logger:     logger,
		entries:    make(map[string]Entry),
	}
}

func (m *Memory) Init(_ context.Context, dim int) error {
	if dim < 1 {
		return fmt.Errorf("%w: dimension %d", ErrDimMismatch, dim)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim != 0 && m.dim != dim {
		return fmt.Errorf("%w: store has dimension %d, requested %d", ErrDimMismatch, m.dim, dim)
	}
	m.dim = dim
	return nil
}

func (m *Memory) Upsert(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim == 0 {
		return ErrNotInitialized
	}
	for _, e := range entries {
		if len(e.Vector) != m.dim {
			return fmt.Errorf("%w: entry %q has dimension %d, want %d", ErrDimMismatch, e.ID, len(e.Vector), m.dim)
		}
	}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK < 1 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dim == 0 {
		return nil, ErrNotInitialized
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d", ErrDimMismatch, len(vector), m.dim)
	}

	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		if !matchesFilter(e.Metadata, filter) {
			continue
		}
		matches = append(matches, Match{Entry: e, Score: cosineSimilarity(vector, e.Vector)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *Memory) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

func (m *Memory) Info(ctx context.Context) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return Info{
		Backend:    "memory",
		Collection: m.collection,
		Count:      int64(len(m.entries)),
		Dim:        m.dim,
	}, nil
}

func (m *Memory) Close() error { return nil }
