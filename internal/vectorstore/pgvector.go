package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/forgeai/forge/db"
)

// PGVector is a Store backed by PostgreSQL with the pgvector extension.
// Search runs server-side with the cosine distance operator; scores are
// converted back to cosine similarity (1 - distance) so they line up with
// the other backends.
//
// The chunks table declares an untyped vector column so one schema serves
// any embedding dimension; the dimension is enforced here at Init and
// Upsert instead.
type PGVector struct {
	pool        *pgxpool.Pool
	databaseURL string
	collection  string
	logger      *slog.Logger

	mu  sync.Mutex
	dim int
}

// NewPGVector connects to databaseURL. Migrations are deferred to Init.
func NewPGVector(ctx context.Context, databaseURL, collection string, logger *slog.Logger) (*PGVector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return &PGVector{
		pool:        pool,
		databaseURL: databaseURL,
		collection:  collection,
		logger:      logger,
	}, nil
}

// Init applies schema migrations and pins the embedding dimension. When the
// collection already holds vectors, their dimension must match dim.
func (p *PGVector) Init(ctx context.Context, dim int) error {
	if dim < 1 {
		return fmt.Errorf("%w: dimension %d", ErrDimMismatch, dim)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := db.MigratePostgres(p.databaseURL); err != nil {
		return err
	}

	var stored int
	err := p.pool.QueryRow(ctx,
		`SELECT vector_dims(embedding) FROM chunks WHERE collection = $1 LIMIT 1`,
		p.collection,
	).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Empty collection, any dimension goes.
	case err != nil:
		return fmt.Errorf("reading stored dimension: %w", err)
	case stored != dim:
		return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
			ErrDimMismatch, p.collection, stored, dim)
	}

	p.dim = dim
	return nil
}

func (p *PGVector) currentDim() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dim
}

func (p *PGVector) Upsert(ctx context.Context, entries []Entry) error {
	dim := p.currentDim()
	if dim == 0 {
		return ErrNotInitialized
	}
	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %q has dimension %d, want %d", ErrDimMismatch, e.ID, len(e.Vector), dim)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, e := range entries {
		meta := e.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		batch.Queue(`
			INSERT INTO chunks (id, collection, document_id, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				collection  = EXCLUDED.collection,
				document_id = EXCLUDED.document_id,
				content     = EXCLUDED.content,
				metadata    = EXCLUDED.metadata,
				embedding   = EXCLUDED.embedding`,
			e.ID, p.collection, e.DocumentID, e.Content, meta, pgv.NewVector(e.Vector))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

func (p *PGVector) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	dim := p.currentDim()
	if dim == 0 {
		return nil, ErrNotInitialized
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d", ErrDimMismatch, len(vector), dim)
	}
	if topK < 1 {
		return nil, nil
	}

	var filterJSON any
	if len(filter) > 0 {
		b, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("encoding filter: %w", err)
		}
		filterJSON = b
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, document_id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE collection = $2
		  AND ($3::jsonb IS NULL OR metadata @> $3::jsonb)
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgv.NewVector(vector), p.collection, filterJSON, topK)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.Content, &m.Metadata, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return matches, nil
}

func (p *PGVector) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM chunks WHERE collection = $1 AND id = ANY($2)`,
		p.collection, ids,
	); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

func (p *PGVector) Info(ctx context.Context) (Info, error) {
	var count int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE collection = $1`, p.collection,
	).Scan(&count)
	if err != nil {
		return Info{}, fmt.Errorf("counting chunks: %w", err)
	}
	return Info{
		Backend:    "pgvector",
		Collection: p.collection,
		Count:      count,
		Dim:        p.currentDim(),
	}, nil
}

func (p *PGVector) Close() error {
	p.pool.Close()
	return nil
}
