package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/forgeai/forge/internal/database"
)

// SQLite is the default Store: embeddings live in the local SQLite database
// alongside the document catalog. Similarity search is a full scan with
// in-process cosine scoring, which is fine up to tens of thousands of
// chunks.
//
// A file lock guards the database against a second forge process writing
// concurrently; SQLite's own locking handles intra-process concurrency.
type SQLite struct {
	db         *sql.DB
	lock       *flock.Flock
	collection string
	logger     *slog.Logger

	mu  sync.Mutex
	dim int
}

// NewSQLite opens (and migrates) the SQLite database at dbPath and acquires
// an exclusive file lock next to it.
func NewSQLite(dbPath, collection string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("acquiring database lock: %w", err)
	}
	if !locked {
		_ = db.Close()
		return nil, fmt.Errorf("database %q is locked by another process", dbPath)
	}

	return &SQLite{
		db:         db,
		lock:       lock,
		collection: collection,
		logger:     logger,
	}, nil
}

// NewSQLiteWithDB wraps an already opened and migrated database. The caller
// retains ownership of db; Close does not close it.
func NewSQLiteWithDB(db *sql.DB, collection string, logger *slog.Logger) *SQLite {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLite{db: db, collection: collection, logger: logger}
}

func (s *SQLite) Init(ctx context.Context, dim int) error {
	if dim < 1 {
		return fmt.Errorf("%w: dimension %d", ErrDimMismatch, dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Vectors already stored in this collection pin the dimension.
	var stored sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT dim FROM vectors WHERE collection = ? LIMIT 1`, s.collection,
	).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading stored dimension: %w", err)
	}
	if stored.Valid && stored.Int64 != int64(dim) {
		return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
			ErrDimMismatch, s.collection, stored.Int64, dim)
	}

	s.dim = dim
	return nil
}

func (s *SQLite) currentDim() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}

func (s *SQLite) Upsert(ctx context.Context, entries []Entry) error {
	dim := s.currentDim()
	if dim == 0 {
		return ErrNotInitialized
	}
	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %q has dimension %d, want %d", ErrDimMismatch, e.ID, len(e.Vector), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (id, collection, document_id, content, metadata, dim, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			collection  = excluded.collection,
			document_id = excluded.document_id,
			content     = excluded.content,
			metadata    = excluded.metadata,
			dim         = excluded.dim,
			embedding   = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		meta, err := encodeMetadata(e.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata for %q: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID, s.collection, e.DocumentID, e.Content, meta, dim, encodeVector(e.Vector),
		); err != nil {
			return fmt.Errorf("upserting %q: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

func (s *SQLite) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	dim := s.currentDim()
	if dim == 0 {
		return nil, ErrNotInitialized
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d", ErrDimMismatch, len(vector), dim)
	}
	if topK < 1 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, metadata, embedding
		FROM vectors WHERE collection = ?`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		var (
			e    Entry
			meta string
			blob []byte
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		if e.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("decoding metadata for %q: %w", e.ID, err)
		}
		if !matchesFilter(e.Metadata, filter) {
			continue
		}
		e.Vector = decodeVector(blob)
		matches = append(matches, Match{Entry: e, Score: cosineSimilarity(vector, e.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
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

func (s *SQLite) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.collection)
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`DELETE FROM vectors WHERE collection = ? AND id IN (%s)`, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting vectors: %w", err)
	}
	return nil
}

func (s *SQLite) Info(ctx context.Context) (Info, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vectors WHERE collection = ?`, s.collection,
	).Scan(&count)
	if err != nil {
		return Info{}, fmt.Errorf("counting vectors: %w", err)
	}
	return Info{
		Backend:    "sqlite",
		Collection: s.collection,
		Count:      count,
		Dim:        s.currentDim(),
	}, nil
}

func (s *SQLite) Close() error {
	var errs []error
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("releasing database lock: %w", err))
		}
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob. Trailing partial
// values are dropped.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}
