// Package catalog persists knowledge base and document records in the local
// SQLite database. The catalog is independent of the vector backend: it
// tracks what has been ingested and the embedding lifecycle of each document,
// while the vectors themselves live in the configured vector store.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Document embedding lifecycle states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document source types.
const (
	SourceTypeUpload = "upload"
	SourceTypeURL    = "url"
	SourceTypeText   = "text"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("catalog: not found")

	// ErrActiveConflict indicates another knowledge base is already active
	// for the same vector backend.
	ErrActiveConflict = errors.New("catalog: active knowledge base already exists for backend")
)

// KnowledgeBase is a named collection of documents bound to a vector backend.
type KnowledgeBase struct {
	Name        string
	Description string
	Backend     string // vector backend identifier (memory, sqlite, qdrant, pgvector)
	Collection  string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Document is a catalog record for an ingested source.
type Document struct {
	ID            string
	KnowledgeBase string
	Title         string
	SourceType    string // upload, url, text
	SourceURL     string
	FilePath      string
	Status        string // pending, processing, completed, failed
	ChunkCount    int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store provides catalog persistence. Safe for concurrent use; SQLite
// serializes writers internally.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a catalog store over an opened and migrated database.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateKnowledgeBase inserts a knowledge base. When kb.Active is set, at
// most one active knowledge base may exist per backend; a conflicting insert
// fails with ErrActiveConflict. A partial unique index on the table backs
// the same rule against concurrent writers.
func (s *Store) CreateKnowledgeBase(ctx context.Context, kb KnowledgeBase) error {
	if kb.Name == "" {
		return fmt.Errorf("catalog: knowledge base name must not be empty")
	}

	if kb.Active {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM knowledge_bases WHERE is_active = 1 AND backend = ? AND name <> ?`,
			kb.Backend, kb.Name,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking active knowledge bases: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %q", ErrActiveConflict, kb.Backend)
		}
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_bases (name, description, backend, collection, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   description = excluded.description,
		   backend     = excluded.backend,
		   collection  = excluded.collection,
		   is_active   = excluded.is_active,
		   updated_at  = excluded.updated_at`,
		kb.Name, kb.Description, kb.Backend, kb.Collection, boolToInt(kb.Active), now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting knowledge base %q: %w", kb.Name, err)
	}

	s.logger.Debug("knowledge base saved", "name", kb.Name, "backend", kb.Backend)
	return nil
}

// GetKnowledgeBase returns the knowledge base with the given name.
func (s *Store) GetKnowledgeBase(ctx context.Context, name string) (KnowledgeBase, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, description, backend, collection, is_active, created_at, updated_at
		 FROM knowledge_bases WHERE name = ?`, name)
	return scanKnowledgeBase(row)
}

// ActiveKnowledgeBase returns the active knowledge base for a backend.
func (s *Store) ActiveKnowledgeBase(ctx context.Context, backend string) (KnowledgeBase, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, description, backend, collection, is_active, created_at, updated_at
		 FROM knowledge_bases WHERE backend = ? AND is_active = 1 LIMIT 1`, backend)
	return scanKnowledgeBase(row)
}

// ListKnowledgeBases returns all knowledge bases ordered by creation time,
// newest first.
func (s *Store) ListKnowledgeBases(ctx context.Context) ([]KnowledgeBase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, backend, collection, is_active, created_at, updated_at
		 FROM knowledge_bases ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge bases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var kbs []KnowledgeBase
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return nil, err
		}
		kbs = append(kbs, kb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge bases: %w", err)
	}
	return kbs, nil
}

// DeleteKnowledgeBase removes a knowledge base and, via foreign key cascade,
// its document records. Vector deletion is the caller's responsibility.
func (s *Store) DeleteKnowledgeBase(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_bases WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting knowledge base %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: knowledge base %q", ErrNotFound, name)
	}
	return nil
}

// UpsertDocument inserts or updates a document record.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("catalog: document ID must not be empty")
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, knowledge_base, title, source_type, source_url, file_path, status, chunk_count, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title       = excluded.title,
		   source_type = excluded.source_type,
		   source_url  = excluded.source_url,
		   file_path   = excluded.file_path,
		   status      = excluded.status,
		   chunk_count = excluded.chunk_count,
		   last_error  = excluded.last_error,
		   updated_at  = excluded.updated_at`,
		doc.ID, doc.KnowledgeBase, doc.Title, doc.SourceType, doc.SourceURL, doc.FilePath,
		doc.Status, doc.ChunkCount, doc.LastError, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns the document with the given ID.
func (s *Store) GetDocument(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, knowledge_base, title, source_type, source_url, file_path, status, chunk_count, last_error, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns documents of a knowledge base, newest first.
// An empty status lists all statuses; a non-positive limit uses the
// default cap.
func (s *Store) ListDocuments(ctx context.Context, kbName, status string, limit int) ([]Document, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT id, knowledge_base, title, source_type, source_url, file_path, status, chunk_count, last_error, created_at, updated_at
	          FROM documents WHERE knowledge_base = ?`
	args := []any{kbName}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// SetDocumentStatus transitions a document's embedding status.
// chunkCount is recorded on completion; lastErr on failure.
func (s *Store) SetDocumentStatus(ctx context.Context, id, status string, chunkCount int, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunk_count = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		status, chunkCount, lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating document %q status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %q", ErrNotFound, id)
	}
	return nil
}

// DeleteDocument removes a document record.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %q", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKnowledgeBase(row rowScanner) (KnowledgeBase, error) {
	var kb KnowledgeBase
	var active int
	err := row.Scan(&kb.Name, &kb.Description, &kb.Backend, &kb.Collection, &active, &kb.CreatedAt, &kb.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return KnowledgeBase{}, ErrNotFound
	}
	if err != nil {
		return KnowledgeBase{}, fmt.Errorf("scanning knowledge base: %w", err)
	}
	kb.Active = active == 1
	return kb, nil
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.KnowledgeBase, &doc.Title, &doc.SourceType, &doc.SourceURL,
		&doc.FilePath, &doc.Status, &doc.ChunkCount, &doc.LastError, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("scanning document: %w", err)
	}
	return doc, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
