package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/forgeai/forge/internal/database"
	"github.com/forgeai/forge/internal/log"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return New(db, log.NewNop())
}

func TestKnowledgeBaseLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	kb := KnowledgeBase{
		Name:        "docs",
		Description: "product documentation",
		Backend:     "sqlite",
		Collection:  "default",
		Active:      true,
	}
	if err := store.CreateKnowledgeBase(ctx, kb); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetKnowledgeBase(ctx, "docs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Backend != "sqlite" || !got.Active {
		t.Errorf("unexpected knowledge base: %+v", got)
	}

	active, err := store.ActiveKnowledgeBase(ctx, "sqlite")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.Name != "docs" {
		t.Errorf("active = %q, want docs", active.Name)
	}

	if err := store.DeleteKnowledgeBase(ctx, "docs"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetKnowledgeBase(ctx, "docs"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreateKnowledgeBase_ActiveConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := KnowledgeBase{Name: "a", Backend: "qdrant", Collection: "default", Active: true}
	if err := store.CreateKnowledgeBase(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}

	// A second active knowledge base on the same backend must be rejected.
	second := KnowledgeBase{Name: "b", Backend: "qdrant", Collection: "other", Active: true}
	err := store.CreateKnowledgeBase(ctx, second)
	if !errors.Is(err, ErrActiveConflict) {
		t.Fatalf("expected ErrActiveConflict, got %v", err)
	}

	// An inactive one is fine, as is an active one on a different backend.
	inactive := KnowledgeBase{Name: "c", Backend: "qdrant", Collection: "c", Active: false}
	if err := store.CreateKnowledgeBase(ctx, inactive); err != nil {
		t.Errorf("inactive create: %v", err)
	}
	other := KnowledgeBase{Name: "d", Backend: "pgvector", Collection: "d", Active: true}
	if err := store.CreateKnowledgeBase(ctx, other); err != nil {
		t.Errorf("other backend create: %v", err)
	}

	// Re-saving the same active knowledge base must not conflict with itself.
	if err := store.CreateKnowledgeBase(ctx, first); err != nil {
		t.Errorf("resave: %v", err)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	kb := KnowledgeBase{Name: "docs", Backend: "memory", Collection: "default", Active: true}
	if err := store.CreateKnowledgeBase(ctx, kb); err != nil {
		t.Fatalf("create kb: %v", err)
	}

	doc := Document{
		ID:            "doc-1",
		KnowledgeBase: "docs",
		Title:         "Getting Started",
		SourceType:    SourceTypeText,
	}
	if err := store.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}

	// pending -> processing -> completed with chunk count.
	if err := store.SetDocumentStatus(ctx, "doc-1", StatusProcessing, 0, ""); err != nil {
		t.Fatalf("processing: %v", err)
	}
	if err := store.SetDocumentStatus(ctx, "doc-1", StatusCompleted, 7, ""); err != nil {
		t.Fatalf("completed: %v", err)
	}

	got, err = store.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get after transition: %v", err)
	}
	if got.Status != StatusCompleted || got.ChunkCount != 7 {
		t.Errorf("after completion: status=%q chunks=%d", got.Status, got.ChunkCount)
	}
}

func TestListDocuments_FilterByStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateKnowledgeBase(ctx, KnowledgeBase{Name: "docs", Backend: "memory", Collection: "c"}); err != nil {
		t.Fatalf("create kb: %v", err)
	}

	for _, d := range []Document{
		{ID: "a", KnowledgeBase: "docs", Title: "A", SourceType: SourceTypeText, Status: StatusCompleted},
		{ID: "b", KnowledgeBase: "docs", Title: "B", SourceType: SourceTypeURL, Status: StatusFailed},
		{ID: "c", KnowledgeBase: "docs", Title: "C", SourceType: SourceTypeText, Status: StatusCompleted},
	} {
		if err := store.UpsertDocument(ctx, d); err != nil {
			t.Fatalf("upsert %s: %v", d.ID, err)
		}
	}

	completed, err := store.ListDocuments(ctx, "docs", StatusCompleted, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(completed) != 2 {
		t.Errorf("completed count = %d, want 2", len(completed))
	}

	all, err := store.ListDocuments(ctx, "docs", "", 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all count = %d, want 3", len(all))
	}

	// Zero means "use the default cap", not an error.
	all, err = store.ListDocuments(ctx, "docs", "", 0)
	if err != nil {
		t.Fatalf("list with zero limit: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("zero-limit count = %d, want 3", len(all))
	}
}

func TestDeleteKnowledgeBase_CascadesDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.CreateKnowledgeBase(ctx, KnowledgeBase{Name: "docs", Backend: "memory", Collection: "c"}); err != nil {
		t.Fatalf("create kb: %v", err)
	}
	if err := store.UpsertDocument(ctx, Document{ID: "a", KnowledgeBase: "docs", Title: "A", SourceType: SourceTypeText}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.DeleteKnowledgeBase(ctx, "docs"); err != nil {
		t.Fatalf("delete kb: %v", err)
	}

	if _, err := store.GetDocument(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected document cascade delete, got %v", err)
	}
}
