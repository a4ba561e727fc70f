// Package knowledge is the retrieval facade: it ties document ingestion,
// chunking, embedding and vector persistence together behind a small API
// (add sources, search, delete, reindex).
//
// Pipeline for every source: register in the catalog as pending, split into
// chunks, embed, upsert into the vector store, then mark completed with the
// chunk count. Failures mark the document failed with the error retained,
// so a later reindex can retry it.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgeai/forge/internal/catalog"
	"github.com/forgeai/forge/internal/ingest"
	"github.com/forgeai/forge/internal/vectorstore"
)

// DefaultEmbedBatchSize bounds how many chunks go into one embedding
// request unless Config overrides it.
const DefaultEmbedBatchSize = 64

var (
	// ErrEmptyQuery is returned by Search for a blank query.
	ErrEmptyQuery = errors.New("knowledge: query must not be empty")
	// ErrNoContent is returned when a source yields no chunks.
	ErrNoContent = errors.New("knowledge: source has no content")
	// ErrNoOrigin is returned when a document cannot be re-read from its
	// source (raw text is not retained outside the vector store).
	ErrNoOrigin = errors.New("knowledge: document has no retrievable origin")
)

// Embedder turns texts into vectors. Satisfied by provider.Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// URLFetcher retrieves a URL as an ingestion source. Satisfied by
// ingest.Fetcher.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) (ingest.Source, error)
}

// Result is one search hit.
type Result struct {
	DocumentID    string
	DocumentTitle string
	ChunkID       string
	Content       string
	Score         float32
	Metadata      map[string]string
}

// Stats summarizes a knowledge base.
type Stats struct {
	KnowledgeBase string
	Backend       string
	Collection    string
	Documents     int
	Chunks        int64
	Dim           int
}

// Config holds the knowledge base parameters the System operates under.
type Config struct {
	// KnowledgeBase is the catalog name documents are registered under.
	KnowledgeBase string
	// EmbeddingDim is the vector dimension; must match the embedder's output.
	EmbeddingDim int
	// ChunkSize and ChunkOverlap configure the splitter.
	ChunkSize    int
	ChunkOverlap int
	// EmbedBatchSize bounds how many chunks go into one embedding request
	// (default DefaultEmbedBatchSize).
	EmbedBatchSize int
}

// System is the knowledge base facade.
type System struct {
	cfg      Config
	catalog  *catalog.Store
	store    vectorstore.Store
	embedder Embedder
	splitter *ingest.Splitter
	loader   *ingest.Loader
	fetcher  URLFetcher
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New builds a System and initializes the vector store for the configured
// dimension.
func New(ctx context.Context, cfg Config, cat *catalog.Store, store vectorstore.Store, embedder Embedder, fetcher URLFetcher, logger *slog.Logger) (*System, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.EmbedBatchSize < 1 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}

	splitter, err := ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("knowledge: %w", err)
	}

	if err := store.Init(ctx, cfg.EmbeddingDim); err != nil {
		return nil, fmt.Errorf("knowledge: initializing vector store: %w", err)
	}

	return &System{
		cfg:      cfg,
		catalog:  cat,
		store:    store,
		embedder: embedder,
		splitter: splitter,
		loader:   ingest.NewLoader(nil),
		fetcher:  fetcher,
		logger:   logger,
		tracer:   otel.Tracer("forge/knowledge"),
	}, nil
}

// AddText ingests raw text under the given title.
func (s *System) AddText(ctx context.Context, title, content string) (catalog.Document, error) {
	return s.addSource(ctx, ingest.FromText(title, content))
}

// AddFile ingests a local file. Re-adding the same path updates the
// existing document.
func (s *System) AddFile(ctx context.Context, path string) (catalog.Document, error) {
	src, err := s.loader.LoadFile(path)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("knowledge: %w", err)
	}
	return s.addSource(ctx, src)
}

// AddURL fetches and ingests a web page. Re-adding the same URL updates
// the existing document.
func (s *System) AddURL(ctx context.Context, rawURL string) (catalog.Document, error) {
	if s.fetcher == nil {
		return catalog.Document{}, errors.New("knowledge: no URL fetcher configured")
	}
	src, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("knowledge: %w", err)
	}
	return s.addSource(ctx, src)
}

// addSource runs the full ingestion pipeline for one source.
func (s *System) addSource(ctx context.Context, src ingest.Source) (doc catalog.Document, err error) {
	ctx, span := s.tracer.Start(ctx, "knowledge.addSource",
		trace.WithAttributes(
			attribute.String("document.id", src.ID),
			attribute.String("document.source_type", src.SourceType),
		))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// A previous version of this document may hold more chunks than the
	// new one; remember its count so stale chunks can be removed.
	previousChunks := 0
	if existing, getErr := s.catalog.GetDocument(ctx, src.ID); getErr == nil {
		previousChunks = existing.ChunkCount
	}

	doc = catalog.Document{
		ID:            src.ID,
		KnowledgeBase: s.cfg.KnowledgeBase,
		Title:         src.Title,
		SourceType:    src.SourceType,
		SourceURL:     src.SourceURL,
		FilePath:      src.FilePath,
		Status:        catalog.StatusPending,
	}
	if err = s.catalog.UpsertDocument(ctx, doc); err != nil {
		return catalog.Document{}, fmt.Errorf("knowledge: registering document: %w", err)
	}

	chunkCount, err := s.index(ctx, src, previousChunks)
	if err != nil {
		// Chunks upserted before the failure, and any left over from a
		// previous version, are still in the store. Record how many so
		// Delete can reconstruct their IDs.
		surviving := max(chunkCount, previousChunks)
		if stErr := s.catalog.SetDocumentStatus(ctx, src.ID, catalog.StatusFailed, surviving, err.Error()); stErr != nil {
			s.logger.Error("recording failed status", "document", src.ID, "error", stErr)
		}
		return catalog.Document{}, err
	}

	if err = s.catalog.SetDocumentStatus(ctx, src.ID, catalog.StatusCompleted, chunkCount, ""); err != nil {
		return catalog.Document{}, fmt.Errorf("knowledge: recording completed status: %w", err)
	}

	s.logger.Info("document indexed",
		"document", src.ID, "title", src.Title, "chunks", chunkCount)
	span.SetAttributes(attribute.Int("document.chunks", chunkCount))

	return s.catalog.GetDocument(ctx, src.ID)
}

// index splits, embeds and stores a source's content, returning the chunk
// count. previousChunks is the chunk count of an earlier version of the
// same document, used to drop stale chunks on shrinking re-ingestion.
// On error the returned count is the number of chunks already upserted,
// so the caller can record what remains in the store.
func (s *System) index(ctx context.Context, src ingest.Source, previousChunks int) (int, error) {
	if err := s.catalog.SetDocumentStatus(ctx, src.ID, catalog.StatusProcessing, 0, ""); err != nil {
		return 0, fmt.Errorf("knowledge: recording processing status: %w", err)
	}

	chunks := s.splitter.Split(src.Content)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoContent, src.ID)
	}

	upserted := 0
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := min(start+s.cfg.EmbedBatchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := s.embedder.Embed(ctx, batch)
		if err != nil {
			return upserted, fmt.Errorf("knowledge: embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return upserted, fmt.Errorf("knowledge: embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		entries := make([]vectorstore.Entry, len(batch))
		for i, chunk := range batch {
			meta := map[string]string{"source_type": src.SourceType}
			for k, v := range src.Metadata {
				meta[k] = v
			}
			entries[i] = vectorstore.Entry{
				ID:         chunkID(src.ID, start+i),
				DocumentID: src.ID,
				Content:    chunk,
				Metadata:   meta,
				Vector:     vectors[i],
			}
		}
		if err := s.store.Upsert(ctx, entries); err != nil {
			return upserted, fmt.Errorf("knowledge: storing chunks: %w", err)
		}
		upserted = end
	}

	if previousChunks > len(chunks) {
		stale := make([]string, 0, previousChunks-len(chunks))
		for i := len(chunks); i < previousChunks; i++ {
			stale = append(stale, chunkID(src.ID, i))
		}
		if err := s.store.Delete(ctx, stale); err != nil {
			return upserted, fmt.Errorf("knowledge: removing stale chunks: %w", err)
		}
	}

	return len(chunks), nil
}

// Search embeds the query and returns the closest chunks.
func (s *System) Search(ctx context.Context, query string, opts ...SearchOption) (results []Result, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	options := newSearchOptions(opts)

	ctx, span := s.tracer.Start(ctx, "knowledge.Search",
		trace.WithAttributes(attribute.Int("search.top_k", options.topK)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("knowledge: embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("knowledge: embedder returned %d vectors for one query", len(vectors))
	}

	matches, err := s.store.Search(ctx, vectors[0], options.topK, options.filter)
	if err != nil {
		return nil, fmt.Errorf("knowledge: searching: %w", err)
	}
	span.SetAttributes(attribute.Int("search.matches", len(matches)))

	// Titles come from the catalog, one lookup per distinct document.
	titles := make(map[string]string)
	results = make([]Result, 0, len(matches))
	for _, m := range matches {
		title, ok := titles[m.DocumentID]
		if !ok {
			if doc, getErr := s.catalog.GetDocument(ctx, m.DocumentID); getErr == nil {
				title = doc.Title
			}
			titles[m.DocumentID] = title
		}
		results = append(results, Result{
			DocumentID:    m.DocumentID,
			DocumentTitle: title,
			ChunkID:       m.ID,
			Content:       m.Content,
			Score:         m.Score,
			Metadata:      m.Metadata,
		})
	}
	return results, nil
}

// Delete removes a document and all its chunks.
func (s *System) Delete(ctx context.Context, docID string) error {
	doc, err := s.catalog.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("knowledge: %w", err)
	}

	if doc.ChunkCount > 0 {
		ids := make([]string, doc.ChunkCount)
		for i := range ids {
			ids[i] = chunkID(docID, i)
		}
		if err := s.store.Delete(ctx, ids); err != nil {
			return fmt.Errorf("knowledge: removing chunks: %w", err)
		}
	}

	if err := s.catalog.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("knowledge: removing document: %w", err)
	}

	s.logger.Info("document deleted", "document", docID, "chunks", doc.ChunkCount)
	return nil
}

// ReindexDocument re-reads a document from its origin and runs the full
// pipeline again. Returns ErrNoOrigin for raw text documents.
func (s *System) ReindexDocument(ctx context.Context, docID string) (catalog.Document, error) {
	doc, err := s.catalog.GetDocument(ctx, docID)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("knowledge: %w", err)
	}

	switch doc.SourceType {
	case catalog.SourceTypeUpload:
		return s.AddFile(ctx, doc.FilePath)
	case catalog.SourceTypeURL:
		return s.AddURL(ctx, doc.SourceURL)
	default:
		return catalog.Document{}, fmt.Errorf("%w: %q", ErrNoOrigin, docID)
	}
}

// Reindex re-ingests every document in the knowledge base from its origin.
// Documents with no retrievable origin (raw text) are skipped; documents
// whose reindex errors are counted as failed, recorded on the document,
// and do not abort the rest.
func (s *System) Reindex(ctx context.Context) (reindexed, skipped, failed int, err error) {
	docs, err := s.catalog.ListDocuments(ctx, s.cfg.KnowledgeBase, "", 0)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("knowledge: listing documents: %w", err)
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return reindexed, skipped, failed, err
		}

		if _, reErr := s.ReindexDocument(ctx, doc.ID); reErr != nil {
			if errors.Is(reErr, ErrNoOrigin) {
				skipped++
				continue
			}
			s.logger.Warn("reindex failed", "document", doc.ID, "error", reErr)
			failed++
			continue
		}
		reindexed++
	}

	s.logger.Info("reindex finished",
		"reindexed", reindexed, "skipped", skipped, "failed", failed)
	return reindexed, skipped, failed, nil
}

// Stats reports catalog and vector store counts for the knowledge base.
func (s *System) Stats(ctx context.Context) (Stats, error) {
	info, err := s.store.Info(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("knowledge: reading store info: %w", err)
	}
	docs, err := s.catalog.ListDocuments(ctx, s.cfg.KnowledgeBase, "", 0)
	if err != nil {
		return Stats{}, fmt.Errorf("knowledge: listing documents: %w", err)
	}
	return Stats{
		KnowledgeBase: s.cfg.KnowledgeBase,
		Backend:       info.Backend,
		Collection:    info.Collection,
		Documents:     len(docs),
		Chunks:        info.Count,
		Dim:           info.Dim,
	}, nil
}

// chunkID derives a chunk's vector store ID from its document and index.
// The scheme is load-bearing: Delete and stale-chunk cleanup reconstruct
// IDs from the chunk count.
func chunkID(docID string, index int) string {
	return fmt.Sprintf("%s:%d", docID, index)
}
