package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL        string // base URL, e.g. http://localhost:6333
	APIKey     string // optional, sent as api-key header
	Collection string
}

// Qdrant is a Store backed by a Qdrant server over its HTTP API.
//
// Qdrant point IDs must be UUIDs or unsigned integers, so entry IDs are
// mapped to deterministic name-based UUIDs; the original ID travels in the
// point payload and is restored on read.
type Qdrant struct {
	cfg    QdrantConfig
	client *http.Client
	logger *slog.Logger

	mu  sync.Mutex
	dim int
}

// NewQdrant creates a Qdrant-backed store. The server is not contacted
// until Init.
func NewQdrant(cfg QdrantConfig, logger *slog.Logger) *Qdrant {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	return &Qdrant{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// pointID maps an entry ID to a deterministic UUID accepted by Qdrant.
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// Init ensures the collection exists with cosine distance and the given
// dimension.
func (q *Qdrant) Init(ctx context.Context, dim int) error {
	if dim < 1 {
		return fmt.Errorf("%w: dimension %d", ErrDimMismatch, dim)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var existing struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := q.do(ctx, http.MethodGet, "/collections/"+q.cfg.Collection, nil, &existing)
	switch {
	case err != nil:
		return err
	case status == http.StatusOK:
		if size := existing.Result.Config.Params.Vectors.Size; size != 0 && size != dim {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d",
				ErrDimMismatch, q.cfg.Collection, size, dim)
		}
	case status == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{"size": dim, "distance": "Cosine"},
		}
		status, err := q.do(ctx, http.MethodPut, "/collections/"+q.cfg.Collection, body, nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("creating collection %q: status %d", q.cfg.Collection, status)
		}
	default:
		return fmt.Errorf("checking collection %q: status %d", q.cfg.Collection, status)
	}

	q.dim = dim
	return nil
}

func (q *Qdrant) currentDim() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dim
}

func (q *Qdrant) Upsert(ctx context.Context, entries []Entry) error {
	dim := q.currentDim()
	if dim == 0 {
		return ErrNotInitialized
	}

	points := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %q has dimension %d, want %d", ErrDimMismatch, e.ID, len(e.Vector), dim)
		}
		payload := map[string]any{
			"entry_id":    e.ID,
			"document_id": e.DocumentID,
			"content":     e.Content,
		}
		for k, v := range e.Metadata {
			payload["meta_"+k] = v
		}
		points = append(points, map[string]any{
			"id":      pointID(e.ID),
			"vector":  e.Vector,
			"payload": payload,
		})
	}
	if len(points) == 0 {
		return nil
	}

	status, err := q.do(ctx, http.MethodPut,
		"/collections/"+q.cfg.Collection+"/points?wait=true",
		map[string]any{"points": points}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("upserting points: status %d", status)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	dim := q.currentDim()
	if dim == 0 {
		return nil, ErrNotInitialized
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d", ErrDimMismatch, len(vector), dim)
	}
	if topK < 1 {
		return nil, nil
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		must := make([]map[string]any, 0, len(filter))
		for k, v := range filter {
			must = append(must, map[string]any{
				"key":   "meta_" + k,
				"match": map[string]any{"value": v},
			})
		}
		body["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	status, err := q.do(ctx, http.MethodPost,
		"/collections/"+q.cfg.Collection+"/points/search", body, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("searching points: status %d", status)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		e := Entry{
			ID:         payloadString(r.Payload, "entry_id"),
			DocumentID: payloadString(r.Payload, "document_id"),
			Content:    payloadString(r.Payload, "content"),
		}
		for k, v := range r.Payload {
			name, ok := strings.CutPrefix(k, "meta_")
			if !ok {
				continue
			}
			s, ok := v.(string)
			if !ok {
				continue
			}
			if e.Metadata == nil {
				e.Metadata = make(map[string]string)
			}
			e.Metadata[name] = s
		}
		matches = append(matches, Match{Entry: e, Score: r.Score})
	}
	return matches, nil
}

func (q *Qdrant) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = pointID(id)
	}

	status, err := q.do(ctx, http.MethodPost,
		"/collections/"+q.cfg.Collection+"/points/delete?wait=true",
		map[string]any{"points": points}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("deleting points: status %d", status)
	}
	return nil
}

func (q *Qdrant) Info(ctx context.Context) (Info, error) {
	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	status, err := q.do(ctx, http.MethodGet, "/collections/"+q.cfg.Collection, nil, &resp)
	if err != nil {
		return Info{}, err
	}
	if status != http.StatusOK {
		return Info{}, fmt.Errorf("reading collection info: status %d", status)
	}
	return Info{
		Backend:    "qdrant",
		Collection: q.cfg.Collection,
		Count:      resp.Result.PointsCount,
		Dim:        q.currentDim(),
	}, nil
}

func (q *Qdrant) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

// do performs one API request, decoding a JSON response into out when out
// is non-nil and the body parses. The HTTP status is always returned so
// callers can branch on it.
func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.cfg.URL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
