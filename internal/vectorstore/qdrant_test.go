package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeQdrant emulates the slice of the Qdrant HTTP API the store uses:
// collection get/create, point upsert/search/delete.
type fakeQdrant struct {
	mu         sync.Mutex
	dim        int
	created    bool
	points     map[string]fakePoint
	sawAPIKeys []string
}

type fakePoint struct {
	Vector  []float32
	Payload map[string]any
}

func (f *fakeQdrant) handler(collection string) http.Handler {
	mux := http.NewServeMux()
	base := "/collections/" + collection

	mux.HandleFunc("GET "+base, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sawAPIKeys = append(f.sawAPIKeys, r.Header.Get("api-key"))
		if !f.created {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{
			"points_count": len(f.points),
			"config": map[string]any{"params": map[string]any{
				"vectors": map[string]any{"size": f.dim},
			}},
		}})
	})

	mux.HandleFunc("PUT "+base, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.created = true
		f.dim = body.Vectors.Size
		f.points = make(map[string]fakePoint)
		f.mu.Unlock()
		writeJSON(w, map[string]any{"result": true})
	})

	mux.HandleFunc("PUT "+base+"/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []struct {
				ID      string         `json:"id"`
				Vector  []float32      `json:"vector"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		for _, p := range body.Points {
			f.points[p.ID] = fakePoint{Vector: p.Vector, Payload: p.Payload}
		}
		f.mu.Unlock()
		writeJSON(w, map[string]any{"result": true})
	})

	mux.HandleFunc("POST "+base+"/points/search", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
			Filter *struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()

		type hit struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		}
		var hits []hit
		for _, p := range f.points {
			if body.Filter != nil {
				ok := true
				for _, m := range body.Filter.Must {
					if p.Payload[m.Key] != m.Match.Value {
						ok = false
						break
					}
				}
				if !ok {
					continue
				}
			}
			hits = append(hits, hit{Score: cosineSimilarity(body.Vector, p.Vector), Payload: p.Payload})
		}
		for i := 0; i < len(hits); i++ {
			for j := i + 1; j < len(hits); j++ {
				if hits[j].Score > hits[i].Score {
					hits[i], hits[j] = hits[j], hits[i]
				}
			}
		}
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		writeJSON(w, map[string]any{"result": hits})
	})

	mux.HandleFunc("POST "+base+"/points/delete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []string `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		for _, id := range body.Points {
			delete(f.points, id)
		}
		f.mu.Unlock()
		writeJSON(w, map[string]any{"result": true})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newQdrantUnderTest(t *testing.T, apiKey string) (*Qdrant, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake.handler("test"))
	t.Cleanup(srv.Close)

	q := NewQdrant(QdrantConfig{URL: srv.URL, APIKey: apiKey, Collection: "test"}, nil)
	t.Cleanup(func() { _ = q.Close() })
	return q, fake
}

func TestQdrant_InitCreatesCollection(t *testing.T) {
	q, fake := newQdrantUnderTest(t, "")
	ctx := context.Background()

	if err := q.Init(ctx, 3); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !fake.created || fake.dim != 3 {
		t.Errorf("collection not created with dim 3: created=%v dim=%d", fake.created, fake.dim)
	}

	// Second Init against the now existing collection must succeed.
	if err := q.Init(ctx, 3); err != nil {
		t.Errorf("re-Init: %v", err)
	}
}

func TestQdrant_RoundTrip(t *testing.T) {
	q, _ := newQdrantUnderTest(t, "")
	ctx := context.Background()

	if err := q.Init(ctx, 2); err != nil {
		t.Fatal(err)
	}
	err := q.Upsert(ctx, []Entry{
		{ID: "doc1:0", DocumentID: "doc1", Content: "alpha", Metadata: map[string]string{"lang": "go"}, Vector: []float32{1, 0}},
		{ID: "doc1:1", DocumentID: "doc1", Content: "beta", Metadata: map[string]string{"lang": "py"}, Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	matches, err := q.Search(ctx, []float32{1, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches", len(matches))
	}
	// Entry identity and metadata survive the UUID point ID mapping.
	if matches[0].ID != "doc1:0" || matches[0].DocumentID != "doc1" || matches[0].Content != "alpha" {
		t.Errorf("match = %+v", matches[0].Entry)
	}
	if matches[0].Metadata["lang"] != "go" {
		t.Errorf("metadata = %v", matches[0].Metadata)
	}

	filtered, err := q.Search(ctx, []float32{1, 0}, 10, map[string]string{"lang": "py"})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].ID != "doc1:1" {
		t.Errorf("filtered = %+v", filtered)
	}

	if err := q.Delete(ctx, []string{"doc1:0"}); err != nil {
		t.Fatal(err)
	}
	info, err := q.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Count != 1 || info.Backend != "qdrant" {
		t.Errorf("info = %+v", info)
	}
}

func TestQdrant_DimMismatchOnExistingCollection(t *testing.T) {
	q, _ := newQdrantUnderTest(t, "")
	ctx := context.Background()

	if err := q.Init(ctx, 4); err != nil {
		t.Fatal(err)
	}

	other := NewQdrant(QdrantConfig{URL: q.cfg.URL, Collection: "test"}, nil)
	defer func() { _ = other.Close() }()
	if err := other.Init(ctx, 8); err == nil {
		t.Error("expected dimension mismatch against existing collection")
	}
}

func TestQdrant_SendsAPIKey(t *testing.T) {
	q, fake := newQdrantUnderTest(t, "secret-key")
	if err := q.Init(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.sawAPIKeys) == 0 || fake.sawAPIKeys[0] != "secret-key" {
		t.Errorf("api-key header not sent: %v", fake.sawAPIKeys)
	}
}

func TestPointID_Deterministic(t *testing.T) {
	if pointID("doc1:0") != pointID("doc1:0") {
		t.Error("pointID not deterministic")
	}
	if pointID("doc1:0") == pointID("doc1:1") {
		t.Error("distinct IDs collide")
	}
}
