package vector

import (
	"context"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"graphrag/internal/errs"
)

// HNSW is an in-memory approximate-nearest-neighbor Store backed by
// github.com/coder/hnsw, with the same flat-file persistence contract as
// Nano. Payloads and the immutable-embedding rule live alongside the graph
// because the hnsw package only stores vectors, not arbitrary metadata.
type HNSW struct {
	path string

	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	vectors map[string][]float32
	payload map[string]map[string]string
}

// NewHNSW opens (or creates) an HNSW store persisted at path.
func NewHNSW(path string) (*HNSW, error) {
	h := &HNSW{path: path, graph: hnsw.NewGraph[string](), vectors: make(map[string][]float32), payload: make(map[string]map[string]string)}
	if path == "" {
		return h, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, errs.Wrap(errs.TransientExternal, "vector.hnsw", "open", err)
	}
	defer f.Close()
	if err := hnsw.Import(f, h.graph); err != nil {
		return nil, errs.Wrap(errs.DataIntegrity, "vector.hnsw", "import graph", err)
	}
	return h, nil
}

func (h *HNSW) flush() error {
	if h.path == "" {
		return nil
	}
	tmp := h.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "vector.hnsw", "create", err)
	}
	if err := h.graph.Export(f); err != nil {
		f.Close()
		return errs.Wrap(errs.Internal, "vector.hnsw", "export graph", err)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.TransientExternal, "vector.hnsw", "close", err)
	}
	return os.Rename(tmp, h.path)
}

func (h *HNSW) Upsert(_ context.Context, points []Point) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range points {
		if _, ok := h.payload[p.ID]; !ok {
			h.graph.Add(hnsw.MakeNode(p.ID, p.Vector))
			h.vectors[p.ID] = p.Vector
		}
		h.payload[p.ID] = p.Payload
	}
	return h.flush()
}

func (h *HNSW) UpdatePayload(_ context.Context, updates map[string]map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, fields := range updates {
		payload, ok := h.payload[id]
		if !ok {
			continue
		}
		if payload == nil {
			payload = make(map[string]string, len(fields))
		}
		for k, v := range fields {
			payload[k] = v
		}
		h.payload[id] = payload
	}
	return h.flush()
}

func (h *HNSW) Delete(_ context.Context, ids []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		h.graph.Delete(id)
		delete(h.payload, id)
		delete(h.vectors, id)
	}
	return h.flush()
}

func (h *HNSW) Search(_ context.Context, query []float32, k int, filter map[string]string) ([]Match, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	// Over-fetch when a filter is present since HNSW has no native filter
	// support; post-filtering on a superset keeps results approximately
	// correct without a full scan.
	fetchK := k
	if len(filter) > 0 && fetchK > 0 {
		fetchK *= 4
	}
	neighbors := h.graph.Search(query, fetchK)
	matches := make([]Match, 0, len(neighbors))
	for _, nb := range neighbors {
		payload := h.payload[nb.Key]
		if !matchesFilter(payload, filter) {
			continue
		}
		matches = append(matches, Match{ID: nb.Key, Score: cosine(query, h.vectors[nb.Key]), Payload: payload})
		if k > 0 && len(matches) >= k {
			break
		}
	}
	return matches, nil
}

func (h *HNSW) Close() error { return nil }
