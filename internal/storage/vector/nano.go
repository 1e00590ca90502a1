package vector

import (
	"context"
	"encoding/gob"
	"math"
	"os"
	"sort"
	"sync"

	"graphrag/internal/errs"
)

// Nano is a brute-force, in-memory Store with flat-file persistence. It is
// the default backend: no external service required, correct at any scale
// small enough to fit in memory.
type Nano struct {
	path string

	mu     sync.RWMutex
	points map[string]Point
}

type nanoSnapshot struct {
	Points map[string]Point
}

// NewNano opens (or creates) a Nano store persisted at path. An empty path
// disables persistence (pure in-memory, useful for tests).
func NewNano(path string) (*Nano, error) {
	n := &Nano{path: path, points: make(map[string]Point)}
	if path == "" {
		return n, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return n, nil
		}
		return nil, errs.Wrap(errs.TransientExternal, "vector.nano", "open", err)
	}
	defer f.Close()
	var snap nanoSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, errs.Wrap(errs.DataIntegrity, "vector.nano", "decode", err)
	}
	n.points = snap.Points
	return n, nil
}

func (n *Nano) flush() error {
	if n.path == "" {
		return nil
	}
	tmp := n.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "vector.nano", "create", err)
	}
	if err := gob.NewEncoder(f).Encode(nanoSnapshot{Points: n.points}); err != nil {
		f.Close()
		return errs.Wrap(errs.Internal, "vector.nano", "encode", err)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.TransientExternal, "vector.nano", "close", err)
	}
	return os.Rename(tmp, n.path)
}

func (n *Nano) Upsert(_ context.Context, points []Point) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range points {
		if existing, ok := n.points[p.ID]; ok {
			existing.Payload = p.Payload
			n.points[p.ID] = existing
			continue
		}
		n.points[p.ID] = p
	}
	return n.flush()
}

func (n *Nano) UpdatePayload(_ context.Context, updates map[string]map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, fields := range updates {
		p, ok := n.points[id]
		if !ok {
			continue
		}
		if p.Payload == nil {
			p.Payload = make(map[string]string, len(fields))
		}
		for k, v := range fields {
			p.Payload[k] = v
		}
		n.points[id] = p
	}
	return n.flush()
}

func (n *Nano) Delete(_ context.Context, ids []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range ids {
		delete(n.points, id)
	}
	return n.flush()
}

func (n *Nano) Search(_ context.Context, query []float32, k int, filter map[string]string) ([]Match, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	matches := make([]Match, 0, len(n.points))
	for _, p := range n.points {
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		matches = append(matches, Match{ID: p.ID, Score: cosine(query, p.Vector), Payload: p.Payload})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (n *Nano) Close() error { return nil }

func matchesFilter(payload, filter map[string]string) bool {
	for k, v := range filter {
		if payload[k] != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
