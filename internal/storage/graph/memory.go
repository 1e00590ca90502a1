package graph

import (
	"context"
	"encoding/gob"
	"os"
	"sync"

	"graphrag/internal/errs"
)

// edgeKey is the dedup identity for an edge: (source, target, relationType).
type edgeKey struct {
	source, target, relationType string
}

// Memory is an adjacency-list multigraph Store with gob-encoded flat-file
// persistence. It is safe for concurrent document ingestion: writes take an
// exclusive lock per commit, so SerializeWrites reports false.
type Memory struct {
	path string

	mu    sync.RWMutex
	nodes map[string]NodeRecord
	edges map[edgeKey]EdgeRecord
	adj   map[string][]edgeKey // source -> outgoing edge keys
}

type memorySnapshot struct {
	Nodes map[string]NodeRecord
	Edges map[edgeKey]EdgeRecord
}

// NewMemory opens (or creates) an in-memory graph persisted at path. An
// empty path disables persistence.
func NewMemory(path string) (*Memory, error) {
	m := &Memory{
		path:  path,
		nodes: make(map[string]NodeRecord),
		edges: make(map[edgeKey]EdgeRecord),
		adj:   make(map[string][]edgeKey),
	}
	if path == "" {
		return m, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, errs.Wrap(errs.TransientExternal, "graph.memory", "open", err)
	}
	defer f.Close()
	var snap memorySnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, errs.Wrap(errs.DataIntegrity, "graph.memory", "decode", err)
	}
	m.nodes = snap.Nodes
	m.edges = snap.Edges
	for k := range snap.Edges {
		m.adj[k.source] = append(m.adj[k.source], k)
	}
	return m, nil
}

func (m *Memory) flushLocked() error {
	if m.path == "" {
		return nil
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errs.Wrap(errs.TransientExternal, "graph.memory", "create", err)
	}
	if err := gob.NewEncoder(f).Encode(memorySnapshot{Nodes: m.nodes, Edges: m.edges}); err != nil {
		f.Close()
		return errs.Wrap(errs.Internal, "graph.memory", "encode", err)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.TransientExternal, "graph.memory", "close", err)
	}
	return os.Rename(tmp, m.path)
}

// memoryTxn stages writes and applies them atomically on Commit.
type memoryTxn struct {
	m     *Memory
	nodes []NodeRecord
	edges []EdgeRecord
}

func (t *memoryTxn) UpsertNode(id string, labels []string, props map[string]any) error {
	t.nodes = append(t.nodes, NodeRecord{ID: id, Labels: labels, Props: props})
	return nil
}

func (t *memoryTxn) UpsertEdge(source, target, relationType string, props map[string]any) error {
	t.edges = append(t.edges, EdgeRecord{Source: source, Target: target, RelationType: relationType, Props: props})
	return nil
}

func (t *memoryTxn) Commit(context.Context) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for _, n := range t.nodes {
		if existing, ok := t.m.nodes[n.ID]; ok {
			existing.Labels = mergeLabels(existing.Labels, n.Labels)
			existing.Props = mergeProps(existing.Props, n.Props)
			t.m.nodes[n.ID] = existing
			continue
		}
		t.m.nodes[n.ID] = n
	}
	for _, e := range t.edges {
		key := edgeKey{source: e.Source, target: e.Target, relationType: e.RelationType}
		if existing, ok := t.m.edges[key]; ok {
			existing.Props = mergeProps(existing.Props, e.Props)
			t.m.edges[key] = existing
			continue
		}
		t.m.edges[key] = e
		t.m.adj[e.Source] = append(t.m.adj[e.Source], key)
	}
	return t.m.flushLocked()
}

func (t *memoryTxn) Rollback(context.Context) error {
	t.nodes = nil
	t.edges = nil
	return nil
}

func mergeLabels(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string{}, a...)
	for _, l := range a {
		seen[l] = true
	}
	for _, l := range b {
		if !seen[l] {
			out = append(out, l)
			seen[l] = true
		}
	}
	return out
}

func mergeProps(a, b map[string]any) map[string]any {
	if a == nil {
		a = make(map[string]any, len(b))
	}
	for k, v := range b {
		a[k] = v
	}
	return a
}

func (m *Memory) BeginDocument(context.Context) (Txn, error) {
	return &memoryTxn{m: m}, nil
}

func (m *Memory) Node(_ context.Context, id string) (NodeRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok, nil
}

func (m *Memory) Neighbors(_ context.Context, id, relationType string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, key := range m.adj[id] {
		if relationType == "" || key.relationType == relationType {
			out = append(out, key.target)
		}
	}
	return out, nil
}

func (m *Memory) NodeEdges(_ context.Context, id string) ([]EdgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []EdgeRecord
	for k, e := range m.edges {
		if k.source == id || k.target == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) AllNodes(context.Context) ([]NodeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NodeRecord, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (m *Memory) AllEdges(context.Context) ([]EdgeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EdgeRecord, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) SetClusters(_ context.Context, id string, clusters []ClusterRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return errs.New(errs.ContractViolation, "graph.memory", "set clusters on unknown node "+id)
	}
	n.Clusters = clusters
	m.nodes[id] = n
	return m.flushLocked()
}

func (m *Memory) SerializeWrites() bool { return false }

func (m *Memory) Close() error { return nil }
