// Package storage lazily resolves the configured KV, Vector, and Graph
// backends. Grounded on the teacher's internal/persistence/databases/factory.go
// switch-on-token pattern: heavy client construction (Qdrant, Neo4j) only
// happens when that backend is actually selected.
package storage

import (
	"fmt"
	"strings"

	"graphrag/internal/config"
	"graphrag/internal/storage/graph"
	"graphrag/internal/storage/kv"
	"graphrag/internal/storage/vector"
)

// Vector namespaces. The file-based vector backends keep one file per
// namespace, named by namespacedPath; the names carry no vdb_ prefix.
const (
	NamespaceEntities         = "entities"
	NamespaceChunks           = "chunks"
	NamespaceCommunityReports = "community_reports"
)

// KV namespaces. The jsonfile backend keeps one JSON file per namespace,
// named <dir>/<namespace>.json (e.g. full_docs.json, text_chunks.json);
// the names carry no kv_store_ prefix.
const (
	KVNamespaceFullDocs         = "full_docs"
	KVNamespaceTextChunks       = "text_chunks"
	KVNamespaceCommunityReports = "community_reports"
	KVNamespaceJobs             = "jobs"
)

// Backends bundles the three resolved storage contracts. Vector is keyed by
// namespace since each vector.Store instance owns exactly one collection.
type Backends struct {
	KV     kv.Store
	Vector map[string]vector.Store
	Graph  graph.GraphDB
}

// Close closes every backend, collecting but not stopping on the first
// error.
func (b Backends) Close() error {
	var firstErr error
	closers := []interface{ Close() error }{b.KV, b.Graph}
	for _, v := range b.Vector {
		closers = append(closers, v)
	}
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// New resolves KV, Vector (one store per namespace), and Graph backends
// from cfg.
func New(cfg config.StorageConfig) (Backends, error) {
	kvStore, err := newKV(cfg.KV)
	if err != nil {
		return Backends{}, fmt.Errorf("resolve kv backend: %w", err)
	}
	vecStores := make(map[string]vector.Store, 3)
	for _, ns := range []string{NamespaceEntities, NamespaceChunks, NamespaceCommunityReports} {
		vecStore, err := newVector(cfg.Vector, ns)
		if err != nil {
			return Backends{}, fmt.Errorf("resolve vector backend for %s: %w", ns, err)
		}
		vecStores[ns] = vecStore
	}
	graphStore, err := newGraph(cfg.Graph)
	if err != nil {
		return Backends{}, fmt.Errorf("resolve graph backend: %w", err)
	}
	return Backends{KV: kvStore, Vector: vecStores, Graph: graphStore}, nil
}

func newKV(cfg config.KVConfig) (kv.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "jsonfile":
		return kv.NewJSONFile(cfg.JSONFile.Dir)
	case "redis":
		return kv.NewRedis(kv.RedisConfig{
			Addrs:                 cfg.Redis.Addrs,
			Username:              cfg.Redis.Username,
			Password:              cfg.Redis.Password,
			DB:                    cfg.Redis.DB,
			TLSInsecureSkipVerify: cfg.Redis.TLSInsecureSkipVerify,
		})
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.Backend)
	}
}

func newVector(cfg config.VectorConfig, namespace string) (vector.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "nano":
		return vector.NewNano(namespacedPath(cfg.Nano.Path, namespace))
	case "hnsw":
		return vector.NewHNSW(namespacedPath(cfg.HNSW.Path, namespace))
	case "qdrant":
		var opts []vector.QdrantOption
		if cfg.Qdrant.HybridSparse {
			enc := vector.NewSparseEncoder(cfg.Qdrant.SparseDim, "tfidf-stand-in", vector.DefaultSparseLoader)
			opts = append(opts, vector.WithSparseEncoder(enc))
		}
		collection := cfg.Qdrant.Collection + "_" + namespace
		return vector.NewQdrant(cfg.Qdrant.DSN, collection, cfg.Qdrant.Dimension, cfg.Qdrant.Metric, opts...)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

// namespacedPath derives a per-namespace file path from a configured base
// path, e.g. "./data/vectors.gob" -> "./data/vectors.entities.gob": the
// namespace is inserted before the extension and no vdb_ prefix is added.
func namespacedPath(base, namespace string) string {
	if base == "" {
		return ""
	}
	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return base + "." + namespace
	}
	return base[:idx] + "." + namespace + base[idx:]
}

func newGraph(cfg config.GraphConfig) (graph.GraphDB, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory", "networkx":
		return graph.NewMemory(cfg.Memory.Path)
	case "neo4j":
		return graph.NewNeo4j(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.Backend)
	}
}
