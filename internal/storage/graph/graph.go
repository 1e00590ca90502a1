// Package graph defines the directed-multigraph storage contract and its
// backends. Edge identity for dedup purposes is (Source, Target,
// RelationType); direction is never canonicalized once RelationType is
// present, per the data model's directional-preservation invariant.
package graph

import "context"

// NodeRecord is a persisted graph node.
type NodeRecord struct {
	ID       string
	Labels   []string
	Props    map[string]any
	Clusters []ClusterRef
}

// ClusterRef mirrors graphmodel.ClusterRef to avoid an import cycle between
// graph storage and the higher-level community package that writes it.
type ClusterRef struct {
	Level     int
	ClusterID string
}

// EdgeRecord is a persisted directed edge.
type EdgeRecord struct {
	Source       string
	Target       string
	RelationType string
	Props        map[string]any
}

// Txn batches node/edge writes for one document so a partially-ingested
// document is never visible: either every node/edge from the document
// commits, or none do.
type Txn interface {
	UpsertNode(id string, labels []string, props map[string]any) error
	UpsertEdge(source, target, relationType string, props map[string]any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// GraphDB is the graph storage contract.
type GraphDB interface {
	// BeginDocument starts a batched transaction scoped to one document's
	// worth of nodes/edges.
	BeginDocument(ctx context.Context) (Txn, error)
	// Node fetches a node by ID.
	Node(ctx context.Context, id string) (NodeRecord, bool, error)
	// Neighbors returns the IDs reachable from id via an edge of the given
	// relation type (any type when relationType is empty).
	Neighbors(ctx context.Context, id, relationType string) ([]string, error)
	// NodeEdges returns every edge where id is the source or the target,
	// direction preserved, for local-query neighbor expansion.
	NodeEdges(ctx context.Context, id string) ([]EdgeRecord, error)
	// AllNodes streams every node for full-graph operations like community
	// detection; callers must not mutate the graph while iterating.
	AllNodes(ctx context.Context) ([]NodeRecord, error)
	// AllEdges streams every edge for full-graph operations.
	AllEdges(ctx context.Context) ([]EdgeRecord, error)
	// SetClusters mutates a node's cluster membership field in place,
	// called by the community engine after clustering.
	SetClusters(ctx context.Context, id string, clusters []ClusterRef) error
	// SerializeWrites reports whether document-level ingestion must be
	// serialized for this backend (true for Neo4j, to avoid concurrent
	// MERGE deadlocks; false for the in-memory backend, which is safe
	// under its own locking).
	SerializeWrites() bool
	// Close releases any underlying connections.
	Close() error
}
