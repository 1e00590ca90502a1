// Package vector defines the vector storage contract and its backends.
// A vector point's embedding is immutable after first insert: re-upserting
// the same ID only updates its payload/metadata, never the embedding
// itself, so downstream ANN indexes never observe a point silently moving.
package vector

import "context"

// Point is a single embedded item.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// Match is a single nearest-neighbor result.
type Match struct {
	ID      string
	Score   float64 // higher is closer
	Payload map[string]string
}

// Store is the vector storage contract.
type Store interface {
	// Upsert inserts points that don't exist yet. For points that already
	// exist, only Payload is applied; Vector is ignored (content-immutable).
	Upsert(ctx context.Context, points []Point) error
	// UpdatePayload merges the given fields into each point's existing
	// payload by key, keyed by point ID; keys not mentioned are left
	// untouched. It MUST NOT touch content or vectors. Updating an absent
	// ID is not an error (a no-op for that ID).
	UpdatePayload(ctx context.Context, updates map[string]map[string]string) error
	// Delete removes points by ID. Deleting an absent ID is not an error.
	Delete(ctx context.Context, ids []string) error
	// Search returns the k nearest points to query, optionally constrained
	// by an exact-match payload filter.
	Search(ctx context.Context, query []float32, k int, filter map[string]string) ([]Match, error)
	// Close releases any underlying connections.
	Close() error
}
