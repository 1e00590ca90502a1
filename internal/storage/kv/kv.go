// Package kv defines the key-value storage contract and its backends.
// KV state is namespaced (e.g. "jobs", "llm_response_cache") and supports per-key
// TTLs; backends are responsible for expiring keys past their TTL on read.
package kv

import (
	"context"
	"time"
)

// Store is the key-value storage contract. All methods are namespace
// scoped so unrelated consumers (job tracking, response cache) never
// collide on key names.
type Store interface {
	// Get returns the raw value for key in namespace, or ok=false if absent
	// or expired.
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)
	// Put stores value for key in namespace. ttl of zero means no expiry.
	Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	// BatchPut upserts multiple keys in one round trip where the backend
	// supports it; ttl of zero means no expiry, applied to every key.
	BatchPut(ctx context.Context, namespace string, items map[string][]byte, ttl time.Duration) error
	// Delete removes key from namespace. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, namespace, key string) error
	// Scan lists keys in namespace whose key has the given prefix, in
	// batches of at most limit. Backends use a cursor-based scan (e.g.
	// Redis SCAN) rather than a blocking KEYS so a large namespace never
	// stalls other callers.
	Scan(ctx context.Context, namespace, prefix string, limit int) ([]string, error)
	// Close releases any underlying connections.
	Close() error
}
