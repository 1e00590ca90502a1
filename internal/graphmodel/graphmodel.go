// Package graphmodel holds the core data types shared by every stage of the
// pipeline: chunking, extraction, community detection, and query planning.
package graphmodel

import "time"

// Document is an ingested source document. Content is immutable once stored;
// re-ingesting under the same ID replaces it only via an explicit reingest
// policy, never silently.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Chunk is a content-addressed slice of a Document. ID is derived from
// (DocID, Content) so re-ingesting identical content yields identical IDs.
type Chunk struct {
	ID         string    `json:"id"`
	DocID      string    `json:"doc_id"`
	Content    string    `json:"content"`
	Index      int       `json:"index"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entity is a node in the knowledge graph merged across all chunks it was
// observed in.
type Entity struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	SourceChunks []string `json:"source_chunks"`
	Clusters     []ClusterRef `json:"clusters,omitempty"`
}

// ClusterRef records a single (level, cluster_id) community membership for
// a node. A node may belong to one cluster per hierarchy level.
type ClusterRef struct {
	Level     int    `json:"level"`
	ClusterID string `json:"cluster_id"`
}

// Relationship is a directed, typed edge between two entity names. Identity
// for dedup purposes is (Source, Target, RelationType); direction is never
// canonicalized/sorted once a RelationType is present.
type Relationship struct {
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	RelationType string   `json:"relation_type"`
	Description  string   `json:"description"`
	Weight       float64  `json:"weight"`
	SourceChunks []string `json:"source_chunks"`
}

// Community is a detected cluster of entities at a given hierarchy level.
type Community struct {
	ID       string   `json:"id"`
	Level    int      `json:"level"`
	ParentID string   `json:"parent_id,omitempty"`
	Entities []string `json:"entities"`
}

// CommunityReport is the LLM-generated summary of a Community.
type CommunityReport struct {
	CommunityID      string   `json:"community_id"`
	Level            int      `json:"level"`
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	Rating           float64  `json:"rating"`
	RatingExplanation string  `json:"rating_explanation"`
	Findings         []Finding `json:"findings"`
}

// Finding is one bullet of a CommunityReport.
type Finding struct {
	Summary    string `json:"summary"`
	Explanation string `json:"explanation"`
}

// JobStatus is the lifecycle state of an async Job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job tracks a single long-running operation (ingest, community rebuild,
// backup) so callers can poll it instead of blocking on the call.
type Job struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Status    JobStatus         `json:"status"`
	Phase     string            `json:"phase,omitempty"`
	Result    string            `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Progress  float64           `json:"progress"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
