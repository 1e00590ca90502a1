package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"graphrag/internal/storage"
)

// propString reads a string-ish graph node/edge property, formatting
// numeric props the same way internal/community's report builder does.
func propString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// fetchChunkText reads a chunk's content from the text_chunks KV
// namespace. Returns "" if absent so callers can skip it rather than fail
// the whole query.
func (p *Planner) fetchChunkText(ctx context.Context, chunkID string) string {
	if p.kvStore == nil {
		return ""
	}
	raw, ok, err := p.kvStore.Get(ctx, storage.KVNamespaceTextChunks, chunkID)
	if err != nil || !ok {
		return ""
	}
	var rec struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ""
	}
	return rec.Content
}

type persistedReport struct {
	title   string
	summary string
	rating  float64
}

// fetchReport reads a generated community report from the
// community_reports KV namespace, written by internal/community.Engine.Run.
func (p *Planner) fetchReport(ctx context.Context, clusterID string) (persistedReport, bool) {
	if p.kvStore == nil {
		return persistedReport{}, false
	}
	raw, ok, err := p.kvStore.Get(ctx, storage.KVNamespaceCommunityReports, clusterID)
	if err != nil || !ok {
		return persistedReport{}, false
	}
	var rec struct {
		Title   string  `json:"title"`
		Summary string  `json:"summary"`
		Rating  float64 `json:"rating"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return persistedReport{}, false
	}
	return persistedReport{title: rec.Title, summary: rec.Summary, rating: rec.Rating}, true
}
