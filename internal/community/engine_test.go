package community

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphrag/internal/config"
	"graphrag/internal/storage/graph"
	"graphrag/internal/storage/kv"
	"graphrag/internal/storage/vector"
	"graphrag/internal/testhelpers"
)

const fixedReportResponse = `{"title":"Acme cluster","summary":"Acme Corp and its partner form a tight-knit cluster.","rating":5,"rating_explanation":"moderate","findings":[]}`

func TestEngineRunWritesCommunityDescriptionToEntityPayloads(t *testing.T) {
	ctx := context.Background()

	graphDB, err := graph.NewMemory("")
	require.NoError(t, err)
	kvStore, err := kv.NewJSONFile(t.TempDir())
	require.NoError(t, err)
	entityVec, err := vector.NewNano("")
	require.NoError(t, err)
	reportVec, err := vector.NewNano("")
	require.NoError(t, err)

	require.NoError(t, entityVec.Upsert(ctx, []vector.Point{
		{ID: "ACME CORP", Vector: []float32{1, 0}, Payload: map[string]string{"entity_name": "ACME CORP"}},
		{ID: "WAYNE ENTERPRISES", Vector: []float32{0, 1}, Payload: map[string]string{"entity_name": "WAYNE ENTERPRISES"}},
	}))

	txn, err := graphDB.BeginDocument(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.UpsertNode("ACME CORP", []string{"ORGANIZATION"}, map[string]any{"entity_type": "ORGANIZATION"}))
	require.NoError(t, txn.UpsertNode("WAYNE ENTERPRISES", []string{"ORGANIZATION"}, map[string]any{"entity_type": "ORGANIZATION"}))
	require.NoError(t, txn.UpsertEdge("ACME CORP", "WAYNE ENTERPRISES", "PARTNERS_WITH", map[string]any{"weight": 1.0}))
	require.NoError(t, txn.Commit(ctx))

	fp := &testhelpers.FakeProvider{Resp: fixedReportResponse}
	eng := NewEngine(graphDB, kvStore, fp, fp, entityVec, reportVec, config.CommunityConfig{MaxLevels: 1})

	reports, err := eng.Run(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, reports)

	matches, err := entityVec.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Acme Corp and its partner form a tight-knit cluster.", matches[0].Payload["community_description"])
	assert.Equal(t, "ACME CORP", matches[0].Payload["entity_name"], "UpdatePayload must not clobber unrelated payload keys")
}
