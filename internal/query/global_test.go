package query

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphrag/internal/config"
	"graphrag/internal/storage"
	"graphrag/internal/storage/kv"
	"graphrag/internal/storage/vector"
)

func TestParseMapFindingsToleratesCodeFence(t *testing.T) {
	resp := "```json\n[{\"analyst_id\":0,\"description\":\"relevant\",\"score\":80}]\n```"
	findings := parseMapFindings(resp)
	require.Len(t, findings, 1)
	assert.Equal(t, 80.0, findings[0].Score)
	assert.Equal(t, "relevant", findings[0].Description)
}

func TestParseMapFindingsReturnsNilOnGarbage(t *testing.T) {
	assert.Nil(t, parseMapFindings("not json at all"))
}

func TestRunGlobalModeDisabledWithoutReportVec(t *testing.T) {
	p := New(nil, nil, nil, nil, nil, &fakeProvider{}, fakeEmbedder{}, config.QueryConfig{})
	_, err := p.Run(context.Background(), Request{Mode: ModeGlobal, Question: "q"})
	require.Error(t, err)
}

func TestRunGlobalScoresAndReduces(t *testing.T) {
	ctx := context.Background()
	reportVec, err := vector.NewNano("")
	require.NoError(t, err)
	require.NoError(t, reportVec.Upsert(ctx, []vector.Point{
		{ID: "L0-C0", Vector: []float32{1, 0}, Payload: map[string]string{"level": "0", "cluster_id": "L0-C0"}},
	}))

	kvStore, err := kv.NewJSONFile(t.TempDir())
	require.NoError(t, err)
	rep, _ := json.Marshal(map[string]any{"title": "Acme leadership", "summary": "Alice leads Acme.", "rating": 7.0})
	require.NoError(t, kvStore.Put(ctx, storage.KVNamespaceCommunityReports, "L0-C0", rep, 0))

	prov := &fakeProvider{answer: "[{\"analyst_id\":0,\"description\":\"Alice leads Acme\",\"score\":90}]"}
	p := New(nil, kvStore, nil, nil, reportVec, prov, fakeEmbedder{}, config.QueryConfig{TopKCommunities: 5})

	resp, err := p.Run(ctx, Request{Mode: ModeGlobal, Question: "Who leads Acme?"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Answer)
}
