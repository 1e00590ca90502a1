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

func TestRunNaiveModeDisabledWithoutChunkVec(t *testing.T) {
	p := New(nil, nil, nil, nil, nil, &fakeProvider{}, fakeEmbedder{}, config.QueryConfig{})
	_, err := p.Run(context.Background(), Request{Mode: ModeNaive, Question: "q"})
	require.Error(t, err)
}

func TestRunNaiveAssemblesTopChunks(t *testing.T) {
	ctx := context.Background()
	chunkVec, err := vector.NewNano("")
	require.NoError(t, err)
	require.NoError(t, chunkVec.Upsert(ctx, []vector.Point{
		{ID: "c1", Vector: []float32{1, 0}},
	}))

	kvStore, err := kv.NewJSONFile(t.TempDir())
	require.NoError(t, err)
	rec, _ := json.Marshal(map[string]string{"content": "Acme Corp was founded in 1990."})
	require.NoError(t, kvStore.Put(ctx, storage.KVNamespaceTextChunks, "c1", rec, 0))

	prov := &fakeProvider{answer: "Acme Corp was founded in 1990."}
	p := New(nil, kvStore, nil, chunkVec, nil, prov, fakeEmbedder{}, config.QueryConfig{TopKChunks: 3})

	resp, err := p.Run(ctx, Request{Mode: ModeNaive, Question: "When was Acme Corp founded?"})
	require.NoError(t, err)
	assert.Contains(t, resp.Context, "Acme Corp was founded in 1990.")
	assert.Equal(t, "Acme Corp was founded in 1990.", resp.Answer)
}
