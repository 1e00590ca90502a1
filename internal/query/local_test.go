package query

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphrag/internal/config"
	"graphrag/internal/llm"
	"graphrag/internal/storage"
	"graphrag/internal/storage/graph"
	"graphrag/internal/storage/kv"
	"graphrag/internal/storage/vector"
)

// fakeProvider returns a fixed answer and records the last prompt it saw,
// so tests can assert on what context got assembled into it.
type fakeProvider struct {
	answer     string
	lastPrompt string
}

func (f *fakeProvider) Complete(_ context.Context, msgs []llm.Message, _ llm.Params) (string, error) {
	if len(msgs) > 0 {
		f.lastPrompt = msgs[len(msgs)-1].Content
	}
	return f.answer, nil
}

func (f *fakeProvider) CompleteStream(ctx context.Context, msgs []llm.Message, params llm.Params, onChunk func(llm.Chunk) error) error {
	resp, err := f.Complete(ctx, msgs, params)
	if err != nil {
		return err
	}
	return onChunk(llm.Chunk{Delta: resp, Done: true})
}

func (f *fakeProvider) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func setupGraph(t *testing.T) graph.GraphDB {
	t.Helper()
	g, err := graph.NewMemory("")
	require.NoError(t, err)

	ctx := context.Background()
	txn, err := g.BeginDocument(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.UpsertNode("ALICE SMITH", []string{"PERSON"}, map[string]any{
		"entity_type": "PERSON", "description": "CEO of Acme", "source_id": "c1",
	}))
	require.NoError(t, txn.UpsertNode("BOB JONES", []string{"PERSON"}, map[string]any{
		"entity_type": "PERSON", "description": "Former CEO", "source_id": "c1",
	}))
	require.NoError(t, txn.UpsertEdge("ALICE SMITH", "BOB JONES", "SUPERSEDES", map[string]any{
		"description": "Alice supersedes Bob", "weight": 1.0, "source_id": "c1",
	}))
	require.NoError(t, txn.Commit(ctx))
	return g
}

func TestRunLocalSeedsOnNearestEntityAndExpandsNeighbors(t *testing.T) {
	ctx := context.Background()
	g := setupGraph(t)

	entityVec, err := vector.NewNano("")
	require.NoError(t, err)
	require.NoError(t, entityVec.Upsert(ctx, []vector.Point{
		{ID: "ALICE SMITH", Vector: []float32{1, 0}, Payload: map[string]string{"entity_type": "PERSON"}},
	}))

	kvStore, err := kv.NewJSONFile(t.TempDir())
	require.NoError(t, err)
	chunkRec, _ := json.Marshal(map[string]string{"content": "Alice Smith supersedes Bob Jones as CEO of Acme Corp."})
	require.NoError(t, kvStore.Put(ctx, storage.KVNamespaceTextChunks, "c1", chunkRec, 0))

	prov := &fakeProvider{answer: "Alice Smith now leads Acme Corp."}
	p := New(g, kvStore, entityVec, nil, nil, prov, fakeEmbedder{}, config.QueryConfig{TopKEntities: 5})

	resp, err := p.Run(ctx, Request{Mode: ModeLocal, Question: "Who leads Acme Corp?"})
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith now leads Acme Corp.", resp.Answer)
	assert.Contains(t, resp.Context, "ALICE SMITH")
	assert.Contains(t, resp.Context, "BOB JONES")
	assert.Contains(t, resp.Context, "SUPERSEDES")
	assert.Contains(t, prov.lastPrompt, "ALICE SMITH")
}

func TestRunLocalWithNoSeedMatchesFallsBackToPlainQuestion(t *testing.T) {
	ctx := context.Background()
	g := setupGraph(t)
	entityVec, err := vector.NewNano("")
	require.NoError(t, err)

	prov := &fakeProvider{answer: "no context available"}
	p := New(g, nil, entityVec, nil, nil, prov, fakeEmbedder{}, config.QueryConfig{})

	resp, err := p.Run(ctx, Request{Mode: ModeLocal, Question: "anything?"})
	require.NoError(t, err)
	assert.Equal(t, "no context available", resp.Answer)
}

func TestBuildEdgeRowsPrefersBothEndpointsSeeded(t *testing.T) {
	seedSet := map[string]bool{"A": true, "B": true}
	rank := map[string]int{"A": 0, "B": 1, "C": 2}
	edges := map[edgeKey]graph.EdgeRecord{
		{source: "A", target: "B", relationType: "REL"}: {Source: "A", Target: "B", RelationType: "REL", Props: map[string]any{"weight": 1.0}},
		{source: "B", target: "C", relationType: "REL"}: {Source: "B", Target: "C", RelationType: "REL", Props: map[string]any{"weight": 5.0}},
	}
	rows := buildEdgeRows(edges, rank, seedSet)
	require.Len(t, rows, 2)
	// A->B has both endpoints seeded, so it ranks first even with lower weight.
	assert.Equal(t, "A", rows[0][1])
	assert.Equal(t, "B", rows[0][2])
}

func TestAssembleLocalContextDropsSourcesBeforeEntities(t *testing.T) {
	tok := func(s string) int { return len(s) }
	entityRows := [][]string{{"0", "A", "PERSON", "desc", "0"}}
	chunkRows := [][]string{{"0", "c1", "a very long chunk of source text that should be dropped first"}}
	out := assembleLocalContext(tok, 20, nil, entityRows, nil, chunkRows)
	assert.Contains(t, out, "ENTITIES")
	assert.NotContains(t, out, "SOURCES")
}
