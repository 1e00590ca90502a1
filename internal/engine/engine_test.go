package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphrag/internal/chunk"
	"graphrag/internal/community"
	"graphrag/internal/config"
	"graphrag/internal/extract"
	"graphrag/internal/graphmodel"
	"graphrag/internal/job"
	"graphrag/internal/llm"
	"graphrag/internal/query"
	"graphrag/internal/storage"
	"graphrag/internal/storage/graph"
	"graphrag/internal/storage/kv"
	"graphrag/internal/storage/vector"
	"graphrag/internal/testhelpers"
)

// fixedEntityResponse terminates extraction after one call: it ends in ")"
// so looksTruncated is false, and the test's ExtractConfig leaves
// MaxGleanings at 0 so there's no gleaning/decision loop to mislead.
const fixedEntityResponse = "(entity<|>ACME CORP<|>ORGANIZATION<|>A technology company.)"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	graphDB, err := graph.NewMemory("")
	require.NoError(t, err)
	kvStore, err := kv.NewJSONFile(t.TempDir())
	require.NoError(t, err)
	entityVec, err := vector.NewNano("")
	require.NoError(t, err)
	chunkVec, err := vector.NewNano("")
	require.NoError(t, err)
	reportVec, err := vector.NewNano("")
	require.NoError(t, err)

	fp := &testhelpers.FakeProvider{Resp: fixedEntityResponse}

	chunker, err := chunk.New(config.ChunkConfig{TokenSize: 50})
	require.NoError(t, err)
	extractor := extract.New(fp, []string{"ORGANIZATION"}, config.ExtractConfig{}, 0, 0)
	pipeline := extract.NewPipeline(extractor, graphDB, entityVec, fp, config.ExtractConfig{})
	communityEngine := community.NewEngine(graphDB, kvStore, fp, fp, entityVec, reportVec, config.CommunityConfig{})
	planner := query.New(graphDB, kvStore, entityVec, chunkVec, reportVec, fp, fp, config.QueryConfig{TopKEntities: 5, TopKChunks: 5})
	jobs, err := job.New(kvStore, config.JobConfig{})
	require.NoError(t, err)

	return &Engine{
		cfg: config.Config{},
		backends: storage.Backends{
			KV:    kvStore,
			Graph: graphDB,
			Vector: map[string]vector.Store{
				storage.NamespaceEntities:         entityVec,
				storage.NamespaceChunks:           chunkVec,
				storage.NamespaceCommunityReports: reportVec,
			},
		},
		provider:  fp,
		embedder:  fp,
		chunker:   chunker,
		pipeline:  pipeline,
		community: communityEngine,
		planner:   planner,
		jobs:      jobs,
	}
}

func TestRunIngestPersistsDocumentsChunksAndEntities(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	docs := []graphmodel.Document{
		{ID: "doc1", Content: "Acme Corp is a technology company based in Springfield."},
	}

	jobID, jobCtx, err := e.jobs.Start(ctx, "ingest")
	require.NoError(t, err)
	e.runIngest(jobCtx, jobID, docs)

	j, ok, err := e.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, graphmodel.JobSucceeded, j.Status)

	raw, ok, err := e.backends.KV.Get(ctx, storage.KVNamespaceFullDocs, "doc1")
	require.NoError(t, err)
	require.True(t, ok)
	var doc fullDocRecord
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc.Content, "Acme Corp")

	node, ok, err := e.backends.Graph.Node(ctx, "ACME CORP")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ORGANIZATION", node.Props["entity_type"])
}

// varyingEntityProvider returns a different ACME CORP extraction per chunk,
// selected by a substring of the chunk content, so cross-document merge
// (description concatenation, source_id union) has something to exercise.
type varyingEntityProvider struct {
	testhelpers.FakeProvider
	responses map[string]string
}

func (f *varyingEntityProvider) Complete(ctx context.Context, msgs []llm.Message, params llm.Params) (string, error) {
	for marker, resp := range f.responses {
		if len(msgs) > 0 && strings.Contains(msgs[0].Content, marker) {
			return resp, nil
		}
	}
	return f.FakeProvider.Complete(ctx, msgs, params)
}

func TestRunIngestMergesEntityAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	fp := &varyingEntityProvider{
		responses: map[string]string{
			"Springfield": "(entity<|>ACME CORP<|>ORGANIZATION<|>A technology company based in Springfield.)",
			"Gotham":      "(entity<|>ACME CORP<|>ORGANIZATION<|>Expanded its operations into Gotham.)",
		},
	}
	extractor := extract.New(fp, []string{"ORGANIZATION"}, config.ExtractConfig{}, 0, 0)
	e.pipeline = extract.NewPipeline(extractor, e.backends.Graph, e.backends.Vector[storage.NamespaceEntities], fp, config.ExtractConfig{})

	docs := []graphmodel.Document{
		{ID: "doc1", Content: "Acme Corp is a technology company based in Springfield."},
	}
	jobID, jobCtx, err := e.jobs.Start(ctx, "ingest")
	require.NoError(t, err)
	e.runIngest(jobCtx, jobID, docs)

	docs2 := []graphmodel.Document{
		{ID: "doc2", Content: "Acme Corp expanded its operations into Gotham."},
	}
	jobID2, jobCtx2, err := e.jobs.Start(ctx, "ingest")
	require.NoError(t, err)
	e.runIngest(jobCtx2, jobID2, docs2)

	j2, ok, err := e.jobs.Get(ctx, jobID2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, graphmodel.JobSucceeded, j2.Status)

	node, ok, err := e.backends.Graph.Node(ctx, "ACME CORP")
	require.NoError(t, err)
	require.True(t, ok)

	description, _ := node.Props["description"].(string)
	assert.Contains(t, description, "Springfield")
	assert.Contains(t, description, "Gotham")

	sourceID, _ := node.Props["source_id"].(string)
	ids := strings.Split(sourceID, ",")
	assert.Len(t, ids, 2, "expected source_id to union chunks from both documents, got %q", sourceID)
}

func TestQueryNaiveFindsIngestedChunk(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	docs := []graphmodel.Document{
		{ID: "doc1", Content: "Acme Corp is a technology company based in Springfield."},
	}
	jobID, jobCtx, err := e.jobs.Start(ctx, "ingest")
	require.NoError(t, err)
	e.runIngest(jobCtx, jobID, docs)

	resp, err := e.Query(ctx, query.Request{Mode: query.ModeNaive, Question: "What is Acme Corp?"})
	require.NoError(t, err)
	assert.Contains(t, resp.Context, "Acme Corp")
}

func TestBackupSourceResolvesJSONFilePaths(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.Storage.KV.Backend = "jsonfile"
	e.cfg.Storage.KV.JSONFile.Dir = "/data/kv"
	e.cfg.Storage.Vector.Backend = "nano"
	e.cfg.Storage.Vector.Nano.Path = "/data/vectors.gob"
	e.cfg.Storage.Graph.Backend = "memory"
	e.cfg.Storage.Graph.Memory.Path = "/data/graph.gob"

	src := e.backupSource()
	assert.Equal(t, "/data/kv/full_docs.json", src.KVFiles[storage.KVNamespaceFullDocs])
	assert.Equal(t, "/data/vectors.entities.gob", src.VectorFiles[storage.NamespaceEntities])
	assert.Equal(t, "/data/graph.gob", src.GraphFile)
}
