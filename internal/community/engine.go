package community

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"graphrag/internal/config"
	"graphrag/internal/errs"
	"graphrag/internal/llm"
	"graphrag/internal/storage"
	"graphrag/internal/storage/graph"
	"graphrag/internal/storage/kv"
	"graphrag/internal/storage/vector"
)

const kvNamespace = storage.KVNamespaceCommunityReports

// Engine runs clustering then report generation once per ingest batch,
// after every document's transaction has committed (spec §4.3
// "Clustering and community-report generation run once, after all
// documents in the batch have been committed.").
type Engine struct {
	graphDB   graph.GraphDB
	kv        kv.Store
	entityVec vector.Store
	gen       *Generator
	cfg       config.CommunityConfig
}

func NewEngine(graphDB graph.GraphDB, kvStore kv.Store, provider llm.Provider, embedder llm.Embedder, entityVec, reportsVec vector.Store, cfg config.CommunityConfig) *Engine {
	return &Engine{
		graphDB:   graphDB,
		kv:        kvStore,
		entityVec: entityVec,
		gen:       NewGenerator(provider, embedder, reportsVec, cfg),
		cfg:       cfg,
	}
}

// Run clusters the full graph, writes per-node cluster membership back to
// the graph store, generates reports bottom-up, and persists them to KV.
func (e *Engine) Run(ctx context.Context, seed int64) (map[string]Report, error) {
	nodes, err := e.graphDB.AllNodes(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "community", "load nodes", err)
	}
	edges, err := e.graphDB.AllEdges(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "community", "load edges", err)
	}

	assignments, err := Cluster(nodes, edges, e.cfg.MaxLevels, e.cfg.Resolution, 10, seed)
	if err != nil {
		return nil, err
	}
	for nodeID, assigns := range assignments {
		clusters := make([]graph.ClusterRef, len(assigns))
		for i, a := range assigns {
			clusters[i] = graph.ClusterRef{Level: a.Level, ClusterID: a.ClusterID}
		}
		if err := e.graphDB.SetClusters(ctx, nodeID, clusters); err != nil {
			return nil, errs.Wrap(errs.Internal, "community", "write cluster assignment", err)
		}
	}

	schemas := BuildSchemas(nodes, edges, assignments)
	reports, err := e.gen.Generate(ctx, schemas)
	if err != nil {
		return reports, err
	}

	for key, report := range reports {
		b, err := json.Marshal(report)
		if err != nil {
			continue
		}
		_ = e.kv.Put(ctx, kvNamespace, key, b, 0)
	}

	e.writeCommunityDescriptions(ctx, schemas, reports)

	return reports, nil
}

// writeCommunityDescriptions propagates each community's report summary
// onto its member entities' vector payloads as community_description, via
// UpdatePayload so member embeddings are never touched (spec §3/§4.3
// "community membership/summary metadata" on entity vector payloads). A
// member already in two communities at the same level keeps the
// last-written one; clustering assigns one cluster per level, so this only
// occurs across levels, where the deepest level generated here wins.
func (e *Engine) writeCommunityDescriptions(ctx context.Context, schemas map[string]*Schema, reports map[string]Report) {
	if e.entityVec == nil {
		return
	}
	updates := map[string]map[string]string{}
	levelOf := map[string]int{}
	for clusterID, schema := range schemas {
		report, ok := reports[clusterID]
		if !ok {
			continue
		}
		for _, n := range schema.Nodes {
			if lvl, seen := levelOf[n.ID]; seen && lvl > schema.Level {
				continue
			}
			levelOf[n.ID] = schema.Level
			updates[n.ID] = map[string]string{"community_description": report.Summary}
		}
	}
	if len(updates) == 0 {
		return
	}
	if err := e.entityVec.UpdatePayload(ctx, updates); err != nil {
		log.Warn().Err(err).Msg("community: write community_description payloads failed")
	}
}
