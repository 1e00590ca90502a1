package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"graphrag/internal/config"
	"graphrag/internal/errs"
	"graphrag/internal/graphmodel"
	"graphrag/internal/llm"
	"graphrag/internal/storage/graph"
	"graphrag/internal/storage/vector"
)

// Pipeline runs extraction across a batch of documents, merges each
// document's chunk-level results, commits one graph transaction per
// document, and upserts new entities into the entity vector store.
//
// Grounded on spec §4.3's full document-ingest contract, using the same
// errgroup+semaphore document/chunk bounding the teacher's
// internal/orchestrator package used for fan-out before it was deleted as
// out of scope for this core.
type Pipeline struct {
	extractor        *Extractor
	graphDB          graph.GraphDB
	vectorDB         vector.Store
	embedder         llm.Embedder
	patterns         RelationPatternList
	maxConcurrentDoc int
	typePrefix       bool
}

func NewPipeline(extractor *Extractor, graphDB graph.GraphDB, vectorDB vector.Store, embedder llm.Embedder, cfg config.ExtractConfig) *Pipeline {
	maxConcurrent := cfg.Concurrency
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if graphDB != nil && graphDB.SerializeWrites() {
		maxConcurrent = 1
	}
	return &Pipeline{
		extractor:        extractor,
		graphDB:          graphDB,
		vectorDB:         vectorDB,
		embedder:         embedder,
		patterns:         NewRelationPatternList(cfg.RelationPatterns),
		maxConcurrentDoc: maxConcurrent,
		typePrefix:       true,
	}
}

// DocumentResult reports one document's extraction outcome for job progress
// reporting.
type DocumentResult struct {
	DocID string
	Err   error
}

// IngestBatch runs extraction+merge+commit for every document, bounded by
// max_concurrent (spec §4.3/§5 "document-level parallelism"). A failed
// document's batch rolls back and is reported in its DocumentResult;
// preceding/sibling documents are unaffected (spec §4.3 "Failure semantics").
func (p *Pipeline) IngestBatch(ctx context.Context, docs []graphmodel.Document, chunksByDoc map[string][]graphmodel.Chunk) []DocumentResult {
	results := make([]DocumentResult, len(docs))
	sem := semaphore.NewWeighted(int64(p.maxConcurrentDoc))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(context.Background())
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				mu.Lock()
				results[i] = DocumentResult{DocID: doc.ID, Err: err}
				mu.Unlock()
				return nil
			}
			defer sem.Release(1)

			err := p.ingestDocument(ctx, doc, chunksByDoc[doc.ID])
			mu.Lock()
			results[i] = DocumentResult{DocID: doc.ID, Err: err}
			mu.Unlock()
			if err != nil {
				log.Error().Err(err).Str("doc_id", doc.ID).Msg("document batch rolled back")
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) ingestDocument(ctx context.Context, doc graphmodel.Document, chunks []graphmodel.Chunk) error {
	entities, edges, err := p.extractChunks(ctx, chunks)
	if err != nil {
		return err
	}

	merged := MergeDocument(entities, edges, p.patterns)

	txn, err := p.graphDB.BeginDocument(ctx)
	if err != nil {
		return errs.Wrap(errs.Internal, "extract", "begin document transaction", err)
	}

	existing := map[string]bool{}
	for _, e := range merged.Entities {
		props := map[string]any{
			"entity_type": e.Type,
			"description": e.Description,
			"source_id":   strings.Join(e.SourceIDs, ","),
		}
		node, ok, err := p.graphDB.Node(ctx, e.Name)
		if err != nil {
			txn.Rollback(ctx)
			return errs.Wrap(errs.Internal, "extract", "load existing node", err)
		}
		if ok {
			existing[e.Name] = true
			props = mergeNodeProps(node.Props, props)
		}
		if err := txn.UpsertNode(e.Name, []string{sanitizeLabel(e.Type)}, props); err != nil {
			txn.Rollback(ctx)
			return errs.Wrap(errs.Internal, "extract", "stage node", err)
		}
	}

	existingEdges, err := p.existingEdgeProps(ctx, merged)
	if err != nil {
		txn.Rollback(ctx)
		return errs.Wrap(errs.Internal, "extract", "load existing edges", err)
	}
	for _, e := range merged.Edges {
		props := map[string]any{
			"description": e.Description,
			"weight":      e.Weight,
			"source_id":   strings.Join(e.SourceIDs, ","),
		}
		relType := sanitizeLabel(e.RelationType)
		if existingProps, ok := existingEdges[edgeIdentity(e.Source, e.Target, relType)]; ok {
			props = mergeEdgeProps(existingProps, props)
		}
		if err := txn.UpsertEdge(e.Source, e.Target, relType, props); err != nil {
			txn.Rollback(ctx)
			return errs.Wrap(errs.Internal, "extract", "stage edge", err)
		}
	}

	if err := txn.Commit(ctx); err != nil {
		return errs.Wrap(errs.TransientExternal, "extract", "commit document batch", err)
	}

	return p.upsertNewEntityVectors(ctx, merged, existing)
}

// existingEdgeProps indexes the graph's current edge props for every node
// touched by merged, keyed by edgeIdentity, so ingestDocument can merge
// cross-document evidence into an edge that a prior document already
// committed instead of overwriting it.
func (p *Pipeline) existingEdgeProps(ctx context.Context, merged MergedDocument) (map[string]map[string]any, error) {
	index := map[string]map[string]any{}
	seen := map[string]bool{}
	for _, e := range merged.Edges {
		for _, node := range [2]string{e.Source, e.Target} {
			if seen[node] {
				continue
			}
			seen[node] = true
			edges, err := p.graphDB.NodeEdges(ctx, node)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				index[edgeIdentity(edge.Source, edge.Target, edge.RelationType)] = edge.Props
			}
		}
	}
	return index, nil
}

func edgeIdentity(source, target, relationType string) string {
	return source + "\x00" + target + "\x00" + relationType
}

// extractChunks runs ExtractChunk for every chunk, bounded by the LLM's
// own rate limiter (spec §4.3 "chunk extraction calls MAY run in parallel,
// bounded by the LLM's rate-limiter"); a chunk whose extraction fails after
// retries is logged and skipped, others proceed (spec §4.3/§7).
func (p *Pipeline) extractChunks(ctx context.Context, chunks []graphmodel.Chunk) ([]RawEntity, []RawEdge, error) {
	var mu sync.Mutex
	var entities []RawEntity
	var edges []RawEdge

	g, gctx := errgroup.WithContext(ctx)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			ents, rels, err := p.extractor.ExtractChunk(gctx, chunk)
			if err != nil {
				log.Warn().Err(err).Str("chunk_id", chunk.ID).Msg("chunk extraction failed after retries, skipping")
				return nil
			}
			mu.Lock()
			entities = append(entities, ents...)
			edges = append(edges, rels...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return entities, edges, nil
}

// upsertNewEntityVectors embeds and upserts only entities not already
// present in the graph before this document's commit (spec §4.3
// "set once at first insert; subsequent encounters update graph only").
func (p *Pipeline) upsertNewEntityVectors(ctx context.Context, merged MergedDocument, alreadyExisted map[string]bool) error {
	var toEmbed []MergedEntity
	for _, e := range merged.Entities {
		if !alreadyExisted[e.Name] {
			toEmbed = append(toEmbed, e)
		}
	}
	if len(toEmbed) == 0 {
		return nil
	}

	sort.Slice(toEmbed, func(i, j int) bool { return toEmbed[i].Name < toEmbed[j].Name })

	texts := make([]string, len(toEmbed))
	for i, e := range toEmbed {
		texts[i] = p.canonicalContent(e)
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return errs.Wrap(errs.ClassOf(err), "extract", "embed new entities", err)
	}
	if len(vectors) != len(toEmbed) {
		return errs.New(errs.Internal, "extract", "embedding count mismatch")
	}

	points := make([]vector.Point, len(toEmbed))
	for i, e := range toEmbed {
		points[i] = vector.Point{
			ID:     e.Name,
			Vector: vectors[i],
			Payload: map[string]string{
				"entity_name": e.Name,
				"entity_type": e.Type,
				"description": e.Description,
			},
		}
	}
	return p.vectorDB.Upsert(ctx, points)
}

func (p *Pipeline) canonicalContent(e MergedEntity) string {
	if p.typePrefix {
		return fmt.Sprintf("%s [%s] %s", e.Name, e.Type, e.Description)
	}
	return fmt.Sprintf("%s %s", e.Name, e.Description)
}

func sanitizeLabel(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "RELATED"
	}
	return out
}
