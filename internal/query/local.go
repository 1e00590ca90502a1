package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"graphrag/internal/storage/graph"
)

// edgeKey is the same directed-tuple dedup identity used by the graph
// store: (source, target, relation_type). Endpoints are never sorted once
// relation_type is present, so A->B and B->A with the same type stay
// distinct edges.
type edgeKey struct {
	source, target, relationType string
}

// runLocal implements spec §4.5.1: embed the query, seed on the nearest
// entities, expand to their neighbors, then assemble a fixed-order
// REPORTS/ENTITIES/RELATIONSHIPS/SOURCES context under the local token
// budget.
func (p *Planner) runLocal(ctx context.Context, req Request) (Response, error) {
	if p.entityVec == nil {
		return Response{}, modeDisabledErr("local query mode requires an entities vector store")
	}

	topK := p.cfg.TopKEntities
	if topK <= 0 {
		topK = 20
	}
	qvecs, err := p.embedder.Embed(ctx, []string{req.Question})
	if err != nil {
		return Response{}, err
	}
	matches, err := p.entityVec.Search(ctx, qvecs[0], topK, nil)
	if err != nil {
		return Response{}, err
	}
	if len(matches) == 0 {
		answer, err := p.complete(ctx, localPrompt(req.Question, ""), req.OnChunk)
		return Response{Answer: answer}, err
	}

	rank := make(map[string]int, len(matches)) // lower = closer to the query
	seedSet := make(map[string]bool, len(matches))
	for i, m := range matches {
		rank[m.ID] = i
		seedSet[m.ID] = true
	}

	nodes := map[string]graph.NodeRecord{}
	for _, m := range matches {
		n, ok, err := p.graphDB.Node(ctx, m.ID)
		if err != nil {
			return Response{}, err
		}
		if ok {
			nodes[m.ID] = n
		}
	}

	// Neighbor expansion: every edge touching a seed entity, deduped on the
	// full directed tuple so A->B and B->A with distinct relation types
	// both survive.
	edgeSet := map[edgeKey]graph.EdgeRecord{}
	neighborIDs := map[string]bool{}
	for id := range seedSet {
		edges, err := p.graphDB.NodeEdges(ctx, id)
		if err != nil {
			return Response{}, err
		}
		for _, e := range edges {
			edgeSet[edgeKey{e.Source, e.Target, e.RelationType}] = e
			if !seedSet[e.Source] {
				neighborIDs[e.Source] = true
			}
			if !seedSet[e.Target] {
				neighborIDs[e.Target] = true
			}
		}
	}
	for id := range neighborIDs {
		if _, ok := nodes[id]; ok {
			continue
		}
		n, ok, err := p.graphDB.Node(ctx, id)
		if err != nil {
			return Response{}, err
		}
		if ok {
			nodes[id] = n
			// neighbors rank just behind every seed, ordered by discovery
			if _, has := rank[id]; !has {
				rank[id] = len(matches) + len(rank)
			}
		}
	}

	entityRows, entityOrder := buildEntityRows(nodes, rank)
	edgeRows := buildEdgeRows(edgeSet, rank, seedSet)
	chunkRows, chunkIDs := p.buildTextUnitRows(ctx, nodes, entityOrder)
	reportRows := p.buildReportRows(ctx, nodes)

	budget := p.cfg.LocalTokenBudget
	if budget <= 0 {
		budget = 8000
	}
	assembled := assembleLocalContext(p.tokenCount, budget, reportRows, entityRows, edgeRows, chunkRows)
	_ = chunkIDs

	prompt := localPrompt(req.Question, assembled)
	answer, err := p.complete(ctx, prompt, req.OnChunk)
	if err != nil {
		return Response{}, err
	}
	return Response{Answer: answer, Context: assembled}, nil
}

func buildEntityRows(nodes map[string]graph.NodeRecord, rank map[string]int) ([][]string, []string) {
	order := sortedByRank(nodes, rank)
	rows := make([][]string, 0, len(order))
	for i, id := range order {
		n := nodes[id]
		rows = append(rows, []string{
			strconv.Itoa(i), id, propString(n.Props, "entity_type"), propString(n.Props, "description"), strconv.Itoa(rank[id]),
		})
	}
	return rows, order
}

// buildEdgeRows ranks edges by (both endpoints are seeds, weight desc, then
// the nearer endpoint's rank), per spec §4.5.1 step 3's ranking rule.
func buildEdgeRows(edges map[edgeKey]graph.EdgeRecord, rank map[string]int, seedSet map[string]bool) [][]string {
	type ranked struct {
		key  edgeKey
		e    graph.EdgeRecord
		rank int
	}
	list := make([]ranked, 0, len(edges))
	for k, e := range edges {
		nearest := rank[k.source]
		if r := rank[k.target]; r < nearest {
			nearest = r
		}
		list = append(list, ranked{key: k, e: e, rank: nearest})
	}
	sort.Slice(list, func(i, j int) bool {
		bi := seedSet[list[i].key.source] && seedSet[list[i].key.target]
		bj := seedSet[list[j].key.source] && seedSet[list[j].key.target]
		if bi != bj {
			return bi
		}
		wi := weightOf(list[i].e.Props)
		wj := weightOf(list[j].e.Props)
		if wi != wj {
			return wi > wj
		}
		if list[i].rank != list[j].rank {
			return list[i].rank < list[j].rank
		}
		if list[i].key.source != list[j].key.source {
			return list[i].key.source < list[j].key.source
		}
		return list[i].key.target < list[j].key.target
	})

	rows := make([][]string, 0, len(list))
	for i, r := range list {
		rows = append(rows, []string{
			strconv.Itoa(i), r.key.source, r.key.target, propString(r.e.Props, "description"),
			r.key.relationType, propString(r.e.Props, "weight"), strconv.Itoa(r.rank),
		})
	}
	return rows
}

// buildTextUnitRows selects source chunks ordered by (entity rank, number
// of distinct selected entities that cite the chunk), per spec §4.5.1 step
// 4, then fetches each chunk's text from the text_chunks KV namespace.
func (p *Planner) buildTextUnitRows(ctx context.Context, nodes map[string]graph.NodeRecord, entityOrder []string) ([][]string, []string) {
	chunkBestRank := map[string]int{}
	chunkAppearances := map[string]int{}
	for i, id := range entityOrder {
		n := nodes[id]
		for _, cid := range strings.Split(propString(n.Props, "source_id"), ",") {
			if cid == "" {
				continue
			}
			chunkAppearances[cid]++
			if r, ok := chunkBestRank[cid]; !ok || i < r {
				chunkBestRank[cid] = i
			}
		}
	}
	ids := make([]string, 0, len(chunkBestRank))
	for id := range chunkBestRank {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if chunkBestRank[ids[i]] != chunkBestRank[ids[j]] {
			return chunkBestRank[ids[i]] < chunkBestRank[ids[j]]
		}
		if chunkAppearances[ids[i]] != chunkAppearances[ids[j]] {
			return chunkAppearances[ids[i]] > chunkAppearances[ids[j]]
		}
		return ids[i] < ids[j]
	})

	rows := make([][]string, 0, len(ids))
	for i, id := range ids {
		text := p.fetchChunkText(ctx, id)
		if text == "" {
			continue
		}
		rows = append(rows, []string{strconv.Itoa(i), id, text})
	}
	return rows, ids
}

// buildReportRows selects the community reports covering the selected
// entities, weighted by rating plus membership overlap (spec §4.5.1 step
// 5), reading persisted reports from community_reports KV.
func (p *Planner) buildReportRows(ctx context.Context, nodes map[string]graph.NodeRecord) [][]string {
	overlap := map[string]int{}
	for _, n := range nodes {
		for _, c := range n.Clusters {
			overlap[c.ClusterID]++
		}
	}
	if len(overlap) == 0 {
		return nil
	}

	type scored struct {
		id     string
		title  string
		text   string
		rating float64
		score  float64
	}
	var list []scored
	for clusterID, count := range overlap {
		rep, ok := p.fetchReport(ctx, clusterID)
		if !ok {
			continue
		}
		list = append(list, scored{
			id: clusterID, title: rep.title, text: rep.summary, rating: rep.rating,
			score: rep.rating + float64(count),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].id < list[j].id
	})

	topK := p.cfg.TopKCommunities
	if topK <= 0 {
		topK = 10
	}
	if len(list) > topK {
		list = list[:topK]
	}

	rows := make([][]string, 0, len(list))
	for i, s := range list {
		rows = append(rows, []string{strconv.Itoa(i), s.id, s.title, s.text})
	}
	return rows
}

func weightOf(props map[string]any) float64 {
	v, ok := props["weight"]
	if !ok {
		return 0
	}
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}

func sortedByRank(nodes map[string]graph.NodeRecord, rank map[string]int) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if rank[ids[i]] != rank[ids[j]] {
			return rank[ids[i]] < rank[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// assembleLocalContext writes the fixed REPORTS/ENTITIES/RELATIONSHIPS/
// SOURCES sections in that order, truncating by shortening descriptions
// first then dropping rows from the lowest-priority section (SOURCES,
// then RELATIONSHIPS, then REPORTS, then ENTITIES last) until the whole
// context fits budget.
func assembleLocalContext(tok func(string) int, budget int, reportRows, entityRows, edgeRows, chunkRows [][]string) string {
	for rowTokens(tok, reportRows)+rowTokens(tok, entityRows)+rowTokens(tok, edgeRows)+rowTokens(tok, chunkRows) > budget {
		if shortenLongestDescription(entityRows, 3) || shortenLongestDescription(edgeRows, 3) || shortenLongestDescription(reportRows, 3) {
			continue
		}
		switch {
		case len(chunkRows) > 0:
			chunkRows = chunkRows[:len(chunkRows)-1]
		case len(edgeRows) > 0:
			edgeRows = edgeRows[:len(edgeRows)-1]
		case len(reportRows) > 0:
			reportRows = reportRows[:len(reportRows)-1]
		case len(entityRows) > 0:
			entityRows = entityRows[:len(entityRows)-1]
		default:
			goto done
		}
	}
done:
	var b strings.Builder
	writeCSV(&b, "REPORTS", []string{"id", "cluster_id", "title", "summary"}, reportRows)
	writeCSV(&b, "ENTITIES", []string{"id", "entity", "type", "description", "rank"}, entityRows)
	writeCSV(&b, "RELATIONSHIPS", []string{"id", "source", "target", "description", "relation_type", "weight", "rank"}, edgeRows)
	writeCSV(&b, "SOURCES", []string{"id", "chunk_id", "content"}, chunkRows)
	return b.String()
}

func localPrompt(question, context string) string {
	if context == "" {
		return fmt.Sprintf("Answer the question directly; no supporting data was found.\n\nQuestion: %s", question)
	}
	return fmt.Sprintf(
		"You are answering a question using the knowledge-graph context below. "+
			"Use only the provided entities, relationships, sources, and community "+
			"reports; if the context is insufficient, say so.\n\n%s\nQuestion: %s", context, question)
}
