package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"graphrag/internal/llm"
)

type globalCandidate struct {
	clusterID string
	title     string
	summary   string
	rating    float64
	level     int
}

// mapFinding is one scored point produced by the map phase (spec §4.5.2
// step 3: "map phase returns a JSON array of {analyst_id, description,
// score}").
type mapFinding struct {
	AnalystID   int     `json:"analyst_id"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// runGlobal implements spec §4.5.2: embed the query, gather the nearest
// community reports up to req.MaxLevel, map each token-bounded batch to a
// set of scored findings, then reduce by descending score into one answer.
func (p *Planner) runGlobal(ctx context.Context, req Request) (Response, error) {
	if p.reportVec == nil {
		return Response{}, modeDisabledErr("global query mode requires a community_reports vector store")
	}

	topK := p.cfg.TopKCommunities
	if topK <= 0 {
		topK = 10
	}
	qvecs, err := p.embedder.Embed(ctx, []string{req.Question})
	if err != nil {
		return Response{}, err
	}
	// Over-fetch since level filtering happens after the ANN search (the
	// vector store's filter is exact-match only, not a range).
	matches, err := p.reportVec.Search(ctx, qvecs[0], topK*4, nil)
	if err != nil {
		return Response{}, err
	}

	var candidates []globalCandidate
	for _, m := range matches {
		level, _ := strconv.Atoi(m.Payload["level"])
		if level > req.MaxLevel {
			continue
		}
		rep, ok := p.fetchReport(ctx, m.ID)
		if !ok {
			continue
		}
		candidates = append(candidates, globalCandidate{clusterID: m.ID, title: rep.title, summary: rep.summary, rating: rep.rating, level: level})
		if len(candidates) >= topK {
			break
		}
	}
	if len(candidates) == 0 {
		answer, err := p.complete(ctx, globalFallbackPrompt(req.Question), req.OnChunk)
		return Response{Answer: answer}, err
	}

	budget := p.cfg.GlobalTokenBudget
	if budget <= 0 {
		budget = 16000
	}
	batches := batchCandidates(candidates, p.tokenCount, budget)

	g, gctx := errgroup.WithContext(ctx)
	mapped := make([][]mapFinding, len(batches))
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			findings, err := p.mapBatch(gctx, req.Question, batch)
			if err != nil {
				log.Warn().Err(err).Int("batch", i).Msg("global map batch failed, skipping")
				return nil
			}
			mapped[i] = findings
			return nil
		})
	}
	_ = g.Wait()

	var all []mapFinding
	for _, f := range mapped {
		for _, m := range f {
			if m.Score > 0 {
				all = append(all, m)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	assembled := reduceContext(all, p.tokenCount, budget)
	answer, err := p.complete(ctx, globalReducePrompt(req.Question, assembled), req.OnChunk)
	if err != nil {
		return Response{}, err
	}
	return Response{Answer: answer, Context: assembled}, nil
}

// batchCandidates groups community reports into batches that each fit
// budget tokens, preserving candidate order (already ranked by similarity).
func batchCandidates(candidates []globalCandidate, tok func(string) int, budget int) [][]globalCandidate {
	var batches [][]globalCandidate
	var current []globalCandidate
	used := 0
	for _, c := range candidates {
		t := tok(c.title + " " + c.summary)
		if used+t > budget && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			used = 0
		}
		current = append(current, c)
		used += t
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (p *Planner) mapBatch(ctx context.Context, question string, batch []globalCandidate) ([]mapFinding, error) {
	var b strings.Builder
	for i, c := range batch {
		fmt.Fprintf(&b, "Analyst %d (cluster %s, rating %.1f): %s\n%s\n\n", i, c.clusterID, c.rating, c.title, c.summary)
	}
	prompt := fmt.Sprintf(
		"You are one of several analysts answering a question from your assigned "+
			"community report below. Respond with a JSON array of objects "+
			"{\"analyst_id\": int, \"description\": string, \"score\": number 0-100}, "+
			"one per analyst, scoring how relevant and helpful that analyst's report "+
			"is to the question. Respond with JSON only.\n\n%s\nQuestion: %s", b.String(), question)

	resp, err := p.provider.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.Params{})
	if err != nil {
		return nil, err
	}
	return parseMapFindings(resp), nil
}

// parseMapFindings tolerates minor JSON deviations (a code fence, leading
// prose) the way internal/community.extractJSONObject does for single
// objects, but for a top-level array.
func parseMapFindings(resp string) []mapFinding {
	s := strings.TrimSpace(resp)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return nil
	}
	var findings []mapFinding
	if err := json.Unmarshal([]byte(s[start:end+1]), &findings); err != nil {
		return nil
	}
	return findings
}
