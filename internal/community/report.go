package community

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"graphrag/internal/config"
	"graphrag/internal/errs"
	"graphrag/internal/graphmodel"
	"graphrag/internal/llm"
	graphstore "graphrag/internal/storage/graph"
	"graphrag/internal/storage/vector"
	"graphrag/internal/textsplitters"
)

// Report is the LLM-generated summary for one community, per spec §4.4
// step 3.
type Report struct {
	Level     int
	ClusterID string
	Title     string               `json:"title"`
	Summary   string               `json:"summary"`
	Rating    float64              `json:"rating"`
	RatingExp string               `json:"rating_explanation"`
	Findings  []graphmodel.Finding `json:"findings"`
}

// Generator produces community reports bottom-up (deepest level first) so
// each level's reports can summarize already-generated sub-community
// reports, per spec §4.4 "Report generation — bottom-up, token-budgeted".
type Generator struct {
	provider    llm.Provider
	embedder    llm.Embedder
	reportsVec  vector.Store
	tokenBudget int
	tokenizer   textsplitters.Tokenizer
}

func NewGenerator(provider llm.Provider, embedder llm.Embedder, reportsVec vector.Store, cfg config.CommunityConfig) *Generator {
	budget := cfg.ReportTokenBudget
	if budget <= 0 {
		budget = 12000
	}
	return &Generator{
		provider:    provider,
		embedder:    embedder,
		reportsVec:  reportsVec,
		tokenBudget: budget,
		tokenizer:   textsplitters.WhitespaceTokenizer{},
	}
}

// Generate walks schemas from the deepest level to the shallowest,
// generating one report per community, with same-level reports generated
// concurrently (spec §4.4 "Parallelism").
func (g *Generator) Generate(ctx context.Context, schemas map[string]*Schema) (map[string]Report, error) {
	byLevel := map[int][]*Schema{}
	maxLevel := 0
	for _, s := range schemas {
		byLevel[s.Level] = append(byLevel[s.Level], s)
		if s.Level > maxLevel {
			maxLevel = s.Level
		}
	}

	reports := map[string]Report{}
	var mu sync.Mutex

	for level := maxLevel; level >= 0; level-- {
		group := byLevel[level]
		sort.Slice(group, func(i, j int) bool { return group[i].ClusterID < group[j].ClusterID })

		g2, gctx := errgroup.WithContext(ctx)
		for _, s := range group {
			s := s
			g2.Go(func() error {
				report, err := g.generateOne(gctx, s, reports)
				if err != nil {
					log.Warn().Err(err).Str("cluster_id", s.ClusterID).Msg("community report generation failed, skipping")
					return nil
				}
				mu.Lock()
				reports[s.ClusterID] = report
				mu.Unlock()
				return nil
			})
		}
		if err := g2.Wait(); err != nil {
			return reports, err
		}
	}
	return reports, nil
}

func (g *Generator) generateOne(ctx context.Context, s *Schema, priorReports map[string]Report) (Report, error) {
	assembled, truncated := g.buildContext(s, priorReports)
	prompt := fmt.Sprintf(
		"Summarize the following knowledge-graph community as a JSON object with fields "+
			"title, summary, rating (0-10 float), rating_explanation, and findings (array of "+
			"{summary, explanation}). Respond with JSON only.\n\n%s", assembled)

	resp, err := g.provider.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.Params{})
	if err != nil {
		return Report{}, errs.Wrap(errs.ClassOf(err), "community", "report generation call failed", err)
	}

	var parsed Report
	if err := json.Unmarshal([]byte(extractJSONObject(resp)), &parsed); err != nil {
		return Report{}, errs.Wrap(errs.DataIntegrity, "community", "malformed report JSON", err)
	}
	parsed.Level = s.Level
	parsed.ClusterID = s.ClusterID
	_ = truncated

	if g.reportsVec != nil && g.embedder != nil {
		text := parsed.Title + "\n" + parsed.Summary
		vecs, err := g.embedder.Embed(ctx, []string{text})
		if err == nil && len(vecs) == 1 {
			_ = g.reportsVec.Upsert(ctx, []vector.Point{{
				ID:     s.ClusterID,
				Vector: vecs[0],
				Payload: map[string]string{
					"level":      strconv.Itoa(s.Level),
					"cluster_id": s.ClusterID,
					"rating":     fmt.Sprintf("%f", parsed.Rating),
				},
			}})
		}
	}
	return parsed, nil
}

// buildContext assembles the nodes/relationships/sub-communities CSV
// sections and truncates by shortening descriptions first, then dropping
// rows, until the context fits tokenBudget (spec §4.4 step 4).
func (g *Generator) buildContext(s *Schema, priorReports map[string]Report) (string, bool) {
	nodeRows := make([][]string, 0, len(s.Nodes))
	degree := map[string]int{}
	for _, e := range s.Edges {
		degree[e.Source]++
		degree[e.Target]++
	}
	for i, n := range s.Nodes {
		nodeRows = append(nodeRows, []string{
			strconv.Itoa(i), n.ID, entityTypeProp(n), descriptionProp(n), strconv.Itoa(degree[n.ID]),
		})
	}

	edgeRows := make([][]string, 0, len(s.Edges))
	for i, e := range s.Edges {
		edgeRows = append(edgeRows, []string{
			strconv.Itoa(i), e.Source, e.Target, propString(e.Props, "description"), e.RelationType,
			propString(e.Props, "weight"), strconv.Itoa(degree[e.Source] + degree[e.Target]),
		})
	}

	var subRows [][]string
	for i, sub := range s.SubCommunities {
		if r, ok := priorReports[sub]; ok {
			subRows = append(subRows, []string{strconv.Itoa(i), sub, r.Title, r.Summary})
		}
	}

	truncated := false
	for g.tokenCount(nodeRows, edgeRows, subRows) > g.tokenBudget {
		if shortenLongestDescription(nodeRows, 3) || shortenLongestDescription(edgeRows, 3) {
			truncated = true
			continue
		}
		if len(subRows) > 0 {
			subRows = subRows[:len(subRows)-1]
			truncated = true
			continue
		}
		if len(edgeRows) > 0 {
			edgeRows = edgeRows[:len(edgeRows)-1]
			truncated = true
			continue
		}
		if len(nodeRows) > 0 {
			nodeRows = nodeRows[:len(nodeRows)-1]
			truncated = true
			continue
		}
		break
	}

	var b strings.Builder
	writeCSV(&b, "ENTITIES", []string{"id", "entity", "type", "description", "degree"}, nodeRows)
	writeCSV(&b, "RELATIONSHIPS", []string{"id", "source", "target", "description", "relation_type", "weight", "rank"}, edgeRows)
	if len(subRows) > 0 {
		writeCSV(&b, "SUB_COMMUNITIES", []string{"id", "cluster_id", "title", "summary"}, subRows)
	}
	return b.String(), truncated
}

func (g *Generator) tokenCount(sections ...[][]string) int {
	total := 0
	for _, rows := range sections {
		for _, row := range rows {
			total += len(g.tokenizer.Tokenize(strings.Join(row, " ")))
		}
	}
	return total
}

// shortenLongestDescription drops the last five words of the longest value
// in column descCol (the description column, index 3 in every caller),
// reporting whether any row was shortened. Values under 40 bytes, or of five
// words or fewer, are left as they are.
func shortenLongestDescription(rows [][]string, descCol int) bool {
	longest := -1
	longestLen := 0
	for i, row := range rows {
		if descCol >= len(row) {
			continue
		}
		if l := len(row[descCol]); l > longestLen {
			longest = i
			longestLen = l
		}
	}
	if longest < 0 || longestLen < 40 {
		return false
	}
	words := strings.Fields(rows[longest][descCol])
	if len(words) <= 5 {
		return false
	}
	rows[longest][descCol] = strings.Join(words[:len(words)-5], " ") + "..."
	return true
}

func writeCSV(b *strings.Builder, header string, cols []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	b.WriteString("-----" + header + "-----\n")
	w := csv.NewWriter(b)
	_ = w.Write(cols)
	for _, r := range rows {
		_ = w.Write(r)
	}
	w.Flush()
	b.WriteString("\n")
}

func entityTypeProp(n graphstore.NodeRecord) string { return propString(n.Props, "entity_type") }

func descriptionProp(n graphstore.NodeRecord) string { return propString(n.Props, "description") }

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
