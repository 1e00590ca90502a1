package extract

import (
	"sort"
	"strings"

	"graphrag/internal/config"
)

// MergedEntity is the authoritative, already-aggregated entity payload a
// graph store MUST assign directly (spec §4.3: "the graph store MUST
// assign these values directly, not re-aggregate").
type MergedEntity struct {
	Name        string
	Type        string
	Description string
	SourceIDs   []string
}

// MergedEdge is the authoritative, already-aggregated edge payload.
type MergedEdge struct {
	Source       string
	Target       string
	RelationType string
	Description  string
	Weight       float64
	SourceIDs    []string
}

// MergedDocument is the per-document merge result, ready for one graph-store
// transaction (spec §4.3 "batch commit").
type MergedDocument struct {
	Entities []MergedEntity
	Edges    []MergedEdge
}

// relationPattern is one ordered (substring, relation_type) pair.
type relationPattern struct {
	substr string
	label  string
}

// RelationPatternList matches a merged edge description against an ordered
// set of substrings (spec §4.3: "substring-based, evaluated in declared
// order"); the first pattern contained in the description wins.
// NewRelationPatternList builds one from config.ExtractConfig.RelationPatterns,
// keeping that slice's declared order.
type RelationPatternList []relationPattern

func NewRelationPatternList(ordered []config.RelationPattern) RelationPatternList {
	out := make(RelationPatternList, 0, len(ordered))
	for _, kv := range ordered {
		out = append(out, relationPattern{substr: strings.ToLower(kv.Match), label: kv.Label})
	}
	return out
}

func (l RelationPatternList) match(description string) string {
	d := strings.ToLower(description)
	for _, p := range l {
		if strings.Contains(d, p.substr) {
			return p.label
		}
	}
	return "RELATED"
}

// MergeDocument unions entities/edges extracted across every chunk of one
// document, per spec §4.3 "Per-document merging".
func MergeDocument(entities []RawEntity, edges []RawEdge, patterns RelationPatternList) MergedDocument {
	entityOrder := []string{}
	entityAgg := map[string]*entityAccum{}
	for _, e := range entities {
		acc, ok := entityAgg[e.Name]
		if !ok {
			acc = &entityAccum{name: e.Name}
			entityAgg[e.Name] = acc
			entityOrder = append(entityOrder, e.Name)
		}
		acc.addSourceID(e.SourceChunk)
		acc.addDescription(e.Description)
		acc.addType(e.Type)
	}

	edgeOrder := []string{}
	edgeAgg := map[string]*edgeAccum{}
	for _, e := range edges {
		key := e.Source + "\x00" + e.Target
		acc, ok := edgeAgg[key]
		if !ok {
			acc = &edgeAccum{source: e.Source, target: e.Target}
			edgeAgg[key] = acc
			edgeOrder = append(edgeOrder, key)
		}
		// Weight contributes once per distinct source chunk: re-merging the
		// same chunk's extraction (e.g. idempotent re-ingest) must not
		// double the summed weight (spec §8 invariant 3).
		if acc.addSourceID(e.SourceChunk) {
			acc.weight += e.Weight
		}
		acc.addDescription(e.Description)
	}

	doc := MergedDocument{}
	for _, name := range entityOrder {
		acc := entityAgg[name]
		doc.Entities = append(doc.Entities, MergedEntity{
			Name:        acc.name,
			Type:        acc.majorityType(),
			Description: strings.Join(acc.descriptions, "\n"),
			SourceIDs:   acc.sourceIDs(),
		})
	}
	for _, key := range edgeOrder {
		acc := edgeAgg[key]
		description := strings.Join(acc.descriptions, "\n")
		doc.Edges = append(doc.Edges, MergedEdge{
			Source:       acc.source,
			Target:       acc.target,
			RelationType: patterns.match(description),
			Description:  description,
			Weight:       acc.weight,
			SourceIDs:    acc.sourceIDs(),
		})
	}
	return doc
}

// mergeNodeProps folds an incoming entity's merged props into a node already
// committed by a prior document: source_id is unioned, description is
// concatenated (deduplicated), entity_type and the rest of incoming win
// (spec §3 cross-document merge).
func mergeNodeProps(existing, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(incoming))
	for k, v := range incoming {
		out[k] = v
	}
	out["description"] = mergeDescriptions(asString(existing["description"]), asString(incoming["description"]))
	out["source_id"] = joinSourceIDs(unionSourceIDs(splitSourceIDs(asString(existing["source_id"])), splitSourceIDs(asString(incoming["source_id"]))))
	return out
}

// mergeEdgeProps folds an incoming merged edge into one already committed by
// a prior document: source_id unioned, description concatenated, and the
// incoming weight added in full when incoming carries at least one source
// chunk ID the existing edge lacks, otherwise not at all, so re-ingesting an
// already-seen document never double-counts (spec §8 invariant 3,
// generalized across documents). The weight is not split per chunk: when
// only some incoming chunk IDs are new, the whole incoming weight is added.
func mergeEdgeProps(existing, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(incoming))
	for k, v := range incoming {
		out[k] = v
	}
	existingIDs := splitSourceIDs(asString(existing["source_id"]))
	incomingIDs := splitSourceIDs(asString(incoming["source_id"]))
	out["description"] = mergeDescriptions(asString(existing["description"]), asString(incoming["description"]))
	out["source_id"] = joinSourceIDs(unionSourceIDs(existingIDs, incomingIDs))
	weight := asFloat(existing["weight"])
	if hasNewSourceID(existingIDs, incomingIDs) {
		weight += asFloat(incoming["weight"])
	}
	out["weight"] = weight
	return out
}

func mergeDescriptions(existing, incoming string) string {
	existing = strings.TrimSpace(existing)
	incoming = strings.TrimSpace(incoming)
	if existing == "" {
		return incoming
	}
	if incoming == "" {
		return existing
	}
	seen := map[string]bool{}
	var lines []string
	for _, l := range strings.Split(existing, "\n") {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		lines = append(lines, l)
	}
	for _, l := range strings.Split(incoming, "\n") {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}

func splitSourceIDs(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

func joinSourceIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func unionSourceIDs(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range a {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// hasNewSourceID reports whether incoming contains any source ID not
// already present in existing.
func hasNewSourceID(existing, incoming []string) bool {
	seen := map[string]bool{}
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range incoming {
		if id != "" && !seen[id] {
			return true
		}
	}
	return false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

type entityAccum struct {
	name         string
	descriptions []string
	seenDesc     map[string]bool
	typeCounts   map[string]int
	typeOrder    []string
	sourceIDset  map[string]bool
	sourceOrder  []string
}

func (a *entityAccum) addDescription(d string) {
	d = strings.TrimSpace(d)
	if d == "" {
		return
	}
	if a.seenDesc == nil {
		a.seenDesc = map[string]bool{}
	}
	if a.seenDesc[d] {
		return
	}
	a.seenDesc[d] = true
	a.descriptions = append(a.descriptions, d)
}

func (a *entityAccum) addType(t string) {
	if t == "" {
		return
	}
	if a.typeCounts == nil {
		a.typeCounts = map[string]int{}
	}
	if a.typeCounts[t] == 0 {
		a.typeOrder = append(a.typeOrder, t)
	}
	a.typeCounts[t]++
}

// majorityType returns the most-frequent entity_type, ties broken by
// first-seen (spec §4.3: "majority entity_type (ties broken by first-seen)").
func (a *entityAccum) majorityType() string {
	best := ""
	bestCount := -1
	for _, t := range a.typeOrder {
		if a.typeCounts[t] > bestCount {
			best = t
			bestCount = a.typeCounts[t]
		}
	}
	return best
}

func (a *entityAccum) addSourceID(id string) {
	if id == "" {
		return
	}
	if a.sourceIDset == nil {
		a.sourceIDset = map[string]bool{}
	}
	if a.sourceIDset[id] {
		return
	}
	a.sourceIDset[id] = true
	a.sourceOrder = append(a.sourceOrder, id)
}

func (a *entityAccum) sourceIDs() []string {
	out := append([]string(nil), a.sourceOrder...)
	sort.Strings(out)
	return out
}

type edgeAccum struct {
	source, target string
	descriptions   []string
	seenDesc       map[string]bool
	weight         float64
	sourceIDset    map[string]bool
	sourceOrder    []string
}

func (a *edgeAccum) addDescription(d string) {
	d = strings.TrimSpace(d)
	if d == "" {
		return
	}
	if a.seenDesc == nil {
		a.seenDesc = map[string]bool{}
	}
	if a.seenDesc[d] {
		return
	}
	a.seenDesc[d] = true
	a.descriptions = append(a.descriptions, d)
}

// addSourceID records id and reports whether it was newly added.
func (a *edgeAccum) addSourceID(id string) bool {
	if id == "" {
		return false
	}
	if a.sourceIDset == nil {
		a.sourceIDset = map[string]bool{}
	}
	if a.sourceIDset[id] {
		return false
	}
	a.sourceIDset[id] = true
	a.sourceOrder = append(a.sourceOrder, id)
	return true
}

func (a *edgeAccum) sourceIDs() []string {
	out := append([]string(nil), a.sourceOrder...)
	sort.Strings(out)
	return out
}
