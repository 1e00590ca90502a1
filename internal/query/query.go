// Package query implements the three retrieval-augmented query modes (spec
// §4.5): local (entity-neighborhood), global (community-report
// map-reduce), and naive (plain chunk similarity). Local mode assembles
// its context like internal/community's report builder: fixed-order CSV
// sections truncated by shortening descriptions, then dropping rows, until
// the section fits its configured token budget. Global mode drops the
// lowest-scored findings and naive mode drops the remaining chunks once
// the budget is reached.
package query

import (
	"context"

	"graphrag/internal/config"
	"graphrag/internal/llm"
	"graphrag/internal/storage/graph"
	"graphrag/internal/storage/kv"
	"graphrag/internal/storage/vector"
	"graphrag/internal/textsplitters"
)

// Mode selects a query planner.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeGlobal Mode = "global"
	ModeNaive  Mode = "naive"
)

// Request is a single query call.
type Request struct {
	Mode         Mode
	Question     string
	MaxLevel     int    // global mode: highest community level to consider (0 = root)
	ResponseType string
	OnChunk      func(llm.Chunk) error // optional; when set, the answer streams
}

// Response is the final answer plus the assembled context for inspection.
type Response struct {
	Answer  string
	Context string
}

// Planner wires the storage and LLM dependencies shared by all three modes.
type Planner struct {
	graphDB   graph.GraphDB
	kvStore   kv.Store
	entityVec vector.Store
	chunkVec  vector.Store // nil when naive mode is disabled
	reportVec vector.Store
	provider  llm.Provider
	embedder  llm.Embedder
	cfg       config.QueryConfig
	tokenizer textsplitters.Tokenizer
}

// New builds a Planner. chunkVec may be nil, in which case naive-mode
// queries fail with a mode-disabled error rather than panicking.
func New(graphDB graph.GraphDB, kvStore kv.Store, entityVec, chunkVec, reportVec vector.Store, provider llm.Provider, embedder llm.Embedder, cfg config.QueryConfig) *Planner {
	return &Planner{
		graphDB:   graphDB,
		kvStore:   kvStore,
		entityVec: entityVec,
		chunkVec:  chunkVec,
		reportVec: reportVec,
		provider:  provider,
		embedder:  embedder,
		cfg:       cfg,
		tokenizer: textsplitters.WhitespaceTokenizer{},
	}
}

// Run dispatches to the selected mode's planner.
func (p *Planner) Run(ctx context.Context, req Request) (Response, error) {
	switch req.Mode {
	case ModeLocal, "":
		return p.runLocal(ctx, req)
	case ModeGlobal:
		return p.runGlobal(ctx, req)
	case ModeNaive:
		return p.runNaive(ctx, req)
	default:
		return Response{}, modeDisabledErr("unknown query mode " + string(req.Mode))
	}
}

func (p *Planner) tokenCount(s string) int {
	return len(p.tokenizer.Tokenize(s))
}

func (p *Planner) complete(ctx context.Context, prompt string, onChunk func(llm.Chunk) error) (string, error) {
	msgs := []llm.Message{{Role: "user", Content: prompt}}
	if onChunk == nil {
		return p.provider.Complete(ctx, msgs, llm.Params{})
	}
	var full string
	err := p.provider.CompleteStream(ctx, msgs, llm.Params{}, func(c llm.Chunk) error {
		full += c.Delta
		return onChunk(c)
	})
	return full, err
}
