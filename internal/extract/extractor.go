package extract

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"graphrag/internal/config"
	"graphrag/internal/errs"
	"graphrag/internal/graphmodel"
	"graphrag/internal/llm"
)

// Extractor runs the initial-call -> continuation -> gleaning pipeline
// against one chunk at a time (spec §4.3 steps 1-5).
type Extractor struct {
	provider    llm.Provider
	entityTypes []string
	cfg         config.ExtractConfig
	maxEntities int
	maxEdges    int
}

func New(provider llm.Provider, entityTypes []string, cfg config.ExtractConfig, maxEntitiesPerChunk, maxEdgesPerChunk int) *Extractor {
	if maxEntitiesPerChunk <= 0 {
		maxEntitiesPerChunk = 100
	}
	if maxEdgesPerChunk <= 0 {
		maxEdgesPerChunk = 100
	}
	return &Extractor{
		provider:    provider,
		entityTypes: entityTypes,
		cfg:         cfg,
		maxEntities: maxEntitiesPerChunk,
		maxEdges:    maxEdgesPerChunk,
	}
}

// ExtractChunk runs the full per-chunk pipeline: initial call, up to
// max_continuation_attempts continuation calls if the response looks
// truncated, then up to max_gleaning additional passes each gated by a
// "any more entities?" decision prompt.
func (e *Extractor) ExtractChunk(ctx context.Context, chunk graphmodel.Chunk) ([]RawEntity, []RawEdge, error) {
	history := []llm.Message{
		{Role: "user", Content: initialPrompt(e.entityTypes, chunk.Content)},
	}

	response, err := e.complete(ctx, history)
	if err != nil {
		return nil, nil, err
	}
	history = append(history, llm.Message{Role: "assistant", Content: response})

	maxContinuations := e.cfg.MaxContinuations
	if maxContinuations <= 0 {
		maxContinuations = 5
	}
	for attempt := 0; attempt < maxContinuations && looksTruncated(response); attempt++ {
		history = append(history, llm.Message{Role: "user", Content: continuationPrompt()})
		cont, err := e.complete(ctx, history)
		if err != nil {
			return nil, nil, err
		}
		response = response + "\n" + cont
		history[len(history)-1] = llm.Message{Role: "assistant", Content: cont}
	}

	maxGleanings := e.cfg.MaxGleanings
	if maxGleanings < 0 {
		maxGleanings = 0
	}
	for pass := 0; pass < maxGleanings; pass++ {
		history = append(history, llm.Message{Role: "user", Content: gleaningPrompt()})
		extra, err := e.complete(ctx, history)
		if err != nil {
			return nil, nil, err
		}
		response = response + "\n" + extra
		history = append(history, llm.Message{Role: "assistant", Content: extra})

		history = append(history, llm.Message{Role: "user", Content: decisionPrompt()})
		decision, err := e.complete(ctx, history)
		if err != nil {
			return nil, nil, err
		}
		history = append(history, llm.Message{Role: "assistant", Content: decision})
		if isNegativeDecision(decision) {
			break
		}
	}

	entities, edges := parseResponse(response, chunk.ID)

	if len(entities) > e.maxEntities {
		log.Warn().Str("chunk_id", chunk.ID).Int("count", len(entities)).Int("limit", e.maxEntities).Msg("clamping extracted entities")
		entities = entities[:e.maxEntities]
	}
	if len(edges) > e.maxEdges {
		log.Warn().Str("chunk_id", chunk.ID).Int("count", len(edges)).Int("limit", e.maxEdges).Msg("clamping extracted edges")
		edges = edges[:e.maxEdges]
	}
	return entities, edges, nil
}

func (e *Extractor) complete(ctx context.Context, history []llm.Message) (string, error) {
	resp, err := e.provider.Complete(ctx, history, llm.Params{})
	if err != nil {
		return "", errs.Wrap(errs.ClassOf(err), "extract", "chunk extraction call failed", err)
	}
	return strings.TrimSpace(resp), nil
}
