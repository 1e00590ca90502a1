package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"graphrag/internal/config"
)

// OpenAIProvider wraps the openai-go SDK, grounded on the teacher's
// internal/llm/openai client's Chat.Completions.New/NewStreaming shape.
type OpenAIProvider struct {
	sdk         openai.Client
	model       string
	embedModel  string
	maxRetries  int
	idleTimeout config.LLMConfig
	limiter     *Limiter
	embedLim    *Limiter
	cache       *ResponseCache
}

func NewOpenAIProvider(cfg config.LLMConfig, limiter, embedLimiter *Limiter, cache *ResponseCache) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.OpenAI.APIKey))}
	if base := strings.TrimSpace(cfg.OpenAI.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.OpenAI.Model)
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	embedModel := strings.TrimSpace(cfg.Embedding.Model)
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		sdk:         openai.NewClient(opts...),
		model:       model,
		embedModel:  embedModel,
		maxRetries:  cfg.MaxRetries,
		idleTimeout: cfg,
		limiter:     limiter,
		embedLim:    embedLimiter,
		cache:       cache,
	}
}

func (p *OpenAIProvider) toMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (p *OpenAIProvider) Complete(ctx context.Context, msgs []Message, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = p.model
	}
	prompt := promptKey(msgs)
	if cached, ok := p.cache.Get(ctx, model, prompt, params); ok {
		return cached, nil
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	defer p.limiter.Release()

	var text string
	err := withRetry(ctx, p.maxRetries, func() error {
		resp, err := p.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    model,
			Messages: p.toMessages(msgs),
		})
		if err != nil {
			return classifyHTTPError("openai", statusCodeOf(err), err)
		}
		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Message.Content
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	p.cache.Put(ctx, model, prompt, params, text)
	return text, nil
}

func (p *OpenAIProvider) CompleteStream(ctx context.Context, msgs []Message, params Params, onChunk func(Chunk) error) error {
	model := params.Model
	if model == "" {
		model = p.model
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer p.limiter.Release()

	stream := p.sdk.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: p.toMessages(msgs),
	})
	defer func() { _ = stream.Close() }()

	return idleTimeoutStream(ctx, p.idleTimeout.IdleTimeout, func(ctx context.Context) (Chunk, bool, error) {
		if !stream.Next() {
			if err := stream.Err(); err != nil {
				return Chunk{}, false, classifyHTTPError("openai", statusCodeOf(err), err)
			}
			return Chunk{}, false, nil
		}
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			return Chunk{Delta: ""}, true, nil
		}
		delta := chunk.Choices[0].Delta.Content
		done := chunk.Choices[0].FinishReason != ""
		return Chunk{Delta: delta, Done: done}, true, nil
	}, onChunk)
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.embedLim.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.embedLim.Release()

	var out [][]float32
	err := withRetry(ctx, p.maxRetries, func() error {
		resp, err := p.sdk.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: p.embedModel,
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		})
		if err != nil {
			return classifyHTTPError("openai", statusCodeOf(err), err)
		}
		out = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for j, v := range d.Embedding {
				vec[j] = float32(v)
			}
			out[i] = vec
		}
		return nil
	})
	return out, err
}
