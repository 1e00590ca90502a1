package llm

import (
	"context"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"graphrag/internal/config"
)

// AnthropicProvider wraps the Anthropic SDK, grounded on the same
// Messages.New/NewStreaming call shape the teacher's internal/llm/anthropic
// client used, trimmed of tool calling, thinking blocks, and prompt caching.
type AnthropicProvider struct {
	sdk        anthropic.Client
	model      string
	maxRetries int
	idleTO     config.LLMConfig
	limiter    *Limiter
	cache      *ResponseCache
}

func NewAnthropicProvider(cfg config.LLMConfig, limiter *Limiter, cache *ResponseCache) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.Anthropic.APIKey))}
	if base := strings.TrimSpace(cfg.Anthropic.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Anthropic.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicProvider{
		sdk:        anthropic.NewClient(opts...),
		model:      model,
		maxRetries: cfg.MaxRetries,
		idleTO:     cfg,
		limiter:    limiter,
		cache:      cache,
	}
}

func (p *AnthropicProvider) params(msgs []Message, params Params) (string, []anthropic.MessageParam, string) {
	model := params.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	var system string
	var out []anthropic.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	_ = maxTokens
	return model, out, system
}

func (p *AnthropicProvider) Complete(ctx context.Context, msgs []Message, params Params) (string, error) {
	model, converted, system := p.params(msgs, params)
	prompt := promptKey(msgs)
	if cached, ok := p.cache.Get(ctx, model, prompt, params); ok {
		return cached, nil
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	defer p.limiter.Release()

	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	var text string
	err := withRetry(ctx, p.maxRetries, func() error {
		resp, err := p.sdk.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			Messages:  converted,
			System:    systemBlocks(system),
			MaxTokens: maxTokens,
		})
		if err != nil {
			return classifyHTTPError("anthropic", statusCodeOf(err), err)
		}
		var b strings.Builder
		for _, block := range resp.Content {
			if tb := block.AsAny(); tb != nil {
				if txt, ok := tb.(anthropic.TextBlock); ok {
					b.WriteString(txt.Text)
				}
			}
		}
		text = b.String()
		return nil
	})
	if err != nil {
		return "", err
	}
	p.cache.Put(ctx, model, prompt, params, text)
	return text, nil
}

func (p *AnthropicProvider) CompleteStream(ctx context.Context, msgs []Message, params Params, onChunk func(Chunk) error) error {
	model, converted, system := p.params(msgs, params)
	if err := p.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer p.limiter.Release()

	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	stream := p.sdk.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  converted,
		System:    systemBlocks(system),
		MaxTokens: maxTokens,
	})
	defer func() { _ = stream.Close() }()

	return idleTimeoutStream(ctx, p.idleTO.IdleTimeout, func(ctx context.Context) (Chunk, bool, error) {
		if !stream.Next() {
			if err := stream.Err(); err != nil {
				return Chunk{}, false, classifyHTTPError("anthropic", statusCodeOf(err), err)
			}
			return Chunk{}, false, nil
		}
		event := stream.Current()
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if td, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok {
				return Chunk{Delta: td.Text}, true, nil
			}
		}
		return Chunk{Delta: ""}, true, nil
	}, onChunk)
}

func (p *AnthropicProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, classifyHTTPError("anthropic", http.StatusNotImplemented, errUnsupported("anthropic embeddings"))
}

func systemBlocks(system string) []anthropic.TextBlockParam {
	if system == "" {
		return nil
	}
	return []anthropic.TextBlockParam{{Text: system}}
}

func promptKey(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(":")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
