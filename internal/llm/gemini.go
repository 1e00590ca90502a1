package llm

import (
	"context"
	"iter"
	"strings"

	"google.golang.org/genai"

	"graphrag/internal/config"
)

// GeminiProvider wraps google.golang.org/genai. The other example repos in
// the retrieved pack reach for this SDK for Gemini access; grounded on its
// documented Models.GenerateContent/GenerateContentStream/EmbedContent
// shape.
type GeminiProvider struct {
	sdk         *genai.Client
	model       string
	embedModel  string
	maxRetries  int
	idleTimeout config.LLMConfig
	limiter     *Limiter
	embedLim    *Limiter
	cache       *ResponseCache
}

func NewGeminiProvider(ctx context.Context, cfg config.LLMConfig, limiter, embedLimiter *Limiter, cache *ResponseCache) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: strings.TrimSpace(cfg.Gemini.APIKey)})
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Gemini.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	embedModel := strings.TrimSpace(cfg.Embedding.Model)
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}
	return &GeminiProvider{
		sdk:         client,
		model:       model,
		embedModel:  embedModel,
		maxRetries:  cfg.MaxRetries,
		idleTimeout: cfg,
		limiter:     limiter,
		embedLim:    embedLimiter,
		cache:       cache,
	}, nil
}

func (p *GeminiProvider) toContents(msgs []Message) ([]*genai.Content, string) {
	var system string
	var contents []*genai.Content
	for _, m := range msgs {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents, system
}

func (p *GeminiProvider) Complete(ctx context.Context, msgs []Message, params Params) (string, error) {
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

	contents, system := p.toContents(msgs)
	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(system, genai.RoleUser)}
	}

	var text string
	err := withRetry(ctx, p.maxRetries, func() error {
		resp, err := p.sdk.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return classifyHTTPError("gemini", statusCodeOf(err), err)
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", err
	}
	p.cache.Put(ctx, model, prompt, params, text)
	return text, nil
}

func (p *GeminiProvider) CompleteStream(ctx context.Context, msgs []Message, params Params, onChunk func(Chunk) error) error {
	model := params.Model
	if model == "" {
		model = p.model
	}
	if err := p.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer p.limiter.Release()

	contents, system := p.toContents(msgs)
	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(system, genai.RoleUser)}
	}

	seq := p.sdk.Models.GenerateContentStream(ctx, model, contents, cfg)
	next, stop := iter.Pull2(seq)
	defer stop()

	return idleTimeoutStream(ctx, p.idleTimeout.IdleTimeout, func(ctx context.Context) (Chunk, bool, error) {
		resp, err, ok := next()
		if !ok {
			return Chunk{}, false, nil
		}
		if err != nil {
			return Chunk{}, false, classifyHTTPError("gemini", statusCodeOf(err), err)
		}
		return Chunk{Delta: resp.Text()}, true, nil
	}, onChunk)
}

func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.embedLim.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.embedLim.Release()

	var contents []*genai.Content
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	var out [][]float32
	err := withRetry(ctx, p.maxRetries, func() error {
		resp, err := p.sdk.Models.EmbedContent(ctx, p.embedModel, contents, nil)
		if err != nil {
			return classifyHTTPError("gemini", statusCodeOf(err), err)
		}
		out = make([][]float32, len(resp.Embeddings))
		for i, e := range resp.Embeddings {
			out[i] = e.Values
		}
		return nil
	})
	return out, err
}
