package llm

import (
	"context"
	"fmt"
	"strings"

	"graphrag/internal/config"
	"graphrag/internal/storage/kv"
)

// New resolves the configured provider (anthropic|openai|gemini), wiring up
// its own rate limiter plus a shared embedding-provider limiter, per spec
// §4.6 ("separate semaphore per embedding provider").
func New(ctx context.Context, cfg config.LLMConfig, cacheStore kv.Store) (Provider, error) {
	var cache *ResponseCache
	if cfg.ResponseCache {
		cache = NewResponseCache(cacheStore)
	}
	limiter := NewLimiter(cfg.MaxConcurrent)
	embedLimiter := NewLimiter(cfg.MaxConcurrent)

	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return NewAnthropicProvider(cfg, limiter, cache), nil
	case "openai":
		return NewOpenAIProvider(cfg, limiter, embedLimiter, cache), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg, limiter, embedLimiter, cache)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Embedder is the narrower contract entity/chunk embedding callers need.
// Anthropic has no embeddings endpoint, so embeddings resolve independently
// via cfg.Embedding.Provider (defaulting to the completion provider when
// that provider does support embeddings).
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder resolves the configured embedding provider.
func NewEmbedder(ctx context.Context, cfg config.LLMConfig) (Embedder, error) {
	provider := strings.ToLower(cfg.Embedding.Provider)
	if provider == "" {
		provider = strings.ToLower(cfg.Provider)
		if provider == "anthropic" {
			provider = "openai"
		}
	}
	embedLimiter := NewLimiter(cfg.MaxConcurrent)
	switch provider {
	case "openai":
		return NewOpenAIProvider(cfg, NewLimiter(cfg.MaxConcurrent), embedLimiter, nil), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg, NewLimiter(cfg.MaxConcurrent), embedLimiter, nil)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}
