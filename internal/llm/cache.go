package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"graphrag/internal/storage/kv"
)

const cacheNamespace = "llm_response_cache"

// ResponseCache is a KV-backed cache keyed by hash of (model, prompt,
// params), per spec §4.6/§6. Reads short-circuit the call; writes happen
// only after a successful call. Last-write-wins collisions are harmless
// because the key is content-addressed.
type ResponseCache struct {
	kv kv.Store
}

func NewResponseCache(store kv.Store) *ResponseCache {
	return &ResponseCache{kv: store}
}

type cacheKeyInput struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Params Params `json:"params"`
}

func cacheKey(model, prompt string, params Params) string {
	b, _ := json.Marshal(cacheKeyInput{Model: model, Prompt: prompt, Params: params})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (c *ResponseCache) Get(ctx context.Context, model, prompt string, params Params) (string, bool) {
	if c == nil || c.kv == nil {
		return "", false
	}
	b, ok, err := c.kv.Get(ctx, cacheNamespace, cacheKey(model, prompt, params))
	if err != nil || !ok {
		return "", false
	}
	return string(b), true
}

func (c *ResponseCache) Put(ctx context.Context, model, prompt string, params Params, response string) {
	if c == nil || c.kv == nil {
		return
	}
	_ = c.kv.Put(ctx, cacheNamespace, cacheKey(model, prompt, params), []byte(response), 0)
}
