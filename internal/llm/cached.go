package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ppiankov/certgrade/internal/cache"
)

// CachedProvider serves repeated prompts from a response cache.
// Only successful answers are stored.
type CachedProvider struct {
	Provider
	cache  cache.Cache
	model  string
	logger *slog.Logger
}

// NewCachedProvider wraps p; model is the configured model name and takes part in the key
func NewCachedProvider(p Provider, c cache.Cache, model string, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{Provider: p, cache: c, model: model, logger: logger}
}

// Complete returns a cached answer when present, otherwise calls the provider and stores the answer
func (p *CachedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	key := p.key(req)

	if data, ok := p.cache.Get(key); ok {
		var resp CompletionResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			resp.Cached = true
			return &resp, nil
		}
		_ = p.cache.Delete(key)
	}

	resp, err := p.Provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return resp, nil
	}
	if err := p.cache.Set(key, data, 0); err != nil {
		p.logger.Warn("llm.cache.write_failed", "provider", p.Name(), "error", err)
	}
	return resp, nil
}

func (p *CachedProvider) key(req CompletionRequest) string {
	model := req.Model
	if model == "" {
		model = p.model
	}
	return cache.Key(
		p.Name(),
		model,
		fmt.Sprint(req.MaxTokens),
		fmt.Sprint(req.Temperature),
		req.System,
		req.Prompt,
	)
}
