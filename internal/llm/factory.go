package llm

import (
	"fmt"
	"log/slog"

	"github.com/ppiankov/certgrade/internal/cache"
	"github.com/ppiankov/certgrade/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	switch normalizeName(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "openrouter":
		return NewOpenRouterProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		// No provider configured - LLM disabled
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, openrouter, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Timeout:     c.Timeout,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		HTTPProxy:   c.HTTPProxy,
		HTTPSProxy:  c.HTTPSProxy,
	}
}

// Wrap layers the response cache and rate limiter over p. Nil c or limiter skips that layer.
// The limiter sits inside the cache so cache hits do not consume tokens.
func Wrap(p Provider, c cache.Cache, limiter Waiter, modelName string, logger *slog.Logger) Provider {
	if p == nil {
		return nil
	}
	if limiter != nil {
		p = NewLimitedProvider(p, limiter)
	}
	if c != nil {
		p = NewCachedProvider(p, c, modelName, logger)
	}
	return p
}
