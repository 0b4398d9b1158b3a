package llm

import (
	"context"
	"fmt"
)

// Waiter blocks until a request for key may proceed
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// LimitedProvider throttles calls to the wrapped provider, one bucket per provider name
type LimitedProvider struct {
	Provider
	limiter Waiter
}

// NewLimitedProvider wraps p with limiter
func NewLimitedProvider(p Provider, limiter Waiter) *LimitedProvider {
	return &LimitedProvider{Provider: p, limiter: limiter}
}

// Complete waits for a token, then delegates
func (p *LimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := p.limiter.Wait(ctx, p.Name()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return p.Provider.Complete(ctx, req)
}
