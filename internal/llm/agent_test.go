package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/certgrade/internal/cache"
	"github.com/ppiankov/certgrade/internal/extract"
	"github.com/ppiankov/certgrade/internal/model"
	"github.com/ppiankov/certgrade/internal/resolve"
)

// mockProvider implements Provider
type mockProvider struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	last  CompletionRequest
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) IsAvailable(ctx context.Context) bool { return true }

func (m *mockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &CompletionResponse{Text: m.text, Model: "mock-1", TokensUsed: 7}, nil
}

// Compile-time checks that Agent serves both capabilities
var (
	_ resolve.GradePicker = (*Agent)(nil)
	_ extract.Capability  = (*Agent)(nil)
)

func TestAgent_PickGrade(t *testing.T) {
	provider := &mockProvider{text: `"S355J2"`}
	agent := NewAgent(provider, nil)

	got, err := agent.PickGrade(context.Background(), "certificate text", []string{"S235JR", "S355J2"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got != `"S355J2"` {
		t.Errorf("Expected raw answer, got %s", got)
	}
	if provider.last.System != gradeSystem {
		t.Errorf("Expected grade system prompt, got %q", provider.last.System)
	}
	if !strings.Contains(provider.last.Prompt, "- S235JR\n- S355J2") {
		t.Errorf("Expected candidate list in prompt, got %q", provider.last.Prompt)
	}
}

func TestAgent_ExtractStructured(t *testing.T) {
	provider := &mockProvider{text: `[{"property_name":"Yield strength","value":"360"}]`}
	agent := NewAgent(provider, nil)

	raw, err := agent.ExtractStructured(context.Background(), extract.StructuredRequest{
		Kind:        model.KindMechanical,
		Text:        "ReH 360 MPa",
		Material:    "S355J2",
		AllowedKeys: []string{"Yield strength", "Tensile strength"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if raw != provider.text {
		t.Errorf("Expected raw payload, got %s", raw)
	}
	if provider.last.System != mechanicalSystem {
		t.Errorf("Expected mechanical system prompt, got %q", provider.last.System)
	}
	for _, want := range []string{"mechanical properties", "**S355J2**", "Yield strength, Tensile strength"} {
		if !strings.Contains(provider.last.Prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
}

func TestAgent_ProviderError(t *testing.T) {
	agent := NewAgent(&mockProvider{err: errors.New("boom")}, nil)

	if _, err := agent.PickGrade(context.Background(), "x", []string{"A"}); err == nil {
		t.Error("Expected error from provider")
	}
}

func TestCachedProvider_ServesRepeatedPrompts(t *testing.T) {
	inner := &mockProvider{text: "[]"}
	p := NewCachedProvider(inner, cache.NewMemoryCache(time.Hour, time.Minute), "m", nil)
	req := CompletionRequest{System: "s", Prompt: "p"}

	first, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if inner.calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", inner.calls)
	}
	if first.Cached || !second.Cached {
		t.Errorf("Expected only the second answer to be cached, got %v/%v", first.Cached, second.Cached)
	}
	if second.Text != "[]" {
		t.Errorf("Expected cached text, got %q", second.Text)
	}

	if _, err := p.Complete(context.Background(), CompletionRequest{System: "s", Prompt: "other"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("Expected a different prompt to miss, got %d calls", inner.calls)
	}
}

func TestCachedProvider_DoesNotStoreErrors(t *testing.T) {
	inner := &mockProvider{err: errors.New("502")}
	p := NewCachedProvider(inner, cache.NewMemoryCache(time.Hour, time.Minute), "m", nil)

	for i := 0; i < 2; i++ {
		if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "p"}); err == nil {
			t.Fatal("Expected error")
		}
	}
	if inner.calls != 2 {
		t.Errorf("Expected errors to reach upstream each time, got %d calls", inner.calls)
	}
}

// countingWaiter implements Waiter
type countingWaiter struct {
	keys []string
	err  error
}

func (w *countingWaiter) Wait(ctx context.Context, key string) error {
	w.keys = append(w.keys, key)
	return w.err
}

func TestLimitedProvider(t *testing.T) {
	waiter := &countingWaiter{}
	p := NewLimitedProvider(&mockProvider{text: "ok"}, waiter)

	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "p"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(waiter.keys) != 1 || waiter.keys[0] != "mock" {
		t.Errorf("Expected one wait on key mock, got %v", waiter.keys)
	}

	waiter.err = context.Canceled
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "p"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected wrapped context.Canceled, got %v", err)
	}
}

func TestWrap_CacheHitsSkipLimiter(t *testing.T) {
	waiter := &countingWaiter{}
	p := Wrap(&mockProvider{text: "ok"}, cache.NewMemoryCache(time.Hour, time.Minute), waiter, "m", nil)

	for i := 0; i < 3; i++ {
		if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "same"}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	if len(waiter.keys) != 1 {
		t.Errorf("Expected a single limiter wait, got %d", len(waiter.keys))
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		desc    string
		config  Config
		name    string
		wantErr bool
	}{
		{desc: "disabled", config: Config{}, name: ""},
		{desc: "openai", config: Config{Provider: "openai", APIKey: "k"}, name: "openai"},
		{desc: "openrouter", config: Config{Provider: "OpenRouter", APIKey: "k"}, name: "openrouter"},
		{desc: "claude alias", config: Config{Provider: "claude", APIKey: "k"}, name: "anthropic"},
		{desc: "ollama", config: Config{Provider: "ollama"}, name: "ollama"},
		{desc: "unknown", config: Config{Provider: "bard"}, wantErr: true},
		{desc: "missing key", config: Config{Provider: "openai"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if tt.name == "" {
				if p != nil {
					t.Errorf("Expected nil provider, got %v", p)
				}
				return
			}
			if p.Name() != tt.name {
				t.Errorf("Expected %s, got %s", tt.name, p.Name())
			}
		})
	}
}

func TestBuildExtractionPrompt_ClipsText(t *testing.T) {
	long := strings.Repeat("x", maxPromptText+100)
	prompt := BuildExtractionPrompt(model.KindChemical, long, "S355J2", []string{"C"})
	if strings.Count(prompt, "x") > maxPromptText+10 {
		t.Error("Expected certificate text to be clipped")
	}
}
