// Package resolve identifies which catalog grade a certificate describes.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
)

// Resolver matches document text against candidate grade names.
// It returns the single best match, or false when no candidate applies.
type Resolver interface {
	// Name returns the strategy name
	Name() string

	Resolve(ctx context.Context, text string, candidates []string) (string, bool)
}

// GradePicker is the external capability behind the extraction strategy.
// It returns a best-guess grade name that is not trusted until checked against the candidates.
type GradePicker interface {
	PickGrade(ctx context.Context, text string, candidates []string) (string, error)
}

const (
	StrategySubstring = "substring"
	StrategyLLM       = "llm"
)

// New creates a resolver for the configured strategy
func New(strategy string, picker GradePicker, logger *slog.Logger) (Resolver, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategySubstring:
		return NewSubstringResolver(), nil
	case StrategyLLM, "extraction":
		if picker == nil {
			return nil, fmt.Errorf("resolver strategy %q requires an LLM provider", strategy)
		}
		return NewExtractionResolver(picker, logger), nil
	default:
		return nil, fmt.Errorf("unknown resolver strategy: %s (supported: substring, llm)", strategy)
	}
}

// SubstringResolver does case-insensitive containment; the first candidate in list order wins
type SubstringResolver struct{}

// NewSubstringResolver creates a substring resolver
func NewSubstringResolver() *SubstringResolver {
	return &SubstringResolver{}
}

// Name returns the strategy name
func (r *SubstringResolver) Name() string {
	return StrategySubstring
}

// Resolve returns the first candidate contained in text
func (r *SubstringResolver) Resolve(ctx context.Context, text string, candidates []string) (string, bool) {
	fold := cases.Fold()
	haystack := fold.String(text)

	for _, c := range candidates {
		needle := strings.TrimSpace(c)
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, fold.String(needle)) {
			return c, true
		}
	}
	return "", false
}

// ExtractionResolver asks an external capability and accepts only exact candidate names
type ExtractionResolver struct {
	picker GradePicker
	logger *slog.Logger
}

// NewExtractionResolver creates an extraction-backed resolver
func NewExtractionResolver(picker GradePicker, logger *slog.Logger) *ExtractionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionResolver{picker: picker, logger: logger}
}

// Name returns the strategy name
func (r *ExtractionResolver) Name() string {
	return StrategyLLM
}

// Resolve delegates to the picker. Errors and answers outside the candidate set resolve to nothing.
func (r *ExtractionResolver) Resolve(ctx context.Context, text string, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	answer, err := r.picker.PickGrade(ctx, text, candidates)
	if err != nil {
		r.logger.Warn("resolve.pick_failed", "error", err)
		return "", false
	}

	allowed := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		allowed[c] = struct{}{}
	}

	for _, name := range answerNames(answer) {
		if _, ok := allowed[name]; ok {
			return name, true
		}
	}

	r.logger.Warn("resolve.answer_rejected", "answer", truncate(answer, 80), "candidates", len(candidates))
	return "", false
}

// answerNames unwraps the answer envelope: code fences, quotes, a JSON string or JSON list
func answerNames(answer string) []string {
	s := strings.TrimSpace(answer)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var list []string
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal([]byte(s), &single); err == nil {
		return []string{single}
	}

	s = strings.Trim(s, "\"'`")
	s = strings.TrimSuffix(s, ".")
	return []string{strings.TrimSpace(s)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
