package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/certgrade/internal/extract"
)

// Agent adapts a Provider to the grade picking and structured extraction capabilities
type Agent struct {
	provider Provider
	logger   *slog.Logger
}

// NewAgent creates a new agent
func NewAgent(provider Provider, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{provider: provider, logger: logger}
}

// PickGrade returns the provider's raw answer; the resolver checks it against candidates
func (a *Agent) PickGrade(ctx context.Context, text string, candidates []string) (string, error) {
	return a.complete(ctx, "grade", CompletionRequest{
		System: gradeSystem,
		Prompt: BuildGradePrompt(text, candidates),
	})
}

// ExtractStructured returns the raw JSON payload for the requested properties
func (a *Agent) ExtractStructured(ctx context.Context, req extract.StructuredRequest) (string, error) {
	return a.complete(ctx, string(req.Kind), CompletionRequest{
		System: systemFor(req.Kind),
		Prompt: BuildExtractionPrompt(req.Kind, req.Text, req.Material, req.AllowedKeys),
	})
}

func (a *Agent) complete(ctx context.Context, task string, req CompletionRequest) (string, error) {
	reqID := uuid.NewString()
	start := time.Now()

	a.logger.Debug("llm.complete.start",
		"req_id", reqID,
		"provider", a.provider.Name(),
		"task", task,
		"prompt_chars", len(req.Prompt),
	)

	resp, err := a.provider.Complete(ctx, req)
	if err != nil {
		a.logger.Warn("llm.complete.failed",
			"req_id", reqID,
			"provider", a.provider.Name(),
			"task", task,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return "", err
	}

	a.logger.Info("llm.complete.ok",
		"req_id", reqID,
		"provider", a.provider.Name(),
		"task", task,
		"model", resp.Model,
		"tokens", resp.TokensUsed,
		"cached", resp.Cached,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp.Text, nil
}
