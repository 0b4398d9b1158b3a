// Package extract turns certificate text into raw (property, value) pairs via an external capability.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/certgrade/internal/model"
)

// StructuredRequest asks the capability for values of a fixed set of properties
type StructuredRequest struct {
	Kind        model.PropertyKind
	Text        string
	Material    string
	AllowedKeys []string
}

// Capability is the structured extraction backend (an LLM in production).
// It returns the raw response body; parsing happens here.
type Capability interface {
	ExtractStructured(ctx context.Context, req StructuredRequest) (string, error)
}

// Request is one extraction for a single property kind
type Request struct {
	Kind     model.PropertyKind
	Text     string
	Material string
	Names    []string
}

// Error wraps a failed extraction with the property kind it belongs to
type Error struct {
	Kind model.PropertyKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s properties: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extractor requests properties from a Capability and parses its payload
type Extractor struct {
	capability Capability
	logger     *slog.Logger
}

// NewExtractor creates a new extractor
func NewExtractor(capability Capability, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{capability: capability, logger: logger}
}

// Extract returns entries in payload order. Names the capability did not ask for are kept;
// the caller decides what to do with them. An empty name list skips the call.
func (e *Extractor) Extract(ctx context.Context, req Request) ([]model.ExtractedProperty, error) {
	if len(req.Names) == 0 {
		return []model.ExtractedProperty{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := e.capability.ExtractStructured(ctx, StructuredRequest{
		Kind:        req.Kind,
		Text:        req.Text,
		Material:    req.Material,
		AllowedKeys: req.Names,
	})
	if err != nil {
		return nil, &Error{Kind: req.Kind, Err: err}
	}

	props, err := ParsePayload(raw)
	if err != nil {
		e.logger.Warn("extract.payload_rejected",
			"kind", req.Kind,
			"material", req.Material,
			"error", err,
		)
		return nil, &Error{Kind: req.Kind, Err: err}
	}

	e.logger.Debug("extract.done",
		"kind", req.Kind,
		"material", req.Material,
		"requested", len(req.Names),
		"returned", len(props),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return props, nil
}
