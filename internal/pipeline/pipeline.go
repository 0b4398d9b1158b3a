// Package pipeline wires configuration into a validator and runs documents through it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/certgrade/internal/cache"
	"github.com/ppiankov/certgrade/internal/catalog"
	"github.com/ppiankov/certgrade/internal/document"
	"github.com/ppiankov/certgrade/internal/extract"
	"github.com/ppiankov/certgrade/internal/llm"
	"github.com/ppiankov/certgrade/internal/metrics"
	"github.com/ppiankov/certgrade/internal/model"
	"github.com/ppiankov/certgrade/internal/report"
	"github.com/ppiankov/certgrade/internal/resolve"
	"github.com/ppiankov/certgrade/internal/validate"
	"github.com/ppiankov/certgrade/internal/worker"
)

// ErrNoProvider is returned when no LLM provider is configured; property extraction needs one
var ErrNoProvider = errors.New("no LLM provider configured (set llm.provider)")

// Options are per-document inputs beyond the text
type Options struct {
	Category string
	Diameter *float64
}

// Pipeline loads documents, validates them and renders the reports
type Pipeline struct {
	validator *validate.Validator
	renderer  *report.Renderer
	recorder  *metrics.Recorder
	store     catalog.Store
	options   Options
	config    *model.Config
	logger    *slog.Logger
}

// NewPipeline builds the catalog, provider stack and validator from cfg
func NewPipeline(ctx context.Context, cfg *model.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	llmConfig := llm.ConfigFromModel(cfg.LLM)
	provider, err := llm.NewProvider(llmConfig)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	if provider == nil {
		return nil, ErrNoProvider
	}

	var limiter llm.Waiter
	if cfg.RateLimiting.RequestsPerSecond > 0 {
		limiter = worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	}
	provider = llm.Wrap(provider, cache.New(cfg.Cache), limiter, cfg.LLM.Model, logger)
	agent := llm.NewAgent(provider, logger)

	resolver, err := resolve.New(cfg.Resolver.Strategy, agent, logger)
	if err != nil {
		return nil, err
	}

	store, err := catalog.Open(ctx, cfg.Catalog, logger)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	recorder := metrics.NewRecorder()
	v := validate.NewValidator(store, resolver, extract.NewExtractor(agent, logger),
		validate.WithRecorder(recorder),
		validate.WithLogger(logger),
	)

	p := New(v, cfg, recorder, logger)
	p.store = store
	logger.Info("pipeline.ready",
		"provider", provider.Name(),
		"resolver", resolver.Name(),
		"catalog", cfg.Catalog.Driver,
		"cache", cfg.Cache.Enabled,
	)
	return p, nil
}

// New assembles a pipeline around an existing validator
func New(v *validate.Validator, cfg *model.Config, recorder *metrics.Recorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	return &Pipeline{
		validator: v,
		renderer:  report.NewRenderer(cfg.Output.IncludeFooter),
		recorder:  recorder,
		options:   Options{Category: cfg.Catalog.Category},
		config:    cfg,
		logger:    logger,
	}
}

// SetOptions replaces the per-document options used by ValidateFile
func (p *Pipeline) SetOptions(opts Options) {
	p.options = opts
}

// Recorder returns the metrics recorder
func (p *Pipeline) Recorder() *metrics.Recorder {
	return p.recorder
}

// Close releases the catalog
func (p *Pipeline) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

// ValidateFile loads a document and validates it
func (p *Pipeline) ValidateFile(ctx context.Context, path string) (*model.ValidationReport, error) {
	start := time.Now()
	text, err := document.Load(path)
	if err != nil {
		p.recorder.ObserveDocument(nil, err)
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	p.logger.Debug("pipeline.document.loaded", "path", path, "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return p.ValidateText(ctx, path, text)
}

// ValidateText validates already extracted text
func (p *Pipeline) ValidateText(ctx context.Context, source, text string) (*model.ValidationReport, error) {
	r, err := p.validator.Validate(ctx, validate.Document{
		Text:     text,
		Source:   source,
		Category: p.options.Category,
		Diameter: p.options.Diameter,
	})
	p.recorder.ObserveDocument(r, err)
	return r, err
}

// OutputPaths names the files a report is rendered to; empty skips that format
type OutputPaths struct {
	JSON     string
	Markdown string
	XLSX     string
}

// PathsFor derives output paths in dir from a document name and the enabled formats
func (p *Pipeline) PathsFor(dir, source string) OutputPaths {
	slug := SanitizeFilename(strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)))
	var paths OutputPaths
	if p.config.Output.JSON {
		paths.JSON = filepath.Join(dir, slug+".json")
	}
	if p.config.Output.Markdown {
		paths.Markdown = filepath.Join(dir, slug+".md")
	}
	if p.config.Output.XLSX {
		paths.XLSX = filepath.Join(dir, slug+".xlsx")
	}
	return paths
}

// RenderReport writes the report to every non-empty path and prints the summary to w
func (p *Pipeline) RenderReport(w io.Writer, r *model.ValidationReport, paths OutputPaths, verbose bool) error {
	if paths.JSON != "" {
		if err := p.renderer.RenderJSON(r, paths.JSON); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote JSON: %s\n", paths.JSON)
		}
	}

	if paths.Markdown != "" {
		if err := p.renderer.RenderMarkdown(r, paths.Markdown); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote Markdown: %s\n", paths.Markdown)
		}
	}

	if paths.XLSX != "" {
		if err := p.renderer.RenderXLSX(r, paths.XLSX); err != nil {
			return fmt.Errorf("render xlsx: %w", err)
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote XLSX: %s\n", paths.XLSX)
		}
	}

	p.renderer.RenderSummary(w, r)
	return nil
}

// WriteMetrics writes the metrics textfile when a path is configured
func (p *Pipeline) WriteMetrics(path string) error {
	if path == "" {
		return nil
	}
	return p.recorder.WriteTextfile(path)
}

// SanitizeFilename makes s safe as a single path element
func SanitizeFilename(s string) string {
	s = strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	).Replace(strings.TrimSpace(s))

	if s == "" || s == "." || s == ".." {
		s = "report"
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
