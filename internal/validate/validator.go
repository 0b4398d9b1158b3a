// Package validate runs a certificate through grade resolution, property extraction
// and bound comparison, producing a ValidationReport.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/certgrade/internal/catalog"
	"github.com/ppiankov/certgrade/internal/extract"
	"github.com/ppiankov/certgrade/internal/model"
	"github.com/ppiankov/certgrade/internal/normalize"
	"github.com/ppiankov/certgrade/internal/resolve"
)

var (
	// ErrGradeNotIdentified means no catalog grade matched; the document needs manual review
	ErrGradeNotIdentified = errors.New("grade not identified, needs manual review")

	// ErrCatalogUnavailable wraps any catalog read failure
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// RunError reports the state a failed run stopped in
type RunError struct {
	State model.RunState
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("validation failed after %s: %v", e.State, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Document is one certificate to validate
type Document struct {
	Text   string
	Source string

	// Category scopes grade candidates; empty means all grades
	Category string

	// Diameter is the product diameter in mm; when set, diameter-qualified specs that exclude it are skipped
	Diameter *float64
}

// Extractor fetches raw property values for one kind
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) ([]model.ExtractedProperty, error)
}

// Recorder receives run outcomes (metrics)
type Recorder interface {
	ObserveRun(state model.RunState, elapsed time.Duration)
	ObserveVerdicts(counts map[model.Verdict]int)
	ObserveExtractionFailure(kind model.PropertyKind)
}

// Validator composes a catalog, a grade resolver and a property extractor
type Validator struct {
	catalog   catalog.Catalog
	resolver  resolve.Resolver
	extractor Extractor
	recorder  Recorder
	logger    *slog.Logger
}

// Option configures a Validator
type Option func(*Validator)

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(v *Validator) { v.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// NewValidator creates a new validator
func NewValidator(cat catalog.Catalog, resolver resolve.Resolver, extractor Extractor, opts ...Option) *Validator {
	v := &Validator{
		catalog:   cat,
		resolver:  resolver,
		extractor: extractor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// run holds the per-document state; nothing here is shared between runs
type run struct {
	v      *Validator
	doc    Document
	state  model.RunState
	start  time.Time
	logger *slog.Logger
}

// Validate runs the full pipeline for one document.
// Catalog errors, an unidentified grade and cancellation fail the run with no report.
// An extraction failure only empties its own category and is recorded in the report.
func (v *Validator) Validate(ctx context.Context, doc Document) (*model.ValidationReport, error) {
	r := &run{
		v:      v,
		doc:    doc,
		state:  model.StateStart,
		start:  time.Now(),
		logger: v.logger.With("run_id", uuid.NewString(), "source", doc.Source),
	}
	r.logger.Info("validate.run.start", "text_chars", len(doc.Text))

	grade, err := r.resolveGrade(ctx)
	if err != nil {
		return nil, r.fail(err)
	}
	r.advance(model.StateGradeResolved, "grade", grade.Name, "grade_id", grade.ID)

	specs, err := r.loadSpecs(ctx, grade.ID)
	if err != nil {
		return nil, r.fail(err)
	}

	extracted, failures := r.extractAll(ctx, grade.Name, specs)
	if err := ctx.Err(); err != nil {
		return nil, r.fail(err)
	}
	r.advance(model.StatePropertiesExtracted, "failures", len(failures))

	report := &model.ValidationReport{
		Source:     doc.Source,
		Grade:      grade,
		Chemical:   []model.ComparisonResult{},
		Mechanical: []model.ComparisonResult{},
		Failures:   failures,
	}

	r.advance(model.StateNormalized)
	for _, kind := range model.Kinds() {
		if failed(failures, kind) {
			continue
		}
		results, extras := CompareAll(kind, specs[kind], extracted[kind])
		if kind == model.KindMechanical {
			report.Mechanical = results
		} else {
			report.Chemical = results
		}
		report.Extras = append(report.Extras, extras...)
	}
	r.advance(model.StateCompared)

	report.OverallPass = OverallPass(report)
	counts := report.CountVerdicts()

	r.state = model.StateDone
	r.logger.Info("validate.run.done",
		"grade", grade.Name,
		"overall_pass", report.OverallPass,
		"results", len(report.Chemical)+len(report.Mechanical),
		"extras", len(report.Extras),
		"elapsed_ms", time.Since(r.start).Milliseconds(),
	)
	if v.recorder != nil {
		v.recorder.ObserveVerdicts(counts)
		v.recorder.ObserveRun(model.StateDone, time.Since(r.start))
	}
	return report, nil
}

func (r *run) resolveGrade(ctx context.Context) (model.Grade, error) {
	names, err := r.v.catalog.ListGradeNames(ctx, r.doc.Category)
	if err != nil {
		return model.Grade{}, catalogErr(ctx, err)
	}

	name, ok := r.v.resolver.Resolve(ctx, r.doc.Text, names)
	if err := ctx.Err(); err != nil {
		return model.Grade{}, err
	}
	if !ok {
		r.logger.Warn("validate.grade_not_identified", "candidates", len(names), "resolver", r.v.resolver.Name())
		return model.Grade{}, ErrGradeNotIdentified
	}

	grade, err := r.v.catalog.GradeByName(ctx, name)
	if err != nil {
		return model.Grade{}, catalogErr(ctx, err)
	}
	return grade, nil
}

func (r *run) loadSpecs(ctx context.Context, gradeID int64) (map[model.PropertyKind][]model.PropertySpec, error) {
	specs := make(map[model.PropertyKind][]model.PropertySpec, 2)
	for _, kind := range model.Kinds() {
		rows, err := r.v.catalog.ListPropertySpecs(ctx, gradeID, kind)
		if err != nil {
			return nil, catalogErr(ctx, err)
		}
		if r.doc.Diameter != nil {
			rows = FilterByDiameter(rows, *r.doc.Diameter)
		}
		specs[kind] = rows
	}
	return specs, nil
}

// extractAll runs one extraction per kind concurrently and joins them
func (r *run) extractAll(ctx context.Context, material string, specs map[model.PropertyKind][]model.PropertySpec) (map[model.PropertyKind][]model.ExtractedProperty, []model.CategoryFailure) {
	kinds := model.Kinds()
	props := make([][]model.ExtractedProperty, len(kinds))
	errs := make([]error, len(kinds))

	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(i int, kind model.PropertyKind) {
			defer wg.Done()
			props[i], errs[i] = r.v.extractor.Extract(ctx, extract.Request{
				Kind:     kind,
				Text:     r.doc.Text,
				Material: material,
				Names:    DistinctNames(specs[kind]),
			})
		}(i, kind)
	}
	wg.Wait()

	extracted := make(map[model.PropertyKind][]model.ExtractedProperty, len(kinds))
	var failures []model.CategoryFailure
	for i, kind := range kinds {
		if errs[i] != nil {
			r.logger.Warn("validate.extraction_failed", "kind", kind, "error", errs[i])
			failures = append(failures, model.CategoryFailure{Kind: kind, Reason: errs[i].Error()})
			if r.v.recorder != nil {
				r.v.recorder.ObserveExtractionFailure(kind)
			}
			continue
		}
		extracted[kind] = props[i]
	}
	return extracted, failures
}

func (r *run) advance(state model.RunState, attrs ...any) {
	r.state = state
	r.logger.Debug("validate.state", append([]any{"state", state}, attrs...)...)
}

func (r *run) fail(err error) error {
	r.logger.Warn("validate.run.failed",
		"state", r.state,
		"error", err,
		"elapsed_ms", time.Since(r.start).Milliseconds(),
	)
	if r.v.recorder != nil {
		r.v.recorder.ObserveRun(model.StateFailed, time.Since(r.start))
	}
	return &RunError{State: r.state, Err: err}
}

// catalogErr keeps cancellation distinct from catalog outages
func catalogErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
}

func failed(failures []model.CategoryFailure, kind model.PropertyKind) bool {
	for _, f := range failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// FilterByDiameter drops specs whose diameter qualifier parses and excludes d.
// Specs with no qualifier, or one that does not parse, are kept.
func FilterByDiameter(specs []model.PropertySpec, d float64) []model.PropertySpec {
	out := make([]model.PropertySpec, 0, len(specs))
	for _, s := range specs {
		if s.Diameter != "" {
			r := normalize.ParseDiameterRange(s.Diameter)
			if r.Valid && !normalize.InDiameterRange(r, d) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// DistinctNames returns spec names in first-seen order
func DistinctNames(specs []model.PropertySpec) []string {
	seen := make(map[string]bool, len(specs))
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		if !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}
	return names
}
