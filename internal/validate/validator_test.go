package validate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/certgrade/internal/catalog"
	"github.com/ppiankov/certgrade/internal/extract"
	"github.com/ppiankov/certgrade/internal/model"
	"github.com/ppiankov/certgrade/internal/resolve"
)

const s355Catalog = `
grades:
  - name: S235JR
    category: structural
    chemical:
      - {property: C, unit: "%", max: 0.17}
  - name: S355J2
    category: structural
    chemical:
      - {property: C, unit: "%", max: "0,20"}
      - {property: Mn, unit: "%", max: 1.60}
    mechanical:
      - {property: Yield strength, unit: MPa, diameter: "≤16", min: 355}
      - {property: Yield strength, unit: MPa, diameter: ">16,≤40", min: 345}
      - {property: Tensile strength, unit: MPa, min: 470, max: 630}
`

func loadCatalog(t *testing.T) *catalog.FileCatalog {
	t.Helper()
	c, err := catalog.ParseFile(strings.NewReader(s355Catalog))
	if err != nil {
		t.Fatalf("Failed to parse catalog: %v", err)
	}
	return c
}

// fakeExtractor returns canned payloads per kind
type fakeExtractor struct {
	mu       sync.Mutex
	props    map[model.PropertyKind][]model.ExtractedProperty
	errs     map[model.PropertyKind]error
	requests []extract.Request
}

func (f *fakeExtractor) Extract(ctx context.Context, req extract.Request) ([]model.ExtractedProperty, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[req.Kind]; err != nil {
		return nil, err
	}
	return f.props[req.Kind], nil
}

func (f *fakeExtractor) request(kind model.PropertyKind) (extract.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.Kind == kind {
			return r, true
		}
	}
	return extract.Request{}, false
}

// brokenCatalog fails every call
type brokenCatalog struct{}

func (brokenCatalog) ListGradeNames(ctx context.Context, category string) ([]string, error) {
	return nil, errors.New("connection refused")
}

func (brokenCatalog) GradeByName(ctx context.Context, name string) (model.Grade, error) {
	return model.Grade{}, errors.New("connection refused")
}

func (brokenCatalog) ListPropertySpecs(ctx context.Context, gradeID int64, kind model.PropertyKind) ([]model.PropertySpec, error) {
	return nil, errors.New("connection refused")
}

// fixedResolver always answers the same way
type fixedResolver struct {
	name string
	ok   bool
}

func (r fixedResolver) Name() string { return "fixed" }

func (r fixedResolver) Resolve(ctx context.Context, text string, candidates []string) (string, bool) {
	return r.name, r.ok
}

// countingRecorder tallies recorder calls
type countingRecorder struct {
	mu       sync.Mutex
	runs     map[model.RunState]int
	verdicts map[model.Verdict]int
	failures map[model.PropertyKind]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		runs:     map[model.RunState]int{},
		verdicts: map[model.Verdict]int{},
		failures: map[model.PropertyKind]int{},
	}
}

func (r *countingRecorder) ObserveRun(state model.RunState, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[state]++
}

func (r *countingRecorder) ObserveVerdicts(counts map[model.Verdict]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for v, n := range counts {
		r.verdicts[v] += n
	}
}

func (r *countingRecorder) ObserveExtractionFailure(kind model.PropertyKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[kind]++
}

func passingExtractor() *fakeExtractor {
	return &fakeExtractor{
		props: map[model.PropertyKind][]model.ExtractedProperty{
			model.KindChemical: {
				{Name: "C", Value: "0.18"},
				{Name: "Mn", Value: json.Number("1.45")},
			},
			model.KindMechanical: {
				{Name: "Yield strength", Value: "380"},
				{Name: "Tensile strength", Value: map[string]any{"min": "510", "max": "540"}},
			},
		},
	}
}

const certText = "INSPECTION CERTIFICATE EN 10204 3.1\nSteel grade: S355J2\nC 0,18 Mn 1,45"

func TestValidate_Pass(t *testing.T) {
	rec := newCountingRecorder()
	v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), passingExtractor(), WithRecorder(rec))

	report, err := v.Validate(context.Background(), Document{Text: certText, Source: "cert.pdf"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if report.Grade.Name != "S355J2" {
		t.Errorf("Expected grade S355J2, got %s", report.Grade.Name)
	}
	if len(report.Chemical) != 2 {
		t.Errorf("Expected 2 chemical results, got %d", len(report.Chemical))
	}
	// both diameter variants of yield strength are expected when no diameter is given
	if len(report.Mechanical) != 3 {
		t.Errorf("Expected 3 mechanical results, got %d", len(report.Mechanical))
	}
	for _, res := range report.Results() {
		if res.Verdict != model.VerdictWithin {
			t.Errorf("Expected %s WITHIN_RANGE, got %s", res.Property, res.Verdict)
		}
	}
	if !report.OverallPass {
		t.Error("Expected overall pass")
	}
	if rec.runs[model.StateDone] != 1 {
		t.Errorf("Expected 1 DONE run recorded, got %d", rec.runs[model.StateDone])
	}
	if rec.verdicts[model.VerdictWithin] != 5 {
		t.Errorf("Expected 5 WITHIN_RANGE verdicts recorded, got %d", rec.verdicts[model.VerdictWithin])
	}
}

func TestValidate_ExtraPropertyFails(t *testing.T) {
	ext := passingExtractor()
	ext.props[model.KindChemical] = append(ext.props[model.KindChemical], model.ExtractedProperty{Name: "Cu", Value: "9.9"})
	v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), ext)

	report, err := v.Validate(context.Background(), Document{Text: certText, Source: "cert.pdf"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	for _, res := range report.Results() {
		if res.Verdict != model.VerdictWithin {
			t.Errorf("Expected %s WITHIN_RANGE, got %s", res.Property, res.Verdict)
		}
	}
	if len(report.Extras) != 1 || report.Extras[0].Verdict != model.VerdictNotFound {
		t.Fatalf("Expected one NOT_FOUND_IN_SPEC extra, got %+v", report.Extras)
	}
	if report.OverallPass {
		t.Error("Expected an extracted property with no spec entry to fail the certificate")
	}
}

func TestValidate_Scenarios(t *testing.T) {
	tests := []struct {
		desc     string
		property string
		kind     model.PropertyKind
		value    any
		want     model.Verdict
	}{
		{desc: "carbon within max", property: "C", kind: model.KindChemical, value: "0.18", want: model.VerdictWithin},
		{desc: "carbon above max", property: "C", kind: model.KindChemical, value: "0.25", want: model.VerdictNotWithin},
		{desc: "carbon decimal comma", property: "C", kind: model.KindChemical, value: "0,19", want: model.VerdictWithin},
		{desc: "carbon unparseable", property: "C", kind: model.KindChemical, value: "n/a", want: model.VerdictInvalidSample},
		{desc: "tensile open upper treated as low", property: "Tensile strength", kind: model.KindMechanical, value: map[string]any{"min": "300", "max": "-"}, want: model.VerdictNotWithin},
		{desc: "tensile straddles", property: "Tensile strength", kind: model.KindMechanical, value: "460-520", want: model.VerdictPartiallyWithin},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			ext := &fakeExtractor{props: map[model.PropertyKind][]model.ExtractedProperty{
				tt.kind: {{Name: tt.property, Value: tt.value}},
			}}
			v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), ext)

			report, err := v.Validate(context.Background(), Document{Text: certText})
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}

			found := false
			for _, res := range report.ResultsFor(tt.kind) {
				if res.Property == tt.property {
					found = true
					if res.Verdict != tt.want {
						t.Errorf("Expected %s, got %s", tt.want, res.Verdict)
					}
					if res.RawValue == nil {
						t.Error("Expected raw value to be kept")
					}
				}
			}
			if !found {
				t.Errorf("Expected a result for %s", tt.property)
			}
			if report.OverallPass {
				t.Error("Expected overall fail with missing properties")
			}
		})
	}
}

func TestValidate_CompleteOverExpectedSpecs(t *testing.T) {
	ext := &fakeExtractor{props: map[model.PropertyKind][]model.ExtractedProperty{
		model.KindChemical: {{Name: "C", Value: "0.18"}},
	}}
	v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), ext)

	report, err := v.Validate(context.Background(), Document{Text: certText})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if got := len(report.Chemical) + len(report.Mechanical); got != 5 {
		t.Errorf("Expected 5 results (one per spec), got %d", got)
	}
	if report.Chemical[1].Property != "Mn" || report.Chemical[1].Verdict != model.VerdictNotFound {
		t.Errorf("Expected Mn NOT_FOUND_IN_SPEC, got %s %s", report.Chemical[1].Property, report.Chemical[1].Verdict)
	}
	for _, res := range report.Mechanical {
		if res.Verdict != model.VerdictNotFound {
			t.Errorf("Expected %s NOT_FOUND_IN_SPEC, got %s", res.Property, res.Verdict)
		}
		if res.SampleLow != nil || res.SampleHigh != nil {
			t.Errorf("Expected no sample for %s", res.Property)
		}
	}
	if report.OverallPass {
		t.Error("Expected missing properties to fail the run")
	}
}

func TestValidate_MalformedMechanicalPayload(t *testing.T) {
	ext := passingExtractor()
	ext.errs = map[model.PropertyKind]error{
		model.KindMechanical: &extract.Error{Kind: model.KindMechanical, Err: extract.ErrMalformedPayload},
	}
	rec := newCountingRecorder()
	v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), ext, WithRecorder(rec))

	report, err := v.Validate(context.Background(), Document{Text: certText})
	if err != nil {
		t.Fatalf("Expected extraction failure to be recorded, not returned: %v", err)
	}

	if len(report.Mechanical) != 0 {
		t.Errorf("Expected empty mechanical results, got %d", len(report.Mechanical))
	}
	if len(report.Chemical) != 2 {
		t.Errorf("Expected chemical results unaffected, got %d", len(report.Chemical))
	}
	for _, res := range report.Chemical {
		if res.Verdict != model.VerdictWithin {
			t.Errorf("Expected %s WITHIN_RANGE, got %s", res.Property, res.Verdict)
		}
	}
	if len(report.Failures) != 1 || report.Failures[0].Kind != model.KindMechanical {
		t.Errorf("Expected one mechanical failure, got %+v", report.Failures)
	}
	if report.OverallPass {
		t.Error("Expected overall fail")
	}
	if rec.failures[model.KindMechanical] != 1 {
		t.Errorf("Expected 1 mechanical failure recorded, got %d", rec.failures[model.KindMechanical])
	}
}

func TestValidate_GradeNotIdentified(t *testing.T) {
	ext := passingExtractor()
	rec := newCountingRecorder()
	v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), ext, WithRecorder(rec))

	report, err := v.Validate(context.Background(), Document{Text: "certificate for 42CrMo4"})
	if report != nil {
		t.Error("Expected no report")
	}
	if !errors.Is(err, ErrGradeNotIdentified) {
		t.Fatalf("Expected ErrGradeNotIdentified, got %v", err)
	}

	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.State != model.StateStart {
		t.Errorf("Expected RunError in START, got %v", err)
	}
	if len(ext.requests) != 0 {
		t.Errorf("Expected no extraction before resolution, got %d requests", len(ext.requests))
	}
	if rec.runs[model.StateFailed] != 1 {
		t.Errorf("Expected 1 FAILED run recorded, got %d", rec.runs[model.StateFailed])
	}
}

func TestValidate_ResolverAnswerOutsideCatalog(t *testing.T) {
	v := NewValidator(loadCatalog(t), fixedResolver{name: "S999", ok: true}, passingExtractor())

	_, err := v.Validate(context.Background(), Document{Text: certText})
	if !errors.Is(err, ErrCatalogUnavailable) || !errors.Is(err, catalog.ErrGradeNotFound) {
		t.Errorf("Expected catalog error wrapping ErrGradeNotFound, got %v", err)
	}
}

func TestValidate_CatalogUnavailable(t *testing.T) {
	v := NewValidator(brokenCatalog{}, fixedResolver{name: "S355J2", ok: true}, passingExtractor())

	report, err := v.Validate(context.Background(), Document{Text: certText})
	if report != nil {
		t.Error("Expected no report")
	}
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Errorf("Expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestValidate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), passingExtractor())

	report, err := v.Validate(ctx, Document{Text: certText})
	if report != nil {
		t.Error("Expected no partial report")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrCatalogUnavailable) {
		t.Error("Expected cancellation not to be reported as a catalog outage")
	}
}

// cancellingExtractor cancels the run while extraction is in flight
type cancellingExtractor struct {
	cancel context.CancelFunc
}

func (c cancellingExtractor) Extract(ctx context.Context, req extract.Request) ([]model.ExtractedProperty, error) {
	c.cancel()
	return nil, nil
}

func TestValidate_CancelledDuringExtraction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), cancellingExtractor{cancel: cancel})

	report, err := v.Validate(ctx, Document{Text: certText})
	if report != nil {
		t.Error("Expected no partial report")
	}

	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.State != model.StateGradeResolved {
		t.Errorf("Expected RunError in GRADE_RESOLVED, got %v", err)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	c := loadCatalog(t)
	render := func() string {
		v := NewValidator(c, resolve.NewSubstringResolver(), passingExtractor())
		report, err := v.Validate(context.Background(), Document{Text: certText, Source: "cert.pdf"})
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		return string(b)
	}

	first := render()
	for i := 0; i < 5; i++ {
		if got := render(); got != first {
			t.Fatalf("Expected identical reports, run %d differs:\n%s\nvs\n%s", i, first, got)
		}
	}
}

func TestValidate_DiameterFilter(t *testing.T) {
	ext := passingExtractor()
	v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), ext)

	report, err := v.Validate(context.Background(), Document{Text: certText, Diameter: model.Float(25)})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if len(report.Mechanical) != 2 {
		t.Fatalf("Expected 2 mechanical results for d=25, got %d", len(report.Mechanical))
	}
	if report.Mechanical[0].Diameter != ">16,≤40" {
		t.Errorf("Expected >16,≤40 row, got %q", report.Mechanical[0].Diameter)
	}

	req, ok := ext.request(model.KindMechanical)
	if !ok {
		t.Fatal("Expected a mechanical extraction request")
	}
	if len(req.Names) != 2 || req.Names[0] != "Yield strength" || req.Names[1] != "Tensile strength" {
		t.Errorf("Expected distinct names [Yield strength Tensile strength], got %v", req.Names)
	}
	if req.Material != "S355J2" {
		t.Errorf("Expected material S355J2, got %s", req.Material)
	}
}

func TestValidate_CategoryScopesCandidates(t *testing.T) {
	v := NewValidator(loadCatalog(t), resolve.NewSubstringResolver(), passingExtractor())

	_, err := v.Validate(context.Background(), Document{Text: certText, Category: "forging"})
	if !errors.Is(err, ErrGradeNotIdentified) {
		t.Errorf("Expected ErrGradeNotIdentified for empty category, got %v", err)
	}
}

func TestCompareAll_DuplicatesAndExtras(t *testing.T) {
	specs := []model.PropertySpec{
		{Name: "C", Kind: model.KindChemical, Max: model.Float(0.20)},
	}
	props := []model.ExtractedProperty{
		{Name: "C", Value: "0.18"},
		{Name: "Cu", Value: "0.30"},
		{Name: "C", Value: map[string]any{"min": "0.30", "max": "0.40"}},
		{Name: "Cu", Value: "0.31"},
	}

	results, extras := CompareAll(model.KindChemical, specs, props)

	if len(results) != 1 || results[0].Verdict != model.VerdictWithin {
		t.Errorf("Expected first C entry to win with WITHIN_RANGE, got %+v", results)
	}
	if len(extras) != 1 {
		t.Fatalf("Expected 1 extra, got %d", len(extras))
	}
	if extras[0].Property != "Cu" || extras[0].Verdict != model.VerdictNotFound || extras[0].RawValue != "0.30" {
		t.Errorf("Expected first Cu as NOT_FOUND_IN_SPEC extra, got %+v", extras[0])
	}
}

func TestOverallPass(t *testing.T) {
	within := model.ComparisonResult{Verdict: model.VerdictWithin}

	tests := []struct {
		desc   string
		report model.ValidationReport
		want   bool
	}{
		{desc: "all within", report: model.ValidationReport{Chemical: []model.ComparisonResult{within}, Mechanical: []model.ComparisonResult{within}}, want: true},
		{desc: "nothing compared", report: model.ValidationReport{}, want: false},
		{desc: "no standard limits fails", report: model.ValidationReport{Chemical: []model.ComparisonResult{within, {Verdict: model.VerdictNoStandardLimits}}}, want: false},
		{desc: "partial fails", report: model.ValidationReport{Mechanical: []model.ComparisonResult{{Verdict: model.VerdictPartiallyWithin}}}, want: false},
		{desc: "category failure fails", report: model.ValidationReport{Chemical: []model.ComparisonResult{within}, Failures: []model.CategoryFailure{{Kind: model.KindMechanical}}}, want: false},
		{desc: "extra fails", report: model.ValidationReport{Chemical: []model.ComparisonResult{within}, Mechanical: []model.ComparisonResult{within}, Extras: []model.ComparisonResult{{Verdict: model.VerdictNotFound}}}, want: false},
		{desc: "extras alone are not compared", report: model.ValidationReport{Extras: []model.ComparisonResult{{Verdict: model.VerdictNotFound}}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := OverallPass(&tt.report); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFilterByDiameter(t *testing.T) {
	specs := []model.PropertySpec{
		{Name: "A", Diameter: "≤16"},
		{Name: "B", Diameter: ">16,≤40"},
		{Name: "C"},
		{Name: "D", Diameter: "see note"},
	}

	got := FilterByDiameter(specs, 16)
	names := make([]string, 0, len(got))
	for _, s := range got {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "A,C,D" {
		t.Errorf("Expected A,C,D, got %v", names)
	}
}
