package model

// ValidationReport is the outcome of one certificate validation run.
// It carries no timestamps or run ids: identical inputs render identical JSON.
type ValidationReport struct {
	Source      string             `json:"source,omitempty"`
	Grade       Grade              `json:"grade"`
	Chemical    []ComparisonResult `json:"chemical_results"`
	Mechanical  []ComparisonResult `json:"mechanical_results"`
	Extras      []ComparisonResult `json:"extras,omitempty"`   // extracted names with no spec row
	Failures    []CategoryFailure  `json:"failures,omitempty"` // categories whose extraction failed
	OverallPass bool               `json:"overall_pass"`
}

// ComparisonResult is the verdict for one PropertySpec
type ComparisonResult struct {
	Property   string       `json:"property"`
	Kind       PropertyKind `json:"kind"`
	Unit       string       `json:"unit,omitempty"`
	Diameter   string       `json:"diameter,omitempty"`
	RawValue   any          `json:"raw_value,omitempty"`
	SampleLow  *float64     `json:"sample_low"`
	SampleHigh *float64     `json:"sample_high"`
	SpecMin    *float64     `json:"spec_min"`
	SpecMax    *float64     `json:"spec_max"`
	Verdict    Verdict      `json:"verdict"`
}

// CategoryFailure records an extraction failure for one property kind
type CategoryFailure struct {
	Kind   PropertyKind `json:"kind"`
	Reason string       `json:"reason"`
}

// Verdict classifies a sample value against its specification bound
type Verdict string

const (
	VerdictWithin           Verdict = "WITHIN_RANGE"
	VerdictPartiallyWithin  Verdict = "PARTIALLY_WITHIN_RANGE"
	VerdictNotWithin        Verdict = "NOT_WITHIN_RANGE"
	VerdictNotFound         Verdict = "NOT_FOUND_IN_SPEC"
	VerdictInvalidSample    Verdict = "INVALID_SAMPLE_VALUE"
	VerdictNoStandardLimits Verdict = "NO_STANDARD_LIMITS"
)

// Verdicts lists every verdict in severity order
func Verdicts() []Verdict {
	return []Verdict{
		VerdictWithin,
		VerdictPartiallyWithin,
		VerdictNotWithin,
		VerdictNotFound,
		VerdictInvalidSample,
		VerdictNoStandardLimits,
	}
}

// Passing reports whether the verdict counts toward an overall pass
func (v Verdict) Passing() bool {
	return v == VerdictWithin
}

// Results returns chemical then mechanical results
func (r *ValidationReport) Results() []ComparisonResult {
	out := make([]ComparisonResult, 0, len(r.Chemical)+len(r.Mechanical))
	out = append(out, r.Chemical...)
	return append(out, r.Mechanical...)
}

// ResultsFor returns the results of a single property kind
func (r *ValidationReport) ResultsFor(kind PropertyKind) []ComparisonResult {
	if kind == KindMechanical {
		return r.Mechanical
	}
	return r.Chemical
}

// CountVerdicts tallies verdicts across chemical and mechanical results
func (r *ValidationReport) CountVerdicts() map[Verdict]int {
	counts := make(map[Verdict]int)
	for _, res := range r.Results() {
		counts[res.Verdict]++
	}
	return counts
}

// RunState is a step of the validation state machine
type RunState string

const (
	StateStart               RunState = "START"
	StateGradeResolved       RunState = "GRADE_RESOLVED"
	StatePropertiesExtracted RunState = "PROPERTIES_EXTRACTED"
	StateNormalized          RunState = "NORMALIZED"
	StateCompared            RunState = "COMPARED"
	StateDone                RunState = "DONE"
	StateFailed              RunState = "FAILED"
)
