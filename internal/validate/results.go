package validate

import (
	"github.com/ppiankov/certgrade/internal/compare"
	"github.com/ppiankov/certgrade/internal/model"
	"github.com/ppiankov/certgrade/internal/normalize"
)

// CompareAll produces one result per spec, in spec order, plus extras for extracted
// names that match no spec. When the payload repeats a name the first entry wins,
// whatever its shape.
func CompareAll(kind model.PropertyKind, specs []model.PropertySpec, props []model.ExtractedProperty) (results, extras []model.ComparisonResult) {
	first := make(map[string]int, len(props))
	for i, p := range props {
		if _, ok := first[p.Name]; !ok {
			first[p.Name] = i
		}
	}

	expected := make(map[string]bool, len(specs))
	results = make([]model.ComparisonResult, 0, len(specs))
	for _, spec := range specs {
		expected[spec.Name] = true
		i, ok := first[spec.Name]
		if !ok {
			results = append(results, NotFound(spec))
			continue
		}
		results = append(results, Result(spec, props[i]))
	}

	for i, p := range props {
		if expected[p.Name] || first[p.Name] != i {
			continue
		}
		extras = append(extras, model.ComparisonResult{
			Property: p.Name,
			Kind:     kind,
			RawValue: p.Value,
			Verdict:  model.VerdictNotFound,
		})
	}
	return results, extras
}

// Result normalizes prop and compares it against spec
func Result(spec model.PropertySpec, prop model.ExtractedProperty) model.ComparisonResult {
	sample := normalize.Normalize(prop.Value)
	res := base(spec)
	res.RawValue = prop.Value
	res.Verdict = compare.Compare(sample, spec.Min, spec.Max)
	if sample.Valid {
		low, high := compare.Effective(sample)
		res.SampleLow, res.SampleHigh = model.Float(low), model.Float(high)
	}
	return res
}

// NotFound is the result for a spec nothing was extracted for
func NotFound(spec model.PropertySpec) model.ComparisonResult {
	res := base(spec)
	res.Verdict = model.VerdictNotFound
	return res
}

func base(spec model.PropertySpec) model.ComparisonResult {
	return model.ComparisonResult{
		Property: spec.Name,
		Kind:     spec.Kind,
		Unit:     spec.Unit,
		Diameter: spec.Diameter,
		SpecMin:  spec.Min,
		SpecMax:  spec.Max,
	}
}

// OverallPass is true only when no category failed, nothing outside the specification
// was extracted, at least one property was compared and every result is WITHIN_RANGE.
// Extras fail the run but do not count as compared properties.
func OverallPass(r *model.ValidationReport) bool {
	if len(r.Failures) > 0 || len(r.Extras) > 0 {
		return false
	}
	results := r.Results()
	if len(results) == 0 {
		return false
	}
	for _, res := range results {
		if !res.Verdict.Passing() {
			return false
		}
	}
	return true
}
