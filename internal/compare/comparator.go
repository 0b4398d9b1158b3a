// Package compare classifies a normalized sample against a specification bound pair.
package compare

import (
	"github.com/ppiankov/certgrade/internal/model"
)

// Compare classifies sample against the specification bounds (nil = open side).
//
// The caller must already have matched a spec row; NOT_FOUND_IN_SPEC is never returned here.
// A sample with one missing side is treated as the single value of its present side.
func Compare(sample model.NormalizedValue, specMin, specMax *float64) model.Verdict {
	if !sample.Valid || (sample.Low == nil && sample.High == nil) {
		return model.VerdictInvalidSample
	}

	low, high := Effective(sample)

	switch {
	case specMin != nil && specMax != nil:
		if low >= *specMin && high <= *specMax {
			return model.VerdictWithin
		}
		if high < *specMin || low > *specMax {
			return model.VerdictNotWithin
		}
		return model.VerdictPartiallyWithin

	case specMax != nil:
		if high <= *specMax {
			return model.VerdictWithin
		}
		return model.VerdictNotWithin

	case specMin != nil:
		if low >= *specMin {
			return model.VerdictWithin
		}
		return model.VerdictNotWithin

	default:
		return model.VerdictNoStandardLimits
	}
}

// Effective returns the sample interval used for comparison.
// Sample must be valid with at least one side set.
func Effective(sample model.NormalizedValue) (low, high float64) {
	switch {
	case sample.Low != nil && sample.High != nil:
		return *sample.Low, *sample.High
	case sample.Low != nil:
		return *sample.Low, *sample.Low
	default:
		return *sample.High, *sample.High
	}
}
