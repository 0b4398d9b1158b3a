package normalize

import (
	"strings"

	"github.com/ppiankov/certgrade/internal/model"
)

const (
	lowerMarkers = ">≥"
	upperMarkers = "<≤"
)

var operatorReplacer = strings.NewReplacer(">=", "≥", "<=", "≤", " ", "", "\t", "")

// ParseDiameterRange parses a diameter qualifier such as ">16,≤40", "16<d≤40", "≤16" or ">100".
// Lower-only yields (X, nil), upper-only yields (nil, Y); anything else is invalid.
func ParseDiameterRange(text string) model.NormalizedValue {
	s := operatorReplacer.Replace(strings.TrimSpace(text))
	if s == "" {
		return model.NormalizedValue{}
	}

	hasLower := strings.ContainsAny(s, lowerMarkers)
	hasUpper := strings.ContainsAny(s, upperMarkers)

	switch {
	case hasUpper && !hasLower && startsWithDigit(s):
		return parseInfix(s)
	case hasLower && hasUpper:
		return parseBothSides(s)
	case startsWithAny(s, upperMarkers):
		if f, ok := firstNumber(s); ok {
			return model.Span(nil, model.Float(f))
		}
	case startsWithAny(s, lowerMarkers):
		if f, ok := firstNumber(s); ok {
			return model.Span(model.Float(f), nil)
		}
	}
	return model.NormalizedValue{}
}

// parseBothSides handles ">16,≤40" (any part order) and ">16≤40"
func parseBothSides(s string) model.NormalizedValue {
	if parts := strings.Split(s, ","); len(parts) == 2 {
		var low, high *float64
		for _, p := range parts {
			f, ok := firstNumber(p)
			if !ok {
				return model.NormalizedValue{}
			}
			switch {
			case strings.ContainsAny(p, lowerMarkers):
				low = model.Float(f)
			case strings.ContainsAny(p, upperMarkers):
				high = model.Float(f)
			}
		}
		if low == nil || high == nil {
			return model.NormalizedValue{}
		}
		return model.Span(low, high)
	}

	nums := Numbers(s)
	if len(nums) != 2 {
		return model.NormalizedValue{}
	}
	return model.Span(model.Float(nums[0]), model.Float(nums[1]))
}

// parseInfix handles "16<d≤40": the number before the first marker is the lower bound
func parseInfix(s string) model.NormalizedValue {
	if strings.Count(s, "<")+strings.Count(s, "≤") != 2 {
		return model.NormalizedValue{}
	}
	nums := Numbers(s)
	if len(nums) != 2 || nums[0] > nums[1] {
		return model.NormalizedValue{}
	}
	return model.Span(model.Float(nums[0]), model.Float(nums[1]))
}

// InDiameterRange reports whether d falls in a parsed diameter range.
// Lower bounds are exclusive and upper bounds inclusive, as ">16,≤40" reads.
func InDiameterRange(r model.NormalizedValue, d float64) bool {
	if !r.Valid {
		return false
	}
	if r.Low != nil && d <= *r.Low {
		return false
	}
	if r.High != nil && d > *r.High {
		return false
	}
	return true
}

// firstNumber reads an unsigned number; operators are never signs here
func firstNumber(s string) (float64, bool) {
	s = strings.TrimLeft(s, "<>≤≥=d Øø")
	return ParseNumber(s)
}

func startsWithDigit(s string) bool {
	return s != "" && isDigit(s[0])
}

func startsWithAny(s, chars string) bool {
	for _, r := range s {
		return strings.ContainsRune(chars, r)
	}
	return false
}
