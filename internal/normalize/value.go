// Package normalize turns raw extracted values into canonical (low, high) numeric pairs.
//
// Parsing is simple: decimal commas become dots and the first two numeric
// substrings of a string are taken as (low, high). Anything after the second number is
// ignored, so "0.10 / 0.12 / 0.14" normalizes to (0.10, 0.12).
package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/certgrade/internal/model"
)

var numberPattern = regexp.MustCompile(`[-+]?(?:\d*\.\d+|\d+)`)

// signReplacer maps typographic minus signs to ASCII before scanning
var signReplacer = strings.NewReplacer("−", "-", "–", "-", ",", ".")

// Normalize parses a raw extracted value into a NormalizedValue.
// It never fails: unparseable input yields Valid=false.
func Normalize(raw any) model.NormalizedValue {
	switch v := raw.(type) {
	case nil:
		return model.NormalizedValue{}
	case model.NormalizedValue:
		return model.Span(v.Low, v.High)
	case string:
		return parseString(v)
	case map[string]any:
		return parseObject(v)
	case []any:
		return parseList(v)
	}

	if f, ok := asFloat(raw); ok {
		return model.Point(f)
	}
	return model.NormalizedValue{}
}

// ParseNumber parses a locale-tolerant number, taking the first numeric substring.
// "0,20" and "0.20 %" both yield 0.2.
func ParseNumber(s string) (float64, bool) {
	nums := Numbers(s)
	if len(nums) == 0 {
		return 0, false
	}
	return nums[0], true
}

// Numbers returns every numeric substring of s in left-to-right order.
// A sign directly after a digit is read as a range separator ("0.18-0.25").
func Numbers(s string) []float64 {
	s = signReplacer.Replace(s)

	var out []float64
	for _, loc := range numberPattern.FindAllStringIndex(s, -1) {
		start := loc[0]
		if (s[start] == '-' || s[start] == '+') && start > 0 && isDigit(s[start-1]) {
			start++
		}
		f, err := strconv.ParseFloat(s[start:loc[1]], 64)
		if err != nil || math.IsInf(f, 0) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func parseString(s string) model.NormalizedValue {
	nums := Numbers(s)
	switch len(nums) {
	case 0:
		return model.NormalizedValue{}
	case 1:
		return model.Point(nums[0])
	default:
		return model.NormalizedValue{Low: model.Float(nums[0]), High: model.Float(nums[1]), Valid: true}
	}
}

// parseObject handles {"min": .., "max": ..}, {"value": ..} and plain keyed readings
func parseObject(m map[string]any) model.NormalizedValue {
	minRaw, hasMin := lookup(m, "min")
	maxRaw, hasMax := lookup(m, "max")
	if hasMin || hasMax {
		return model.Span(side(minRaw), side(maxRaw))
	}

	if v, ok := lookup(m, "value"); ok {
		return Normalize(v)
	}

	// e.g. {"test1": 510, "test2": 525}: treat the readings as a list
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]any, 0, len(keys))
	for _, k := range keys {
		values = append(values, m[k])
	}
	return parseList(values)
}

// parseList reduces a list of readings to (min, max)
func parseList(values []any) model.NormalizedValue {
	var nums []float64
	for _, v := range values {
		switch t := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if f := side(t[k]); f != nil {
					nums = append(nums, *f)
				}
			}
		default:
			if f := side(t); f != nil {
				nums = append(nums, *f)
			}
		}
	}

	if len(nums) == 0 {
		return model.NormalizedValue{}
	}
	lo, hi := nums[0], nums[0]
	for _, f := range nums[1:] {
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	return model.NormalizedValue{Low: model.Float(lo), High: model.Float(hi), Valid: true}
}

// side parses one side of a structured range; non-numeric input is absent, not an error
func side(v any) *float64 {
	if s, ok := v.(string); ok {
		if f, ok := ParseNumber(s); ok {
			return model.Float(f)
		}
		return nil
	}
	if f, ok := asFloat(v); ok {
		return model.Float(f)
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), !math.IsNaN(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f, true
		}
		return ParseNumber(t.String())
	}
	return 0, false
}

// lookup finds a key case-insensitively
func lookup(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v, true
		}
	}
	return nil, false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
