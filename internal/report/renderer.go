// Package report renders validation reports as JSON, Markdown, XLSX and a terminal summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ppiankov/certgrade/internal/model"
)

// Renderer writes reports to files and terminals
type Renderer struct {
	// IncludeFooter appends a generator line to Markdown reports
	IncludeFooter bool
}

// NewRenderer creates a new renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{IncludeFooter: includeFooter}
}

// JSON returns the indented JSON form; identical reports yield identical bytes
func JSON(r *model.ValidationReport) ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(b, '\n'), nil
}

// RenderJSON writes the report as JSON to path
func (rd *Renderer) RenderJSON(r *model.ValidationReport, path string) error {
	b, err := JSON(r)
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

// RenderMarkdown writes the report as Markdown to path
func (rd *Renderer) RenderMarkdown(r *model.ValidationReport, path string) error {
	var b strings.Builder
	rd.WriteMarkdown(&b, r)
	return writeFile(path, []byte(b.String()))
}

// WriteMarkdown renders the report as Markdown tables
func (rd *Renderer) WriteMarkdown(w io.Writer, r *model.ValidationReport) {
	fmt.Fprintf(w, "# Certificate validation: %s\n\n", r.Grade.Name)
	if r.Source != "" {
		fmt.Fprintf(w, "- **Document:** %s\n", r.Source)
	}
	if r.Grade.Category != "" {
		fmt.Fprintf(w, "- **Category:** %s\n", r.Grade.Category)
	}
	fmt.Fprintf(w, "- **Result:** %s\n\n", passLabel(r.OverallPass))

	for _, kind := range model.Kinds() {
		fmt.Fprintf(w, "## %s properties\n\n", title(string(kind)))
		if f, ok := failureFor(r, kind); ok {
			fmt.Fprintf(w, "> Extraction failed: %s\n\n", f.Reason)
			continue
		}
		results := r.ResultsFor(kind)
		if len(results) == 0 {
			fmt.Fprintf(w, "_No specified properties._\n\n")
			continue
		}
		writeTable(w, results)
	}

	if len(r.Extras) > 0 {
		fmt.Fprintf(w, "## Not in specification\n\n")
		fmt.Fprintf(w, "| Kind | Property | Extracted |\n")
		fmt.Fprintf(w, "|---|---|---|\n")
		for _, e := range r.Extras {
			fmt.Fprintf(w, "| %s | %s | %s |\n", e.Kind, escape(e.Property), escape(RawString(e.RawValue)))
		}
		fmt.Fprintln(w)
	}

	if rd.IncludeFooter {
		fmt.Fprintf(w, "---\n_Generated by certgrade._\n")
	}
}

func writeTable(w io.Writer, results []model.ComparisonResult) {
	fmt.Fprintf(w, "| Property | Diameter | Extracted | Sample | Spec | Verdict |\n")
	fmt.Fprintf(w, "|---|---|---|---|---|---|\n")
	for _, res := range results {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
			escape(withUnit(res.Property, res.Unit)),
			escape(res.Diameter),
			escape(RawString(res.RawValue)),
			Interval(res.SampleLow, res.SampleHigh),
			Interval(res.SpecMin, res.SpecMax),
			res.Verdict,
		)
	}
	fmt.Fprintln(w)
}

// RenderSummary prints a short verdict summary
func (rd *Renderer) RenderSummary(w io.Writer, r *model.ValidationReport) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  %s  %s\n", r.Grade.Name, passLabel(r.OverallPass))
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	if r.Source != "" {
		fmt.Fprintf(w, "  Document:  %s\n", r.Source)
	}

	counts := r.CountVerdicts()
	for _, v := range model.Verdicts() {
		if counts[v] > 0 {
			fmt.Fprintf(w, "  %-24s %d\n", v, counts[v])
		}
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  ✗ %s extraction failed: %s\n", f.Kind, f.Reason)
	}
	if len(r.Extras) > 0 {
		fmt.Fprintf(w, "  Not in specification:    %d\n", len(r.Extras))
	}
	fmt.Fprintf(w, "\n")
}

// Interval formats a bound or sample pair; open sides print as "–"
func Interval(low, high *float64) string {
	switch {
	case low == nil && high == nil:
		return "–"
	case low != nil && high != nil && *low == *high:
		return formatFloat(*low)
	case low == nil:
		return "≤ " + formatFloat(*high)
	case high == nil:
		return "≥ " + formatFloat(*low)
	default:
		return formatFloat(*low) + " – " + formatFloat(*high)
	}
}

// RawString renders an extracted value compactly
func RawString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func withUnit(name, unit string) string {
	if unit == "" {
		return name
	}
	return name + " (" + unit + ")"
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func failureFor(r *model.ValidationReport, kind model.PropertyKind) (model.CategoryFailure, bool) {
	for _, f := range r.Failures {
		if f.Kind == kind {
			return f, true
		}
	}
	return model.CategoryFailure{}, false
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// escape keeps pipes and newlines from breaking table rows
func escape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
