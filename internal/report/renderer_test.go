package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/ppiankov/certgrade/internal/model"
)

func sampleReport() *model.ValidationReport {
	f := model.Float
	return &model.ValidationReport{
		Source: "cert-001.pdf",
		Grade:  model.Grade{ID: 2, Name: "S355J2", Category: "structural"},
		Chemical: []model.ComparisonResult{
			{Property: "C", Kind: model.KindChemical, Unit: "%", RawValue: "0.18", SampleLow: f(0.18), SampleHigh: f(0.18), SpecMax: f(0.20), Verdict: model.VerdictWithin},
			{Property: "Mn", Kind: model.KindChemical, Unit: "%", SpecMax: f(1.6), Verdict: model.VerdictNotFound},
		},
		Mechanical: []model.ComparisonResult{
			{Property: "Yield strength", Kind: model.KindMechanical, Unit: "MPa", Diameter: "≤16", RawValue: map[string]any{"min": "300", "max": "-"}, SampleLow: f(300), SampleHigh: f(300), SpecMin: f(355), Verdict: model.VerdictNotWithin},
		},
		Extras: []model.ComparisonResult{
			{Property: "Cu", Kind: model.KindChemical, RawValue: json.Number("0.30"), Verdict: model.VerdictNotFound},
		},
	}
}

func TestJSON_StableAndComplete(t *testing.T) {
	first, err := JSON(sampleReport())
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	second, _ := JSON(sampleReport())
	if !bytes.Equal(first, second) {
		t.Error("Expected identical JSON for identical reports")
	}

	var decoded map[string]any
	if err := json.Unmarshal(first, &decoded); err != nil {
		t.Fatalf("Expected valid JSON: %v", err)
	}
	for _, key := range []string{"grade", "chemical_results", "mechanical_results", "overall_pass"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Expected key %q in JSON", key)
		}
	}
	if strings.Contains(string(first), "\"failures\"") {
		t.Error("Expected empty failures to be omitted")
	}
}

func TestWriteMarkdown(t *testing.T) {
	var b strings.Builder
	NewRenderer(true).WriteMarkdown(&b, sampleReport())
	md := b.String()

	tests := []struct {
		desc string
		want string
	}{
		{desc: "title", want: "# Certificate validation: S355J2"},
		{desc: "overall", want: "**Result:** FAIL"},
		{desc: "chemical row", want: "| C (%) |  | 0.18 | 0.18 | ≤ 0.2 | WITHIN_RANGE |"},
		{desc: "missing row", want: "| Mn (%) |  |  | – | ≤ 1.6 | NOT_FOUND_IN_SPEC |"},
		{desc: "structured raw value", want: `{"max":"-","min":"300"}`},
		{desc: "min only spec", want: "≥ 355"},
		{desc: "extras section", want: "| chemical | Cu | 0.30 |"},
		{desc: "footer", want: "Generated by certgrade"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if !strings.Contains(md, tt.want) {
				t.Errorf("Expected markdown to contain %q, got:\n%s", tt.want, md)
			}
		})
	}
}

func TestWriteMarkdown_CategoryFailure(t *testing.T) {
	r := sampleReport()
	r.Mechanical = []model.ComparisonResult{}
	r.Failures = []model.CategoryFailure{{Kind: model.KindMechanical, Reason: "malformed extraction payload"}}

	var b strings.Builder
	NewRenderer(false).WriteMarkdown(&b, r)

	if !strings.Contains(b.String(), "> Extraction failed: malformed extraction payload") {
		t.Errorf("Expected failure note, got:\n%s", b.String())
	}
	if strings.Contains(b.String(), "Generated by") {
		t.Error("Expected no footer")
	}
}

func TestRenderSummary(t *testing.T) {
	var b bytes.Buffer
	NewRenderer(false).RenderSummary(&b, sampleReport())
	out := b.String()

	for _, want := range []string{"S355J2  FAIL", "WITHIN_RANGE", "NOT_WITHIN_RANGE", "Not in specification:    1"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}
}

func TestInterval(t *testing.T) {
	f := model.Float

	tests := []struct {
		desc string
		low  *float64
		high *float64
		want string
	}{
		{desc: "open", want: "–"},
		{desc: "point", low: f(0.18), high: f(0.18), want: "0.18"},
		{desc: "range", low: f(470), high: f(630), want: "470 – 630"},
		{desc: "max only", high: f(0.2), want: "≤ 0.2"},
		{desc: "min only", low: f(355), want: "≥ 355"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := Interval(tt.low, tt.high); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRenderFiles(t *testing.T) {
	dir := t.TempDir()
	rd := NewRenderer(false)
	r := sampleReport()

	jsonPath := filepath.Join(dir, "out", "cert.json")
	if err := rd.RenderJSON(r, jsonPath); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	mdPath := filepath.Join(dir, "out", "cert.md")
	if err := rd.RenderMarkdown(r, mdPath); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	xlsxPath := filepath.Join(dir, "out", "cert.xlsx")
	if err := rd.RenderXLSX(r, xlsxPath); err != nil {
		t.Fatalf("RenderXLSX failed: %v", err)
	}

	for _, p := range []string{jsonPath, mdPath, xlsxPath} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("Expected non-empty %s, got err=%v", p, err)
		}
	}
}

func TestXLSX_Rows(t *testing.T) {
	b, err := XLSX(sampleReport())
	if err != nil {
		t.Fatalf("XLSX failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(resultsSheet)
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected header + 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Kind" || rows[1][1] != "C" || rows[1][9] != "WITHIN_RANGE" {
		t.Errorf("Unexpected first rows: %v", rows[:2])
	}

	extras, err := f.GetRows(extrasSheet)
	if err != nil {
		t.Fatalf("GetRows extras failed: %v", err)
	}
	if len(extras) != 2 || extras[1][2] != "Cu" {
		t.Errorf("Expected one extra row for Cu, got %v", extras)
	}
}

func TestXLSX_MultipleReports(t *testing.T) {
	a := sampleReport()
	b := sampleReport()
	b.Source = "cert-002.pdf"
	b.Failures = []model.CategoryFailure{{Kind: model.KindMechanical, Reason: "timeout"}}
	b.Mechanical = []model.ComparisonResult{}

	data, err := XLSX(a, b)
	if err != nil {
		t.Fatalf("XLSX failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, _ := f.GetRows(resultsSheet)
	// header + 3 rows for a + 2 results and 1 failure for b
	if len(rows) != 7 {
		t.Fatalf("Expected 7 rows, got %d", len(rows))
	}
	if rows[0][0] != "Document" || rows[6][0] != "cert-002.pdf" || rows[6][12] != "EXTRACTION_FAILED" {
		t.Errorf("Unexpected last row: %v", rows[6])
	}
}
