package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ppiankov/certgrade/internal/model"
)

const (
	resultsSheet = "Results"
	extrasSheet  = "Not in spec"
)

var xlsxHeaders = []string{"Kind", "Property", "Unit", "Diameter", "Extracted", "Sample low", "Sample high", "Spec min", "Spec max", "Verdict"}

// XLSX builds a workbook with one row per comparison result
func XLSX(reports ...*model.ValidationReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	multi := len(reports) > 1
	headers := xlsxHeaders
	if multi {
		headers = append([]string{"Document", "Grade", "Overall"}, xlsxHeaders...)
	}
	writeRow(f, resultsSheet, 1, toAny(headers))

	row := 2
	hasExtras := false
	for _, r := range reports {
		for _, res := range r.Results() {
			cells := resultCells(res)
			if multi {
				cells = append([]any{r.Source, r.Grade.Name, passLabel(r.OverallPass)}, cells...)
			}
			writeRow(f, resultsSheet, row, cells)
			row++
		}
		for _, fail := range r.Failures {
			cells := []any{string(fail.Kind), "", "", "", fail.Reason, nil, nil, nil, nil, "EXTRACTION_FAILED"}
			if multi {
				cells = append([]any{r.Source, r.Grade.Name, passLabel(r.OverallPass)}, cells...)
			}
			writeRow(f, resultsSheet, row, cells)
			row++
		}
		hasExtras = hasExtras || len(r.Extras) > 0
	}

	_ = f.SetColWidth(resultsSheet, "A", "A", 14)
	_ = f.SetColWidth(resultsSheet, "B", "B", 24)
	if multi {
		_ = f.SetColWidth(resultsSheet, "A", "A", 40)
		_ = f.SetColWidth(resultsSheet, "B", "C", 14)
		_ = f.SetColWidth(resultsSheet, "E", "E", 24)
	}

	if hasExtras {
		if _, err := f.NewSheet(extrasSheet); err != nil {
			return nil, fmt.Errorf("xlsx sheet: %w", err)
		}
		writeRow(f, extrasSheet, 1, []any{"Document", "Kind", "Property", "Extracted"})
		row := 2
		for _, r := range reports {
			for _, e := range r.Extras {
				writeRow(f, extrasSheet, row, []any{r.Source, string(e.Kind), e.Property, RawString(e.RawValue)})
				row++
			}
		}
	}

	if index, err := f.GetSheetIndex(resultsSheet); err == nil {
		f.SetActiveSheet(index)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderXLSX writes a single-report workbook to path
func (rd *Renderer) RenderXLSX(r *model.ValidationReport, path string) error {
	b, err := XLSX(r)
	if err != nil {
		return err
	}
	return writeFile(path, b)
}

func resultCells(res model.ComparisonResult) []any {
	return []any{
		string(res.Kind),
		res.Property,
		res.Unit,
		res.Diameter,
		RawString(res.RawValue),
		numberCell(res.SampleLow),
		numberCell(res.SampleHigh),
		numberCell(res.SpecMin),
		numberCell(res.SpecMax),
		string(res.Verdict),
	}
}

// numberCell leaves open sides blank
func numberCell(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
