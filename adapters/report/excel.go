package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"sbcheck/domain/calibration"
)

// XLSXSink writes the rank table plus a per-dimension summary sheet
type XLSXSink struct {
	Path string
}

// WriteStudy writes the workbook: "Ranks" mirrors the CSV rank table,
// "Uniformity" carries the per-dimension chi-square diagnostics.
func (s *XLSXSink) WriteStudy(report *calibration.StudyReport, records []calibration.RunRecord) error {
	f := excelize.NewFile()

	// Ensure Sheet1 exists and is active.
	ranksSheet := "Sheet1"
	if idx, err := f.GetSheetIndex(ranksSheet); err != nil || idx == -1 {
		idx, err := f.NewSheet(ranksSheet)
		if err != nil {
			return err
		}
		f.SetActiveSheet(idx)
	}
	if err := f.SetSheetName(ranksSheet, "Ranks"); err != nil {
		return err
	}
	ranksSheet = "Ranks"

	headers, rows := rankTable(report, records)
	if err := writeSheet(f, ranksSheet, headers, rows); err != nil {
		return err
	}

	uniformitySheet := "Uniformity"
	if _, err := f.NewSheet(uniformitySheet); err != nil {
		return err
	}
	uHeaders := []string{"param", "valid_runs", "chi_square", "df", "p_value", "flagged", "rank_mean", "rank_std_dev"}
	uRows := make([][]string, 0, len(report.Dimensions))
	for _, d := range report.Dimensions {
		uRows = append(uRows, []string{
			d.Param,
			fmt.Sprintf("%d", len(d.Ranks)),
			fmt.Sprintf("%.4f", d.ChiSquare),
			fmt.Sprintf("%d", d.DF),
			fmt.Sprintf("%.6f", d.PValue),
			fmt.Sprintf("%t", d.Flagged),
			fmt.Sprintf("%.2f", d.Summary.Mean),
			fmt.Sprintf("%.2f", d.Summary.StdDev),
		})
	}
	if err := writeSheet(f, uniformitySheet, uHeaders, uRows); err != nil {
		return err
	}

	return f.SaveAs(s.Path)
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	// Header row
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	// Data rows
	for r := 0; r < len(rows); r++ {
		rowIdx := r + 2
		for c, v := range rows[r] {
			cell, _ := excelize.CoordinatesToCellName(c+1, rowIdx)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}
