// Package report persists calibration study artifacts: the row-oriented rank
// table (one row per run) and a human-readable summary.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"sbcheck/domain/calibration"
)

// rankTable flattens a study into header + rows: run id, convergence flag,
// one rank column per parameter dimension. Excluded runs keep their row with
// empty rank cells so the exclusion stays visible in the artifact.
func rankTable(report *calibration.StudyReport, records []calibration.RunRecord) ([]string, [][]string) {
	dims := len(report.Dimensions)

	headers := []string{"run_id", "status", "converged"}
	for l := 0; l < dims; l++ {
		headers = append(headers, fmt.Sprintf("rank_beta_%d", l+1))
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := []string{rec.RunID.String(), string(rec.Status), strconv.FormatBool(rec.Valid())}
		for l := 0; l < dims; l++ {
			if rec.Valid() {
				row = append(row, strconv.Itoa(rec.Ranks[l]))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return headers, rows
}

// CSVSink writes the rank table as a CSV file
type CSVSink struct {
	Path string
}

// WriteStudy writes one row per simulation run
func (s *CSVSink) WriteStudy(report *calibration.StudyReport, records []calibration.RunRecord) error {
	f, err := os.Create(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers, rows := rankTable(report, records)
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
