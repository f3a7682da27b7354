package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"sbcheck/domain/calibration"
	"sbcheck/domain/core"
	"sbcheck/internal/errors"
)

// ReadRankTable reads a rank-table CSV back into run records, the inverse of
// CSVSink. Returns the records in file order and the dimensionality implied
// by the rank columns. Excluded rows (empty rank cells) come back without
// ranks, so the reconstructed collection re-checks exactly like the original.
func ReadRankTable(path string) ([]calibration.RunRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, 0, errors.Wrap(err, "rank table unreadable")
	}
	if len(rows) < 1 {
		return nil, 0, errors.InvalidInput("rank table has no header row")
	}

	header := rows[0]
	firstRank := -1
	for i, name := range header {
		if strings.HasPrefix(name, "rank_") {
			firstRank = i
			break
		}
	}
	if firstRank < 0 {
		return nil, 0, errors.InvalidInput("rank table header carries no rank columns")
	}
	dims := len(header) - firstRank

	records := make([]calibration.RunRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, 0, errors.InvalidInput(fmt.Sprintf("row %d has %d fields, header has %d", i+1, len(row), len(header)))
		}

		rec := calibration.RunRecord{
			RunID:  core.RunID(row[0]),
			Index:  i,
			Status: calibration.RunStatus(row[1]),
		}
		if rec.Valid() {
			rec.Ranks = make([]int, dims)
			for l := 0; l < dims; l++ {
				r, err := strconv.Atoi(row[firstRank+l])
				if err != nil {
					return nil, 0, errors.InvalidInput(fmt.Sprintf("row %d rank column %d is not an integer: %v", i+1, l+1, err))
				}
				rec.Ranks[l] = r
			}
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, 0, errors.InvalidInput("rank table has no run rows")
	}
	return records, dims, nil
}
