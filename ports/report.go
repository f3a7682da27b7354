package ports

import (
	"sbcheck/domain/calibration"
)

// RankSinkPort persists the rank table and study report as an on-disk
// artifact: one row per simulation run, columns = run id, per-dimension
// rank, convergence flag.
type RankSinkPort interface {
	WriteStudy(report *calibration.StudyReport, records []calibration.RunRecord) error
}
