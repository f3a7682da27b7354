package calibration

import (
	"fmt"
	"sync"

	"sbcheck/domain/calibration"
	"sbcheck/domain/core"
	"sbcheck/internal/errors"
	"sbcheck/internal/rank"
)

// Accumulator collects run records across a study. Records land in a
// pre-sized slice keyed by run index, so concurrent workers filling it in
// any completion order produce the same final collection. States move
// collecting -> complete; recording after completion is an error.
type Accumulator struct {
	mu      sync.Mutex
	state   calibration.StudyState
	studyID core.StudyID
	dims    int
	maxRank int
	records []calibration.RunRecord
	filled  []bool
}

// NewAccumulator creates an accumulator for a study of the given shape.
// maxRank is the posterior draw count M; every valid rank must fall in [0, M].
func NewAccumulator(studyID core.StudyID, runs, dims, maxRank int) (*Accumulator, error) {
	if runs <= 0 || dims <= 0 || maxRank <= 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("invalid accumulator shape runs=%d dims=%d maxRank=%d", runs, dims, maxRank))
	}
	return &Accumulator{
		state:   calibration.StateCollecting,
		studyID: studyID,
		dims:    dims,
		maxRank: maxRank,
		records: make([]calibration.RunRecord, runs),
		filled:  make([]bool, runs),
	}, nil
}

// Record stores one run outcome. Valid records must carry exactly one rank
// per dimension, each within [0, maxRank]; non-valid records must carry none.
func (a *Accumulator) Record(rec calibration.RunRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != calibration.StateCollecting {
		return errors.InvalidInput("accumulator is complete, cannot record further runs")
	}
	if rec.Index < 0 || rec.Index >= len(a.records) {
		return errors.InvalidInput(fmt.Sprintf("run index %d outside study of %d runs", rec.Index, len(a.records)))
	}
	if a.filled[rec.Index] {
		return errors.InvalidInput(fmt.Sprintf("run index %d recorded twice", rec.Index))
	}

	if rec.Valid() {
		if len(rec.Ranks) != a.dims {
			return errors.ShapeMismatch(fmt.Sprintf("run %d carries %d ranks, study has %d dimensions", rec.Index, len(rec.Ranks), a.dims))
		}
		if err := rank.CheckBounds(rec.Ranks, a.maxRank); err != nil {
			return err
		}
	} else if len(rec.Ranks) != 0 {
		return errors.InvalidInput(fmt.Sprintf("excluded run %d must not carry ranks", rec.Index))
	}

	a.records[rec.Index] = rec
	a.filled[rec.Index] = true
	return nil
}

// Complete transitions to the terminal state and exposes the full run
// collection in index order. Unfilled slots (cancelled before dispatch) are
// materialized as aborted records so the accounting always balances.
func (a *Accumulator) Complete() []calibration.RunRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == calibration.StateComplete {
		out := make([]calibration.RunRecord, len(a.records))
		copy(out, a.records)
		return out
	}

	for i, ok := range a.filled {
		if !ok {
			a.records[i] = calibration.RunRecord{
				RunID:         core.NewRunID(a.studyID, i),
				Index:         i,
				Status:        calibration.RunAborted,
				FailureReason: "run never completed",
			}
		}
	}
	a.state = calibration.StateComplete

	out := make([]calibration.RunRecord, len(a.records))
	copy(out, a.records)
	return out
}

// State returns the accumulation state
func (a *Accumulator) State() calibration.StudyState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}
