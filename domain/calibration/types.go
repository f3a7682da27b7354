package calibration

import (
	"sbcheck/domain/core"
)

// ============================================================================
// STABLE PRIMITIVES (Canonical, never change)
// ============================================================================

// RunStatus classifies the outcome of a single simulation run
type RunStatus string

const (
	// RunValid means the fit converged and ranks were computed
	RunValid RunStatus = "valid"
	// RunNonConvergent means the engine reported diagnostic failure; the
	// run's ranks are excluded from the aggregate but the exclusion is
	// surfaced in the report, never silently dropped
	RunNonConvergent RunStatus = "non_convergent"
	// RunMalformed means the engine returned draws that violate the data
	// contract (empty set, wrong dimensionality)
	RunMalformed RunStatus = "malformed"
	// RunAborted means the run was cancelled before completion
	RunAborted RunStatus = "aborted"
)

// RunRecord is the complete outcome of one simulation run.
// INVARIANTS:
// - Index is stable across re-executions for a fixed study seed
// - Ranks is nil unless Status == RunValid
// - every rank r satisfies 0 <= r <= MaxRank of the study
type RunRecord struct {
	RunID  core.RunID `json:"run_id"`
	Index  int        `json:"index"`
	Seed   uint64     `json:"seed"`
	Status RunStatus  `json:"status"`

	// Ranks holds one rank per parameter dimension: the count of posterior
	// draws strictly less than the simulated true value
	Ranks []int `json:"ranks,omitempty"`

	// Draws is the posterior sample count M the ranks were computed against
	Draws int `json:"draws,omitempty"`

	// FailureReason explains non-valid statuses
	FailureReason string `json:"failure_reason,omitempty"`
}

// Valid reports whether the run contributes to the aggregate rank collection
func (r RunRecord) Valid() bool {
	return r.Status == RunValid
}

// StudyState tracks rank accumulation progress
type StudyState string

const (
	StateCollecting StudyState = "collecting"
	StateComplete   StudyState = "complete"
)

// ============================================================================
// UNIFORMITY REPORTING
// ============================================================================

// RankSummary carries descriptive statistics of one dimension's ranks
type RankSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// DimensionReport is the uniformity diagnostic for one parameter dimension.
// Flagged is a signal for a human to inspect the rank histogram, not a gate:
// the statistic is always reported alongside it.
type DimensionReport struct {
	Dim       int         `json:"dim"`
	Param     string      `json:"param"`
	Ranks     []int       `json:"ranks"`
	Histogram []int       `json:"histogram"`
	ChiSquare float64     `json:"chi_square"`
	DF        int         `json:"df"`
	PValue    float64     `json:"p_value"`
	Flagged   bool        `json:"flagged"`
	Summary   RankSummary `json:"summary"`
}

// Verdict is the aggregate outcome of a calibration study
type Verdict string

const (
	// VerdictConsistent means no dimension's rank distribution deviated
	// materially from uniform
	VerdictConsistent Verdict = "consistent"
	// VerdictDeviation means at least one dimension was flagged
	VerdictDeviation Verdict = "deviation"
	// VerdictInconclusive means too many runs were excluded for the
	// uniformity check to mean anything. Never reported as consistent.
	VerdictInconclusive Verdict = "inconclusive"
)

// StudyReport aggregates a completed calibration study
type StudyReport struct {
	StudyID     core.StudyID          `json:"study_id"`
	Fingerprint core.StudyFingerprint `json:"fingerprint"`
	StartedAt   core.Timestamp        `json:"started_at"`
	FinishedAt  core.Timestamp        `json:"finished_at"`

	TotalRuns    int `json:"total_runs"`
	ValidRuns    int `json:"valid_runs"`
	ExcludedRuns int `json:"excluded_runs"`
	// MaxRank is the posterior draw count M; ranks live in [0, M]
	MaxRank int `json:"max_rank"`
	Bins    int `json:"bins"`
	// Alpha is the significance level dimensions are flagged at
	Alpha float64 `json:"alpha"`
	// MaxInvalidFraction is the explicit exclusion budget beyond which the
	// verdict degrades to inconclusive
	MaxInvalidFraction float64 `json:"max_invalid_fraction"`

	Dimensions []DimensionReport `json:"dimensions"`
	// Exclusions lists every non-valid run with its reason
	Exclusions []RunRecord `json:"exclusions,omitempty"`
	Verdict    Verdict     `json:"verdict"`
}

// FlaggedDims returns the indices of dimensions whose rank distribution was
// flagged as deviating from uniform
func (r *StudyReport) FlaggedDims() []int {
	var out []int
	for _, d := range r.Dimensions {
		if d.Flagged {
			out = append(out, d.Dim)
		}
	}
	return out
}
