package calibration

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"sbcheck/domain/calibration"
	"sbcheck/domain/core"
	"sbcheck/internal/errors"
)

// Checker runs the uniformity diagnostic over a completed rank collection.
// Under correct calibration the rank of the true parameter among M posterior
// draws is uniform over [0, M]; the checker bins ranks per dimension and
// compares against that uniform expectation with a chi-square statistic.
// Flagging is a diagnostic signal for inspection, never a silent pass/fail.
type Checker struct {
	bins               int
	alpha              float64
	maxInvalidFraction float64
}

// NewChecker creates a checker. alpha is the flagging significance level;
// maxInvalidFraction is the explicit exclusion budget past which the study
// verdict is inconclusive.
func NewChecker(bins int, alpha, maxInvalidFraction float64) (*Checker, error) {
	if bins < 2 {
		return nil, errors.ConfigInvalid("uniformity check needs at least 2 bins")
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, errors.ConfigInvalid("alpha must be in (0, 1)")
	}
	if maxInvalidFraction < 0 || maxInvalidFraction >= 1 {
		return nil, errors.ConfigInvalid("max invalid fraction must be in [0, 1)")
	}
	return &Checker{bins: bins, alpha: alpha, maxInvalidFraction: maxInvalidFraction}, nil
}

// Check aggregates a study's run records into the final report. dims is the
// parameter dimensionality, maxRank the posterior draw count M.
func (c *Checker) Check(studyID core.StudyID, fingerprint core.StudyFingerprint, records []calibration.RunRecord, dims, maxRank int) (*calibration.StudyReport, error) {
	if len(records) == 0 {
		return nil, errors.InvalidInput("cannot check an empty study")
	}

	var exclusions []calibration.RunRecord
	perDim := make([][]int, dims)
	for l := range perDim {
		perDim[l] = make([]int, 0, len(records))
	}

	for _, rec := range records {
		if !rec.Valid() {
			exclusions = append(exclusions, rec)
			continue
		}
		for l, r := range rec.Ranks {
			perDim[l] = append(perDim[l], r)
		}
	}

	validRuns := len(records) - len(exclusions)
	report := &calibration.StudyReport{
		StudyID:            studyID,
		Fingerprint:        fingerprint,
		TotalRuns:          len(records),
		ValidRuns:          validRuns,
		ExcludedRuns:       len(exclusions),
		MaxRank:            maxRank,
		Bins:               c.bins,
		Alpha:              c.alpha,
		MaxInvalidFraction: c.maxInvalidFraction,
		Exclusions:         exclusions,
	}

	invalidFraction := float64(len(exclusions)) / float64(len(records))
	inconclusive := validRuns == 0 || invalidFraction > c.maxInvalidFraction

	anyFlagged := false
	for l := 0; l < dims; l++ {
		dim, err := c.checkDimension(l, perDim[l], maxRank)
		if err != nil {
			return nil, errors.Wrapf(err, "uniformity check failed for dimension %d", l)
		}
		if dim.Flagged {
			anyFlagged = true
		}
		report.Dimensions = append(report.Dimensions, dim)
	}

	switch {
	case inconclusive:
		// Too many exclusions: the surviving ranks cannot certify
		// calibration, so never report consistent here
		report.Verdict = calibration.VerdictInconclusive
	case anyFlagged:
		report.Verdict = calibration.VerdictDeviation
	default:
		report.Verdict = calibration.VerdictConsistent
	}

	return report, nil
}

// checkDimension bins one dimension's ranks and computes the chi-square
// statistic against the uniform expectation over [0, maxRank]
func (c *Checker) checkDimension(dim int, ranks []int, maxRank int) (calibration.DimensionReport, error) {
	report := calibration.DimensionReport{
		Dim:    dim,
		Param:  fmt.Sprintf("beta[%d]", dim+1),
		Ranks:  ranks,
		PValue: 1.0,
	}

	if len(ranks) == 0 {
		report.Histogram = make([]int, c.bins)
		return report, nil
	}

	histogram, expected := c.binRanks(ranks, maxRank)
	report.Histogram = histogram

	// With more bins than distinct rank values some bins have zero expected
	// count; they contribute nothing to the statistic and must not inflate
	// the degrees of freedom either
	occupied := 0
	var chiSq float64
	for b := 0; b < c.bins; b++ {
		if expected[b] > 0 {
			occupied++
			diff := float64(histogram[b]) - expected[b]
			chiSq += diff * diff / expected[b]
		}
	}
	report.ChiSquare = chiSq
	report.DF = occupied - 1

	if report.DF < 1 {
		return report, nil
	}
	chiDist := distuv.ChiSquared{K: float64(report.DF)}
	report.PValue = 1 - chiDist.CDF(chiSq)
	report.Flagged = report.PValue < c.alpha

	summary, err := summarize(ranks)
	if err != nil {
		return report, err
	}
	report.Summary = summary

	return report, nil
}

// binRanks maps ranks over [0, maxRank] into c.bins bins. maxRank+1 distinct
// values rarely divide evenly into the bin count, so expected counts are
// computed per bin from the exact number of rank values it covers.
func (c *Checker) binRanks(ranks []int, maxRank int) (histogram []int, expected []float64) {
	histogram = make([]int, c.bins)
	expected = make([]float64, c.bins)

	values := maxRank + 1
	for v := 0; v < values; v++ {
		expected[v*c.bins/values]++
	}
	for b := range expected {
		expected[b] *= float64(len(ranks)) / float64(values)
	}

	for _, r := range ranks {
		histogram[r*c.bins/values]++
	}
	return histogram, expected
}

func summarize(ranks []int) (calibration.RankSummary, error) {
	data := make([]float64, len(ranks))
	for i, r := range ranks {
		data[i] = float64(r)
	}

	mean, err := stats.Mean(data)
	if err != nil {
		return calibration.RankSummary{}, err
	}
	stdDev, _ := stats.StandardDeviation(data)
	min, _ := stats.Min(data)
	max, _ := stats.Max(data)

	return calibration.RankSummary{Mean: mean, StdDev: stdDev, Min: min, Max: max}, nil
}
