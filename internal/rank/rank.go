// Package rank computes the per-dimension rank statistic at the heart of
// simulation-based calibration: where the simulated true parameter falls
// within its posterior draws.
package rank

import (
	"fmt"

	"sbcheck/domain/model"
	"sbcheck/internal/errors"
)

// Ranks computes, for each parameter dimension independently, the count of
// posterior draws strictly less than the true simulated value. Ties count as
// not-less-than; the strict inequality keeps the rank distribution
// well-defined across implementations. Every returned rank r satisfies
// 0 <= r <= draws.Len().
func Ranks(truth model.ParamVector, draws *model.PosteriorDraws) ([]int, error) {
	if err := draws.Validate(len(truth)); err != nil {
		return nil, errors.WithCode(errors.CodeShapeMismatch, err)
	}

	ranks := make([]int, len(truth))
	for _, draw := range draws.Params {
		for l, v := range draw {
			if v < truth[l] {
				ranks[l]++
			}
		}
	}
	return ranks, nil
}

// CheckBounds verifies the rank invariant against a draw count. It exists as
// a guard at the accumulation boundary so a buggy fitter can never poison
// the aggregate silently.
func CheckBounds(ranks []int, maxRank int) error {
	for l, r := range ranks {
		if r < 0 || r > maxRank {
			return errors.InternalError(fmt.Sprintf("rank %d for dimension %d outside [0, %d]", r, l, maxRank))
		}
	}
	return nil
}
