package ports

import (
	"context"

	"sbcheck/domain/model"
)

// PosteriorFitterPort is the capability boundary in front of the external
// inference engine. The core never implements sampling: it passes the data
// contract in and expects a non-empty ordered sequence of parameter-vector
// draws back.
//
// The seed is forwarded so stochastic fitters (and mocks substituted for
// them) stay deterministic per run. Failure modes a fitter must distinguish:
//   - non-convergence / diagnostic failure: errors.NonConvergence, the run
//     is excluded from the aggregate and reported
//   - contract mismatch (empty or mis-shaped draws): errors.ShapeMismatch,
//     the run aborts with a diagnostic rather than coercing shapes
type PosteriorFitterPort interface {
	Fit(ctx context.Context, data model.Dataset, seed uint64) (*model.PosteriorDraws, error)

	// Dim returns the coefficient dimensionality the fitter produces
	Dim() int
}
