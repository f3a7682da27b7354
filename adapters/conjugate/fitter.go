// Package conjugate provides an exact-posterior fitter for a linear-Gaussian
// likelihood. Substituting it for the external engine turns the calibration
// loop into a self-consistency check of the harness itself: with exact
// posterior draws the rank histogram must come out uniform.
package conjugate

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"sbcheck/domain/model"
	"sbcheck/internal/errors"
	"sbcheck/ports"
)

// RegressionData is the data contract for the linear-Gaussian model:
// y = X*theta + noise, noise sd known.
type RegressionData struct {
	N int         `json:"N"`
	L int         `json:"L"`
	X [][]float64 `json:"X"`
	Y []float64   `json:"Y"`
	// NoiseSD is the known observation noise standard deviation
	NoiseSD float64 `json:"noise_sd"`
}

// Validate checks shape consistency
func (d RegressionData) Validate() error {
	if d.N <= 0 || d.L <= 0 {
		return fmt.Errorf("invalid regression shape N=%d L=%d", d.N, d.L)
	}
	if len(d.X) != d.N || len(d.Y) != d.N {
		return fmt.Errorf("regression data has %d design rows and %d observations, declared N=%d", len(d.X), len(d.Y), d.N)
	}
	for n, row := range d.X {
		if len(row) != d.L {
			return fmt.Errorf("design row %d has %d columns, declared L=%d", n, len(row), d.L)
		}
	}
	if d.NoiseSD <= 0 {
		return fmt.Errorf("noise sd must be positive, got %g", d.NoiseSD)
	}
	return nil
}

// Fitter draws from the exact multivariate-normal posterior of the
// linear-Gaussian model under an independent normal prior. No MCMC, no
// convergence failure mode: the posterior is available in closed form.
type Fitter struct {
	prior model.PriorSpec
	draws int
}

// NewFitter creates an exact-posterior fitter producing the given number of
// draws per fit
func NewFitter(prior model.PriorSpec, draws int) (*Fitter, error) {
	if err := prior.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid prior")
	}
	if prior.Loc != 0 {
		return nil, errors.ConfigInvalid("conjugate fitter assumes a zero-centered prior")
	}
	if draws <= 0 {
		return nil, errors.ConfigInvalid("draw count must be positive")
	}
	return &Fitter{prior: prior, draws: draws}, nil
}

var _ ports.PosteriorFitterPort = (*Fitter)(nil)

// Dim returns the coefficient dimensionality
func (f *Fitter) Dim() int {
	return f.prior.Dim
}

// Fit computes the closed-form posterior and samples it. The posterior over
// theta is N(mu, Sigma) with
//
//	Sigma^-1 = X'X / sd^2 + I / tau^2
//	mu       = Sigma X'y / sd^2
//
// where tau is the prior scale.
func (f *Fitter) Fit(ctx context.Context, data model.Dataset, seed uint64) (*model.PosteriorDraws, error) {
	reg, ok := data.(RegressionData)
	if !ok {
		return nil, errors.ShapeMismatch(fmt.Sprintf("conjugate fitter expects RegressionData, got %T", data))
	}
	if err := reg.Validate(); err != nil {
		return nil, errors.WithCode(errors.CodeShapeMismatch, err)
	}
	if reg.L != f.prior.Dim {
		return nil, errors.ShapeMismatch(fmt.Sprintf("data has %d coefficients, fitter declares %d", reg.L, f.prior.Dim))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := reg.L
	noiseVar := reg.NoiseSD * reg.NoiseSD
	priorVar := f.prior.Scale * f.prior.Scale

	x := mat.NewDense(reg.N, l, nil)
	for n, row := range reg.X {
		x.SetRow(n, row)
	}
	y := mat.NewVecDense(reg.N, reg.Y)

	// Posterior precision X'X/sd^2 + I/tau^2
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	precision := mat.NewSymDense(l, nil)
	for i := 0; i < l; i++ {
		for j := i; j < l; j++ {
			v := xtx.At(i, j) / noiseVar
			if i == j {
				v += 1 / priorVar
			}
			precision.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(precision); !ok {
		return nil, errors.EngineFailure("posterior factorization", fmt.Errorf("posterior precision not positive definite"))
	}

	// mu solves precision * mu = X'y / sd^2
	var xty mat.VecDense
	xty.MulVec(x.T(), y)
	xty.ScaleVec(1/noiseVar, &xty)
	var muVec mat.VecDense
	if err := chol.SolveVecTo(&muVec, &xty); err != nil {
		return nil, errors.EngineFailure("posterior mean solve", err)
	}

	var covariance mat.SymDense
	if err := chol.InverseTo(&covariance); err != nil {
		return nil, errors.EngineFailure("posterior covariance", err)
	}

	mu := make([]float64, l)
	for i := range mu {
		mu[i] = muVec.AtVec(i)
	}

	src := rand.NewPCG(seed, 0x6c696e6561726e)
	posterior, ok := distmv.NewNormal(mu, &covariance, src)
	if !ok {
		return nil, errors.EngineFailure("posterior construction", fmt.Errorf("covariance not positive definite"))
	}

	out := &model.PosteriorDraws{Params: make([]model.ParamVector, f.draws)}
	for m := 0; m < f.draws; m++ {
		out.Params[m] = model.ParamVector(posterior.Rand(nil))
	}
	return out, nil
}
