package conjugate

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"sbcheck/domain/model"
	"sbcheck/internal/errors"
	"sbcheck/internal/simulate"
	"sbcheck/ports"
)

// Simulator is the generative side matching the conjugate Fitter: theta from
// the same normal prior, observations y = X*theta + normal noise over a
// fixed design.
type Simulator struct {
	prior   *simulate.PriorSampler
	x       [][]float64
	noiseSD float64
}

// NewSimulator creates a linear-Gaussian simulator over the given design rows
func NewSimulator(prior model.PriorSpec, x [][]float64, noiseSD float64) (*Simulator, error) {
	sampler, err := simulate.NewPriorSampler(prior)
	if err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, errors.InvalidInput("design must have at least one row")
	}
	for _, row := range x {
		if len(row) != prior.Dim {
			return nil, errors.ShapeMismatch("design row has wrong coefficient count")
		}
	}
	if noiseSD <= 0 {
		return nil, errors.InvalidInput("noise sd must be positive")
	}
	return &Simulator{prior: sampler, x: x, noiseSD: noiseSD}, nil
}

var _ ports.SimulatorPort = (*Simulator)(nil)

// Dim returns the parameter dimensionality
func (s *Simulator) Dim() int {
	return s.prior.Dim()
}

// Prior returns the prior specification
func (s *Simulator) Prior() model.PriorSpec {
	return s.prior.Spec()
}

// PriorDraw draws one coefficient vector from the prior
func (s *Simulator) PriorDraw(rng *rand.Rand) model.ParamVector {
	return s.prior.Draw(rng)
}

// Simulate draws one observation vector from the likelihood at theta
func (s *Simulator) Simulate(rng *rand.Rand, theta model.ParamVector) (model.Dataset, error) {
	if len(theta) != s.Dim() {
		return nil, errors.ShapeMismatch("parameter vector length does not match design")
	}

	noise := distuv.Normal{Mu: 0, Sigma: s.noiseSD, Src: rng}
	y := make([]float64, len(s.x))
	for n, row := range s.x {
		var mean float64
		for i := range row {
			mean += row[i] * theta[i]
		}
		y[n] = mean + noise.Rand()
	}

	return RegressionData{
		N:       len(s.x),
		L:       s.Dim(),
		X:       s.x,
		Y:       y,
		NoiseSD: s.noiseSD,
	}, nil
}
