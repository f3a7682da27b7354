package simulate

import (
	"math"
	"math/rand/v2"

	"sbcheck/domain/model"
	"sbcheck/internal/errors"
	"sbcheck/ports"
)

// LogitSimulator is the generative side of the multinomial-logit choice
// model: coefficients from an independent normal prior, one choice per
// observation drawn from a categorical distribution over softmax utilities.
type LogitSimulator struct {
	prior  *PriorSampler
	design model.ChoiceDesign
}

// NewLogitSimulator pairs a prior with a fixed experimental design
func NewLogitSimulator(prior *PriorSampler, design model.ChoiceDesign) (*LogitSimulator, error) {
	if err := design.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid choice design")
	}
	if design.L != prior.Dim() {
		return nil, errors.InvalidInput("design level count does not match prior dimensionality")
	}
	return &LogitSimulator{prior: prior, design: design}, nil
}

var _ ports.SimulatorPort = (*LogitSimulator)(nil)

// Dim returns the parameter dimensionality L
func (s *LogitSimulator) Dim() int {
	return s.prior.Dim()
}

// Prior returns the prior specification
func (s *LogitSimulator) Prior() model.PriorSpec {
	return s.prior.Spec()
}

// Design returns the experimental design
func (s *LogitSimulator) Design() model.ChoiceDesign {
	return s.design
}

// PriorDraw draws one coefficient vector from the prior
func (s *LogitSimulator) PriorDraw(rng *rand.Rand) model.ParamVector {
	return s.prior.Draw(rng)
}

// Simulate draws one synthetic observation vector from the likelihood at
// theta: for each observation, utilities X[n][p].theta, choice probabilities
// softmax(utilities), one categorical draw.
func (s *LogitSimulator) Simulate(rng *rand.Rand, theta model.ParamVector) (model.Dataset, error) {
	if len(theta) != s.design.L {
		return nil, errors.ShapeMismatch("parameter vector length does not match design levels")
	}

	y := make([]int, s.design.N)
	utilities := make([]float64, s.design.P)
	for n := 0; n < s.design.N; n++ {
		for p := 0; p < s.design.P; p++ {
			utilities[p] = dot(s.design.X[n][p], theta)
		}
		probs := Softmax(utilities)
		y[n] = drawCategorical(rng, probs)
	}

	return model.ChoiceData{Design: s.design, Y: y}, nil
}

// ChoiceProbabilities returns the softmax choice probabilities for one
// observation at theta. Exposed for prior predictive summaries.
func (s *LogitSimulator) ChoiceProbabilities(n int, theta model.ParamVector) []float64 {
	utilities := make([]float64, s.design.P)
	for p := 0; p < s.design.P; p++ {
		utilities[p] = dot(s.design.X[n][p], theta)
	}
	return Softmax(utilities)
}

// MeanUtilitySpread returns the max-min utility gap at theta, averaged across
// observations. Large spreads mean near-deterministic choices; a prior that
// routinely produces them is too diffuse for the design.
func (s *LogitSimulator) MeanUtilitySpread(theta model.ParamVector) float64 {
	var total float64
	for n := 0; n < s.design.N; n++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for p := 0; p < s.design.P; p++ {
			u := dot(s.design.X[n][p], theta)
			if u < lo {
				lo = u
			}
			if u > hi {
				hi = u
			}
		}
		total += hi - lo
	}
	return total / float64(s.design.N)
}

// Softmax converts utilities to probabilities. The max utility is subtracted
// before exponentiating so extreme utilities cannot overflow; the result is
// invariant to any constant added across one observation's utilities.
func Softmax(utilities []float64) []float64 {
	maxU := math.Inf(-1)
	for _, u := range utilities {
		if u > maxU {
			maxU = u
		}
	}

	probs := make([]float64, len(utilities))
	var sum float64
	for i, u := range utilities {
		probs[i] = math.Exp(u - maxU)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// drawCategorical draws an index from the categorical distribution by
// inverting the CDF on a single uniform variate
func drawCategorical(rng *rand.Rand, probs []float64) int {
	u := rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if u < cum {
			return i
		}
	}
	// Floating-point slack: the cumulative sum can land a hair under 1
	return len(probs) - 1
}

func dot(x []float64, theta model.ParamVector) float64 {
	var sum float64
	for i := range x {
		sum += x[i] * theta[i]
	}
	return sum
}
