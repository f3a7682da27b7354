package ports

import (
	"math/rand/v2"

	"sbcheck/domain/model"
)

// SimulatorPort is the generative side of a calibration run: a prior sampler
// paired with the likelihood it implies. Implementations must be pure given
// the supplied stream: no state survives between calls, so runs can execute
// on any worker in any order.
type SimulatorPort interface {
	// PriorDraw draws one parameter vector from the prior
	PriorDraw(rng *rand.Rand) model.ParamVector

	// Simulate draws one synthetic dataset from the likelihood at theta
	Simulate(rng *rand.Rand, theta model.ParamVector) (model.Dataset, error)

	// Dim returns the parameter dimensionality L
	Dim() int

	// Prior returns the prior specification the sampler draws from
	Prior() model.PriorSpec
}
