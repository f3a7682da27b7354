// Package testkit provides fixtures and stub collaborators for exercising
// the calibration pipeline without an external inference engine.
package testkit

import (
	"context"
	"math/rand/v2"
	"sync"

	"sbcheck/adapters/rng"
	"sbcheck/domain/model"
	"sbcheck/internal/errors"
	"sbcheck/internal/simulate"
	"sbcheck/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	rngAdapter *rng.SeededAdapter
}

// NewTestKit creates a new test kit instance
func NewTestKit() *TestKit {
	return &TestKit{rngAdapter: rng.NewSeededAdapter()}
}

// RNGAdapter returns the deterministic RNG adapter
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return t.rngAdapter
}

// FixtureDesign creates a reproducible choice design of the given shape
func (t *TestKit) FixtureDesign(n, p, l int) model.ChoiceDesign {
	stream, _ := t.rngAdapter.SeededStream(context.Background(), "fixture-design", 7)
	return simulate.RandomDesign(stream, n, p, l)
}

// FixtureLogitSimulator creates a logit simulator over a fixture design with
// a standard normal prior
func (t *TestKit) FixtureLogitSimulator(n, p, l int) (*simulate.LogitSimulator, error) {
	prior, err := simulate.NewPriorSampler(model.StandardNormalPrior(l))
	if err != nil {
		return nil, err
	}
	return simulate.NewLogitSimulator(prior, t.FixtureDesign(n, p, l))
}

// ============================================================================
// STUB FITTERS
// ============================================================================

// EchoPriorFitter returns draws sampled from the prior itself, ignoring the
// data. Useful wherever a test only cares about draw counts and rank bounds,
// not calibration quality.
type EchoPriorFitter struct {
	Prior model.PriorSpec
	Draws int
}

var _ ports.PosteriorFitterPort = (*EchoPriorFitter)(nil)

func (f *EchoPriorFitter) Dim() int { return f.Prior.Dim }

func (f *EchoPriorFitter) Fit(ctx context.Context, data model.Dataset, seed uint64) (*model.PosteriorDraws, error) {
	sampler, err := simulate.NewPriorSampler(f.Prior)
	if err != nil {
		return nil, err
	}
	stream := rand.New(rand.NewPCG(seed, 0xec40))
	out := &model.PosteriorDraws{Params: make([]model.ParamVector, f.Draws)}
	for m := 0; m < f.Draws; m++ {
		out.Params[m] = sampler.Draw(stream)
	}
	return out, nil
}

// NonConvergentFitter fails every FailEvery-th run with a convergence error
// and otherwise delegates. FailEvery <= 1 fails every run.
type NonConvergentFitter struct {
	Inner     ports.PosteriorFitterPort
	FailEvery int

	mu    sync.Mutex
	calls int
}

var _ ports.PosteriorFitterPort = (*NonConvergentFitter)(nil)

func (f *NonConvergentFitter) Dim() int { return f.Inner.Dim() }

func (f *NonConvergentFitter) Fit(ctx context.Context, data model.Dataset, seed uint64) (*model.PosteriorDraws, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.mu.Unlock()
	if f.FailEvery <= 1 || calls%f.FailEvery == 0 {
		return nil, errors.NonConvergence("synthetic diagnostic failure")
	}
	return f.Inner.Fit(ctx, data, seed)
}

// MalformedFitter returns draws with the wrong dimensionality, exercising
// the data-contract violation path
type MalformedFitter struct {
	DeclaredDim int
	ActualDim   int
	Draws       int
}

var _ ports.PosteriorFitterPort = (*MalformedFitter)(nil)

func (f *MalformedFitter) Dim() int { return f.DeclaredDim }

func (f *MalformedFitter) Fit(ctx context.Context, data model.Dataset, seed uint64) (*model.PosteriorDraws, error) {
	out := &model.PosteriorDraws{Params: make([]model.ParamVector, f.Draws)}
	for m := range out.Params {
		out.Params[m] = make(model.ParamVector, f.ActualDim)
	}
	return out, nil
}
