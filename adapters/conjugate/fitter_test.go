package conjugate

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbcheck/domain/calibration"
	"sbcheck/domain/core"
	"sbcheck/domain/model"
	"sbcheck/internal/rank"
	"sbcheck/internal/runner"
	"sbcheck/internal/testkit"
	"sbcheck/ports"

	intcalib "sbcheck/internal/calibration"
)

func fixtureRows(rng *rand.Rand, n, l int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, l)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		rows[i] = row
	}
	return rows
}

func TestFitter_RejectsWrongDataset(t *testing.T) {
	fitter, err := NewFitter(model.StandardNormalPrior(3), 10)
	require.NoError(t, err)

	_, err = fitter.Fit(context.Background(), model.ChoiceData{}, 1)
	assert.Error(t, err)
}

func TestFitter_DrawsMatchShape(t *testing.T) {
	prior := model.StandardNormalPrior(3)
	fitter, err := NewFitter(prior, 25)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(5, 0))
	sim, err := NewSimulator(prior, fixtureRows(rng, 40, 3), 1.0)
	require.NoError(t, err)

	theta := sim.PriorDraw(rng)
	data, err := sim.Simulate(rng, theta)
	require.NoError(t, err)

	draws, err := fitter.Fit(context.Background(), data, 11)
	require.NoError(t, err)
	assert.Equal(t, 25, draws.Len())
	assert.Equal(t, 3, draws.Dim())
	require.NoError(t, draws.Validate(3))
}

func TestFitter_Deterministic(t *testing.T) {
	prior := model.StandardNormalPrior(2)
	fitter, err := NewFitter(prior, 10)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(9, 0))
	sim, err := NewSimulator(prior, fixtureRows(rng, 30, 2), 1.0)
	require.NoError(t, err)
	data, err := sim.Simulate(rng, sim.PriorDraw(rng))
	require.NoError(t, err)

	first, err := fitter.Fit(context.Background(), data, 77)
	require.NoError(t, err)
	second, err := fitter.Fit(context.Background(), data, 77)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same seed must reproduce the draw sequence")
}

// TestFitter_PosteriorConcentratesOnTruth checks the closed form against a
// large, informative dataset: the posterior mean of each coefficient should
// sit close to the generating value.
func TestFitter_PosteriorConcentratesOnTruth(t *testing.T) {
	prior := model.StandardNormalPrior(3)
	fitter, err := NewFitter(prior, 400)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(21, 0))
	sim, err := NewSimulator(prior, fixtureRows(rng, 2000, 3), 0.5)
	require.NoError(t, err)

	theta := sim.PriorDraw(rng)
	data, err := sim.Simulate(rng, theta)
	require.NoError(t, err)

	draws, err := fitter.Fit(context.Background(), data, 33)
	require.NoError(t, err)

	for l := 0; l < 3; l++ {
		var mean float64
		for _, draw := range draws.Params {
			mean += draw[l]
		}
		mean /= float64(draws.Len())
		assert.InDelta(t, theta[l], mean, 0.1, "posterior mean for coefficient %d", l)
	}
}

// TestSelfConsistency_UniformRanks is the core correctness property of the
// whole procedure: with exact posterior draws substituted for the engine,
// the rank of the true parameter must be uniform over [0, M]. 1000 runs,
// 20 bins, chi-square per dimension.
func TestSelfConsistency_UniformRanks(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 1000-run self-consistency study in short mode")
	}

	const (
		runs  = 1000
		draws = 199
		dims  = 3
	)

	prior := model.StandardNormalPrior(dims)
	rng := rand.New(rand.NewPCG(4523745, 0))
	sim, err := NewSimulator(prior, fixtureRows(rng, 40, dims), 1.0)
	require.NoError(t, err)
	fitter, err := NewFitter(prior, draws)
	require.NoError(t, err)

	kit := testkit.NewTestKit()
	r, err := runner.New(sim, fitter, kit.RNGAdapter(), nil, 8)
	require.NoError(t, err)

	records, err := r.RunStudy(context.Background(), core.StudyID("self-consistency"), runs, draws, 42)
	require.NoError(t, err)

	checker, err := intcalib.NewChecker(20, 0.001, 0.1)
	require.NoError(t, err)
	report, err := checker.Check(core.StudyID("self-consistency"), "", records, dims, draws)
	require.NoError(t, err)

	assert.Equal(t, calibration.VerdictConsistent, report.Verdict)
	for _, d := range report.Dimensions {
		assert.False(t, d.Flagged, "dimension %d rejected uniformity with p=%g", d.Dim, d.PValue)
		assert.Len(t, d.Ranks, runs)
	}
}

// overconfidentFitter shrinks exact posterior draws toward their mean,
// simulating an engine that understates uncertainty. SBC exists to catch
// exactly this: ranks pile up at the extremes.
type overconfidentFitter struct {
	inner  *Fitter
	shrink float64
}

var _ ports.PosteriorFitterPort = (*overconfidentFitter)(nil)

func (f *overconfidentFitter) Dim() int { return f.inner.Dim() }

func (f *overconfidentFitter) Fit(ctx context.Context, data model.Dataset, seed uint64) (*model.PosteriorDraws, error) {
	draws, err := f.inner.Fit(ctx, data, seed)
	if err != nil {
		return nil, err
	}

	dim := draws.Dim()
	mean := make([]float64, dim)
	for _, draw := range draws.Params {
		for l, v := range draw {
			mean[l] += v
		}
	}
	for l := range mean {
		mean[l] /= float64(draws.Len())
	}
	for _, draw := range draws.Params {
		for l := range draw {
			draw[l] = mean[l] + f.shrink*(draw[l]-mean[l])
		}
	}
	return draws, nil
}

func TestSelfConsistency_DetectsOverconfidentPosterior(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping miscalibration study in short mode")
	}

	const (
		runs  = 500
		draws = 199
		dims  = 2
	)

	prior := model.StandardNormalPrior(dims)
	rng := rand.New(rand.NewPCG(99, 0))
	sim, err := NewSimulator(prior, fixtureRows(rng, 40, dims), 1.0)
	require.NoError(t, err)
	inner, err := NewFitter(prior, draws)
	require.NoError(t, err)
	fitter := &overconfidentFitter{inner: inner, shrink: 0.3}

	kit := testkit.NewTestKit()
	r, err := runner.New(sim, fitter, kit.RNGAdapter(), nil, 8)
	require.NoError(t, err)

	records, err := r.RunStudy(context.Background(), core.StudyID("overconfident"), runs, draws, 17)
	require.NoError(t, err)

	checker, err := intcalib.NewChecker(20, 0.001, 0.1)
	require.NoError(t, err)
	report, err := checker.Check(core.StudyID("overconfident"), "", records, dims, draws)
	require.NoError(t, err)

	assert.Equal(t, calibration.VerdictDeviation, report.Verdict,
		"a posterior with understated uncertainty must be flagged")
}

func TestRanks_AgreeWithFitterOutput(t *testing.T) {
	prior := model.StandardNormalPrior(2)
	fitter, err := NewFitter(prior, 50)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(3, 0))
	sim, err := NewSimulator(prior, fixtureRows(rng, 30, 2), 1.0)
	require.NoError(t, err)

	theta := sim.PriorDraw(rng)
	data, err := sim.Simulate(rng, theta)
	require.NoError(t, err)
	draws, err := fitter.Fit(context.Background(), data, 8)
	require.NoError(t, err)

	ranks, err := rank.Ranks(theta, draws)
	require.NoError(t, err)
	require.Len(t, ranks, 2)
	for _, r := range ranks {
		assert.GreaterOrEqual(t, r, 0)
		assert.LessOrEqual(t, r, 50)
	}
}
