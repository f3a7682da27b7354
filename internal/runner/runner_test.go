package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbcheck/domain/calibration"
	"sbcheck/domain/core"
	"sbcheck/domain/model"
	"sbcheck/internal/testkit"
)

// TestRunner_ConcreteScenario exercises the reference study shape: 100
// observations, 3 alternatives, 10 levels, 50 repetitions, 500 draws per
// fit. Every run must yield exactly one rank per dimension, each in [0, 500].
func TestRunner_ConcreteScenario(t *testing.T) {
	kit := testkit.NewTestKit()
	sim, err := kit.FixtureLogitSimulator(100, 3, 10)
	require.NoError(t, err)

	fitter := &testkit.EchoPriorFitter{Prior: model.StandardNormalPrior(10), Draws: 500}
	r, err := New(sim, fitter, kit.RNGAdapter(), nil, 4)
	require.NoError(t, err)

	records, err := r.RunStudy(context.Background(), core.StudyID("scenario"), 50, 500, 42)
	require.NoError(t, err)
	require.Len(t, records, 50)

	for _, rec := range records {
		require.Equal(t, calibration.RunValid, rec.Status)
		require.Len(t, rec.Ranks, 10, "one rank per parameter dimension")
		assert.Equal(t, 500, rec.Draws)
		for _, rank := range rec.Ranks {
			assert.GreaterOrEqual(t, rank, 0)
			assert.LessOrEqual(t, rank, 500)
		}
	}
}

// TestRunner_DeterministicAcrossWorkerCounts is the ordering property: the
// per-run seed derivation makes the aggregate identical no matter how many
// workers execute it.
func TestRunner_DeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) []calibration.RunRecord {
		kit := testkit.NewTestKit()
		sim, err := kit.FixtureLogitSimulator(30, 3, 4)
		require.NoError(t, err)
		fitter := &testkit.EchoPriorFitter{Prior: model.StandardNormalPrior(4), Draws: 100}
		r, err := New(sim, fitter, kit.RNGAdapter(), nil, workers)
		require.NoError(t, err)

		records, err := r.RunStudy(context.Background(), core.StudyID("det"), 20, 100, 7)
		require.NoError(t, err)
		return records
	}

	serial := run(1)
	parallel := run(8)

	assert.Equal(t, serial, parallel, "rank collection must not depend on scheduling")
}

func TestRunner_NonConvergentRunsExcludedNotFatal(t *testing.T) {
	kit := testkit.NewTestKit()
	sim, err := kit.FixtureLogitSimulator(20, 3, 4)
	require.NoError(t, err)

	inner := &testkit.EchoPriorFitter{Prior: model.StandardNormalPrior(4), Draws: 50}
	fitter := &testkit.NonConvergentFitter{Inner: inner, FailEvery: 5}
	// Single worker keeps the failure schedule deterministic
	r, err := New(sim, fitter, kit.RNGAdapter(), nil, 1)
	require.NoError(t, err)

	records, err := r.RunStudy(context.Background(), core.StudyID("nonconv"), 20, 50, 3)
	require.NoError(t, err)
	require.Len(t, records, 20)

	var valid, excluded int
	for _, rec := range records {
		switch rec.Status {
		case calibration.RunValid:
			valid++
			assert.Len(t, rec.Ranks, 4)
		case calibration.RunNonConvergent:
			excluded++
			assert.Nil(t, rec.Ranks, "excluded runs carry no ranks")
			assert.NotEmpty(t, rec.FailureReason)
		default:
			t.Fatalf("unexpected status %s", rec.Status)
		}
	}
	assert.Equal(t, 4, excluded, "every fifth fit fails")
	assert.Equal(t, 20, valid+excluded)
}

func TestRunner_MalformedDrawsAbortTheRunOnly(t *testing.T) {
	kit := testkit.NewTestKit()
	sim, err := kit.FixtureLogitSimulator(20, 3, 4)
	require.NoError(t, err)

	fitter := &testkit.MalformedFitter{DeclaredDim: 4, ActualDim: 3, Draws: 50}
	r, err := New(sim, fitter, kit.RNGAdapter(), nil, 2)
	require.NoError(t, err)

	records, err := r.RunStudy(context.Background(), core.StudyID("malformed"), 5, 50, 3)
	require.NoError(t, err)

	for _, rec := range records {
		assert.Equal(t, calibration.RunMalformed, rec.Status)
		assert.Contains(t, rec.FailureReason, "dimension")
	}
}

func TestRunner_CancelledContextAborts(t *testing.T) {
	kit := testkit.NewTestKit()
	sim, err := kit.FixtureLogitSimulator(20, 3, 4)
	require.NoError(t, err)

	fitter := &testkit.EchoPriorFitter{Prior: model.StandardNormalPrior(4), Draws: 50}
	r, err := New(sim, fitter, kit.RNGAdapter(), nil, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := r.RunStudy(ctx, core.StudyID("cancelled"), 5, 50, 3)
	require.NoError(t, err)
	for _, rec := range records {
		assert.Equal(t, calibration.RunAborted, rec.Status)
	}
}

func TestRunner_RejectsDimensionDisagreement(t *testing.T) {
	kit := testkit.NewTestKit()
	sim, err := kit.FixtureLogitSimulator(10, 3, 4)
	require.NoError(t, err)

	fitter := &testkit.EchoPriorFitter{Prior: model.StandardNormalPrior(5), Draws: 10}
	_, err = New(sim, fitter, kit.RNGAdapter(), nil, 1)
	assert.Error(t, err)
}
