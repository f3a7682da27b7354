// Package runner executes the simulation loop of a calibration study: draw a
// true parameter from the prior, simulate data from the likelihood, refit
// with the posterior fitter, rank the truth among the posterior draws.
package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sbcheck/domain/calibration"
	"sbcheck/domain/core"
	"sbcheck/internal"
	intcalib "sbcheck/internal/calibration"
	"sbcheck/internal/errors"
	"sbcheck/internal/rank"
	"sbcheck/ports"
)

// Stage names used for deriving independent RNG streams per run
const (
	StagePrior    = "prior"
	StageSimulate = "simulate"
	StageFit      = "fit"
)

// Runner drives R independent simulation runs over a bounded worker pool.
// Each run is a pure function of its derived seed, so aggregate results are
// identical regardless of worker count or completion order.
type Runner struct {
	sim     ports.SimulatorPort
	fitter  ports.PosteriorFitterPort
	rng     ports.RNGPort
	log     *internal.Logger
	workers int
}

// New creates a runner. workers bounds concurrent runs; the fitter is
// typically the dominant per-run cost.
func New(sim ports.SimulatorPort, fitter ports.PosteriorFitterPort, rngPort ports.RNGPort, log *internal.Logger, workers int) (*Runner, error) {
	if workers <= 0 {
		return nil, errors.ConfigInvalid("runner needs at least one worker")
	}
	if sim.Dim() != fitter.Dim() {
		return nil, errors.ShapeMismatch("simulator and fitter disagree on parameter dimensionality")
	}
	return &Runner{sim: sim, fitter: fitter, rng: rngPort, log: log, workers: workers}, nil
}

// RunStudy executes runs simulation repetitions and returns the completed
// run collection in index order. Per-run failures (non-convergence, contract
// violations) are recorded and excluded without cancelling sibling runs;
// only accumulator corruption or context cancellation aborts the study.
func (r *Runner) RunStudy(ctx context.Context, studyID core.StudyID, runs, maxRank int, baseSeed uint64) ([]calibration.RunRecord, error) {
	acc, err := intcalib.NewAccumulator(studyID, runs, r.sim.Dim(), maxRank)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i := 0; i < runs; i++ {
		g.Go(func() error {
			rec := r.runOnce(gctx, studyID, i, baseSeed)
			return acc.Record(rec)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "study execution failed")
	}

	return acc.Complete(), nil
}

// runOnce executes one simulation run. All failure modes collapse into the
// returned record; nothing leaks to sibling runs.
func (r *Runner) runOnce(ctx context.Context, studyID core.StudyID, index int, baseSeed uint64) calibration.RunRecord {
	rec := calibration.RunRecord{
		RunID: core.NewRunID(studyID, index),
		Index: index,
		Seed:  r.rng.RunSeed(studyID, StageFit, index, baseSeed),
	}

	if ctx.Err() != nil {
		rec.Status = calibration.RunAborted
		rec.FailureReason = ctx.Err().Error()
		return rec
	}

	priorStream, err := r.rng.RunStream(ctx, studyID, StagePrior, index, baseSeed)
	if err != nil {
		return r.fail(rec, calibration.RunAborted, err)
	}
	theta := r.sim.PriorDraw(priorStream)

	simStream, err := r.rng.RunStream(ctx, studyID, StageSimulate, index, baseSeed)
	if err != nil {
		return r.fail(rec, calibration.RunAborted, err)
	}
	data, err := r.sim.Simulate(simStream, theta)
	if err != nil {
		return r.fail(rec, calibration.RunMalformed, err)
	}

	draws, err := r.fitter.Fit(ctx, data, rec.Seed)
	if err != nil {
		switch {
		case errors.IsNonConvergence(err):
			return r.fail(rec, calibration.RunNonConvergent, err)
		case errors.IsShapeMismatch(err):
			return r.fail(rec, calibration.RunMalformed, err)
		case ctx.Err() != nil:
			return r.fail(rec, calibration.RunAborted, err)
		default:
			return r.fail(rec, calibration.RunNonConvergent, errors.Wrap(err, "fit failed"))
		}
	}

	ranks, err := rank.Ranks(theta, draws)
	if err != nil {
		return r.fail(rec, calibration.RunMalformed, err)
	}

	rec.Status = calibration.RunValid
	rec.Ranks = ranks
	rec.Draws = draws.Len()
	return rec
}

func (r *Runner) fail(rec calibration.RunRecord, status calibration.RunStatus, err error) calibration.RunRecord {
	rec.Status = status
	rec.FailureReason = err.Error()
	if r.log != nil {
		r.log.Warn("run %s excluded (%s): %v", rec.RunID, status, err)
	}
	return rec
}
