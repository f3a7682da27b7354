package app

import (
	"context"
	"time"

	"sbcheck/domain/calibration"
	"sbcheck/domain/core"
	"sbcheck/internal"
	intcalib "sbcheck/internal/calibration"
	"sbcheck/internal/errors"
	"sbcheck/internal/runner"
	"sbcheck/ports"
)

// StudyService runs a complete simulation-based calibration study:
// R repetitions of draw-simulate-fit-rank, then the uniformity check, then
// artifact persistence.
type StudyService struct {
	sim     ports.SimulatorPort
	fitter  ports.PosteriorFitterPort
	rngPort ports.RNGPort
	checker *intcalib.Checker
	sinks   []ports.RankSinkPort
	log     *internal.Logger
}

// StudyRequest defines the inputs for a deterministic calibration study
type StudyRequest struct {
	StudyID core.StudyID // optional, generated if empty
	Runs    int
	Workers int
	Seed    uint64
	// MaxRank is the posterior draw count M the fitter produces per run
	MaxRank int
}

// StudyResult contains the complete output of a calibration study
type StudyResult struct {
	Report    *calibration.StudyReport `json:"report"`
	Records   []calibration.RunRecord  `json:"records"`
	RuntimeMs int64                    `json:"runtime_ms"`
}

// NewStudyService creates a study service
func NewStudyService(sim ports.SimulatorPort, fitter ports.PosteriorFitterPort, rngPort ports.RNGPort, checker *intcalib.Checker, sinks []ports.RankSinkPort, log *internal.Logger) *StudyService {
	return &StudyService{
		sim:     sim,
		fitter:  fitter,
		rngPort: rngPort,
		checker: checker,
		sinks:   sinks,
		log:     log,
	}
}

// RunStudy executes the full calibration loop and writes artifacts
func (s *StudyService) RunStudy(ctx context.Context, req StudyRequest) (*StudyResult, error) {
	startTime := time.Now()
	startedAt := core.Now()

	studyID := req.StudyID
	if studyID == "" {
		studyID = core.StudyID(core.NewID())
	}
	if req.Runs <= 0 {
		return nil, errors.InvalidInput("study needs at least one run")
	}
	if req.MaxRank <= 0 {
		return nil, errors.InvalidInput("study needs a positive posterior draw count")
	}

	fingerprint := core.ComputeStudyFingerprint(map[string]interface{}{
		"runs":     req.Runs,
		"seed":     req.Seed,
		"max_rank": req.MaxRank,
		"dims":     s.sim.Dim(),
		"prior":    s.sim.Prior(),
	})

	s.log.Info("study %s: %d runs, %d workers, seed %d", studyID, req.Runs, req.Workers, req.Seed)

	run, err := runner.New(s.sim, s.fitter, s.rngPort, s.log, req.Workers)
	if err != nil {
		return nil, err
	}
	records, err := run.RunStudy(ctx, studyID, req.Runs, req.MaxRank, req.Seed)
	if err != nil {
		return nil, err
	}

	report, err := s.checker.Check(studyID, fingerprint, records, s.sim.Dim(), req.MaxRank)
	if err != nil {
		return nil, err
	}
	report.StartedAt = startedAt
	report.FinishedAt = core.Now()

	s.log.Info("study %s: verdict %s (%d/%d runs valid, %d flagged dimensions)",
		studyID, report.Verdict, report.ValidRuns, report.TotalRuns, len(report.FlaggedDims()))

	for _, sink := range s.sinks {
		if err := sink.WriteStudy(report, records); err != nil {
			return nil, errors.Wrap(err, "failed to persist study artifact")
		}
	}

	return &StudyResult{
		Report:    report,
		Records:   records,
		RuntimeMs: time.Since(startTime).Milliseconds(),
	}, nil
}
