package app

import (
	"context"

	"github.com/montanaflynn/stats"

	"sbcheck/domain/core"
	"sbcheck/domain/model"
	"sbcheck/internal"
	"sbcheck/internal/errors"
	"sbcheck/internal/simulate"
	"sbcheck/ports"
)

// PriorPredictiveService sanity-checks a prior before any fitting: draw
// coefficients from the prior, simulate choices from the likelihood, and
// summarize what the simulated data looks like. Distinct from calibration:
// nothing is refit and no ranks exist here.
type PriorPredictiveService struct {
	sim     *simulate.LogitSimulator
	rngPort ports.RNGPort
	log     *internal.Logger
}

// PriorPredictiveRequest defines the check inputs
type PriorPredictiveRequest struct {
	StudyID core.StudyID // optional, generated if empty
	// Reps is the number of prior draws to simulate under
	Reps int
	Seed uint64
}

// AlternativeSummary describes how often one alternative was chosen across
// prior draws
type AlternativeSummary struct {
	Alternative int     `json:"alternative"`
	ShareMean   float64 `json:"share_mean"`
	ShareStdDev float64 `json:"share_std_dev"`
	ShareMin    float64 `json:"share_min"`
	ShareMax    float64 `json:"share_max"`
}

// UtilitySpreadSummary describes the max-min utility gap across prior draws.
// Large spreads mean near-deterministic simulated choices.
type UtilitySpreadSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// PriorPredictiveResult summarizes simulated choice behavior under the prior
type PriorPredictiveResult struct {
	StudyID       core.StudyID         `json:"study_id"`
	Reps          int                  `json:"reps"`
	Alternatives  []AlternativeSummary `json:"alternatives"`
	UtilitySpread UtilitySpreadSummary `json:"utility_spread"`
	// MaxShareMean flags degenerate priors: a value near 1 means one
	// alternative dominates almost every simulated dataset
	MaxShareMean float64 `json:"max_share_mean"`
}

// NewPriorPredictiveService creates the service
func NewPriorPredictiveService(sim *simulate.LogitSimulator, rngPort ports.RNGPort, log *internal.Logger) *PriorPredictiveService {
	return &PriorPredictiveService{sim: sim, rngPort: rngPort, log: log}
}

// Run simulates Reps datasets from the prior predictive distribution and
// summarizes per-alternative choice shares
func (s *PriorPredictiveService) Run(ctx context.Context, req PriorPredictiveRequest) (*PriorPredictiveResult, error) {
	if req.Reps <= 0 {
		return nil, errors.InvalidInput("prior predictive check needs at least one repetition")
	}
	studyID := req.StudyID
	if studyID == "" {
		studyID = core.StudyID(core.NewID())
	}

	design := s.sim.Design()
	shares := make([][]float64, design.P)
	for p := range shares {
		shares[p] = make([]float64, 0, req.Reps)
	}
	spreads := make([]float64, 0, req.Reps)

	for rep := 0; rep < req.Reps; rep++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		priorStream, err := s.rngPort.RunStream(ctx, studyID, "prior", rep, req.Seed)
		if err != nil {
			return nil, err
		}
		theta := s.sim.PriorDraw(priorStream)
		spreads = append(spreads, s.sim.MeanUtilitySpread(theta))

		simStream, err := s.rngPort.RunStream(ctx, studyID, "simulate", rep, req.Seed)
		if err != nil {
			return nil, err
		}
		data, err := s.sim.Simulate(simStream, theta)
		if err != nil {
			return nil, err
		}
		choice := data.(model.ChoiceData)

		counts := make([]int, design.P)
		for _, y := range choice.Y {
			counts[y]++
		}
		for p := range counts {
			shares[p] = append(shares[p], float64(counts[p])/float64(design.N))
		}
	}

	result := &PriorPredictiveResult{StudyID: studyID, Reps: req.Reps}
	for p, series := range shares {
		mean, err := stats.Mean(series)
		if err != nil {
			return nil, errors.Wrap(err, "share summary failed")
		}
		stdDev, _ := stats.StandardDeviation(series)
		min, _ := stats.Min(series)
		max, _ := stats.Max(series)

		result.Alternatives = append(result.Alternatives, AlternativeSummary{
			Alternative: p,
			ShareMean:   mean,
			ShareStdDev: stdDev,
			ShareMin:    min,
			ShareMax:    max,
		})
		if mean > result.MaxShareMean {
			result.MaxShareMean = mean
		}
	}

	spreadMean, err := stats.Mean(spreads)
	if err != nil {
		return nil, errors.Wrap(err, "utility spread summary failed")
	}
	spreadStdDev, _ := stats.StandardDeviation(spreads)
	spreadMin, _ := stats.Min(spreads)
	spreadMax, _ := stats.Max(spreads)
	result.UtilitySpread = UtilitySpreadSummary{
		Mean:   spreadMean,
		StdDev: spreadStdDev,
		Min:    spreadMin,
		Max:    spreadMax,
	}

	s.log.Info("prior predictive check %s: %d reps, max mean share %.3f, mean utility spread %.2f",
		studyID, req.Reps, result.MaxShareMean, spreadMean)
	return result, nil
}
