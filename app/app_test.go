package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbcheck/adapters/report"
	"sbcheck/domain/calibration"
	"sbcheck/domain/core"
	"sbcheck/domain/model"
	"sbcheck/internal"
	intcalib "sbcheck/internal/calibration"
	"sbcheck/internal/testkit"
	"sbcheck/ports"
)

func newStudyService(t *testing.T, sinks []ports.RankSinkPort) (*StudyService, *testkit.TestKit) {
	t.Helper()
	kit := testkit.NewTestKit()

	sim, err := kit.FixtureLogitSimulator(30, 3, 4)
	require.NoError(t, err)
	fitter := &testkit.EchoPriorFitter{Prior: model.StandardNormalPrior(4), Draws: 99}

	checker, err := intcalib.NewChecker(10, 0.01, 0.1)
	require.NoError(t, err)

	return NewStudyService(sim, fitter, kit.RNGAdapter(), checker, sinks, internal.NewLogger(internal.LogLevelError)), kit
}

func TestStudyService_RunStudy(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "ranks.csv")
	svc, _ := newStudyService(t, []ports.RankSinkPort{&report.CSVSink{Path: csvPath}})

	result, err := svc.RunStudy(context.Background(), StudyRequest{
		StudyID: core.StudyID("svc-test"),
		Runs:    25,
		Workers: 4,
		Seed:    11,
		MaxRank: 99,
	})
	require.NoError(t, err)

	assert.Equal(t, core.StudyID("svc-test"), result.Report.StudyID)
	assert.Equal(t, 25, result.Report.TotalRuns)
	assert.Equal(t, 25, result.Report.ValidRuns)
	assert.Len(t, result.Records, 25)
	assert.NotEmpty(t, result.Report.Fingerprint)
	assert.False(t, result.Report.StartedAt.IsZero())

	written, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), "svc-test/run-0000")
}

func TestStudyService_GeneratesStudyID(t *testing.T) {
	svc, _ := newStudyService(t, nil)

	result, err := svc.RunStudy(context.Background(), StudyRequest{
		Runs:    5,
		Workers: 2,
		Seed:    3,
		MaxRank: 99,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Report.StudyID)
}

func TestStudyService_RejectsBadRequest(t *testing.T) {
	svc, _ := newStudyService(t, nil)

	_, err := svc.RunStudy(context.Background(), StudyRequest{Runs: 0, Workers: 1, MaxRank: 10})
	assert.Error(t, err)

	_, err = svc.RunStudy(context.Background(), StudyRequest{Runs: 5, Workers: 1, MaxRank: 0})
	assert.Error(t, err)
}

func TestStudyService_SinkFailureSurfaces(t *testing.T) {
	bad := &report.CSVSink{Path: filepath.Join(t.TempDir(), "missing", "ranks.csv")}
	svc, _ := newStudyService(t, []ports.RankSinkPort{bad})

	_, err := svc.RunStudy(context.Background(), StudyRequest{
		Runs: 3, Workers: 1, Seed: 1, MaxRank: 99,
	})
	assert.Error(t, err)
}

func newPriorPredictiveService(t *testing.T) *PriorPredictiveService {
	t.Helper()
	kit := testkit.NewTestKit()
	sim, err := kit.FixtureLogitSimulator(40, 3, 5)
	require.NoError(t, err)
	return NewPriorPredictiveService(sim, kit.RNGAdapter(), internal.NewLogger(internal.LogLevelError))
}

func TestPriorPredictiveService_SharesSumToOne(t *testing.T) {
	svc := newPriorPredictiveService(t)

	result, err := svc.Run(context.Background(), PriorPredictiveRequest{Reps: 50, Seed: 9})
	require.NoError(t, err)

	require.Len(t, result.Alternatives, 3)
	var total float64
	for _, alt := range result.Alternatives {
		assert.GreaterOrEqual(t, alt.ShareMean, 0.0)
		assert.LessOrEqual(t, alt.ShareMean, 1.0)
		assert.GreaterOrEqual(t, alt.ShareMax, alt.ShareMin)
		total += alt.ShareMean
	}
	assert.InDelta(t, 1.0, total, 1e-9, "mean shares must partition the choices")
	assert.GreaterOrEqual(t, result.MaxShareMean, 1.0/3)
	assert.Greater(t, result.UtilitySpread.Mean, 0.0)
	assert.GreaterOrEqual(t, result.UtilitySpread.Max, result.UtilitySpread.Min)
}

func TestPriorPredictiveService_Reproducible(t *testing.T) {
	svc := newPriorPredictiveService(t)

	req := PriorPredictiveRequest{StudyID: core.StudyID("pp"), Reps: 20, Seed: 4}
	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPriorPredictiveService_RejectsZeroReps(t *testing.T) {
	svc := newPriorPredictiveService(t)
	_, err := svc.Run(context.Background(), PriorPredictiveRequest{Reps: 0})
	assert.Error(t, err)
}

func TestStudyService_ExclusionsInReport(t *testing.T) {
	kit := testkit.NewTestKit()
	sim, err := kit.FixtureLogitSimulator(30, 3, 4)
	require.NoError(t, err)
	fitter := &testkit.NonConvergentFitter{
		Inner:     &testkit.EchoPriorFitter{Prior: model.StandardNormalPrior(4), Draws: 99},
		FailEvery: 1,
	}
	checker, err := intcalib.NewChecker(10, 0.01, 0.1)
	require.NoError(t, err)
	svc := NewStudyService(sim, fitter, kit.RNGAdapter(), checker, nil, internal.NewLogger(internal.LogLevelError))

	result, err := svc.RunStudy(context.Background(), StudyRequest{
		Runs: 10, Workers: 2, Seed: 5, MaxRank: 99,
	})
	require.NoError(t, err)

	assert.Equal(t, calibration.VerdictInconclusive, result.Report.Verdict)
	assert.Equal(t, 10, result.Report.ExcludedRuns)
	assert.Len(t, result.Report.Exclusions, 10)
}
