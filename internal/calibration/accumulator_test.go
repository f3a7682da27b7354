package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbcheck/domain/calibration"
)

func newTestAccumulator(t *testing.T, runs int) *Accumulator {
	t.Helper()
	acc, err := NewAccumulator(testStudy, runs, 2, 100)
	require.NoError(t, err)
	return acc
}

func TestAccumulator_CollectsInIndexOrder(t *testing.T) {
	acc := newTestAccumulator(t, 3)

	// Record out of order, as parallel workers would
	require.NoError(t, acc.Record(validRecord(2, []int{5, 6})))
	require.NoError(t, acc.Record(validRecord(0, []int{1, 2})))
	require.NoError(t, acc.Record(validRecord(1, []int{3, 4})))

	records := acc.Complete()
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, i, rec.Index)
	}
	assert.Equal(t, []int{1, 2}, records[0].Ranks)
	assert.Equal(t, []int{5, 6}, records[2].Ranks)
}

func TestAccumulator_RejectsAfterComplete(t *testing.T) {
	acc := newTestAccumulator(t, 1)
	require.NoError(t, acc.Record(validRecord(0, []int{1, 2})))

	acc.Complete()
	assert.Equal(t, calibration.StateComplete, acc.State())

	err := acc.Record(validRecord(0, []int{1, 2}))
	assert.Error(t, err)
}

func TestAccumulator_RejectsDoubleRecord(t *testing.T) {
	acc := newTestAccumulator(t, 2)
	require.NoError(t, acc.Record(validRecord(0, []int{1, 2})))
	assert.Error(t, acc.Record(validRecord(0, []int{1, 2})))
}

func TestAccumulator_RejectsOutOfBoundsRanks(t *testing.T) {
	acc := newTestAccumulator(t, 1)
	err := acc.Record(validRecord(0, []int{0, 101}))
	assert.Error(t, err, "rank beyond the draw count must never enter the aggregate")
}

func TestAccumulator_RejectsWrongDimCount(t *testing.T) {
	acc := newTestAccumulator(t, 1)
	assert.Error(t, acc.Record(validRecord(0, []int{1})))
}

func TestAccumulator_RejectsRanksOnExcludedRun(t *testing.T) {
	acc := newTestAccumulator(t, 1)
	rec := excludedRecord(0, calibration.RunNonConvergent)
	rec.Ranks = []int{1, 2}
	assert.Error(t, acc.Record(rec))
}

func TestAccumulator_MaterializesUnfilledAsAborted(t *testing.T) {
	acc := newTestAccumulator(t, 2)
	require.NoError(t, acc.Record(validRecord(0, []int{1, 2})))

	records := acc.Complete()
	require.Len(t, records, 2)
	assert.Equal(t, calibration.RunValid, records[0].Status)
	assert.Equal(t, calibration.RunAborted, records[1].Status)
	assert.False(t, records[1].Valid())
}
