package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sbcheck/domain/calibration"
	"sbcheck/domain/core"
)

func fixtureStudy() (*calibration.StudyReport, []calibration.RunRecord) {
	study := core.StudyID("fixture-study")
	records := []calibration.RunRecord{
		{RunID: core.NewRunID(study, 0), Index: 0, Status: calibration.RunValid, Ranks: []int{3, 7}},
		{RunID: core.NewRunID(study, 1), Index: 1, Status: calibration.RunValid, Ranks: []int{1, 4}},
		{RunID: core.NewRunID(study, 2), Index: 2, Status: calibration.RunNonConvergent, FailureReason: "divergent transitions"},
	}
	report := &calibration.StudyReport{
		StudyID:            study,
		Fingerprint:        core.StudyFingerprint("abc123"),
		TotalRuns:          3,
		ValidRuns:          2,
		ExcludedRuns:       1,
		MaxRank:            8,
		Bins:               4,
		Alpha:              0.01,
		MaxInvalidFraction: 0.5,
		Dimensions: []calibration.DimensionReport{
			{Dim: 0, Param: "beta[1]", Ranks: []int{3, 1}, ChiSquare: 1.2, DF: 3, PValue: 0.75, Summary: calibration.RankSummary{Mean: 2, StdDev: 1.41}},
			{Dim: 1, Param: "beta[2]", Ranks: []int{7, 4}, ChiSquare: 9.8, DF: 3, PValue: 0.002, Flagged: true, Summary: calibration.RankSummary{Mean: 5.5, StdDev: 2.12}},
		},
		Exclusions: records[2:],
		Verdict:    calibration.VerdictDeviation,
	}
	return report, records
}

func TestRankTable(t *testing.T) {
	report, records := fixtureStudy()
	headers, rows := rankTable(report, records)

	assert.Equal(t, []string{"run_id", "status", "converged", "rank_beta_1", "rank_beta_2"}, headers)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{records[0].RunID.String(), "valid", "true", "3", "7"}, rows[0])
	assert.Equal(t, "false", rows[2][2])
	assert.Equal(t, "", rows[2][3], "excluded runs keep their row with empty rank cells")
}

func TestCSVSink(t *testing.T) {
	report, records := fixtureStudy()
	path := filepath.Join(t.TempDir(), "ranks.csv")

	sink := &CSVSink{Path: path}
	require.NoError(t, sink.WriteStudy(report, records))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus one row per run, excluded included")
	assert.Equal(t, "rank_beta_2", rows[0][4])
	assert.Equal(t, "non_convergent", rows[3][1])
}

func TestBuildMarkdown(t *testing.T) {
	report, _ := fixtureStudy()
	md := BuildMarkdown(report)

	assert.Contains(t, md, "Verdict: **deviation**")
	assert.Contains(t, md, "3 total, 2 valid, 1 excluded")
	assert.Contains(t, md, "beta[2]")
	assert.Contains(t, md, "FLAGGED")
	assert.Contains(t, md, "divergent transitions")
	assert.Contains(t, md, "abc123")
	assert.NotContains(t, md, "Too many runs were excluded")
}

func TestBuildMarkdown_InconclusiveNote(t *testing.T) {
	report, _ := fixtureStudy()
	report.Verdict = calibration.VerdictInconclusive
	assert.Contains(t, BuildMarkdown(report), "Too many runs were excluded")
}

func TestMarkdownSink(t *testing.T) {
	report, records := fixtureStudy()
	path := filepath.Join(t.TempDir(), "report.md")

	sink := &MarkdownSink{Path: path}
	require.NoError(t, sink.WriteStudy(report, records))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "# Calibration Study fixture-study")
}

func TestHTMLSink(t *testing.T) {
	report, records := fixtureStudy()
	path := filepath.Join(t.TempDir(), "report.html")

	sink := &HTMLSink{Path: path}
	require.NoError(t, sink.WriteStudy(report, records))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(content)
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "deviation")
	assert.Contains(t, html, "<table>", "the per-dimension table must survive rendering")
}

func TestReadRankTable_RoundTrip(t *testing.T) {
	report, records := fixtureStudy()
	path := filepath.Join(t.TempDir(), "ranks.csv")
	require.NoError(t, (&CSVSink{Path: path}).WriteStudy(report, records))

	got, dims, err := ReadRankTable(path)
	require.NoError(t, err)

	assert.Equal(t, 2, dims)
	require.Len(t, got, 3)
	assert.Equal(t, records[0].RunID, got[0].RunID)
	assert.Equal(t, records[0].Ranks, got[0].Ranks)
	assert.Equal(t, calibration.RunNonConvergent, got[2].Status)
	assert.Nil(t, got[2].Ranks, "excluded rows come back without ranks")
}

func TestReadRankTable_Malformed(t *testing.T) {
	dir := t.TempDir()

	noRanks := filepath.Join(dir, "noranks.csv")
	require.NoError(t, os.WriteFile(noRanks, []byte("run_id,status,converged\n"), 0o644))
	_, _, err := ReadRankTable(noRanks)
	assert.Error(t, err)

	badRank := filepath.Join(dir, "badrank.csv")
	require.NoError(t, os.WriteFile(badRank, []byte("run_id,status,converged,rank_beta_1\ns/run-0000,valid,true,oops\n"), 0o644))
	_, _, err = ReadRankTable(badRank)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("run_id,status,converged,rank_beta_1\n"), 0o644))
	_, _, err = ReadRankTable(empty)
	assert.Error(t, err)
}

func TestXLSXSink(t *testing.T) {
	report, records := fixtureStudy()
	path := filepath.Join(t.TempDir(), "ranks.xlsx")

	sink := &XLSXSink{Path: path}
	require.NoError(t, sink.WriteStudy(report, records))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Ranks", "Uniformity"}, f.GetSheetList())

	cell, err := f.GetCellValue("Ranks", "D2")
	require.NoError(t, err)
	assert.Equal(t, "3", cell)

	param, err := f.GetCellValue("Uniformity", "A3")
	require.NoError(t, err)
	assert.Equal(t, "beta[2]", param)

	flagged, err := f.GetCellValue("Uniformity", "F3")
	require.NoError(t, err)
	assert.Equal(t, "true", flagged)
}
