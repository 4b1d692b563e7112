package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/runner"
	"github.com/quantlab/strategy-search/pkg/types"
)

func sampleRecord(expID string, x int) *runner.RunRecord {
	rec := runner.NewRunRecord(expID, experiment.Task{
		Symbol: "BTCUSDT",
		Params: experiment.Params{"x": x},
	})
	rec.MarkRunning()
	rec.MarkCompleted(&types.Metrics{SharpeRatio: float64(x), TotalTrades: x})
	return rec
}

func TestRunLog_AppendReadRoundTrip(t *testing.T) {
	log, err := NewRunLog(t.TempDir())
	require.NoError(t, err)
	defer log.Close()

	want := []*runner.RunRecord{
		sampleRecord("exp1", 1),
		sampleRecord("exp1", 2),
		sampleRecord("exp1", 3),
	}
	require.NoError(t, log.Append(want))
	require.NoError(t, log.Flush())

	got, err := log.ReadAll("exp1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, rec := range got {
		assert.Equal(t, want[i].ID, rec.ID)
		assert.Equal(t, runner.StatusCompleted, rec.Status)
		require.NotNil(t, rec.Metrics)
		assert.Equal(t, want[i].Metrics.SharpeRatio, rec.Metrics.SharpeRatio)
	}
}

func TestRunLog_SeparatesExperiments(t *testing.T) {
	log, err := NewRunLog(t.TempDir())
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append([]*runner.RunRecord{
		sampleRecord("exp1", 1),
		sampleRecord("exp2", 2),
		sampleRecord("exp1", 3),
	}))

	got1, err := log.ReadAll("exp1")
	require.NoError(t, err)
	assert.Len(t, got1, 2)

	got2, err := log.ReadAll("exp2")
	require.NoError(t, err)
	assert.Len(t, got2, 1)
}

func TestRunLog_MissingFileMeansNoRecords(t *testing.T) {
	log, err := NewRunLog(t.TempDir())
	require.NoError(t, err)

	got, err := log.ReadAll("never-ran")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunLog_AppendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewRunLog(dir)
	require.NoError(t, err)
	require.NoError(t, first.Append([]*runner.RunRecord{sampleRecord("exp1", 1)}))
	require.NoError(t, first.Close())

	second, err := NewRunLog(dir)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Append([]*runner.RunRecord{sampleRecord("exp1", 2)}))

	got, err := second.ReadAll("exp1")
	require.NoError(t, err)
	assert.Len(t, got, 2, "reopening must append, not truncate")
}

func TestWriteSummary_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	result := &runner.Result{
		ExperimentID:   "exp1",
		TotalRequested: 2,
		Completed:      2,
		Records: []*runner.RunRecord{
			sampleRecord("exp1", 1),
			sampleRecord("exp1", 2),
		},
		Objective: types.DefaultObjective(),
	}
	result.Best = result.Records[1]

	path, err := WriteSummary(dir, result)
	require.NoError(t, err)
	assert.FileExists(t, path)

	loaded, err := LoadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, result.ExperimentID, loaded.ExperimentID)
	assert.Equal(t, result.Completed, loaded.Completed)
	require.Len(t, loaded.Records, 2)
	require.NotNil(t, loaded.Best)
	assert.Equal(t, result.Best.ID, loaded.Best.ID)
}

func TestLoadSummary_MissingFile(t *testing.T) {
	_, err := LoadSummary("/nonexistent/exp.summary.json")
	assert.Error(t, err)
}
