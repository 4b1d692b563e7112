package search

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/runner"
	"github.com/quantlab/strategy-search/pkg/types"
)

func searchConfig(params map[string]*experiment.ParameterRange) *experiment.Config {
	return &experiment.Config{
		Name:       "search-test",
		Strategy:   "s",
		Symbols:    []string{"BTCUSDT"},
		Timeframe:  "1h",
		Mode:       experiment.ModeGrid,
		Parameters: params,
	}
}

// peakBacktest scores a single parameter x with a peak at the given value.
func peakBacktest(peak float64) types.BacktestFunc {
	return func(_ context.Context, req types.Request) (*types.Metrics, error) {
		x, ok := experiment.Params(req.Parameters).Float("x")
		if !ok {
			return nil, stderrors.New("parameter x missing")
		}
		d := x - peak
		return &types.Metrics{SharpeRatio: 10 - d*d, TotalReturn: 10 - d*d}, nil
	}
}

func evaluator(backtest types.BacktestFunc) Evaluator {
	return runner.New(backtest, runner.Options{Workers: 2, RetryDelay: time.Millisecond})
}

func TestGrid_FindsBestAssignment(t *testing.T) {
	cfg := searchConfig(map[string]*experiment.ParameterRange{
		"x": experiment.ListRange(1, 2, 3, 4, 5),
	})

	grid := NewGrid(evaluator(peakBacktest(4)))
	out, err := grid.Optimize(context.Background(), Request{
		Config:    cfg,
		Objective: types.DefaultObjective(),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, 5, out.Evaluations)
	assert.Zero(t, out.Failed)

	x, ok := out.BestParams.Float("x")
	require.True(t, ok)
	assert.Equal(t, 4.0, x)
	assert.Equal(t, 10.0, out.BestScore)
}

func TestGrid_PropagatesIntervalToTasks(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []time.Time
	)
	backtest := func(_ context.Context, req types.Request) (*types.Metrics, error) {
		mu.Lock()
		starts = append(starts, req.Start)
		mu.Unlock()
		return &types.Metrics{SharpeRatio: 1}, nil
	}

	cfg := searchConfig(map[string]*experiment.ParameterRange{
		"x": experiment.ListRange(1, 2),
	})
	trainStart := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	trainEnd := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)

	grid := NewGrid(evaluator(backtest))
	_, err := grid.Optimize(context.Background(), Request{
		Config:    cfg,
		Objective: types.DefaultObjective(),
		Start:     trainStart,
		End:       trainEnd,
	})
	require.NoError(t, err)

	require.Len(t, starts, 2)
	for _, s := range starts {
		assert.Equal(t, trainStart, s, "every run must be restricted to the train slice")
	}
}

func TestGrid_AllFailuresYieldFailedStatus(t *testing.T) {
	backtest := func(context.Context, types.Request) (*types.Metrics, error) {
		return nil, stderrors.New("boom")
	}
	cfg := searchConfig(map[string]*experiment.ParameterRange{
		"x": experiment.ListRange(1, 2, 3),
	})

	grid := NewGrid(evaluator(backtest))
	out, err := grid.Optimize(context.Background(), Request{
		Config:    cfg,
		Objective: types.DefaultObjective(),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 3, out.Failed)
	assert.Nil(t, out.BestRecord)
}

func TestRandom_StopsWhenImprovementStalls(t *testing.T) {
	// Constant scores: the first batch sets the best, nothing after
	// improves, so the search stops after Patience stale batches.
	backtest := func(context.Context, types.Request) (*types.Metrics, error) {
		return &types.Metrics{SharpeRatio: 1}, nil
	}

	cfg := searchConfig(map[string]*experiment.ParameterRange{
		"x": experiment.StepRange(1, 100, 1),
	})
	cfg.Seed = 7

	random := NewRandom(evaluator(backtest), RandomOptions{
		BatchSize:      5,
		Budget:         60,
		MinImprovement: 0.01,
		Patience:       1,
	})
	out, err := random.Optimize(context.Background(), Request{
		Config:    cfg,
		Objective: types.DefaultObjective(),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, out.Status)
	assert.Less(t, out.Evaluations, 60, "stalled search must not spend the whole budget")
	assert.Equal(t, 15, out.Evaluations, "one improving batch plus two stale ones")
}

func TestRandom_SpendsBudgetWhileImproving(t *testing.T) {
	cfg := searchConfig(map[string]*experiment.ParameterRange{
		"x": experiment.ListRange(1, 2, 3, 4, 5, 6, 7, 8),
	})
	cfg.Seed = 3

	random := NewRandom(evaluator(peakBacktest(8)), RandomOptions{
		BatchSize: 4,
		Budget:    8,
		Patience:  2,
	})
	out, err := random.Optimize(context.Background(), Request{
		Config:    cfg,
		Objective: types.DefaultObjective(),
	})
	require.NoError(t, err)

	// Budget covers the full space, so the peak is always found.
	assert.Equal(t, StatusOK, out.Status)
	x, ok := out.BestParams.Float("x")
	require.True(t, ok)
	assert.Equal(t, 8.0, x)
}

func TestSurrogate_FindsPeakOnSmallSpace(t *testing.T) {
	cfg := searchConfig(map[string]*experiment.ParameterRange{
		"x": experiment.ListRange(1, 2, 3, 4, 5, 6, 7, 8, 9),
	})

	surrogate := NewSurrogate(evaluator(peakBacktest(6)), SurrogateOptions{
		Budget: 9,
		WarmUp: 4,
		Seed:   11,
	})
	out, err := surrogate.Optimize(context.Background(), Request{
		Config:    cfg,
		Objective: types.DefaultObjective(),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, out.Status)
	x, ok := out.BestParams.Float("x")
	require.True(t, ok)
	assert.Equal(t, 6.0, x)
	assert.False(t, out.Degraded)
}

// brokenModel always refuses to fit.
type brokenModel struct{}

func (brokenModel) Fit([][]float64, []float64) error { return stderrors.New("backend unavailable") }
func (brokenModel) Predict([]float64) float64        { return 0 }

func TestSurrogate_DegradesToRandomWhenModelUnavailable(t *testing.T) {
	cfg := searchConfig(map[string]*experiment.ParameterRange{
		"x": experiment.ListRange(1, 2, 3, 4, 5, 6, 7, 8),
	})

	surrogate := NewSurrogate(evaluator(peakBacktest(3)), SurrogateOptions{
		Budget: 8,
		WarmUp: 2,
		Seed:   5,
		Model:  brokenModel{},
	})
	out, err := surrogate.Optimize(context.Background(), Request{
		Config:    cfg,
		Objective: types.DefaultObjective(),
	})
	require.NoError(t, err)

	// The optimize call still succeeds, just without model guidance.
	assert.Equal(t, StatusOK, out.Status)
	assert.True(t, out.Degraded)
	x, ok := out.BestParams.Float("x")
	require.True(t, ok)
	assert.Equal(t, 3.0, x, "budget covers the whole space even degraded")
}

func TestSurrogate_RequiresParameterSpace(t *testing.T) {
	cfg := searchConfig(nil)
	surrogate := NewSurrogate(evaluator(peakBacktest(1)), SurrogateOptions{})
	_, err := surrogate.Optimize(context.Background(), Request{
		Config:    cfg,
		Objective: types.DefaultObjective(),
	})
	assert.Error(t, err)
}

func TestNew_KnownAndUnknownKinds(t *testing.T) {
	eval := evaluator(peakBacktest(1))

	for _, kind := range []Kind{KindGrid, KindRandom, KindSurrogate} {
		s, err := New(kind, eval)
		require.NoError(t, err)
		assert.Equal(t, string(kind), s.Name())
	}

	_, err := New("genetic", eval)
	assert.Error(t, err)
}
