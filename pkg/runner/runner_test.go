package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/types"
)

func testConfig(values ...any) *experiment.Config {
	return &experiment.Config{
		Name:      "runner-test",
		Strategy:  "s",
		Symbols:   []string{"BTCUSDT"},
		Timeframe: "1h",
		Mode:      experiment.ModeGrid,
		Parameters: map[string]*experiment.ParameterRange{
			"x": experiment.ListRange(values...),
		},
	}
}

// memStore is an in-memory RecordStore for exercising the flush path.
type memStore struct {
	mu      sync.Mutex
	records []*RunRecord
	appends int
	failing bool
}

func (s *memStore) Append(records []*RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return stderrors.New("disk full")
	}
	s.appends++
	s.records = append(s.records, records...)
	return nil
}

func (s *memStore) ReadAll(experimentID string) ([]*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*RunRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.ExperimentID == experimentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) Flush() error { return nil }

func scoreBacktest(t *testing.T) types.BacktestFunc {
	t.Helper()
	return func(_ context.Context, req types.Request) (*types.Metrics, error) {
		v, ok := experiment.Params(req.Parameters).Float("x")
		if !ok {
			return nil, fmt.Errorf("parameter x missing")
		}
		return &types.Metrics{SharpeRatio: v, TotalReturn: v * 2}, nil
	}
}

func TestRunner_GridEndToEnd(t *testing.T) {
	cfg := testConfig(1, 2, 3, 4, 5)
	tasks, err := experiment.Tasks(cfg)
	require.NoError(t, err)
	require.Len(t, tasks, 5)

	r := New(scoreBacktest(t), Options{Workers: 3})
	result, err := r.Run(context.Background(), cfg, tasks)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Completed)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, result.Records, 5)

	// Sharpe equals the parameter value, so the winner is x=5.
	require.NotNil(t, result.Best)
	x, ok := result.Best.Params.Float("x")
	require.True(t, ok)
	assert.Equal(t, 5.0, x)
}

func TestRunner_AllTasksFailWithoutHanging(t *testing.T) {
	boom := stderrors.New("exchange unreachable")
	var calls atomic.Int64
	backtest := func(context.Context, types.Request) (*types.Metrics, error) {
		calls.Add(1)
		return nil, boom
	}

	cfg := testConfig(1, 2, 3)
	tasks, err := experiment.Tasks(cfg)
	require.NoError(t, err)

	r := New(backtest, Options{
		Workers:    2,
		Retries:    2,
		RetryDelay: time.Millisecond,
	})
	result, err := r.Run(context.Background(), cfg, tasks)
	require.NoError(t, err, "task failures are data, not batch errors")

	assert.Equal(t, 0, result.Completed)
	assert.Equal(t, 3, result.Failed)
	assert.EqualValues(t, 9, calls.Load(), "each task retried twice after the first attempt")

	for _, rec := range result.Records {
		assert.Equal(t, StatusFailed, rec.Status)
		assert.Equal(t, 3, rec.Attempts)
		assert.NotEmpty(t, rec.Error)
		assert.Contains(t, rec.Error, "exchange unreachable")
	}
}

func TestRunner_FailFastStopsSubmissions(t *testing.T) {
	var calls atomic.Int64
	backtest := func(context.Context, types.Request) (*types.Metrics, error) {
		if calls.Add(1) > 1 {
			// Later tasks linger so cancellation lands before the pool
			// can drain the whole batch.
			time.Sleep(50 * time.Millisecond)
		}
		return nil, stderrors.New("bad parameters")
	}

	values := make([]any, 50)
	for i := range values {
		values[i] = i
	}
	cfg := testConfig(values...)
	tasks, err := experiment.Tasks(cfg)
	require.NoError(t, err)

	r := New(backtest, Options{Workers: 2, FailFast: true})
	result, err := r.Run(context.Background(), cfg, tasks)
	require.ErrorIs(t, err, ErrAborted)

	// At most the in-flight tasks finish after the trigger; the rest are
	// never dispatched.
	assert.Less(t, int(calls.Load()), 10)
	assert.GreaterOrEqual(t, result.Failed, 1)
	assert.Equal(t, int(calls.Load()), result.Completed+result.Failed)
}

func TestRunner_FlushBoundsMemoryAndKeepsFullResult(t *testing.T) {
	cfg := testConfig(1, 2, 3, 4, 5, 6, 7)
	tasks, err := experiment.Tasks(cfg)
	require.NoError(t, err)

	store := &memStore{}
	r := New(scoreBacktest(t), Options{
		Workers:    2,
		FlushEvery: 2,
		Store:      store,
	})
	result, err := r.Run(context.Background(), cfg, tasks)
	require.NoError(t, err)

	assert.Equal(t, 7, result.Completed)
	assert.Len(t, result.Records, 7, "flushed records are read back into the result")
	assert.Len(t, store.records, 7)
	assert.GreaterOrEqual(t, store.appends, 3, "records arrive in batches of FlushEvery")
}

func TestRunner_StoreFailureKeepsRecordsInMemory(t *testing.T) {
	cfg := testConfig(1, 2, 3, 4)
	tasks, err := experiment.Tasks(cfg)
	require.NoError(t, err)

	store := &memStore{failing: true}
	r := New(scoreBacktest(t), Options{
		Workers:    2,
		FlushEvery: 2,
		Store:      store,
	})
	result, err := r.Run(context.Background(), cfg, tasks)
	require.Error(t, err, "a dead store is a batch error")

	// Nothing is lost: every record is still in the in-memory result.
	assert.Len(t, result.Records, 4)
	assert.Equal(t, 4, result.Completed)
}

func TestRunner_EmptyTaskList(t *testing.T) {
	cfg := testConfig(1)
	r := New(scoreBacktest(t), Options{})
	result, err := r.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Completed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Records)
}

func TestRunner_ContextCancellationReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int64
	backtest := func(ctx context.Context, _ types.Request) (*types.Metrics, error) {
		if calls.Add(1) == 1 {
			cancel()
			return &types.Metrics{SharpeRatio: 1}, nil
		}
		return nil, ctx.Err()
	}

	cfg := testConfig(1, 2, 3, 4, 5)
	tasks, err := experiment.Tasks(cfg)
	require.NoError(t, err)

	r := New(backtest, Options{Workers: 1})
	result, err := r.Run(ctx, cfg, tasks)
	require.Error(t, err)
	assert.GreaterOrEqual(t, result.Completed+result.Failed, 1)
}
