package runner

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantlab/strategy-search/internal/errors"
	"github.com/quantlab/strategy-search/internal/logger"
	"github.com/quantlab/strategy-search/internal/monitoring"
	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/types"
)

// ErrAborted is returned when fail-fast cancels a batch after its first
// failure. The partial Result is still valid.
var ErrAborted = stderrors.New("batch aborted by fail-fast")

// Options configures a batch runner. Workers is the only concurrency knob;
// the runner itself performs no I/O beyond the record store.
type Options struct {
	// Workers is the fixed worker pool size; defaults to NumCPU.
	Workers int

	// Retries is how many times a failing task is re-attempted. The delay
	// before attempt n is n*RetryDelay (linearly increasing).
	Retries    int
	RetryDelay time.Duration

	// FailFast cancels all not-yet-started tasks on the first failure.
	// In-flight tasks finish or fail independently.
	FailFast bool

	// FlushEvery appends each batch of K completed records to Store and
	// drops them from the working set, bounding memory. Zero disables
	// periodic flushing.
	FlushEvery int
	Store      RecordStore

	Objective types.Objective
	Logger    *logrus.Logger
}

// Runner executes task lists against an injected backtest function through
// a bounded worker pool. Workers push finished records into a channel
// consumed by a single collector goroutine that owns the record list and
// the flush path, so no ad hoc locking guards shared state.
type Runner struct {
	backtest types.BacktestFunc
	opts     Options
	log      *logrus.Entry
}

// New creates a batch runner around the injected backtest function.
func New(backtest types.BacktestFunc, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Store == nil {
		opts.Store = NopStore{}
	}
	if opts.Objective.Metric == "" {
		opts.Objective = types.DefaultObjective()
	}
	return &Runner{
		backtest: backtest,
		opts:     opts,
		log:      logger.Component(opts.Logger, "runner"),
	}
}

// Run executes the task list and returns the aggregated result. Task
// failures never abort the batch unless fail-fast is set; a failed batch
// still returns the partial result with failure counts. Results arrive in
// completion order.
func (r *Runner) Run(ctx context.Context, cfg *experiment.Config, tasks []experiment.Task) (*Result, error) {
	expID := cfg.ID()
	started := time.Now()

	result := &Result{
		Config:         cfg,
		ExperimentID:   expID,
		TotalRequested: len(tasks),
		Objective:      r.opts.Objective,
		StartedAt:      started,
	}
	if len(tasks) == 0 {
		return result, nil
	}

	r.log.WithFields(logrus.Fields{
		"experiment": expID,
		"tasks":      len(tasks),
		"workers":    r.opts.Workers,
		"fail_fast":  r.opts.FailFast,
	}).Info("starting batch")

	// submitCtx gates new submissions only; the backtest itself keeps the
	// caller's context, since a dispatched backtest has no safe mid-run
	// cancellation point.
	submitCtx, stopSubmitting := context.WithCancel(ctx)
	defer stopSubmitting()

	jobs := make(chan experiment.Task) // unbuffered: bounds dispatch to workers+1
	records := make(chan *RunRecord)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-submitCtx.Done():
					return
				case task, ok := <-jobs:
					if !ok {
						return
					}
					records <- r.execute(ctx, expID, cfg, task)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case jobs <- task:
			case <-submitCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(records)
	}()

	// Single-owner collection: counts, flushing and best-tracking all
	// happen here.
	tracker := NewProgressTracker(len(tasks))
	var (
		kept       []*RunRecord
		pending    []*RunRecord
		flushedIDs []string
		bestScore  float64
		aborted    bool
		storeErr   error
	)

	flush := func(force bool) {
		if r.opts.FlushEvery <= 0 {
			return
		}
		if !force && len(pending) < r.opts.FlushEvery {
			return
		}
		if len(pending) == 0 {
			return
		}
		if err := r.opts.Store.Append(pending); err != nil {
			// Keep unflushed records in memory rather than lose them.
			storeErr = errors.NewStorageError("runner", "flush", err)
			kept = append(kept, pending...)
		} else {
			monitoring.RecordFlush(expID, len(pending))
			for _, rec := range pending {
				flushedIDs = append(flushedIDs, rec.ID)
			}
		}
		pending = pending[:0]
	}

	for rec := range records {
		failed := rec.Status == StatusFailed
		tracker.Increment(failed)
		if failed {
			result.Failed++
		} else {
			result.Completed++
			if score, ok := r.opts.Objective.Score(rec.Metrics); ok {
				if result.Best == nil || r.opts.Objective.Better(score, bestScore) {
					result.Best = rec
					bestScore = score
				}
			}
		}

		if r.opts.FlushEvery > 0 {
			pending = append(pending, rec)
			flush(false)
		} else {
			kept = append(kept, rec)
		}

		if failed && r.opts.FailFast && !aborted {
			aborted = true
			stopSubmitting()
			r.log.WithFields(logrus.Fields{
				"experiment": expID,
				"run_id":     rec.ID,
				"error":      rec.Error,
			}).Warn("fail-fast triggered, cancelling pending submissions")
		}

		if done, failedCount, total, pct, elapsed := tracker.Snapshot(); done%50 == 0 && done > 0 {
			r.log.WithFields(logrus.Fields{
				"experiment": expID,
				"done":       done,
				"failed":     failedCount,
				"total":      total,
				"elapsed":    elapsed.Round(time.Second),
				"eta":        tracker.EstimateTimeRemaining().Round(time.Second),
			}).Infof("batch progress %.1f%%", pct)
		}
	}

	flush(true)
	if err := r.opts.Store.Flush(); err != nil && storeErr == nil {
		storeErr = errors.NewStorageError("runner", "flush", err)
	}

	result.Records = r.assembleRecords(expID, kept, flushedIDs)
	result.Duration = time.Since(started)

	r.log.WithFields(logrus.Fields{
		"experiment": expID,
		"completed":  result.Completed,
		"failed":     result.Failed,
		"duration":   result.Duration.Round(time.Millisecond),
	}).Info("batch finished")

	switch {
	case storeErr != nil:
		return result, storeErr
	case aborted:
		return result, ErrAborted
	case ctx.Err() != nil:
		return result, ctx.Err()
	default:
		return result, nil
	}
}

// execute runs one task with the configured retry policy. Collaborator
// errors are captured as data on the record and never escape.
func (r *Runner) execute(ctx context.Context, expID string, cfg *experiment.Config, task experiment.Task) *RunRecord {
	rec := NewRunRecord(expID, task)
	rec.MarkRunning()
	monitoring.TaskStarted()
	defer monitoring.TaskFinished()

	req := types.Request{
		Symbol:     task.Symbol,
		Timeframe:  cfg.Timeframe,
		Parameters: task.Params,
		Start:      task.Start,
		End:        task.End,
		Config:     cfg.Execution,
	}

	var lastErr error
	for attempt := 0; attempt <= r.opts.Retries; attempt++ {
		if attempt > 0 {
			monitoring.RecordRetry(expID)
			// Linearly increasing backoff.
			select {
			case <-time.After(time.Duration(attempt) * r.opts.RetryDelay):
			case <-ctx.Done():
				rec.MarkFailed(errors.NewTaskError("runner", "execute", ctx.Err()))
				monitoring.RecordRun(expID, string(rec.Status), rec.Duration().Seconds())
				return rec
			}
		}

		rec.Attempts = attempt + 1
		metrics, err := r.backtest(ctx, req)
		if err == nil {
			rec.MarkCompleted(metrics)
			monitoring.RecordRun(expID, string(rec.Status), rec.Duration().Seconds())
			return rec
		}
		lastErr = err
	}

	rec.MarkFailed(errors.NewTaskError("runner", "execute", lastErr))
	monitoring.RecordRun(expID, string(rec.Status), rec.Duration().Seconds())
	return rec
}

// assembleRecords rebuilds the full record list for the result. Flushed
// records are read back from the store so the working set stayed small
// while the summary remains complete.
func (r *Runner) assembleRecords(expID string, kept []*RunRecord, flushedIDs []string) []*RunRecord {
	if len(flushedIDs) == 0 {
		return kept
	}

	logged, err := r.opts.Store.ReadAll(expID)
	if err != nil {
		r.log.WithError(err).Warn("run log read-back failed; result holds unflushed records only")
		return kept
	}

	wanted := make(map[string]struct{}, len(flushedIDs))
	for _, id := range flushedIDs {
		wanted[id] = struct{}{}
	}

	out := make([]*RunRecord, 0, len(flushedIDs)+len(kept))
	for _, rec := range logged {
		if _, ok := wanted[rec.ID]; ok {
			out = append(out, rec)
		}
	}
	return append(out, kept...)
}
