package validation

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantlab/strategy-search/internal/logger"
	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/search"
	"github.com/quantlab/strategy-search/pkg/types"
)

// DefaultVerdictThreshold is the robustness score at or above which a
// strategy is recommended.
const DefaultVerdictThreshold = 60.0

// Options configures a walk-forward run.
type Options struct {
	Plan      WindowPlan
	Objective types.Objective

	// Threshold is the robustness score needed for a recommended verdict;
	// defaults to DefaultVerdictThreshold.
	Threshold float64

	Logger *logrus.Logger
}

// Orchestrator drives the walk-forward state machine: per window it
// restricts the search strategy to the train slice, freezes the winner,
// re-runs the backtest once on the test slice, then aggregates the window
// results into the robustness verdict. Windows are processed strictly
// sequentially; later train ranges may overlap earlier test ranges, and
// interleaving them would make the in-sample/out-of-sample separation
// unprovable.
type Orchestrator struct {
	strategy search.Strategy
	eval     search.Evaluator
	opts     Options
	log      *logrus.Entry
}

// New builds a walk-forward orchestrator around a search strategy and the
// evaluator used for the frozen-parameter validation runs.
func New(strategy search.Strategy, eval search.Evaluator, opts Options) *Orchestrator {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultVerdictThreshold
	}
	if opts.Objective.Metric == "" {
		opts.Objective = types.DefaultObjective()
	}
	return &Orchestrator{
		strategy: strategy,
		eval:     eval,
		opts:     opts,
		log:      logger.Component(opts.Logger, "validation"),
	}
}

// Run walks every window over [start, end]. A window whose optimize or
// validate step fails is left in its last reached state and the walk
// continues; only context cancellation stops it early, returning the
// partial report alongside the context error.
func (o *Orchestrator) Run(ctx context.Context, cfg *experiment.Config, start, end time.Time) (*Report, error) {
	windows, err := GenerateWindows(start, end, o.opts.Plan)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ExperimentID: cfg.ID(),
		Objective:    o.opts.Objective,
		Plan:         o.opts.Plan,
		Start:        start,
		End:          end,
		Threshold:    o.opts.Threshold,
		Windows:      windows,
		StartedAt:    time.Now(),
	}

	o.log.WithFields(logrus.Fields{
		"experiment": report.ExperimentID,
		"windows":    len(windows),
		"strategy":   o.strategy.Name(),
	}).Info("starting walk-forward validation")

	for _, w := range windows {
		if ctx.Err() != nil {
			o.finish(report)
			return report, ctx.Err()
		}
		if err := o.optimize(ctx, cfg, w); err != nil {
			if ctx.Err() != nil {
				o.finish(report)
				return report, ctx.Err()
			}
			o.log.WithError(err).WithField("window", w.Index).Warn("window optimize failed, skipping")
			continue
		}
		if err := o.validate(ctx, cfg, w); err != nil {
			if ctx.Err() != nil {
				o.finish(report)
				return report, ctx.Err()
			}
			o.log.WithError(err).WithField("window", w.Index).Warn("window validate failed")
		}
	}

	o.finish(report)
	return report, nil
}

// optimize runs the search strategy restricted to the train interval and
// freezes the winning assignment on the window.
func (o *Orchestrator) optimize(ctx context.Context, cfg *experiment.Config, w *Window) error {
	out, err := o.strategy.Optimize(ctx, search.Request{
		Config:    cfg,
		Objective: o.opts.Objective,
		Start:     w.TrainStart,
		End:       w.TrainEnd,
	})
	if err != nil {
		return err
	}
	if out.Status != search.StatusOK || out.BestRecord == nil {
		o.log.WithFields(logrus.Fields{
			"window": w.Index,
			"status": out.Status,
		}).Warn("train search produced no usable winner")
		return nil
	}

	w.BestParams = out.BestParams.Clone()
	w.Symbol = out.BestRecord.Symbol
	w.TrainMetrics = out.BestRecord.Metrics
	w.Optimized = true

	o.log.WithFields(logrus.Fields{
		"window": w.Index,
		"symbol": w.Symbol,
		"score":  out.BestScore,
	}).Info("window optimized")
	return nil
}

// validate re-runs the backtest once on the test interval with the frozen
// winning parameters. No further search happens here; the single run is
// the out-of-sample measurement. Unreachable before optimize.
func (o *Orchestrator) validate(ctx context.Context, cfg *experiment.Config, w *Window) error {
	if !w.Optimized {
		return nil
	}

	task := experiment.Task{
		Symbol: w.Symbol,
		Params: w.BestParams.Clone(),
		Start:  w.TestStart,
		End:    w.TestEnd,
	}
	res, err := o.eval.Run(ctx, cfg, []experiment.Task{task})
	if err != nil {
		return err
	}
	best := res.BestUnder(o.opts.Objective)
	if best == nil {
		o.log.WithField("window", w.Index).Warn("validation backtest produced no completed run")
		return nil
	}

	w.TestMetrics = best.Metrics
	w.Validated = true

	if score, ok := o.opts.Objective.Score(best.Metrics); ok {
		o.log.WithFields(logrus.Fields{
			"window": w.Index,
			"score":  score,
		}).Info("window validated")
	}
	return nil
}

func (o *Orchestrator) finish(report *Report) {
	report.Robustness = ComputeRobustness(report.Windows, report.Objective)
	report.Recommend()
	report.Duration = time.Since(report.StartedAt)

	o.log.WithFields(logrus.Fields{
		"experiment":  report.ExperimentID,
		"score":       report.Robustness.Score,
		"recommended": report.Recommended,
		"duration":    report.Duration.Round(time.Millisecond),
	}).Info("walk-forward validation finished")
}
