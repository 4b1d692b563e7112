package search

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantlab/strategy-search/internal/logger"
	"github.com/quantlab/strategy-search/pkg/experiment"
)

// RandomOptions tunes the early-stopping random search.
type RandomOptions struct {
	// BatchSize is the number of assignments evaluated per round.
	BatchSize int

	// Budget caps total assignments; falls back to the experiment's
	// sample_size, then max_combinations, then DefaultRandomBudget.
	Budget int

	// MinImprovement is the smallest best-score gain that counts as
	// progress. Patience is how many consecutive stale batches are
	// tolerated before stopping.
	MinImprovement float64
	Patience       int

	Logger *logrus.Logger
}

const (
	DefaultRandomBatchSize = 10
	DefaultRandomBudget    = 100
	DefaultRandomPatience  = 2
)

// Random draws seeded assignments without replacement and evaluates them in
// fixed-size batches, stopping early once improvement stalls.
type Random struct {
	eval Evaluator
	opts RandomOptions
	log  *logrus.Entry
}

// NewRandom builds the early-stopping random strategy.
func NewRandom(eval Evaluator, opts RandomOptions) *Random {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRandomBatchSize
	}
	if opts.Patience <= 0 {
		opts.Patience = DefaultRandomPatience
	}
	return &Random{
		eval: eval,
		opts: opts,
		log:  logger.Component(opts.Logger, "search.random"),
	}
}

func (r *Random) Name() string { return string(KindRandom) }

// Optimize evaluates batches of random assignments until the budget is
// spent or Patience consecutive batches fail to improve the best score by
// more than MinImprovement.
func (r *Random) Optimize(ctx context.Context, req Request) (*Outcome, error) {
	started := time.Now()
	out := &Outcome{Strategy: r.Name()}

	assignments, err := r.sample(req.Config)
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"experiment": req.Config.ID(),
		"budget":     len(assignments),
		"batch_size": r.opts.BatchSize,
	}).Info("starting random search")

	stale := 0
	for len(assignments) > 0 {
		if ctx.Err() != nil {
			finishOutcome(out, req, started)
			return out, ctx.Err()
		}

		n := r.opts.BatchSize
		if n > len(assignments) {
			n = len(assignments)
		}
		batch := assignments[:n]
		assignments = assignments[n:]

		prevBest := out.BestScore
		hadBest := out.BestRecord != nil

		res, err := r.eval.Run(ctx, req.Config, intervalTasks(req, batch))
		if res != nil {
			mergeResult(out, req, res)
		}
		if err != nil {
			finishOutcome(out, req, started)
			return out, err
		}

		// Scores are orientation-normalized by Objective.Score, so a gain
		// is always an increase regardless of maximize/minimize.
		improved := out.BestRecord != nil &&
			(!hadBest || out.BestScore > prevBest+r.opts.MinImprovement)
		if improved {
			stale = 0
		} else {
			stale++
			if stale > r.opts.Patience {
				r.log.WithFields(logrus.Fields{
					"experiment":    req.Config.ID(),
					"evaluations":   out.Evaluations,
					"stale_batches": stale,
				}).Info("random search stopped early, improvement stalled")
				break
			}
		}
	}

	finishOutcome(out, req, started)
	return out, nil
}

// sample draws the seeded candidate list without replacement. The
// experiment's own mode is irrelevant here: this strategy always samples
// randomly, reusing the mixed-radix expander so huge products stay cheap.
func (r *Random) sample(cfg *experiment.Config) ([]experiment.Params, error) {
	budget := r.opts.Budget
	if budget <= 0 {
		budget = cfg.SampleSize
	}
	if budget <= 0 {
		budget = cfg.MaxCombinations
	}
	if budget <= 0 {
		budget = DefaultRandomBudget
	}

	sampled := *cfg
	sampled.Mode = experiment.ModeRandom
	sampled.SampleSize = budget
	return experiment.Expand(&sampled)
}
