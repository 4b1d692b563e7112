package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quantlab/strategy-search/internal/errors"
	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/runner"
	"github.com/quantlab/strategy-search/pkg/types"
)

// Status reports how an operation concluded without overloading errors for
// ordinary control flow.
type Status string

const (
	StatusOK               Status = "ok"
	StatusInsufficientData Status = "insufficient-data"
	StatusFailed           Status = "failed"
)

// Evaluator executes task batches against the backtest collaborator. The
// batch runner is the production implementation.
type Evaluator interface {
	Run(ctx context.Context, cfg *experiment.Config, tasks []experiment.Task) (*runner.Result, error)
}

// Request scopes one optimize call: the experiment, the objective, and an
// optional history interval restriction (used by walk-forward training).
type Request struct {
	Config    *experiment.Config
	Objective types.Objective
	Start     time.Time
	End       time.Time
}

// Outcome is the result of one optimize call.
type Outcome struct {
	Strategy    string              `json:"strategy"`
	Status      Status              `json:"status"`
	BestParams  experiment.Params   `json:"best_params,omitempty"`
	BestRecord  *runner.RunRecord   `json:"best_record,omitempty"`
	BestScore   float64             `json:"best_score"`
	TopRecords  []*runner.RunRecord `json:"top_records,omitempty"`
	Evaluations int                 `json:"evaluations"`
	Failed      int                 `json:"failed"`

	// Degraded is set when an optional backend was unavailable and the
	// strategy fell back to a simpler proposal scheme.
	Degraded bool          `json:"degraded,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Strategy chooses which parameter combinations to try.
type Strategy interface {
	Name() string
	Optimize(ctx context.Context, req Request) (*Outcome, error)
}

// Kind identifies a search strategy implementation.
type Kind string

const (
	KindGrid      Kind = "grid"
	KindRandom    Kind = "random"
	KindSurrogate Kind = "surrogate"
)

// New builds a strategy by kind with default options.
func New(kind Kind, eval Evaluator) (Strategy, error) {
	switch kind {
	case KindGrid:
		return NewGrid(eval), nil
	case KindRandom:
		return NewRandom(eval, RandomOptions{}), nil
	case KindSurrogate:
		return NewSurrogate(eval, SurrogateOptions{}), nil
	default:
		return nil, errors.NewConfigurationError("search", "new",
			fmt.Sprintf("unknown search strategy %q", kind))
	}
}

// intervalTasks crosses assignments with the configured symbols and
// restricts every task to the request interval.
func intervalTasks(req Request, assignments []experiment.Params) []experiment.Task {
	tasks := experiment.CrossSymbols(req.Config.Symbols, assignments)
	if req.Start.IsZero() && req.End.IsZero() {
		return tasks
	}
	for i := range tasks {
		tasks[i] = tasks[i].WithInterval(req.Start, req.End)
	}
	return tasks
}

// mergeResult folds one runner batch into the outcome.
func mergeResult(out *Outcome, req Request, res *runner.Result) {
	out.Evaluations += res.Completed + res.Failed
	out.Failed += res.Failed

	for _, rec := range res.Records {
		if rec.Status != runner.StatusCompleted {
			continue
		}
		score, ok := req.Objective.Score(rec.Metrics)
		if !ok {
			continue
		}
		out.TopRecords = append(out.TopRecords, rec)
		if out.BestRecord == nil || req.Objective.Better(score, out.BestScore) {
			out.BestRecord = rec
			out.BestParams = rec.Params
			out.BestScore = score
		}
	}
}

// finishOutcome ranks the retained records and settles the status.
func finishOutcome(out *Outcome, req Request, started time.Time) {
	sort.SliceStable(out.TopRecords, func(i, j int) bool {
		si, _ := req.Objective.Score(out.TopRecords[i].Metrics)
		sj, _ := req.Objective.Score(out.TopRecords[j].Metrics)
		return req.Objective.Better(si, sj)
	})
	const topN = 10
	if len(out.TopRecords) > topN {
		out.TopRecords = out.TopRecords[:topN]
	}

	if out.BestRecord == nil {
		if out.Evaluations == 0 {
			out.Status = StatusInsufficientData
		} else {
			out.Status = StatusFailed
		}
	} else {
		out.Status = StatusOK
	}
	out.Duration = time.Since(started)
}
