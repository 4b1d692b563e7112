package search

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantlab/strategy-search/internal/logger"
	"github.com/quantlab/strategy-search/pkg/experiment"
)

// Grid evaluates every retained assignment in one batch. Exhaustive and
// deterministic; the expander's down-sampling cap still applies.
type Grid struct {
	eval Evaluator
	log  *logrus.Entry
}

// NewGrid builds the exhaustive grid strategy.
func NewGrid(eval Evaluator) *Grid {
	return &Grid{eval: eval, log: logger.Component(nil, "search.grid")}
}

func (g *Grid) Name() string { return string(KindGrid) }

// Optimize runs the whole grid through the evaluator and picks the best
// completed record under the objective.
func (g *Grid) Optimize(ctx context.Context, req Request) (*Outcome, error) {
	started := time.Now()
	out := &Outcome{Strategy: g.Name()}

	assignments, err := experiment.Expand(req.Config)
	if err != nil {
		return nil, err
	}

	g.log.WithFields(logrus.Fields{
		"experiment":  req.Config.ID(),
		"assignments": len(assignments),
		"grid_size":   experiment.GridSize(req.Config),
	}).Info("starting grid search")

	res, err := g.eval.Run(ctx, req.Config, intervalTasks(req, assignments))
	if res != nil {
		mergeResult(out, req, res)
	}
	finishOutcome(out, req, started)
	if err != nil {
		return out, err
	}
	return out, nil
}
