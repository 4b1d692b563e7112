package search

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/quantlab/strategy-search/internal/errors"
	"github.com/quantlab/strategy-search/internal/logger"
	"github.com/quantlab/strategy-search/pkg/experiment"
)

// SurrogateModel maps encoded parameter vectors to predicted objective
// scores. Fit may fail on degenerate designs; the strategy degrades to
// random proposals when it does.
type SurrogateModel interface {
	Fit(x [][]float64, y []float64) error
	Predict(x []float64) float64
}

// SurrogateOptions tunes the model-guided search.
type SurrogateOptions struct {
	// Budget is the total number of assignments evaluated, warm-up
	// included.
	Budget int

	// WarmUp is how many random assignments seed the model before guided
	// proposals start.
	WarmUp int

	// CandidatePool is how many random unseen candidates each proposal
	// round scores with the model.
	CandidatePool int

	// Explore weights the novelty bonus added to the model prediction
	// when ranking candidates.
	Explore float64

	Seed   int64
	Model  SurrogateModel
	Logger *logrus.Logger
}

const (
	DefaultSurrogateBudget  = 30
	DefaultSurrogateWarmUp  = 8
	DefaultSurrogatePool    = 200
	DefaultSurrogateExplore = 0.1
	defaultRidgeRegularizer = 1e-3
)

// Surrogate fits a cheap regression model over evaluated assignments and
// proposes the next assignment by ranking a random candidate pool with the
// model plus an exploration bonus. Runs under a fixed evaluation budget.
type Surrogate struct {
	eval Evaluator
	opts SurrogateOptions
	log  *logrus.Entry
}

// NewSurrogate builds the model-guided strategy. A nil Model gets the
// built-in ridge regression.
func NewSurrogate(eval Evaluator, opts SurrogateOptions) *Surrogate {
	if opts.Budget <= 0 {
		opts.Budget = DefaultSurrogateBudget
	}
	if opts.WarmUp <= 0 {
		opts.WarmUp = DefaultSurrogateWarmUp
	}
	if opts.WarmUp > opts.Budget {
		opts.WarmUp = opts.Budget
	}
	if opts.CandidatePool <= 0 {
		opts.CandidatePool = DefaultSurrogatePool
	}
	if opts.Explore <= 0 {
		opts.Explore = DefaultSurrogateExplore
	}
	if opts.Model == nil {
		opts.Model = NewRidgeModel(defaultRidgeRegularizer)
	}
	return &Surrogate{
		eval: eval,
		opts: opts,
		log:  logger.Component(opts.Logger, "search.surrogate"),
	}
}

func (s *Surrogate) Name() string { return string(KindSurrogate) }

// paramSpace holds the discrete axes the model operates over.
type paramSpace struct {
	names []string
	axes  [][]any
	total int
}

func newParamSpace(cfg *experiment.Config) (*paramSpace, error) {
	names := cfg.ParameterNames()
	if len(names) == 0 {
		return nil, errors.NewConfigurationError("search", "surrogate",
			"surrogate search requires at least one parameter range")
	}
	space := &paramSpace{names: names, axes: make([][]any, len(names)), total: 1}
	for i, name := range names {
		space.axes[i] = cfg.Parameters[name].Expand()
		space.total *= len(space.axes[i])
	}
	return space, nil
}

// encode maps axis indices onto [0,1] per dimension so step sizes do not
// dominate the regression.
func (p *paramSpace) encode(indices []int) []float64 {
	x := make([]float64, len(indices))
	for i, idx := range indices {
		if n := len(p.axes[i]); n > 1 {
			x[i] = float64(idx) / float64(n-1)
		}
	}
	return x
}

func (p *paramSpace) assignment(indices []int) experiment.Params {
	out := make(experiment.Params, len(p.names))
	for i, idx := range indices {
		out[p.names[i]] = p.axes[i][idx]
	}
	return out
}

func (p *paramSpace) key(indices []int) string {
	return fmt.Sprint(indices)
}

func (p *paramSpace) randomIndices(rng *rand.Rand) []int {
	indices := make([]int, len(p.axes))
	for i, axis := range p.axes {
		indices[i] = rng.Intn(len(axis))
	}
	return indices
}

// Optimize spends the evaluation budget one assignment at a time after a
// random warm-up, letting the fitted model steer later proposals.
func (s *Surrogate) Optimize(ctx context.Context, req Request) (*Outcome, error) {
	started := time.Now()
	out := &Outcome{Strategy: s.Name()}

	space, err := newParamSpace(req.Config)
	if err != nil {
		return nil, err
	}

	budget := s.opts.Budget
	if budget > space.total {
		budget = space.total
	}

	s.log.WithFields(logrus.Fields{
		"experiment": req.Config.ID(),
		"budget":     budget,
		"warm_up":    s.opts.WarmUp,
		"grid_size":  space.total,
	}).Info("starting surrogate search")

	rng := rand.New(rand.NewSource(s.opts.Seed))
	seen := make(map[string]struct{}, budget)
	var (
		observedX [][]float64
		observedY []float64
		fitted    bool
		warned    bool
	)

	for round := 0; round < budget; round++ {
		if ctx.Err() != nil {
			finishOutcome(out, req, started)
			return out, ctx.Err()
		}

		var indices []int
		if round < s.opts.WarmUp || !fitted {
			indices = s.drawUnseen(rng, space, seen)
		} else {
			indices = s.propose(rng, space, seen, observedX)
		}
		if indices == nil {
			break // space exhausted
		}
		seen[space.key(indices)] = struct{}{}

		tasks := intervalTasks(req, []experiment.Params{space.assignment(indices)})
		res, err := s.eval.Run(ctx, req.Config, tasks)
		if res != nil {
			mergeResult(out, req, res)
		}
		if err != nil {
			finishOutcome(out, req, started)
			return out, err
		}

		if best := res.BestUnder(req.Objective); best != nil {
			if score, ok := req.Objective.Score(best.Metrics); ok {
				observedX = append(observedX, space.encode(indices))
				observedY = append(observedY, score)
			}
		}

		// Refit once enough observations accumulated; a singular design
		// simply postpones guided proposals.
		if len(observedY) >= len(space.names)+2 {
			if err := s.opts.Model.Fit(observedX, observedY); err != nil {
				fitted = false
				out.Degraded = true
				if !warned {
					warned = true
					s.log.WithError(err).Warn("surrogate fit failed, falling back to random proposals")
				}
			} else {
				fitted = true
			}
		}
	}

	finishOutcome(out, req, started)
	return out, nil
}

// drawUnseen picks a random assignment not yet evaluated. Gives up after a
// bounded number of collisions, which only happens near exhaustion.
func (s *Surrogate) drawUnseen(rng *rand.Rand, space *paramSpace, seen map[string]struct{}) []int {
	if len(seen) >= space.total {
		return nil
	}
	for tries := 0; tries < 50*space.total; tries++ {
		indices := space.randomIndices(rng)
		if _, dup := seen[space.key(indices)]; !dup {
			return indices
		}
	}
	return nil
}

// propose ranks a random unseen candidate pool by predicted score plus a
// novelty bonus and returns the winner.
func (s *Surrogate) propose(rng *rand.Rand, space *paramSpace, seen map[string]struct{}, observed [][]float64) []int {
	var (
		best      []int
		bestScore float64
	)
	for i := 0; i < s.opts.CandidatePool; i++ {
		indices := s.drawUnseen(rng, space, seen)
		if indices == nil {
			break
		}
		x := space.encode(indices)
		score := s.opts.Model.Predict(x) + s.opts.Explore*minDistance(x, observed)
		if best == nil || score > bestScore {
			best = indices
			bestScore = score
		}
	}
	return best
}

// minDistance returns the Euclidean distance from x to the nearest
// observed point.
func minDistance(x []float64, observed [][]float64) float64 {
	min := math.Inf(1)
	for _, o := range observed {
		var sum float64
		for i := range x {
			d := x[i] - o[i]
			sum += d * d
		}
		if d := math.Sqrt(sum); d < min {
			min = d
		}
	}
	if math.IsInf(min, 1) {
		return 0
	}
	return min
}

// RidgeModel is a linear least-squares model with L2 regularization,
// solved in closed form. Deliberately simple: with tens of observations a
// regularized linear fit is the strongest model worth the cost.
type RidgeModel struct {
	lambda  float64
	weights []float64
}

// NewRidgeModel creates a ridge regression with the given regularizer.
func NewRidgeModel(lambda float64) *RidgeModel {
	if lambda <= 0 {
		lambda = defaultRidgeRegularizer
	}
	return &RidgeModel{lambda: lambda}
}

// Fit solves (XᵀX + λI)w = Xᵀy with a bias column appended to X.
func (m *RidgeModel) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return errors.NewBackendError("search", "fit", "observation matrix and targets disagree")
	}
	d := len(x[0]) + 1

	flat := make([]float64, 0, n*d)
	for _, row := range x {
		flat = append(flat, row...)
		flat = append(flat, 1)
	}
	design := mat.NewDense(n, d, flat)
	target := mat.NewVecDense(n, append([]float64(nil), y...))

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for i := 0; i < d; i++ {
		gram.Set(i, i, gram.At(i, i)+m.lambda)
	}

	var moment mat.VecDense
	moment.MulVec(design.T(), target)

	var w mat.VecDense
	if err := w.SolveVec(&gram, &moment); err != nil {
		return errors.Wrap(err, errors.ErrorCategoryBackend, "search", "fit")
	}

	m.weights = make([]float64, d)
	for i := 0; i < d; i++ {
		m.weights[i] = w.AtVec(i)
	}
	return nil
}

// Predict evaluates the fitted linear model. Returns 0 before the first
// successful Fit.
func (m *RidgeModel) Predict(x []float64) float64 {
	if len(m.weights) == 0 {
		return 0
	}
	out := m.weights[len(m.weights)-1]
	for i, v := range x {
		if i < len(m.weights)-1 {
			out += m.weights[i] * v
		}
	}
	return out
}
