package validation

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/types"
)

// Report is the walk-forward result: the ordered window list plus the
// derived aggregates. Owned by the producing invocation; read-only after.
type Report struct {
	ExperimentID string          `json:"experiment_id"`
	Objective    types.Objective `json:"objective"`
	Plan         WindowPlan      `json:"plan"`
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`

	Windows    []*Window   `json:"windows"`
	Robustness *Robustness `json:"robustness,omitempty"`

	// RecommendedParams is the parameter set of the single window with the
	// best OOS score, never a blend across windows: a blended set matches
	// no window's actually tested behavior.
	RecommendedParams experiment.Params `json:"recommended_params,omitempty"`
	RecommendedWindow int               `json:"recommended_window"`

	Threshold   float64 `json:"threshold"`
	Recommended bool    `json:"recommended"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Recommend settles the recommended parameters and the binary verdict from
// the current window states.
func (r *Report) Recommend() {
	r.RecommendedWindow = -1
	var bestScore float64
	for _, w := range r.Windows {
		if !w.Validated || w.TestMetrics == nil {
			continue
		}
		score, ok := r.Objective.Score(w.TestMetrics)
		if !ok {
			continue
		}
		if r.RecommendedWindow < 0 || r.Objective.Better(score, bestScore) {
			r.RecommendedWindow = w.Index
			r.RecommendedParams = w.BestParams.Clone()
			bestScore = score
		}
	}

	r.Recommended = r.Robustness != nil && r.Robustness.Score >= r.Threshold
}

// MetricRow is one window's value in a metric table.
type MetricRow struct {
	Window int       `json:"window"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Value  float64   `json:"value"`
}

// InSampleTable returns the training-period values of a metric for every
// optimized window.
func (r *Report) InSampleTable(metric string) []MetricRow {
	var rows []MetricRow
	for _, w := range r.Windows {
		if !w.Optimized || w.TrainMetrics == nil {
			continue
		}
		if v, ok := w.TrainMetrics.Value(metric); ok {
			rows = append(rows, MetricRow{Window: w.Index, Start: w.TrainStart, End: w.TrainEnd, Value: v})
		}
	}
	return rows
}

// OutOfSampleTable returns the test-period values of a metric for every
// validated window.
func (r *Report) OutOfSampleTable(metric string) []MetricRow {
	var rows []MetricRow
	for _, w := range r.Windows {
		if !w.Validated || w.TestMetrics == nil {
			continue
		}
		if v, ok := w.TestMetrics.Value(metric); ok {
			rows = append(rows, MetricRow{Window: w.Index, Start: w.TestStart, End: w.TestEnd, Value: v})
		}
	}
	return rows
}

// ParamStability summarizes one numeric parameter's winning values across
// windows.
type ParamStability struct {
	Values []float64 `json:"values"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"std_dev"`
	CV     float64   `json:"cv"`
}

// StabilityTable returns per-parameter dispersion of the winning values
// across optimized windows. Non-numeric parameters are skipped; parameters
// seen in fewer than two windows carry no CV worth reading.
func (r *Report) StabilityTable() map[string]ParamStability {
	values := make(map[string][]float64)
	for _, w := range r.Windows {
		if !w.Optimized || w.BestParams == nil {
			continue
		}
		for name := range w.BestParams {
			if v, ok := w.BestParams.Float(name); ok {
				values[name] = append(values[name], v)
			}
		}
	}

	out := make(map[string]ParamStability, len(values))
	for name, vs := range values {
		if len(vs) < 2 {
			continue
		}
		mean := stat.Mean(vs, nil)
		sd := stat.StdDev(vs, nil)
		cv := 0.0
		if mean != 0 {
			cv = sd / math.Abs(mean)
		} else if sd > 0 {
			cv = fullyUnstableCV
		}
		out[name] = ParamStability{Values: vs, Mean: mean, StdDev: sd, CV: cv}
	}
	return out
}
