package validation

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/strategy-search/pkg/search"
	"github.com/quantlab/strategy-search/pkg/types"
)

// Component caps. The three components are independently capped and
// summed, so the total is always within [0, 100].
const (
	consistencyCap = 40.0
	decayCap       = 30.0
	stabilityCap   = 30.0

	// A mean coefficient of variation at or beyond this counts as fully
	// unstable parameters.
	fullyUnstableCV = 0.5
)

// Robustness is the composite overfitting-detection score. A nil component
// pointer means it lacked sufficient data and was omitted from the sum,
// never defaulted to zero or full credit.
type Robustness struct {
	Score  float64       `json:"score"`
	Status search.Status `json:"status"`

	Consistency *float64 `json:"consistency,omitempty"`
	Decay       *float64 `json:"decay,omitempty"`
	Stability   *float64 `json:"stability,omitempty"`
}

// ComputeRobustness scores a window set:
//   - consistency: the fraction of validated windows whose OOS metric has
//     the sign the objective direction wants, scaled to 40;
//   - decay: the relative drop from the IS score mean to the OOS score
//     mean, inverted and scaled to 30, zero once the drop exceeds 100%;
//   - stability: the mean coefficient of variation of each numeric
//     parameter's winning value across windows, inverted and scaled to 30.
func ComputeRobustness(windows []*Window, obj types.Objective) *Robustness {
	r := &Robustness{Status: search.StatusInsufficientData}

	if c, ok := consistency(windows, obj); ok {
		r.Consistency = &c
		r.Score += c
	}
	if d, ok := decay(windows, obj); ok {
		r.Decay = &d
		r.Score += d
	}
	if s, ok := stability(windows); ok {
		r.Stability = &s
		r.Score += s
	}

	if r.Consistency != nil || r.Decay != nil || r.Stability != nil {
		r.Status = search.StatusOK
	}
	return r
}

// consistency wants the raw metric value, not the normalized score: the
// question is whether each OOS result lands on the profitable side of
// zero, where "profitable side" flips for minimized metrics.
func consistency(windows []*Window, obj types.Objective) (float64, bool) {
	var total, good int
	for _, w := range windows {
		if !w.Validated || w.TestMetrics == nil {
			continue
		}
		v, ok := w.TestMetrics.Value(obj.Metric)
		if !ok {
			continue
		}
		total++
		if (obj.Maximize && v > 0) || (!obj.Maximize && v < 0) {
			good++
		}
	}
	if total == 0 {
		return 0, false
	}
	return consistencyCap * float64(good) / float64(total), true
}

func decay(windows []*Window, obj types.Objective) (float64, bool) {
	var is, oos []float64
	for _, w := range windows {
		if !w.Validated || w.TrainMetrics == nil || w.TestMetrics == nil {
			continue
		}
		isScore, ok1 := obj.Score(w.TrainMetrics)
		oosScore, ok2 := obj.Score(w.TestMetrics)
		if !ok1 || !ok2 {
			continue
		}
		is = append(is, isScore)
		oos = append(oos, oosScore)
	}
	if len(is) == 0 {
		return 0, false
	}

	isMean := stat.Mean(is, nil)
	oosMean := stat.Mean(oos, nil)
	if isMean == 0 {
		return 0, false
	}

	drop := (isMean - oosMean) / math.Abs(isMean)
	switch {
	case drop >= 1: // OOS gave back everything IS promised
		return 0, true
	case drop <= 0: // OOS at least as good as IS
		return decayCap, true
	default:
		return decayCap * (1 - drop), true
	}
}

// stability needs at least two optimized windows: a coefficient of
// variation over one sample is not a statistic.
func stability(windows []*Window) (float64, bool) {
	values := make(map[string][]float64)
	optimized := 0
	for _, w := range windows {
		if !w.Optimized || w.BestParams == nil {
			continue
		}
		optimized++
		for name := range w.BestParams {
			if v, ok := w.BestParams.Float(name); ok {
				values[name] = append(values[name], v)
			}
		}
	}
	if optimized < 2 {
		return 0, false
	}

	var cvs []float64
	for _, vs := range values {
		if len(vs) < 2 {
			continue
		}
		mean := stat.Mean(vs, nil)
		sd := stat.StdDev(vs, nil)
		switch {
		case sd == 0:
			cvs = append(cvs, 0)
		case mean == 0:
			cvs = append(cvs, fullyUnstableCV)
		default:
			cvs = append(cvs, sd/math.Abs(mean))
		}
	}
	if len(cvs) == 0 {
		return 0, false
	}

	meanCV := stat.Mean(cvs, nil)
	if meanCV >= fullyUnstableCV {
		return 0, true
	}
	return stabilityCap * (1 - meanCV/fullyUnstableCV), true
}
