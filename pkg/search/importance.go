package search

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/quantlab/strategy-search/pkg/runner"
	"github.com/quantlab/strategy-search/pkg/types"
)

// ImportanceReport ranks parameters by how much of the objective-score
// variance their values explain across a set of completed runs.
type ImportanceReport struct {
	Status  Status             `json:"status"`
	Scores  map[string]float64 `json:"scores,omitempty"`
	Samples int                `json:"samples"`
}

// Importance computes per-parameter variance decomposition: for each
// parameter, scores are grouped by parameter value and the explained
// fraction is one minus the pooled within-group variance over the total
// variance. Scores are normalized to sum to one. Fewer than two usable
// runs, or runs whose scores do not vary, yield an insufficient-data
// report instead of a misleading ranking.
func Importance(records []*runner.RunRecord, obj types.Objective) *ImportanceReport {
	type sample struct {
		params map[string]any
		score  float64
	}

	var samples []sample
	for _, rec := range records {
		if rec.Status != runner.StatusCompleted {
			continue
		}
		score, ok := obj.Score(rec.Metrics)
		if !ok {
			continue
		}
		samples = append(samples, sample{params: rec.Params, score: score})
	}

	report := &ImportanceReport{Samples: len(samples)}
	if len(samples) < 2 {
		report.Status = StatusInsufficientData
		return report
	}

	scores := make([]float64, len(samples))
	for i, s := range samples {
		scores[i] = s.score
	}
	total := popVariance(scores)
	if total <= 0 {
		report.Status = StatusInsufficientData
		return report
	}

	// Only parameters present on every run participate; a mixed record set
	// would bias the grouping.
	names := make(map[string]int)
	for _, s := range samples {
		for name := range s.params {
			names[name]++
		}
	}

	raw := make(map[string]float64)
	for name, count := range names {
		if count != len(samples) {
			continue
		}
		groups := make(map[string][]float64)
		for _, s := range samples {
			key := fmt.Sprint(s.params[name])
			groups[key] = append(groups[key], s.score)
		}
		if len(groups) < 2 {
			raw[name] = 0
			continue
		}

		var within float64
		for _, g := range groups {
			within += float64(len(g)) * popVariance(g)
		}
		within /= float64(len(samples))

		explained := 1 - within/total
		if explained < 0 {
			explained = 0
		}
		raw[name] = explained
	}

	var sum float64
	for _, v := range raw {
		sum += v
	}
	if sum > 0 {
		for name := range raw {
			raw[name] /= sum
		}
	}

	report.Status = StatusOK
	report.Scores = raw
	return report
}

// popVariance is the population variance; group sizes here are tiny and a
// bias-corrected estimate would explode for singleton groups.
func popVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := stat.Mean(xs, nil)
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}
