package runner

import (
	"time"

	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/types"
)

// Result aggregates one batch invocation. Records is keyed by run ID and
// ordered by completion, not submission; Best is a cached view over
// Records and can always be recomputed with BestUnder.
type Result struct {
	Config       *experiment.Config `json:"config"`
	ExperimentID string             `json:"experiment_id"`
	Records      []*RunRecord       `json:"records"`

	TotalRequested int `json:"total_requested"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"`

	Objective types.Objective `json:"objective"`
	Best      *RunRecord      `json:"best,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// BestUnder recomputes the best completed record under an objective.
// Returns nil when no completed record exposes the metric.
func (res *Result) BestUnder(obj types.Objective) *RunRecord {
	var (
		best      *RunRecord
		bestScore float64
	)
	for _, rec := range res.Records {
		if rec.Status != StatusCompleted {
			continue
		}
		score, ok := obj.Score(rec.Metrics)
		if !ok {
			continue
		}
		if best == nil || obj.Better(score, bestScore) {
			best = rec
			bestScore = score
		}
	}
	return best
}

// CompletedRecords returns the completed subset in completion order.
func (res *Result) CompletedRecords() []*RunRecord {
	out := make([]*RunRecord, 0, res.Completed)
	for _, rec := range res.Records {
		if rec.Status == StatusCompleted {
			out = append(out, rec)
		}
	}
	return out
}
