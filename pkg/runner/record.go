package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/types"
)

// Status is the lifecycle state of a single run. Transitions are monotonic:
// pending -> running -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusRunning:   1,
	StatusCompleted: 2,
	StatusFailed:    2,
}

// RunRecord is the persistent record of one backtest invocation. Records
// are identified by ID, never by position: the runner reports completion
// order, not submission order.
type RunRecord struct {
	ID           string            `json:"id"`
	ExperimentID string            `json:"experiment_id"`
	Symbol       string            `json:"symbol"`
	Params       experiment.Params `json:"params"`
	Status       Status            `json:"status"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
	FinishedAt   time.Time         `json:"finished_at,omitempty"`
	Attempts     int               `json:"attempts"`
	Metrics      *types.Metrics    `json:"metrics,omitempty"`

	// Error is non-empty exactly when Status is failed.
	Error string `json:"error,omitempty"`
}

// NewRunRecord creates a pending record for a task.
func NewRunRecord(experimentID string, task experiment.Task) *RunRecord {
	return &RunRecord{
		ID:           uuid.NewString(),
		ExperimentID: experimentID,
		Symbol:       task.Symbol,
		Params:       task.Params.Clone(),
		Status:       StatusPending,
	}
}

// MarkRunning transitions the record to running. Backwards transitions are
// ignored so the status stays monotonic.
func (r *RunRecord) MarkRunning() {
	if statusRank[r.Status] >= statusRank[StatusRunning] {
		return
	}
	r.Status = StatusRunning
	r.StartedAt = time.Now()
}

// MarkCompleted transitions the record to completed with its metrics.
func (r *RunRecord) MarkCompleted(m *types.Metrics) {
	if r.Status.Terminal() {
		return
	}
	r.Status = StatusCompleted
	r.Metrics = m
	r.Error = ""
	r.FinishedAt = time.Now()
}

// MarkFailed transitions the record to failed with the captured error.
func (r *RunRecord) MarkFailed(err error) {
	if r.Status.Terminal() {
		return
	}
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	} else {
		r.Error = "unknown failure"
	}
	r.FinishedAt = time.Now()
}

// Duration returns the wall time of the run, zero until terminal.
func (r *RunRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
