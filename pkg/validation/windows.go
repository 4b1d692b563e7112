package validation

import (
	"time"

	"github.com/quantlab/strategy-search/internal/errors"
	"github.com/quantlab/strategy-search/pkg/experiment"
	"github.com/quantlab/strategy-search/pkg/types"
)

// WindowState is the walk-forward lifecycle of one window.
type WindowState string

const (
	WindowPending   WindowState = "pending"
	WindowOptimized WindowState = "optimized"
	WindowValidated WindowState = "validated"
)

// Window is one (train, test) pair. Created in ordinal order and mutated
// strictly sequentially: optimize fills the training side, validate fills
// the test side. Validated is unreachable before Optimized.
type Window struct {
	Index int `json:"index"`

	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`

	BestParams   experiment.Params `json:"best_params,omitempty"`
	Symbol       string            `json:"symbol,omitempty"`
	TrainMetrics *types.Metrics    `json:"train_metrics,omitempty"`
	TestMetrics  *types.Metrics    `json:"test_metrics,omitempty"`

	Optimized bool `json:"optimized"`
	Validated bool `json:"validated"`
}

// State derives the lifecycle phase from the completion flags.
func (w *Window) State() WindowState {
	switch {
	case w.Validated:
		return WindowValidated
	case w.Optimized:
		return WindowOptimized
	default:
		return WindowPending
	}
}

// WindowPlan sizes the walk-forward windows in calendar months.
type WindowPlan struct {
	TrainMonths int `json:"train_months" yaml:"train_months"`
	TestMonths  int `json:"test_months" yaml:"test_months"`
	StepMonths  int `json:"step_months" yaml:"step_months"`
}

// Validate checks the plan invariants.
func (p WindowPlan) Validate() error {
	if p.TrainMonths <= 0 {
		return errors.NewConfigurationError("validation", "plan", "train_months must be positive")
	}
	if p.TestMonths <= 0 {
		return errors.NewConfigurationError("validation", "plan", "test_months must be positive")
	}
	if p.StepMonths <= 0 {
		return errors.NewConfigurationError("validation", "plan", "step_months must be positive")
	}
	return nil
}

// GenerateWindows slices [start, end] into forward-advancing (train, test)
// pairs. Each window's test period starts exactly where its train period
// ends; consecutive windows advance by the step and their train periods may
// overlap when the step is shorter than the train length. Generation stops
// at the first window whose test end would pass the global end, so every
// emitted window fits fully inside the range.
func GenerateWindows(start, end time.Time, plan WindowPlan) ([]*Window, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, errors.NewConfigurationError("validation", "windows", "end must be after start")
	}

	var windows []*Window
	for cursor := start; ; cursor = cursor.AddDate(0, plan.StepMonths, 0) {
		trainEnd := cursor.AddDate(0, plan.TrainMonths, 0)
		testEnd := trainEnd.AddDate(0, plan.TestMonths, 0)
		if testEnd.After(end) {
			break
		}
		windows = append(windows, &Window{
			Index:      len(windows),
			TrainStart: cursor,
			TrainEnd:   trainEnd,
			TestStart:  trainEnd,
			TestEnd:    testEnd,
		})
	}
	return windows, nil
}
