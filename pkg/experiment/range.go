package experiment

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/quantlab/strategy-search/internal/errors"
)

// ParameterRange describes the admissible values of a single parameter:
// either an explicit value list, or a numeric interval expanded with a step
// or a point count, linearly or log-spaced.
//
// In experiment documents a range is written either as a plain list
//
//	rsi_period: [10, 14, 20]
//
// or as an interval object
//
//	tp_percent: {start: 0.01, stop: 0.05, step: 0.01}
//	leverage:   {start: 1, stop: 100, count: 5, log: true}
type ParameterRange struct {
	Values []any    `json:"values,omitempty" yaml:"values,omitempty"`
	Start  *float64 `json:"start,omitempty" yaml:"start,omitempty"`
	Stop   *float64 `json:"stop,omitempty" yaml:"stop,omitempty"`
	Step   *float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Count  int      `json:"count,omitempty" yaml:"count,omitempty"`
	Log    bool     `json:"log,omitempty" yaml:"log,omitempty"`
}

// ListRange builds an explicit-list range.
func ListRange(values ...any) *ParameterRange {
	return &ParameterRange{Values: values}
}

// StepRange builds a linear interval expanded by step.
func StepRange(start, stop, step float64) *ParameterRange {
	return &ParameterRange{Start: &start, Stop: &stop, Step: &step}
}

// CountRange builds an interval expanded into count points, linearly or
// log-spaced.
func CountRange(start, stop float64, count int, logScale bool) *ParameterRange {
	return &ParameterRange{Start: &start, Stop: &stop, Count: count, Log: logScale}
}

// Validate checks the range invariants. Violations are configuration
// errors, fatal at load time.
func (r *ParameterRange) Validate(name string) error {
	if len(r.Values) > 0 {
		if r.Start != nil || r.Stop != nil || r.Step != nil || r.Count != 0 {
			return errors.NewConfigurationError("experiment", "validate_range",
				fmt.Sprintf("parameter %q mixes an explicit value list with interval fields", name))
		}
		return nil
	}
	if r.Start == nil || r.Stop == nil {
		return errors.NewConfigurationError("experiment", "validate_range",
			fmt.Sprintf("parameter %q needs either values or start/stop bounds", name))
	}
	if *r.Stop < *r.Start {
		return errors.NewConfigurationError("experiment", "validate_range",
			fmt.Sprintf("parameter %q has stop %v below start %v", name, *r.Stop, *r.Start))
	}
	if r.Step != nil && r.Count != 0 {
		return errors.NewConfigurationError("experiment", "validate_range",
			fmt.Sprintf("parameter %q declares both step and count", name))
	}
	if r.Step != nil && *r.Step <= 0 {
		return errors.NewConfigurationError("experiment", "validate_range",
			fmt.Sprintf("parameter %q has non-positive step %v", name, *r.Step))
	}
	if r.Step == nil && r.Count <= 0 {
		return errors.NewConfigurationError("experiment", "validate_range",
			fmt.Sprintf("parameter %q needs a positive step or count", name))
	}
	if r.Log {
		if r.Count <= 0 {
			return errors.NewConfigurationError("experiment", "validate_range",
				fmt.Sprintf("parameter %q uses log spacing, which requires count", name))
		}
		if *r.Start <= 0 || *r.Stop <= 0 {
			return errors.NewConfigurationError("experiment", "validate_range",
				fmt.Sprintf("parameter %q uses log spacing with non-positive bounds", name))
		}
	}
	return nil
}

// Expand returns the ordered concrete values of the range. It is always
// non-empty for a validated range and preserves declaration order for
// explicit lists.
//
// Step expansion yields ceil((stop-start)/step)+1 values spanning
// [start, stop]; the final point clamps to stop when the step does not
// divide the interval evenly.
func (r *ParameterRange) Expand() []any {
	if len(r.Values) > 0 {
		out := make([]any, len(r.Values))
		copy(out, r.Values)
		return out
	}

	start, stop := *r.Start, *r.Stop
	integral := false

	var points []float64
	switch {
	case r.Step != nil:
		step := *r.Step
		integral = isIntegral(start) && isIntegral(stop) && isIntegral(step)
		if start == stop {
			points = []float64{start}
			break
		}
		n := int(math.Ceil((stop-start)/step)) + 1
		points = make([]float64, 0, n)
		for i := 0; i < n; i++ {
			v := start + float64(i)*step
			if v > stop {
				v = stop
			}
			points = append(points, v)
		}
	case r.Log:
		points = logSpace(start, stop, r.Count)
	default:
		points = linSpace(start, stop, r.Count)
		integral = isIntegral(start) && isIntegral(stop) && allIntegral(points)
	}

	out := make([]any, len(points))
	for i, v := range points {
		if integral {
			out[i] = int(math.Round(v))
		} else {
			out[i] = v
		}
	}
	return out
}

// Size returns the number of values Expand would produce without
// materializing them for explicit lists.
func (r *ParameterRange) Size() int {
	if len(r.Values) > 0 {
		return len(r.Values)
	}
	if r.Step != nil {
		if *r.Start == *r.Stop {
			return 1
		}
		return int(math.Ceil((*r.Stop-*r.Start) / *r.Step)) + 1
	}
	return r.Count
}

func linSpace(start, stop float64, count int) []float64 {
	if count == 1 || start == stop {
		return []float64{start}
	}
	out := make([]float64, count)
	step := (stop - start) / float64(count-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[count-1] = stop
	return out
}

func logSpace(start, stop float64, count int) []float64 {
	if count == 1 || start == stop {
		return []float64{start}
	}
	out := make([]float64, count)
	lnStart, lnStop := math.Log(start), math.Log(stop)
	step := (lnStop - lnStart) / float64(count-1)
	for i := range out {
		out[i] = math.Exp(lnStart + float64(i)*step)
	}
	out[0], out[count-1] = start, stop
	return out
}

func isIntegral(f float64) bool {
	return f == math.Trunc(f)
}

func allIntegral(fs []float64) bool {
	for _, f := range fs {
		if !isIntegral(f) {
			return false
		}
	}
	return true
}

// rangeInterval mirrors the interval object form for (un)marshalling.
type rangeInterval struct {
	Start *float64 `json:"start,omitempty" yaml:"start,omitempty"`
	Stop  *float64 `json:"stop,omitempty" yaml:"stop,omitempty"`
	Step  *float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Count int      `json:"count,omitempty" yaml:"count,omitempty"`
	Log   bool     `json:"log,omitempty" yaml:"log,omitempty"`
}

// UnmarshalYAML accepts either a value list or an interval object.
func (r *ParameterRange) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&r.Values)
	case yaml.MappingNode:
		var iv rangeInterval
		if err := node.Decode(&iv); err != nil {
			return err
		}
		r.Start, r.Stop, r.Step, r.Count, r.Log = iv.Start, iv.Stop, iv.Step, iv.Count, iv.Log
		return nil
	default:
		return fmt.Errorf("parameter range must be a list or an interval object, got %v", node.Kind)
	}
}

// MarshalYAML emits the compact form the loader accepts.
func (r ParameterRange) MarshalYAML() (any, error) {
	if len(r.Values) > 0 {
		return r.Values, nil
	}
	return rangeInterval{Start: r.Start, Stop: r.Stop, Step: r.Step, Count: r.Count, Log: r.Log}, nil
}

// UnmarshalJSON accepts either a value list or an interval object.
func (r *ParameterRange) UnmarshalJSON(data []byte) error {
	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		return json.Unmarshal(data, &r.Values)
	}
	var iv rangeInterval
	if err := json.Unmarshal(data, &iv); err != nil {
		return err
	}
	r.Start, r.Stop, r.Step, r.Count, r.Log = iv.Start, iv.Stop, iv.Step, iv.Count, iv.Log
	return nil
}

// MarshalJSON emits the compact form the loader accepts.
func (r ParameterRange) MarshalJSON() ([]byte, error) {
	if len(r.Values) > 0 {
		return json.Marshal(r.Values)
	}
	return json.Marshal(rangeInterval{Start: r.Start, Stop: r.Stop, Step: r.Step, Count: r.Count, Log: r.Log})
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
