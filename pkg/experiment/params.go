package experiment

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Params is one concrete parameter assignment: name -> scalar value.
// Values are int, float64, bool or string depending on how the range was
// declared.
type Params map[string]any

// Clone creates a shallow copy of the assignment.
func (p Params) Clone() Params {
	clone := make(Params, len(p))
	for k, v := range p {
		clone[k] = v
	}
	return clone
}

// Float returns the named value as a float64 when it is numeric.
func (p Params) Float(name string) (float64, bool) {
	return toFloat(p[name])
}

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Key returns a canonical, order-independent string form of the assignment,
// usable as a map key or log field.
func (p Params) Key() string {
	out := ""
	for i, name := range p.Names() {
		if i > 0 {
			out += ","
		}
		out += name + "=" + canonicalValue(p[name])
	}
	return out
}

// Task pairs a symbol with a concrete assignment. Start/End optionally
// restrict the backtest to a slice of history; zero values mean the full
// range. Tasks are ephemeral: produced by the expander, consumed by the
// batch runner.
type Task struct {
	Symbol string
	Params Params
	Start  time.Time
	End    time.Time
}

// WithInterval returns a copy of the task restricted to [start, end).
func (t Task) WithInterval(start, end time.Time) Task {
	t.Start = start
	t.End = end
	return t
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// canonicalValue renders a scalar in a representation stable across the
// YAML and JSON decoders, so hashing does not depend on the source format.
func canonicalValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case string:
		return strconv.Quote(x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatFloat collapses integral floats to their integer form so that a
// value parsed as 10 (YAML int) and 10.0 (JSON number) hash identically.
func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
