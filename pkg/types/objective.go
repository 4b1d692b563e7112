package types

// Objective names the metric an optimization maximizes or minimizes.
type Objective struct {
	Metric   string `json:"metric" yaml:"metric"`
	Maximize bool   `json:"maximize" yaml:"maximize"`
}

// DefaultObjective optimizes risk-adjusted return.
func DefaultObjective() Objective {
	return Objective{Metric: MetricSharpeRatio, Maximize: true}
}

// Score converts a metrics record into a value where greater is always
// better, regardless of optimization direction.
func (o Objective) Score(m *Metrics) (float64, bool) {
	v, ok := m.Value(o.Metric)
	if !ok {
		return 0, false
	}
	if !o.Maximize {
		return -v, true
	}
	return v, true
}

// Better reports whether score a beats score b.
func (o Objective) Better(a, b float64) bool {
	return a > b
}
