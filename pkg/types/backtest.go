package types

import (
	"context"
	"time"
)

// Package types defines the contract between the search engine and the
// external backtest executor.

// Metrics is the fixed core metric set every backtest invocation returns.
// Extra carries executor-specific metrics without a schema change.
type Metrics struct {
	TotalReturn  float64            `json:"total_return" yaml:"total_return"`
	MaxDrawdown  float64            `json:"max_drawdown" yaml:"max_drawdown"`
	SharpeRatio  float64            `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	TotalTrades  int                `json:"total_trades" yaml:"total_trades"`
	WinRate      float64            `json:"win_rate" yaml:"win_rate"`
	ProfitFactor float64            `json:"profit_factor" yaml:"profit_factor"`
	Extra        map[string]float64 `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Core metric keys understood by objectives and reports.
const (
	MetricTotalReturn  = "total_return"
	MetricMaxDrawdown  = "max_drawdown"
	MetricSharpeRatio  = "sharpe_ratio"
	MetricTotalTrades  = "total_trades"
	MetricWinRate      = "win_rate"
	MetricProfitFactor = "profit_factor"
)

// Value looks up a metric by key, falling back to the Extra map.
func (m *Metrics) Value(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch key {
	case MetricTotalReturn:
		return m.TotalReturn, true
	case MetricMaxDrawdown:
		return m.MaxDrawdown, true
	case MetricSharpeRatio:
		return m.SharpeRatio, true
	case MetricTotalTrades:
		return float64(m.TotalTrades), true
	case MetricWinRate:
		return m.WinRate, true
	case MetricProfitFactor:
		return m.ProfitFactor, true
	}
	v, ok := m.Extra[key]
	return v, ok
}

// ExecutionDefaults are the run-config values forwarded to every backtest call.
type ExecutionDefaults struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	FeeRate        float64 `json:"fee_rate" yaml:"fee_rate"`
	Leverage       float64 `json:"leverage,omitempty" yaml:"leverage,omitempty"`
	StopLoss       float64 `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty"`
	TakeProfit     float64 `json:"take_profit,omitempty" yaml:"take_profit,omitempty"`
}

// Request describes one backtest invocation. Start/End restrict the executor
// to a slice of history; zero values mean the full available range.
type Request struct {
	Symbol     string
	Timeframe  string
	Parameters map[string]any
	Start      time.Time
	End        time.Time
	Config     ExecutionDefaults
}

// BacktestFunc is the injected backtest executor. It must be safe for
// concurrent and repeated invocation; order-fill simulation, fees and P&L
// accounting all live behind this boundary.
type BacktestFunc func(ctx context.Context, req Request) (*Metrics, error)
