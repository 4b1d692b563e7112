package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Batch runner metrics
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategy_search_runs_total",
			Help: "Total number of backtest runs by terminal status",
		},
		[]string{"experiment", "status"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strategy_search_run_duration_seconds",
			Help:    "Distribution of single backtest run durations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"experiment"},
	)

	runRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategy_search_run_retries_total",
			Help: "Total number of task retry attempts",
		},
		[]string{"experiment"},
	)

	tasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strategy_search_tasks_in_flight",
			Help: "Number of backtest tasks currently executing",
		},
	)

	recordsFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategy_search_records_flushed_total",
			Help: "Run records flushed to the durable run log",
		},
		[]string{"experiment"},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(runRetries)
	prometheus.MustRegister(tasksInFlight)
	prometheus.MustRegister(recordsFlushed)
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRun records a terminal run with its duration in seconds.
func RecordRun(experiment, status string, seconds float64) {
	runsTotal.WithLabelValues(experiment, status).Inc()
	runDuration.WithLabelValues(experiment).Observe(seconds)
}

// RecordRetry counts one retry attempt.
func RecordRetry(experiment string) {
	runRetries.WithLabelValues(experiment).Inc()
}

// TaskStarted marks a task entering a worker.
func TaskStarted() {
	tasksInFlight.Inc()
}

// TaskFinished marks a task leaving a worker.
func TaskFinished() {
	tasksInFlight.Dec()
}

// RecordFlush counts records appended to the durable run log.
func RecordFlush(experiment string, n int) {
	recordsFlushed.WithLabelValues(experiment).Add(float64(n))
}
