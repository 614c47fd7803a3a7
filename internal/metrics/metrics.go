// Package metrics exposes Prometheus metrics for the sourcing service,
// including the credit-threshold signals consumed by the external metrics
// collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all sourcing service Prometheus metrics.
type Metrics struct {
	// Scoring metrics
	CandidatesScored  prometheus.Counter
	CandidatesFailed  prometheus.Counter
	ScoringAttempts   prometheus.Counter
	ScoringDispatched prometheus.Counter
	ScoringDuration   prometheus.Histogram

	// Workflow metrics
	StrategiesCompleted prometheus.Counter
	StrategiesFailed    *prometheus.CounterVec
	PollIterations      prometheus.Histogram
	CandidatesSourced   prometheus.Counter

	// Credit ledger signals
	CreditsConsumed  prometheus.Counter
	CreditsExhausted prometheus.Counter
	CreditsLow       prometheus.Counter

	// Realtime metrics
	EventsEmitted *prometheus.CounterVec
}

// New registers and returns the service metrics on reg. A nil reg falls back
// to the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{}

	m.CandidatesScored = factory.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_candidates_scored_total",
		Help: "Total candidates with a successful terminal score",
	})
	m.CandidatesFailed = factory.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_candidates_failed_total",
		Help: "Total candidates whose scoring exhausted all attempts",
	})
	m.ScoringAttempts = factory.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_scoring_attempts_total",
		Help: "Total evaluate API attempts, including retries",
	})
	m.ScoringDispatched = factory.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_scoring_jobs_dispatched_total",
		Help: "Total scoring jobs enqueued by the dispatcher",
	})
	m.ScoringDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "sourcing_scoring_duration_seconds",
		Help:    "Time to score one candidate, including retries",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	m.StrategiesCompleted = factory.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_strategies_completed_total",
		Help: "Total strategies that reached completed",
	})
	m.StrategiesFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sourcing_strategies_failed_total",
		Help: "Total strategies that reached error, by failure reason",
	}, []string{"reason"})
	m.PollIterations = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "sourcing_strategy_poll_iterations",
		Help:    "Poll iterations used before a strategy terminated",
		Buckets: []float64{1, 2, 5, 10, 20, 40, 60},
	})
	m.CandidatesSourced = factory.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_candidates_persisted_total",
		Help: "Total raw candidate profiles persisted from completed tasks",
	})

	m.CreditsConsumed = factory.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_credits_consumed_total",
		Help: "Total credits debited through the ledger",
	})
	m.CreditsExhausted = factory.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_credits_exhausted_total",
		Help: "Times an organization balance reached zero",
	})
	m.CreditsLow = factory.NewCounter(prometheus.CounterOpts{
		Name: "sourcing_credits_low_total",
		Help: "Times an organization balance crossed below the low threshold",
	})

	m.EventsEmitted = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "sourcing_realtime_events_total",
		Help: "Realtime events emitted, by event name",
	}, []string{"event"})

	return m
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
