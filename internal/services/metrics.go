package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Chat turn metrics
	Turns       prometheus.Counter
	TurnLatency prometheus.Histogram
	SafetyFlags prometheus.Counter

	// Oracle failures by type ("transport", "malformed", "bad_step")
	OracleFailures *prometheus.CounterVec

	// Config administration
	VersionCreates prometheus.Counter
	Activations    prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		Turns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ritualflow_turns_total",
			Help: "Total number of chat turns processed",
		}),

		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ritualflow_turn_duration_seconds",
			Help:    "Chat turn latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}, // oracle calls dominate
		}),

		SafetyFlags: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ritualflow_safety_flags_total",
			Help: "Total number of turns terminated by the safety override",
		}),

		OracleFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualflow_oracle_failures_total",
			Help: "Total number of oracle failures by type",
		}, []string{"failure_type"}),

		VersionCreates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ritualflow_config_version_creates_total",
			Help: "Total number of ritual config versions created",
		}),

		Activations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ritualflow_config_activations_total",
			Help: "Total number of ritual config version activations",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (nil before InitMetrics)
func GetMetrics() *Metrics {
	return globalMetrics
}
