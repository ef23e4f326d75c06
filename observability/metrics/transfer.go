package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TransferMetrics tracks lifecycle activity of the restricted transfer
// contract.
type TransferMetrics struct {
	executions  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	nonceReject prometheus.Counter
}

var (
	transferOnce     sync.Once
	transferRegistry *TransferMetrics
)

// Transfers returns the process-wide transfer metrics registry.
func Transfers() *TransferMetrics {
	transferOnce.Do(func() {
		transferRegistry = &TransferMetrics{
			executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rmt",
				Subsystem: "contract",
				Name:      "executions_total",
				Help:      "Count of executed contract messages segmented by action and outcome.",
			}, []string{"action", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rmt",
				Subsystem: "contract",
				Name:      "failures_total",
				Help:      "Count of rejected contract messages segmented by error kind.",
			}, []string{"action", "kind"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rmt",
				Subsystem: "transfer",
				Name:      "transitions_total",
				Help:      "Count of committed transfer state transitions by resulting state and denom.",
			}, []string{"state", "denom"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "rmt",
				Subsystem: "contract",
				Name:      "execution_duration_seconds",
				Help:      "Latency distribution for contract executions including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			nonceReject: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rmt",
				Subsystem: "node",
				Name:      "nonce_rejections_total",
				Help:      "Count of transactions rejected for an unexpected nonce.",
			}),
		}
		prometheus.MustRegister(
			transferRegistry.executions,
			transferRegistry.failures,
			transferRegistry.transitions,
			transferRegistry.latency,
			transferRegistry.nonceReject,
		)
	})
	return transferRegistry
}

func label(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

// ObserveExecution records one contract execution. kind is empty on success.
func (m *TransferMetrics) ObserveExecution(action, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	action = label(action, "unknown")
	outcome := "success"
	if kind != "" {
		outcome = "error"
		m.failures.WithLabelValues(action, kind).Inc()
	}
	m.executions.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordTransition counts a committed transition into state for denom.
func (m *TransferMetrics) RecordTransition(state, denom string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(label(state, "unknown"), label(denom, "unknown")).Inc()
}

// RecordNonceRejection counts a replayed or out-of-order transaction.
func (m *TransferMetrics) RecordNonceRejection() {
	if m == nil {
		return
	}
	m.nonceReject.Inc()
}
