package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"markertransfer/core/events"
)

type eventMetrics struct {
	published *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking published contract events.
// The registry itself is an events.Emitter so it can sit in a fanout.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rmt",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of committed events published downstream segmented by type and denom.",
			}, []string{"type", "denom"}),
		}
		prometheus.MustRegister(eventRegistry.published)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	typ := strings.TrimSpace(evt.EventType())
	if typ == "" {
		typ = "unknown"
	}
	denom := "unknown"
	if raw := evt.Event(); raw != nil {
		if d := strings.TrimSpace(raw.Attribute("denom")); d != "" {
			denom = d
		}
	}
	m.published.WithLabelValues(typ, denom).Inc()
}
