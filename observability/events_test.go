package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"markertransfer/core/events"
	"markertransfer/core/types"
)

func TestEventsCountsPublished(t *testing.T) {
	m := Events()
	m.Emit(events.Wrap(&types.Event{Type: "transfer.created", Attributes: map[string]string{"denom": "x.coin"}}))
	m.Emit(events.Wrap(&types.Event{Type: "transfer.created"}))
	m.Emit(nil)

	if got := testutil.ToFloat64(m.published.WithLabelValues("transfer.created", "x.coin")); got != 1 {
		t.Fatalf("expected 1 x.coin event, got %v", got)
	}
	if got := testutil.ToFloat64(m.published.WithLabelValues("transfer.created", "unknown")); got != 1 {
		t.Fatalf("expected 1 unlabelled event, got %v", got)
	}
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("rmt", "rmt_getTransfer", 200, time.Millisecond)
	m.Observe("rmt", "rmt_getTransfer", 404, time.Millisecond)
	m.RecordThrottle("", "")

	if got := testutil.ToFloat64(m.requests.WithLabelValues("rmt", "rmt_getTransfer", "error")); got != 1 {
		t.Fatalf("expected one error request, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("rmt", "rmt_getTransfer", "404")); got != 1 {
		t.Fatalf("expected one 404, got %v", got)
	}
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")); got != 1 {
		t.Fatalf("expected one throttle, got %v", got)
	}
}
