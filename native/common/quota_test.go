package common

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 10, EpochSeconds: 60}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaOverflow(t *testing.T) {
	prev := QuotaNow{ReqCount: math.MaxUint32, EpochID: 3}
	if _, err := CheckQuota(Quota{}, 3, prev, 1); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestQuotaEpoch(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 1, EpochSeconds: 60}
	if !q.Enabled() || (Quota{MaxRequestsPerEpoch: 1}).Enabled() {
		t.Fatalf("unexpected Enabled result")
	}
	if got := q.Epoch(time.Unix(125, 0)); got != 2 {
		t.Fatalf("expected epoch 2, got %d", got)
	}
	if got := (Quota{}).Epoch(time.Unix(125, 0)); got != 0 {
		t.Fatalf("expected zero epoch when disabled, got %d", got)
	}
}
