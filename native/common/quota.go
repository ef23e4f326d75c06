package common

import (
	"errors"
	"math"
	"time"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current usage counters for an address.
type QuotaNow struct {
	ReqCount uint32
	EpochID  uint64
}

// Quota limits how many transfers an address may propose per epoch. Zero
// values disable the limit.
type Quota struct {
	MaxRequestsPerEpoch uint32
	EpochSeconds        uint32
}

// Enabled reports whether the quota constrains anything.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerEpoch > 0 && q.EpochSeconds > 0
}

// Epoch returns the epoch that now falls in.
func (q Quota) Epoch(now time.Time) uint64 {
	if q.EpochSeconds == 0 {
		return 0
	}
	unix := now.Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether addReq additional requests fit within the
// quota. The returned QuotaNow reflects the updated counters when the quota is
// not exceeded; on denial prev is returned unchanged.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}
	return next, nil
}
