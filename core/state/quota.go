package state

import "markertransfer/native/common"

type storedQuota struct {
	ReqCount uint32
	EpochID  uint64
}

// QuotaGet returns the proposal counters of account. A missing record is the
// zero value.
func (m *Manager) QuotaGet(account [20]byte) (common.QuotaNow, error) {
	var stored storedQuota
	if _, err := m.KVGet(QuotaKey(account), &stored); err != nil {
		return common.QuotaNow{}, err
	}
	return common.QuotaNow{ReqCount: stored.ReqCount, EpochID: stored.EpochID}, nil
}

// QuotaPut records the proposal counters of account.
func (m *Manager) QuotaPut(account [20]byte, now common.QuotaNow) error {
	return m.KVPut(QuotaKey(account), storedQuota{ReqCount: now.ReqCount, EpochID: now.EpochID})
}
