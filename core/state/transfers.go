package state

import (
	"fmt"
	"math/big"

	"markertransfer/native/transfer"
)

type storedTransfer struct {
	ID        string
	Denom     string
	Amount    *big.Int
	Sender    [20]byte
	Recipient [20]byte
	Status    uint8
}

func newStoredTransfer(t *transfer.Transfer) *storedTransfer {
	amount := big.NewInt(0)
	if t.Amount != nil {
		amount = new(big.Int).Set(t.Amount)
	}
	return &storedTransfer{
		ID:        t.ID,
		Denom:     t.Denom,
		Amount:    amount,
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Status:    uint8(t.Status),
	}
}

func (s *storedTransfer) toTransfer() (*transfer.Transfer, error) {
	if s == nil {
		return nil, fmt.Errorf("transfer: nil storage record")
	}
	out := &transfer.Transfer{
		ID:        s.ID,
		Denom:     s.Denom,
		Amount:    big.NewInt(0),
		Sender:    s.Sender,
		Recipient: s.Recipient,
		Status:    transfer.Status(s.Status),
	}
	if s.Amount != nil {
		out.Amount = new(big.Int).Set(s.Amount)
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("transfer %s: invalid stored status %d", s.ID, s.Status)
	}
	return out, nil
}

// TransferPut inserts or replaces the record stored under t.ID.
func (m *Manager) TransferPut(t *transfer.Transfer) error {
	sanitized, err := transfer.SanitizeTransfer(t)
	if err != nil {
		return err
	}
	return m.KVPut(TransferKey(sanitized.ID), newStoredTransfer(sanitized))
}

// TransferGet loads the record stored under id.
func (m *Manager) TransferGet(id string) (*transfer.Transfer, bool, error) {
	stored := new(storedTransfer)
	ok, err := m.KVGet(TransferKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := stored.toTransfer()
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// TransferIterate walks transfer records in ascending id order, beginning
// strictly after startAfter when it is non-empty. Returning false from fn
// stops the walk. Each call starts a fresh walk over the current state.
func (m *Manager) TransferIterate(startAfter string, fn func(*transfer.Transfer) bool) error {
	if m == nil || m.kv == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	var start []byte
	if startAfter != "" {
		start = TransferKey(startAfter)
	}
	var decodeErr error
	err := m.kv.Iterate(transferPrefix, start, func(key, value []byte) bool {
		stored := new(storedTransfer)
		if err := decodeRLP(value, stored); err != nil {
			decodeErr = fmt.Errorf("transfer %q: %w", key[len(transferPrefix):], err)
			return false
		}
		record, err := stored.toTransfer()
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(record)
	})
	if err != nil {
		return err
	}
	return decodeErr
}
