package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"markertransfer/storage"
)

var errReadOnly = errors.New("state: read-only view")

// Manager provides typed access to the namespaced key space shared by the
// transfer contract and the custody module. It operates on whatever KV it is
// bound to, typically an open storage transaction.
type Manager struct {
	kv storage.KV
}

// NewManager creates a state manager operating on the provided key space.
func NewManager(kv storage.KV) *Manager {
	return &Manager{kv: kv}
}

// NewReadOnlyManager binds a manager to a reader such as a snapshot. Every
// write fails.
func NewReadOnlyManager(r storage.Reader) *Manager {
	return &Manager{kv: readOnlyKV{Reader: r}}
}

type readOnlyKV struct {
	storage.Reader
}

func (readOnlyKV) Put([]byte, []byte) error { return errReadOnly }
func (readOnlyKV) Delete([]byte) error      { return errReadOnly }

// KVPut RLP-encodes value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.kv == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.kv == nil {
		return false, fmt.Errorf("state: manager unavailable")
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key. Deleting an absent key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.kv == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return m.kv.Delete(key)
}

func decodeRLP(data []byte, out interface{}) error {
	return rlp.DecodeBytes(data, out)
}
