package state

// Nonce returns the next transaction nonce expected from account.
func (m *Manager) Nonce(account [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := m.KVGet(NonceKey(account), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// SetNonce records the next transaction nonce expected from account.
func (m *Manager) SetNonce(account [20]byte, nonce uint64) error {
	return m.KVPut(NonceKey(account), nonce)
}
