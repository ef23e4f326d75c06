package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"markertransfer/native/marker"
	"markertransfer/storage"
)

type storedAccessGrant struct {
	Address     [20]byte
	Permissions []string
}

type storedMarker struct {
	Denom  string
	Type   uint8
	Grants []storedAccessGrant
}

func newStoredMarker(m *marker.Marker) *storedMarker {
	out := &storedMarker{Denom: m.Denom, Type: uint8(m.Type)}
	for _, g := range m.Grants {
		perms := make([]string, len(g.Permissions))
		for i, p := range g.Permissions {
			perms[i] = string(p)
		}
		out.Grants = append(out.Grants, storedAccessGrant{Address: g.Address, Permissions: perms})
	}
	return out
}

func (s *storedMarker) toMarker() *marker.Marker {
	out := &marker.Marker{Denom: s.Denom, Type: marker.Type(s.Type)}
	for _, g := range s.Grants {
		perms := make([]marker.Access, len(g.Permissions))
		for i, p := range g.Permissions {
			perms[i] = marker.Access(p)
		}
		out.Grants = append(out.Grants, marker.AccessGrant{Address: g.Address, Permissions: perms})
	}
	return out
}

// MarkerPut stores a marker definition.
func (m *Manager) MarkerPut(mk *marker.Marker) error {
	sanitized, err := marker.SanitizeMarker(mk)
	if err != nil {
		return err
	}
	return m.KVPut(MarkerKey(sanitized.Denom), newStoredMarker(sanitized))
}

// MarkerGet loads the marker definition for denom.
func (m *Manager) MarkerGet(denom string) (*marker.Marker, bool, error) {
	stored := new(storedMarker)
	ok, err := m.KVGet(MarkerKey(denom), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toMarker(), true, nil
}

// MarkerIterate walks marker definitions in ascending denom order.
func (m *Manager) MarkerIterate(fn func(*marker.Marker) bool) error {
	if m == nil || m.kv == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	var decodeErr error
	err := m.kv.Iterate(markerPrefix, nil, func(_, value []byte) bool {
		stored := new(storedMarker)
		if err := decodeRLP(value, stored); err != nil {
			decodeErr = err
			return false
		}
		return fn(stored.toMarker())
	})
	if err != nil {
		return err
	}
	return decodeErr
}

// BalanceGet returns the balance of account in denom; absent balances are
// zero.
func (m *Manager) BalanceGet(account [20]byte, denom string) (*uint256.Int, error) {
	if m == nil || m.kv == nil {
		return nil, fmt.Errorf("state: manager unavailable")
	}
	data, err := m.kv.Get(BalanceKey(account, denom))
	if errors.Is(err, storage.ErrNotFound) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) > 32 {
		return nil, fmt.Errorf("state: corrupt balance for %s", denom)
	}
	return new(uint256.Int).SetBytes(data), nil
}

// BalancePut writes the balance of account in denom. Zero balances are
// removed from the key space.
func (m *Manager) BalancePut(account [20]byte, denom string, amount *uint256.Int) error {
	if m == nil || m.kv == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	key := BalanceKey(account, denom)
	if amount == nil || amount.IsZero() {
		return m.kv.Delete(key)
	}
	return m.kv.Put(key, amount.Bytes())
}

type storedGrant struct {
	Granter [20]byte
	Grantee [20]byte
	Denom   string
	Limit   *big.Int
}

// GrantPut stores an authorization grant keyed by granter, grantee and denom.
func (m *Manager) GrantPut(g *marker.Grant) error {
	if g == nil {
		return fmt.Errorf("state: nil grant")
	}
	limit := big.NewInt(0)
	if g.Limit != nil {
		limit = new(big.Int).Set(g.Limit)
	}
	return m.KVPut(GrantKey(g.Granter, g.Grantee, g.Denom), &storedGrant{
		Granter: g.Granter,
		Grantee: g.Grantee,
		Denom:   g.Denom,
		Limit:   limit,
	})
}

// GrantGet loads the authorization grant for the triple.
func (m *Manager) GrantGet(granter, grantee [20]byte, denom string) (*marker.Grant, bool, error) {
	stored := new(storedGrant)
	ok, err := m.KVGet(GrantKey(granter, grantee, denom), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	out := &marker.Grant{Granter: stored.Granter, Grantee: stored.Grantee, Denom: stored.Denom, Limit: big.NewInt(0)}
	if stored.Limit != nil {
		out.Limit = new(big.Int).Set(stored.Limit)
	}
	return out, true, nil
}

// GrantDelete removes the authorization grant for the triple.
func (m *Manager) GrantDelete(granter, grantee [20]byte, denom string) error {
	return m.KVDelete(GrantKey(granter, grantee, denom))
}
