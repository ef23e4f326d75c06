package genesis

import (
	"errors"
	"fmt"
	"sort"

	"markertransfer/contract"
	"markertransfer/core/state"
	"markertransfer/crypto"
	"markertransfer/native/marker"
	"markertransfer/storage"
)

// ErrAlreadyApplied is returned when the store already holds an instantiated
// contract.
var ErrAlreadyApplied = errors.New("genesis: already applied")

// BuildGenesisFromSpec seeds db with the markers and balances of spec and
// instantiates c. Everything is written in one storage transaction; nothing
// is persisted on error.
func BuildGenesisFromSpec(spec *GenesisSpec, db storage.Database, c *contract.Contract) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return fmt.Errorf("database must not be nil")
	}
	if c == nil {
		return fmt.Errorf("contract must not be nil")
	}
	if err := spec.validate(); err != nil {
		return err
	}

	txn, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin genesis transaction: %w", err)
	}
	defer txn.Discard()

	manager := state.NewManager(txn)
	if _, exists, err := manager.ContractVersion(); err != nil {
		return err
	} else if exists {
		return ErrAlreadyApplied
	}
	keeper := marker.NewKeeper(manager)

	// 1) Markers (sorted)
	markers := append([]MarkerSpec(nil), spec.Markers...)
	sort.Slice(markers, func(i, j int) bool { return markers[i].Denom < markers[j].Denom })
	for _, m := range markers {
		def, err := toMarker(m)
		if err != nil {
			return err
		}
		if err := keeper.CreateMarker(def); err != nil {
			return fmt.Errorf("create marker %q: %w", m.Denom, err)
		}
	}

	// 2) Allocations (outer: addresses sorted; inner: denoms sorted)
	addrs := make([]string, 0, len(spec.Alloc))
	for addr := range spec.Alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addrStr := range addrs {
		account, err := crypto.ParseAccount(addrStr)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", addrStr, err)
		}
		balances := spec.Alloc[addrStr]
		denoms := make([]string, 0, len(balances))
		for denom := range balances {
			denoms = append(denoms, denom)
		}
		sort.Strings(denoms)
		for _, denom := range denoms {
			amount, err := parseAmountString(balances[denom])
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, denom, err)
			}
			if err := keeper.Mint(account, denom, amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addrStr, denom, err)
			}
		}
	}

	// 3) Contract
	deps := contract.Deps{Store: manager, Custody: keeper}
	if _, err := c.Instantiate(deps, contract.MessageInfo{}, contract.InstantiateMsg{Name: spec.Contract.Name}); err != nil {
		return fmt.Errorf("instantiate contract: %w", err)
	}
	return txn.Commit()
}

func toMarker(spec MarkerSpec) (*marker.Marker, error) {
	typ, err := marker.ParseType(spec.Type)
	if err != nil {
		return nil, fmt.Errorf("marker %q: %w", spec.Denom, err)
	}
	m := &marker.Marker{Denom: spec.Denom, Type: typ}
	for _, g := range spec.Grants {
		addr, err := crypto.ParseAccount(g.Address)
		if err != nil {
			return nil, fmt.Errorf("marker %q grant: %w", spec.Denom, err)
		}
		grant := marker.AccessGrant{Address: addr}
		for _, p := range g.Permissions {
			grant.Permissions = append(grant.Permissions, marker.Access(p))
		}
		m.Grants = append(m.Grants, grant)
	}
	return m, nil
}
