package marker

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"markertransfer/core/types"
)

type keeperState interface {
	MarkerGet(denom string) (*Marker, bool, error)
	MarkerPut(*Marker) error
	BalanceGet(account [20]byte, denom string) (*uint256.Int, error)
	BalancePut(account [20]byte, denom string, amount *uint256.Int) error
	GrantGet(granter, grantee [20]byte, denom string) (*Grant, bool, error)
	GrantPut(*Grant) error
	GrantDelete(granter, grantee [20]byte, denom string) error
}

var errNilState = errors.New("marker keeper: state not configured")

// Keeper is the custody module. It owns marker definitions, balances and
// authorization grants, and applies the instruction lists produced by the
// transfer contract.
type Keeper struct {
	state keeperState
}

// NewKeeper binds a keeper to state.
func NewKeeper(state keeperState) *Keeper {
	return &Keeper{state: state}
}

func (k *Keeper) ready() error {
	if k == nil || k.state == nil {
		return errNilState
	}
	return nil
}

// CreateMarker registers a new marker definition.
func (k *Keeper) CreateMarker(m *Marker) error {
	if err := k.ready(); err != nil {
		return err
	}
	sanitized, err := SanitizeMarker(m)
	if err != nil {
		return err
	}
	_, exists, err := k.state.MarkerGet(sanitized.Denom)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrMarkerExists, sanitized.Denom)
	}
	return k.state.MarkerPut(sanitized)
}

// GrantAccess adds permissions for account on an existing marker.
func (k *Keeper) GrantAccess(denom string, account [20]byte, perms ...Access) error {
	mk, err := k.Marker(denom)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if !p.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidAccess, p)
		}
	}
	for i := range mk.Grants {
		if mk.Grants[i].Address != account {
			continue
		}
		for _, p := range perms {
			if !mk.Grants[i].Has(p) {
				mk.Grants[i].Permissions = append(mk.Grants[i].Permissions, p)
			}
		}
		return k.state.MarkerPut(mk)
	}
	mk.Grants = append(mk.Grants, AccessGrant{Address: account, Permissions: append([]Access(nil), perms...)})
	return k.state.MarkerPut(mk)
}

// RevokeAccess removes every permission account holds on a marker.
func (k *Keeper) RevokeAccess(denom string, account [20]byte) error {
	mk, err := k.Marker(denom)
	if err != nil {
		return err
	}
	kept := mk.Grants[:0]
	for _, g := range mk.Grants {
		if g.Address != account {
			kept = append(kept, g)
		}
	}
	mk.Grants = kept
	return k.state.MarkerPut(mk)
}

// Marker returns the definition of denom.
func (k *Keeper) Marker(denom string) (*Marker, error) {
	if err := k.ready(); err != nil {
		return nil, err
	}
	mk, ok, err := k.state.MarkerGet(denom)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarkerNotFound, denom)
	}
	return mk, nil
}

// HasPermission reports whether account holds access over denom. Unknown
// markers are an error, not a negative answer.
func (k *Keeper) HasPermission(denom string, account [20]byte, access string) (bool, error) {
	mk, err := k.Marker(denom)
	if err != nil {
		return false, err
	}
	return mk.HasAccess(account, Access(access)), nil
}

// IsRestricted reports whether denom is a restricted marker. Unknown denoms
// are not restricted.
func (k *Keeper) IsRestricted(denom string) (bool, error) {
	if err := k.ready(); err != nil {
		return false, err
	}
	mk, ok, err := k.state.MarkerGet(denom)
	if err != nil || !ok {
		return false, err
	}
	return mk.Type == TypeRestricted, nil
}

// Balance returns the holdings of account in denom.
func (k *Keeper) Balance(account [20]byte, denom string) (*big.Int, error) {
	if err := k.ready(); err != nil {
		return nil, err
	}
	bal, err := k.state.BalanceGet(account, denom)
	if err != nil {
		return nil, err
	}
	return bal.ToBig(), nil
}

// Mint credits amount of denom to account. It is used to seed balances at
// genesis.
func (k *Keeper) Mint(account [20]byte, denom string, amount *big.Int) error {
	if _, err := k.Marker(denom); err != nil {
		return err
	}
	amt, err := toUint256(amount)
	if err != nil {
		return err
	}
	return k.credit(account, denom, amt)
}

// Authorize records that grantee may move up to limit of denom out of
// granter's account. A zero limit removes the grant.
func (k *Keeper) Authorize(granter, grantee [20]byte, denom string, limit *big.Int) error {
	if _, err := k.Marker(denom); err != nil {
		return err
	}
	if limit == nil || limit.Sign() < 0 {
		return ErrInvalidAmount
	}
	if limit.Sign() == 0 {
		return k.state.GrantDelete(granter, grantee, denom)
	}
	return k.state.GrantPut(&Grant{Granter: granter, Grantee: grantee, Denom: denom, Limit: new(big.Int).Set(limit)})
}

// Allowance returns the remaining grant limit; absent grants are zero.
func (k *Keeper) Allowance(granter, grantee [20]byte, denom string) (*big.Int, error) {
	if err := k.ready(); err != nil {
		return nil, err
	}
	g, ok, err := k.state.GrantGet(granter, grantee, denom)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return g.Limit, nil
}

// Apply executes instructions in order on behalf of operator. Moving funds out
// of an account other than operator's own consumes an authorization grant from
// that account to operator. Atomicity across the list is provided by the
// transaction the keeper's state is bound to; Apply stops at the first failure.
func (k *Keeper) Apply(operator [20]byte, instructions []types.Instruction) error {
	if err := k.ready(); err != nil {
		return err
	}
	for i, ins := range instructions {
		if err := k.apply(operator, ins); err != nil {
			return fmt.Errorf("instruction %d (%s): %w", i, ins.Action, err)
		}
	}
	return nil
}

func (k *Keeper) apply(operator [20]byte, ins types.Instruction) error {
	if _, err := k.Marker(ins.Denom); err != nil {
		return err
	}
	amt, err := toUint256(ins.Amount)
	if err != nil {
		return err
	}
	if ins.From != operator {
		if err := k.consumeGrant(ins.From, operator, ins.Denom, ins.Amount); err != nil {
			return err
		}
	}
	if err := k.debit(ins.From, ins.Denom, amt); err != nil {
		return err
	}
	return k.credit(ins.To, ins.Denom, amt)
}

func (k *Keeper) consumeGrant(granter, grantee [20]byte, denom string, amount *big.Int) error {
	g, ok, err := k.state.GrantGet(granter, grantee, denom)
	if err != nil {
		return err
	}
	if !ok {
		return ErrGrantNotFound
	}
	if g.Limit.Cmp(amount) < 0 {
		return fmt.Errorf("%w: limit %s, requested %s", ErrGrantExceeded, g.Limit, amount)
	}
	remaining := new(big.Int).Sub(g.Limit, amount)
	if remaining.Sign() == 0 {
		return k.state.GrantDelete(granter, grantee, denom)
	}
	g.Limit = remaining
	return k.state.GrantPut(g)
}

func (k *Keeper) debit(account [20]byte, denom string, amt *uint256.Int) error {
	bal, err := k.state.BalanceGet(account, denom)
	if err != nil {
		return err
	}
	if bal.Lt(amt) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal.Dec(), amt.Dec())
	}
	return k.state.BalancePut(account, denom, new(uint256.Int).Sub(bal, amt))
}

func (k *Keeper) credit(account [20]byte, denom string, amt *uint256.Int) error {
	bal, err := k.state.BalanceGet(account, denom)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amt)
	if overflow {
		return ErrBalanceOverflow
	}
	return k.state.BalancePut(account, denom, sum)
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	amt, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return amt, nil
}
