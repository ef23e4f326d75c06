package marker

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var (
	ErrMarkerNotFound      = errors.New("marker: not found")
	ErrMarkerExists        = errors.New("marker: already exists")
	ErrInvalidDenom        = errors.New("marker: invalid denom")
	ErrInvalidAccess       = errors.New("marker: invalid access")
	ErrInsufficientBalance = errors.New("marker: insufficient balance")
	ErrBalanceOverflow     = errors.New("marker: balance overflow")
	ErrGrantNotFound       = errors.New("marker: authorization grant not found")
	ErrGrantExceeded       = errors.New("marker: authorization grant exceeded")
	ErrInvalidAmount       = errors.New("marker: amount must be positive")
)

// Type distinguishes freely transferable coins from restricted markers whose
// movement requires transfer access or an authorization grant.
type Type uint8

const (
	TypeCoin Type = iota + 1
	TypeRestricted
)

func (t Type) Valid() bool { return t == TypeCoin || t == TypeRestricted }

func (t Type) String() string {
	switch t {
	case TypeCoin:
		return "coin"
	case TypeRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// ParseType accepts the names produced by String.
func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "coin":
		return TypeCoin, nil
	case "restricted":
		return TypeRestricted, nil
	default:
		return 0, fmt.Errorf("marker: unknown type %q", raw)
	}
}

// Access is a permission an account may hold over a marker.
type Access string

const (
	AccessAdmin    Access = "admin"
	AccessTransfer Access = "transfer"
	AccessMint     Access = "mint"
	AccessBurn     Access = "burn"
	AccessDeposit  Access = "deposit"
	AccessWithdraw Access = "withdraw"
)

func (a Access) Valid() bool {
	switch a {
	case AccessAdmin, AccessTransfer, AccessMint, AccessBurn, AccessDeposit, AccessWithdraw:
		return true
	default:
		return false
	}
}

// AccessGrant lists the permissions held by one account.
type AccessGrant struct {
	Address     [20]byte
	Permissions []Access
}

// Has reports whether the grant includes access.
func (g AccessGrant) Has(access Access) bool {
	for _, p := range g.Permissions {
		if p == access {
			return true
		}
	}
	return false
}

// Marker describes a denomination managed by the custody module.
type Marker struct {
	Denom  string
	Type   Type
	Grants []AccessGrant
}

// Clone returns a deep copy of the marker.
func (m *Marker) Clone() *Marker {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Grants = make([]AccessGrant, len(m.Grants))
	for i, g := range m.Grants {
		clone.Grants[i] = AccessGrant{Address: g.Address, Permissions: append([]Access(nil), g.Permissions...)}
	}
	return &clone
}

// HasAccess reports whether account holds access over the marker.
func (m *Marker) HasAccess(account [20]byte, access Access) bool {
	if m == nil {
		return false
	}
	for _, g := range m.Grants {
		if g.Address == account && g.Has(access) {
			return true
		}
	}
	return false
}

var denomPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9/:._-]{2,127}$`)

// ValidateDenom checks the denomination against the custody naming rules.
func ValidateDenom(denom string) error {
	if !denomPattern.MatchString(denom) {
		return fmt.Errorf("%w: %q", ErrInvalidDenom, denom)
	}
	return nil
}

// SanitizeMarker validates m and returns a cloned instance.
func SanitizeMarker(m *Marker) (*Marker, error) {
	if m == nil {
		return nil, fmt.Errorf("marker: nil marker")
	}
	clone := m.Clone()
	if err := ValidateDenom(clone.Denom); err != nil {
		return nil, err
	}
	if !clone.Type.Valid() {
		return nil, fmt.Errorf("marker: invalid type %d", clone.Type)
	}
	for _, g := range clone.Grants {
		for _, p := range g.Permissions {
			if !p.Valid() {
				return nil, fmt.Errorf("%w: %q", ErrInvalidAccess, p)
			}
		}
	}
	return clone, nil
}

// Grant is an authorization letting Grantee move up to Limit of Denom out of
// Granter's account.
type Grant struct {
	Granter [20]byte
	Grantee [20]byte
	Denom   string
	Limit   *big.Int
}

// Clone returns a deep copy of the grant.
func (g *Grant) Clone() *Grant {
	if g == nil {
		return nil
	}
	clone := *g
	if g.Limit != nil {
		clone.Limit = new(big.Int).Set(g.Limit)
	} else {
		clone.Limit = big.NewInt(0)
	}
	return &clone
}
