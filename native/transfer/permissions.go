package transfer

import (
	"fmt"
	"math/big"
)

// AccessAdmin is the custody permission required to approve or reject a
// transfer of a denomination.
const AccessAdmin = "admin"

// PermissionOracle answers whether an account holds administrative rights over
// a denomination. Implementations must not cache answers across requests.
type PermissionOracle interface {
	IsAdmin(denom string, account [20]byte) (bool, error)
}

// MarkerView is the read-only slice of the custody module consulted when a
// transfer is proposed.
type MarkerView interface {
	IsRestricted(denom string) (bool, error)
	Balance(account [20]byte, denom string) (*big.Int, error)
}

// PermissionQuerier is the custody module's permission query.
type PermissionQuerier interface {
	HasPermission(denom string, account [20]byte, access string) (bool, error)
}

// CustodyOracle evaluates admin rights against the custody module's current
// grants on every call.
type CustodyOracle struct {
	custody PermissionQuerier
}

// NewCustodyOracle wraps a custody permission querier.
func NewCustodyOracle(custody PermissionQuerier) *CustodyOracle {
	return &CustodyOracle{custody: custody}
}

// IsAdmin reports whether account holds AccessAdmin on denom. Failure to reach
// the custody module, including an unknown denom, is reported as
// ErrPermissionCheckFailed rather than a negative answer.
func (o *CustodyOracle) IsAdmin(denom string, account [20]byte) (bool, error) {
	if o == nil || o.custody == nil {
		return false, fmt.Errorf("%w: custody module not configured", ErrPermissionCheckFailed)
	}
	ok, err := o.custody.HasPermission(denom, account, AccessAdmin)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPermissionCheckFailed, err)
	}
	return ok, nil
}
