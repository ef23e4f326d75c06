package transfer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound               = errors.New("transfer: not found")
	ErrDuplicateID            = errors.New("transfer: id already exists")
	ErrInvalidAmount          = errors.New("transfer: amount must be positive")
	ErrSameAccount            = errors.New("transfer: sender and recipient must differ")
	ErrInvalidStateTransition = errors.New("transfer: invalid state transition")
	ErrUnauthorized           = errors.New("transfer: unauthorized")
	ErrPermissionCheckFailed  = errors.New("transfer: permission check failed")
	ErrEscrowFailed           = errors.New("transfer: escrow instruction failed")
	ErrInvalidFields          = errors.New("transfer: invalid fields")
	ErrUnsupportedMarker      = errors.New("transfer: only restricted markers are supported")
	ErrFundsUnsupported       = errors.New("transfer: sent funds are not supported")
	ErrInsufficientFunds      = errors.New("transfer: insufficient funds to complete the transfer")
)

// FieldsError lists the message fields that failed validation. It matches
// ErrInvalidFields under errors.Is.
type FieldsError struct {
	Fields []string
}

func (e *FieldsError) Error() string {
	return fmt.Sprintf("transfer: invalid fields: [%s]", strings.Join(e.Fields, ", "))
}

func (e *FieldsError) Is(target error) bool { return target == ErrInvalidFields }

// InvalidFields returns nil when fields is empty, and a *FieldsError otherwise.
func InvalidFields(fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return &FieldsError{Fields: append([]string(nil), fields...)}
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotFound, "NotFound"},
	{ErrDuplicateID, "DuplicateId"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrSameAccount, "SameAccount"},
	{ErrInvalidStateTransition, "InvalidStateTransition"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrPermissionCheckFailed, "PermissionCheckFailed"},
	{ErrEscrowFailed, "EscrowFailed"},
	{ErrInvalidFields, "InvalidFields"},
	{ErrUnsupportedMarker, "UnsupportedMarkerType"},
	{ErrFundsUnsupported, "SentFundsUnsupported"},
	{ErrInsufficientFunds, "InsufficientFunds"},
}

// Kind maps err to the name of its error kind, or "Internal" when err does not
// belong to the transfer taxonomy.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
