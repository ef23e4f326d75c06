package transfer

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"markertransfer/crypto"
)

// Status represents the lifecycle states of a transfer request.
type Status uint8

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus accepts the lower-case names produced by String.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("transfer: unknown status %q", raw)
	}
}

// MaxAmount is the largest amount a transfer may carry (2^128 - 1).
var MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Transfer is a request to move Amount of Denom from Sender to Recipient,
// held in escrow until an administrator resolves it.
type Transfer struct {
	ID        string
	Denom     string
	Amount    *big.Int
	Sender    [20]byte
	Recipient [20]byte
	Status    Status
}

// Clone returns a deep copy of the transfer so callers can safely mutate the
// copy without affecting the stored instance.
func (t *Transfer) Clone() *Transfer {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Amount != nil {
		clone.Amount = new(big.Int).Set(t.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// ValidAmount reports whether amount is within (0, MaxAmount].
func ValidAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0 && amount.Cmp(MaxAmount) <= 0
}

// SanitizeTransfer validates a stored or about-to-be-stored record and returns
// a cloned instance. The function does not mutate the original value.
func SanitizeTransfer(t *Transfer) (*Transfer, error) {
	if t == nil {
		return nil, fmt.Errorf("nil transfer")
	}
	clone := t.Clone()
	if strings.TrimSpace(clone.ID) == "" {
		return nil, fmt.Errorf("transfer id must not be empty")
	}
	if strings.TrimSpace(clone.Denom) == "" {
		return nil, fmt.Errorf("transfer denom must not be empty")
	}
	if !ValidAmount(clone.Amount) {
		return nil, fmt.Errorf("transfer amount out of range: %s", clone.Amount)
	}
	if clone.Sender == clone.Recipient {
		return nil, fmt.Errorf("transfer sender and recipient must differ")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid transfer status: %d", clone.Status)
	}
	return clone, nil
}

type transferJSON struct {
	ID        string `json:"id"`
	Denom     string `json:"denom"`
	Amount    string `json:"amount"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	State     string `json:"state"`
}

// MarshalJSON renders accounts as bech32 addresses and the amount as a
// decimal string.
func (t Transfer) MarshalJSON() ([]byte, error) {
	amount := "0"
	if t.Amount != nil {
		amount = t.Amount.String()
	}
	return json.Marshal(transferJSON{
		ID:        t.ID,
		Denom:     t.Denom,
		Amount:    amount,
		Sender:    crypto.FormatAccount(t.Sender),
		Recipient: crypto.FormatAccount(t.Recipient),
		State:     t.Status.String(),
	})
}

func (t *Transfer) UnmarshalJSON(data []byte) error {
	var raw transferJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(raw.Amount, 10)
	if !ok {
		return fmt.Errorf("transfer amount %q", raw.Amount)
	}
	sender, err := crypto.ParseAccount(raw.Sender)
	if err != nil {
		return fmt.Errorf("transfer sender: %w", err)
	}
	recipient, err := crypto.ParseAccount(raw.Recipient)
	if err != nil {
		return fmt.Errorf("transfer recipient: %w", err)
	}
	status, err := ParseStatus(raw.State)
	if err != nil {
		return err
	}
	*t = Transfer{ID: raw.ID, Denom: raw.Denom, Amount: amount, Sender: sender, Recipient: recipient, Status: status}
	return nil
}
