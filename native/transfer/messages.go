package transfer

import (
	"fmt"
	"math/big"

	"markertransfer/core/types"
)

// EscrowAction names the asset movement requested from the custody module.
type EscrowAction uint8

const (
	EscrowIn EscrowAction = iota + 1
	ReleaseToRecipient
	ReleaseToSender
)

func (a EscrowAction) String() string {
	switch a {
	case EscrowIn:
		return "escrow_in"
	case ReleaseToRecipient:
		return "release_to_recipient"
	case ReleaseToSender:
		return "release_to_sender"
	default:
		return "unknown"
	}
}

// BuildInstructions returns the ordered custody instructions that move exactly
// t.Amount of t.Denom for the given action, with escrow as the contract's own
// account. The output depends only on its inputs.
func BuildInstructions(t *Transfer, action EscrowAction, escrow [20]byte) ([]types.Instruction, error) {
	if t == nil {
		return nil, fmt.Errorf("transfer: nil transfer")
	}
	if !ValidAmount(t.Amount) {
		return nil, ErrInvalidAmount
	}
	var from, to [20]byte
	switch action {
	case EscrowIn:
		from, to = t.Sender, escrow
	case ReleaseToRecipient:
		from, to = escrow, t.Recipient
	case ReleaseToSender:
		from, to = escrow, t.Sender
	default:
		return nil, fmt.Errorf("transfer: unknown escrow action %d", action)
	}
	return []types.Instruction{{
		Action: action.String(),
		From:   from,
		To:     to,
		Denom:  t.Denom,
		Amount: new(big.Int).Set(t.Amount),
	}}, nil
}
