package transfer

import (
	"markertransfer/core/types"
	"markertransfer/crypto"
)

const (
	EventTypeTransferCreated   = "transfer.created"
	EventTypeTransferApproved  = "transfer.approved"
	EventTypeTransferRejected  = "transfer.rejected"
	EventTypeTransferCancelled = "transfer.cancelled"
)

// Action attribute values reported to indexers.
const (
	ActionCreate  = "create_transfer"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionCancel  = "cancel"
)

// AttributeOrder is the canonical ordering of event attributes when they are
// rendered as a list.
var AttributeOrder = []string{"action", "id", "denom", "amount", "sender", "recipient", "admin"}

// NewCreatedEvent returns the canonical event payload for a newly proposed
// transfer.
func NewCreatedEvent(t *Transfer) *types.Event {
	evt := newTransferEvent(EventTypeTransferCreated, ActionCreate, t)
	evt.Attributes["recipient"] = crypto.FormatAccount(t.Recipient)
	return evt
}

// NewApprovedEvent returns the canonical event payload emitted when an admin
// releases the escrow to the recipient.
func NewApprovedEvent(t *Transfer, admin [20]byte) *types.Event {
	evt := newTransferEvent(EventTypeTransferApproved, ActionApprove, t)
	evt.Attributes["recipient"] = crypto.FormatAccount(t.Recipient)
	evt.Attributes["admin"] = crypto.FormatAccount(admin)
	return evt
}

// NewRejectedEvent returns the canonical event payload emitted when an admin
// returns the escrow to the sender.
func NewRejectedEvent(t *Transfer, admin [20]byte) *types.Event {
	evt := newTransferEvent(EventTypeTransferRejected, ActionReject, t)
	evt.Attributes["admin"] = crypto.FormatAccount(admin)
	return evt
}

// NewCancelledEvent returns the canonical event payload emitted when the
// sender withdraws a pending transfer.
func NewCancelledEvent(t *Transfer) *types.Event {
	return newTransferEvent(EventTypeTransferCancelled, ActionCancel, t)
}

func newTransferEvent(eventType, action string, t *Transfer) *types.Event {
	attrs := map[string]string{"action": action}
	if t == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = t.ID
	attrs["denom"] = t.Denom
	attrs["amount"] = "0"
	if t.Amount != nil {
		attrs["amount"] = t.Amount.String()
	}
	attrs["sender"] = crypto.FormatAccount(t.Sender)
	return &types.Event{Type: eventType, Attributes: attrs}
}
