package transfer_test

import (
	"math/big"
	"reflect"
	"testing"

	"markertransfer/crypto"
	"markertransfer/native/transfer"
)

func TestTransferEventsHaveDeterministicPayload(t *testing.T) {
	var sender, recipient, admin [20]byte
	sender[0], recipient[0], admin[0] = 0xAA, 0xBB, 0xCC
	rec := &transfer.Transfer{
		ID:        "9b2f2f3e-6a53-4a71-9d5e-0f4c9f3f1e11",
		Denom:     "x.coin",
		Amount:    big.NewInt(42_000),
		Sender:    sender,
		Recipient: recipient,
	}
	base := map[string]string{
		"id":     rec.ID,
		"denom":  "x.coin",
		"amount": "42000",
		"sender": crypto.FormatAccount(sender),
	}
	with := func(extra map[string]string) map[string]string {
		out := make(map[string]string, len(base)+len(extra))
		for k, v := range base {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	cases := []struct {
		name  string
		evt   func() map[string]string
		typ   string
		attrs map[string]string
	}{
		{"created", func() map[string]string { return transfer.NewCreatedEvent(rec).Attributes }, transfer.EventTypeTransferCreated,
			with(map[string]string{"action": "create_transfer", "recipient": crypto.FormatAccount(recipient)})},
		{"approved", func() map[string]string { return transfer.NewApprovedEvent(rec, admin).Attributes }, transfer.EventTypeTransferApproved,
			with(map[string]string{"action": "approve", "recipient": crypto.FormatAccount(recipient), "admin": crypto.FormatAccount(admin)})},
		{"rejected", func() map[string]string { return transfer.NewRejectedEvent(rec, admin).Attributes }, transfer.EventTypeTransferRejected,
			with(map[string]string{"action": "reject", "admin": crypto.FormatAccount(admin)})},
		{"cancelled", func() map[string]string { return transfer.NewCancelledEvent(rec).Attributes }, transfer.EventTypeTransferCancelled,
			with(map[string]string{"action": "cancel"})},
	}
	for _, tc := range cases {
		first := tc.evt()
		if !reflect.DeepEqual(first, tc.attrs) {
			t.Fatalf("%s: unexpected attributes %v", tc.name, first)
		}
		if !reflect.DeepEqual(first, tc.evt()) {
			t.Fatalf("%s: payload not deterministic", tc.name)
		}
	}
	types := []string{
		transfer.NewCreatedEvent(rec).Type,
		transfer.NewApprovedEvent(rec, admin).Type,
		transfer.NewRejectedEvent(rec, admin).Type,
		transfer.NewCancelledEvent(rec).Type,
	}
	for i, tc := range cases {
		if types[i] != tc.typ {
			t.Fatalf("%s: expected type %s, got %s", tc.name, tc.typ, types[i])
		}
	}
}
