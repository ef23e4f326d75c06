package transfer

import (
	"errors"
	"math/big"
	"reflect"
	"testing"
)

func TestBuildInstructionsDeterministic(t *testing.T) {
	rec := &Transfer{ID: "t1", Denom: "x.coin", Amount: big.NewInt(5), Sender: accountA, Recipient: accountB}
	for _, action := range []EscrowAction{EscrowIn, ReleaseToRecipient, ReleaseToSender} {
		first, err := BuildInstructions(rec, action, escrowAddr)
		if err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		second, err := BuildInstructions(rec.Clone(), action, escrowAddr)
		if err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("%s: instructions differ between runs", action)
		}
	}
}

func TestBuildInstructionsRoutes(t *testing.T) {
	rec := &Transfer{ID: "t1", Denom: "x.coin", Amount: big.NewInt(5), Sender: accountA, Recipient: accountB}
	cases := []struct {
		action   EscrowAction
		from, to [20]byte
	}{
		{EscrowIn, accountA, escrowAddr},
		{ReleaseToRecipient, escrowAddr, accountB},
		{ReleaseToSender, escrowAddr, accountA},
	}
	for _, tc := range cases {
		msgs, err := BuildInstructions(rec, tc.action, escrowAddr)
		if err != nil {
			t.Fatalf("%s: %v", tc.action, err)
		}
		expectInstruction(t, msgs, tc.action, tc.from, tc.to, 5)
	}
}

func TestBuildInstructionsCopiesAmount(t *testing.T) {
	rec := &Transfer{ID: "t1", Denom: "x.coin", Amount: big.NewInt(5), Sender: accountA, Recipient: accountB}
	msgs, err := BuildInstructions(rec, EscrowIn, escrowAddr)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	msgs[0].Amount.SetInt64(99)
	if rec.Amount.Int64() != 5 {
		t.Fatalf("instruction aliases the record amount")
	}
}

func TestBuildInstructionsRejectsBadInput(t *testing.T) {
	if _, err := BuildInstructions(nil, EscrowIn, escrowAddr); err == nil {
		t.Fatalf("expected error for nil transfer")
	}
	rec := &Transfer{ID: "t1", Denom: "x.coin", Amount: big.NewInt(0), Sender: accountA, Recipient: accountB}
	if _, err := BuildInstructions(rec, EscrowIn, escrowAddr); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	rec.Amount = big.NewInt(1)
	if _, err := BuildInstructions(rec, EscrowAction(42), escrowAddr); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}
