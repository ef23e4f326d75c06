package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"markertransfer/crypto"
)

// Coin is an amount of a single denomination.
type Coin struct {
	Denom  string   `json:"denom"`
	Amount *big.Int `json:"amount"`
}

// Instruction is an outbound asset movement handed to the custody module once
// a contract call succeeds. The custody module applies the full list of a
// call atomically or not at all.
type Instruction struct {
	Action string
	From   [20]byte
	To     [20]byte
	Denom  string
	Amount *big.Int
}

// Clone returns a deep copy of the instruction.
func (i Instruction) Clone() Instruction {
	out := i
	if i.Amount != nil {
		out.Amount = new(big.Int).Set(i.Amount)
	}
	return out
}

// String renders the instruction in a compact, log friendly form.
func (i Instruction) String() string {
	amount := "0"
	if i.Amount != nil {
		amount = i.Amount.String()
	}
	return fmt.Sprintf("%s(%s -> %s, %s%s)", i.Action, crypto.FormatAccount(i.From), crypto.FormatAccount(i.To), amount, i.Denom)
}

type instructionJSON struct {
	Action string `json:"action"`
	From   string `json:"from"`
	To     string `json:"to"`
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

func (i Instruction) MarshalJSON() ([]byte, error) {
	amount := "0"
	if i.Amount != nil {
		amount = i.Amount.String()
	}
	return json.Marshal(instructionJSON{
		Action: i.Action,
		From:   crypto.FormatAccount(i.From),
		To:     crypto.FormatAccount(i.To),
		Denom:  i.Denom,
		Amount: amount,
	})
}

func (i *Instruction) UnmarshalJSON(data []byte) error {
	var raw instructionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	from, err := crypto.ParseAccount(raw.From)
	if err != nil {
		return fmt.Errorf("instruction from: %w", err)
	}
	to, err := crypto.ParseAccount(raw.To)
	if err != nil {
		return fmt.Errorf("instruction to: %w", err)
	}
	amount, ok := new(big.Int).SetString(raw.Amount, 10)
	if !ok {
		return fmt.Errorf("instruction amount %q", raw.Amount)
	}
	*i = Instruction{Action: raw.Action, From: from, To: to, Denom: raw.Denom, Amount: amount}
	return nil
}
