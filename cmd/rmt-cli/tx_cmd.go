package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"markertransfer/contract"
	"markertransfer/core"
	"markertransfer/core/types"
	"markertransfer/crypto"
)

func runTransferCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("transfer", stderr, txUsage)
	var keyPath, id, denom, amount, recipient string
	var withGrant bool
	fs.StringVar(&keyPath, "key", "rmt-key.json", "sender keystore")
	fs.StringVar(&id, "id", "", "transfer id (UUID, generated when empty)")
	fs.StringVar(&denom, "denom", "", "restricted marker denom")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	fs.StringVar(&recipient, "to", "", "recipient address")
	fs.BoolVar(&withGrant, "grant", false, "grant the escrow the amount before proposing")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	msg := contract.TransferMsg{
		ID:        strings.TrimSpace(id),
		Denom:     strings.TrimSpace(denom),
		Amount:    strings.TrimSpace(amount),
		Recipient: strings.TrimSpace(recipient),
	}
	if err := validateAmount(msg.Amount); err != nil {
		return printError(stderr, err.Error())
	}
	if err := msg.Validate(); err != nil {
		return printError(stderr, err.Error())
	}
	key, err := openSigner(keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if withGrant {
		payload, _ := json.Marshal(core.GrantPayload{Denom: msg.Denom, Amount: msg.Amount})
		if code := submit(key, types.TxTypeGrant, payload, io.Discard, stderr); code != 0 {
			return code
		}
	}
	data, err := contract.EncodeExecuteMsg(msg)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.TxTypeExecute, data, stdout, stderr)
}

// runResolveCommand handles approve, reject and cancel, which all take only
// the transfer id.
func runResolveCommand(action string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(action, stderr, txUsage)
	var keyPath, id string
	fs.StringVar(&keyPath, "key", "rmt-key.json", "signer keystore")
	fs.StringVar(&id, "id", "", "transfer id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	id = strings.TrimSpace(id)
	var msg contract.ExecuteMsg
	switch action {
	case "approve":
		msg = contract.ApproveTransferMsg{ID: id}
	case "reject":
		msg = contract.RejectTransferMsg{ID: id}
	default:
		msg = contract.CancelTransferMsg{ID: id}
	}
	if err := msg.Validate(); err != nil {
		return printError(stderr, err.Error())
	}
	key, err := openSigner(keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	data, err := contract.EncodeExecuteMsg(msg)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.TxTypeExecute, data, stdout, stderr)
}

func runGrantCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("grant", stderr, txUsage)
	var keyPath, denom, amount string
	fs.StringVar(&keyPath, "key", "rmt-key.json", "granter keystore")
	fs.StringVar(&denom, "denom", "", "restricted marker denom")
	fs.StringVar(&amount, "amount", "", "allowance in base units; 0 revokes")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	denom = strings.TrimSpace(denom)
	if denom == "" {
		return printError(stderr, "--denom is required")
	}
	amount = strings.TrimSpace(amount)
	if amount != "0" {
		if err := validateAmount(amount); err != nil {
			return printError(stderr, err.Error())
		}
	}
	key, err := openSigner(keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	payload, err := json.Marshal(core.GrantPayload{Denom: denom, Amount: amount})
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, types.TxTypeGrant, payload, stdout, stderr)
}

// submit signs data with the next nonce of key on the node's chain and sends
// it.
func submit(key *crypto.PrivateKey, typ types.TxType, data []byte, stdout, stderr io.Writer) int {
	tx, rpcErr, err := buildTransaction(key, typ, data)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	result, rpcErr, err := rpcCall("rmt_sendTransaction", tx, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func buildTransaction(key *crypto.PrivateKey, typ types.TxType, data []byte) (*types.Transaction, *rpcError, error) {
	var chainID string
	if rpcErr, err := callInto("rmt_chainId", nil, &chainID); err != nil || rpcErr != nil {
		return nil, rpcErr, err
	}
	var nonce struct {
		Nonce uint64 `json:"nonce"`
	}
	from := crypto.FormatAccount(key.PubKey().Address().Bytes())
	if rpcErr, err := callInto("rmt_getNonce", map[string]string{"address": from}, &nonce); err != nil || rpcErr != nil {
		return nil, rpcErr, err
	}
	tx := &types.Transaction{Type: typ, ChainID: chainID, Nonce: nonce.Nonce, Data: data}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return nil, nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil, nil
}

func validateAmount(value string) error {
	if value == "" {
		return fmt.Errorf("--amount is required")
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("--amount must be a positive integer in base units")
	}
	return nil
}

func txUsage() string {
	return strings.TrimSpace(`Usage:
  rmt-cli transfer --key FILE --denom DENOM --amount N --to ADDRESS [--id UUID] [--grant]
  rmt-cli approve|reject|cancel --key FILE --id UUID
  rmt-cli grant --key FILE --denom DENOM --amount N
`)
}
