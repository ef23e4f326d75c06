package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"markertransfer/crypto"
	"markertransfer/native/transfer"
)

// InstantiateMsg configures a new contract instance.
type InstantiateMsg struct {
	Name string `json:"name"`
}

// Validate reports every missing field at once.
func (m InstantiateMsg) Validate() error {
	var fields []string
	if strings.TrimSpace(m.Name) == "" {
		fields = append(fields, "name")
	}
	return transfer.InvalidFields(fields...)
}

// MigrateMsg carries no parameters.
type MigrateMsg struct{}

// ExecuteMsg is the closed set of state-changing messages.
type ExecuteMsg interface {
	Validate() error
	executeKey() string
}

// TransferMsg proposes a new transfer from the signer to Recipient.
type TransferMsg struct {
	ID        string `json:"id"`
	Denom     string `json:"denom"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

// ApproveTransferMsg releases a pending transfer to its recipient.
type ApproveTransferMsg struct {
	ID string `json:"id"`
}

// RejectTransferMsg returns a pending transfer to its sender.
type RejectTransferMsg struct {
	ID string `json:"id"`
}

// CancelTransferMsg withdraws the signer's own pending transfer.
type CancelTransferMsg struct {
	ID string `json:"id"`
}

const (
	keyTransfer        = "transfer"
	keyApproveTransfer = "approve_transfer"
	keyRejectTransfer  = "reject_transfer"
	keyCancelTransfer  = "cancel_transfer"

	keyGetTransfer     = "get_transfer"
	keyGetAllTransfers = "get_all_transfers"
	keyGetContractInfo = "get_contract_info"
	keyGetVersionInfo  = "get_version_info"
)

func (TransferMsg) executeKey() string        { return keyTransfer }
func (ApproveTransferMsg) executeKey() string { return keyApproveTransfer }
func (RejectTransferMsg) executeKey() string  { return keyRejectTransfer }
func (CancelTransferMsg) executeKey() string  { return keyCancelTransfer }

// ExecuteAction returns the tag msg is encoded under, e.g. "approve_transfer".
func ExecuteAction(msg ExecuteMsg) string {
	if msg == nil {
		return ""
	}
	return msg.executeKey()
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Validate checks message shape only. Amount range is enforced by the
// lifecycle engine.
func (m TransferMsg) Validate() error {
	var fields []string
	if !validID(m.ID) {
		fields = append(fields, "id")
	}
	if strings.TrimSpace(m.Denom) == "" {
		fields = append(fields, "denom")
	}
	if strings.TrimSpace(m.Recipient) == "" {
		fields = append(fields, "recipient")
	} else if _, err := crypto.ParseAccount(m.Recipient); err != nil {
		fields = append(fields, "recipient")
	}
	return transfer.InvalidFields(fields...)
}

func validateIDOnly(id string) error {
	if !validID(id) {
		return transfer.InvalidFields("id")
	}
	return nil
}

func (m ApproveTransferMsg) Validate() error { return validateIDOnly(m.ID) }
func (m RejectTransferMsg) Validate() error  { return validateIDOnly(m.ID) }
func (m CancelTransferMsg) Validate() error  { return validateIDOnly(m.ID) }

// ParseExecuteMsg decodes the externally tagged JSON form, for example
// {"approve_transfer":{"id":"..."}}.
func ParseExecuteMsg(data []byte) (ExecuteMsg, error) {
	key, body, err := splitTagged(data)
	if err != nil {
		return nil, err
	}
	var msg ExecuteMsg
	switch key {
	case keyTransfer:
		var m TransferMsg
		err = strictUnmarshal(body, &m)
		msg = m
	case keyApproveTransfer:
		var m ApproveTransferMsg
		err = strictUnmarshal(body, &m)
		msg = m
	case keyRejectTransfer:
		var m RejectTransferMsg
		err = strictUnmarshal(body, &m)
		msg = m
	case keyCancelTransfer:
		var m CancelTransferMsg
		err = strictUnmarshal(body, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: unknown execute message %q", ErrMalformedMessage, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedMessage, key, err)
	}
	return msg, nil
}

// EncodeExecuteMsg renders msg in its tagged JSON form.
func EncodeExecuteMsg(msg ExecuteMsg) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("contract: nil execute message")
	}
	return json.Marshal(map[string]ExecuteMsg{msg.executeKey(): msg})
}

// QueryMsg is the closed set of read-only messages.
type QueryMsg interface {
	Validate() error
	queryKey() string
}

// GetTransferQuery fetches a single transfer.
type GetTransferQuery struct {
	ID string `json:"id"`
}

// GetAllTransfersQuery lists transfers in ascending id order. Every filter is
// optional; Limit zero means no limit.
type GetAllTransfersQuery struct {
	State      string `json:"state,omitempty"`
	Sender     string `json:"sender,omitempty"`
	Recipient  string `json:"recipient,omitempty"`
	Denom      string `json:"denom,omitempty"`
	StartAfter string `json:"start_after,omitempty"`
	Limit      uint32 `json:"limit,omitempty"`
}

// GetContractInfoQuery returns the instantiation config.
type GetContractInfoQuery struct{}

// GetVersionInfoQuery returns the stored contract type and version.
type GetVersionInfoQuery struct{}

func (GetTransferQuery) queryKey() string     { return keyGetTransfer }
func (GetAllTransfersQuery) queryKey() string { return keyGetAllTransfers }
func (GetContractInfoQuery) queryKey() string { return keyGetContractInfo }
func (GetVersionInfoQuery) queryKey() string  { return keyGetVersionInfo }

func (q GetTransferQuery) Validate() error { return validateIDOnly(q.ID) }

func (q GetAllTransfersQuery) Validate() error {
	var fields []string
	if q.State != "" {
		if _, err := transfer.ParseStatus(q.State); err != nil {
			fields = append(fields, "state")
		}
	}
	if q.Sender != "" {
		if _, err := crypto.ParseAccount(q.Sender); err != nil {
			fields = append(fields, "sender")
		}
	}
	if q.Recipient != "" {
		if _, err := crypto.ParseAccount(q.Recipient); err != nil {
			fields = append(fields, "recipient")
		}
	}
	return transfer.InvalidFields(fields...)
}

func (GetContractInfoQuery) Validate() error { return nil }
func (GetVersionInfoQuery) Validate() error  { return nil }

// ParseQueryMsg decodes the externally tagged JSON form, for example
// {"get_transfer":{"id":"..."}}.
func ParseQueryMsg(data []byte) (QueryMsg, error) {
	key, body, err := splitTagged(data)
	if err != nil {
		return nil, err
	}
	var msg QueryMsg
	switch key {
	case keyGetTransfer:
		var q GetTransferQuery
		err = strictUnmarshal(body, &q)
		msg = q
	case keyGetAllTransfers:
		var q GetAllTransfersQuery
		err = strictUnmarshal(body, &q)
		msg = q
	case keyGetContractInfo:
		var q GetContractInfoQuery
		err = strictUnmarshal(body, &q)
		msg = q
	case keyGetVersionInfo:
		var q GetVersionInfoQuery
		err = strictUnmarshal(body, &q)
		msg = q
	default:
		return nil, fmt.Errorf("%w: unknown query message %q", ErrMalformedMessage, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedMessage, key, err)
	}
	return msg, nil
}

// EncodeQueryMsg renders msg in its tagged JSON form.
func EncodeQueryMsg(msg QueryMsg) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("contract: nil query message")
	}
	return json.Marshal(map[string]QueryMsg{msg.queryKey(): msg})
}

func splitTagged(data []byte) (string, json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, fmt.Errorf("%w: not a JSON object: %v", ErrMalformedMessage, err)
	}
	if len(envelope) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one variant, got %d", ErrMalformedMessage, len(envelope))
	}
	for key, body := range envelope {
		if len(body) == 0 || string(body) == "null" {
			body = json.RawMessage("{}")
		}
		return key, body, nil
	}
	return "", nil, ErrMalformedMessage
}

func strictUnmarshal(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
