package transfer

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"markertransfer/core/events"
	"markertransfer/core/types"
)

var (
	errNilState       = errors.New("transfer engine: state not configured")
	errNilPermissions = errors.New("transfer engine: permission oracle not configured")
)

type engineState interface {
	TransferGet(id string) (*Transfer, bool, error)
	TransferPut(*Transfer) error
}

type transferEvent struct {
	evt *types.Event
}

func (e transferEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e transferEvent) Event() *types.Event { return e.evt }

// Engine owns the transfer lifecycle. Every call reads the record fresh from
// the configured state, validates the transition and writes the result back
// before handing out custody instructions.
type Engine struct {
	state   engineState
	admins  PermissionOracle
	markers MarkerView
	emitter events.Emitter
	escrow  [20]byte
}

// NewEngine creates a transfer engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPermissions configures the oracle consulted on approve and reject.
func (e *Engine) SetPermissions(oracle PermissionOracle) { e.admins = oracle }

// SetMarkers configures the custody view used to check marker type and sender
// balance at creation. A nil view skips both checks.
func (e *Engine) SetMarkers(view MarkerView) { e.markers = view }

// SetEscrowAddress configures the contract account that holds escrowed funds.
func (e *Engine) SetEscrowAddress(addr [20]byte) { e.escrow = addr }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(transferEvent{evt: event})
}

func (e *Engine) loadTransfer(id string) (*Transfer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	t, ok, err := e.state.TransferGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (e *Engine) storeTransfer(t *Transfer) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	sanitized, err := SanitizeTransfer(t)
	if err != nil {
		return err
	}
	return e.state.TransferPut(sanitized)
}

// Create proposes a transfer of amount of denom from sender to recipient. The
// record is stored as pending and the returned instruction escrows the amount
// from sender into the contract account.
func (e *Engine) Create(sender [20]byte, id, denom string, amount *big.Int, recipient [20]byte) (*Transfer, []types.Instruction, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if strings.TrimSpace(id) == "" {
		return nil, nil, InvalidFields("id")
	}
	_, exists, err := e.state.TransferGet(id)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, ErrDuplicateID
	}
	if !ValidAmount(amount) {
		return nil, nil, ErrInvalidAmount
	}
	denom = strings.TrimSpace(denom)
	if denom == "" {
		return nil, nil, InvalidFields("denom")
	}
	if sender == recipient {
		return nil, nil, ErrSameAccount
	}
	if recipient == e.escrow {
		return nil, nil, InvalidFields("recipient")
	}
	if err := e.checkCustody(sender, denom, amount); err != nil {
		return nil, nil, err
	}

	t := &Transfer{
		ID:        id,
		Denom:     denom,
		Amount:    new(big.Int).Set(amount),
		Sender:    sender,
		Recipient: recipient,
		Status:    StatusPending,
	}
	msgs, err := BuildInstructions(t, EscrowIn, e.escrow)
	if err != nil {
		return nil, nil, err
	}
	if err := e.storeTransfer(t); err != nil {
		return nil, nil, err
	}
	e.emit(NewCreatedEvent(t))
	return t.Clone(), msgs, nil
}

func (e *Engine) checkCustody(sender [20]byte, denom string, amount *big.Int) error {
	if e.markers == nil {
		return nil
	}
	restricted, err := e.markers.IsRestricted(denom)
	if err != nil {
		return fmt.Errorf("transfer: marker type: %w", err)
	}
	if !restricted {
		return ErrUnsupportedMarker
	}
	balance, err := e.markers.Balance(sender, denom)
	if err != nil {
		return fmt.Errorf("transfer: sender balance: %w", err)
	}
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Approve releases the escrowed amount to the recipient. The caller must hold
// admin rights over the transfer's denomination at the time of the call.
func (e *Engine) Approve(caller [20]byte, id string) (*Transfer, []types.Instruction, error) {
	t, err := e.pending(id)
	if err != nil {
		return nil, nil, err
	}
	if err := e.requireAdmin(t.Denom, caller); err != nil {
		return nil, nil, err
	}
	return e.resolve(t, StatusApproved, ReleaseToRecipient, NewApprovedEvent(t, caller))
}

// Reject returns the escrowed amount to the sender. The caller must hold admin
// rights over the transfer's denomination at the time of the call.
func (e *Engine) Reject(caller [20]byte, id string) (*Transfer, []types.Instruction, error) {
	t, err := e.pending(id)
	if err != nil {
		return nil, nil, err
	}
	if err := e.requireAdmin(t.Denom, caller); err != nil {
		return nil, nil, err
	}
	return e.resolve(t, StatusRejected, ReleaseToSender, NewRejectedEvent(t, caller))
}

// Cancel lets the original sender withdraw a pending transfer. Neither the
// recipient nor an admin may cancel on the sender's behalf.
func (e *Engine) Cancel(caller [20]byte, id string) (*Transfer, []types.Instruction, error) {
	t, err := e.pending(id)
	if err != nil {
		return nil, nil, err
	}
	if caller != t.Sender {
		return nil, nil, ErrUnauthorized
	}
	return e.resolve(t, StatusCancelled, ReleaseToSender, NewCancelledEvent(t))
}

// Transfer returns a copy of the stored record.
func (e *Engine) Transfer(id string) (*Transfer, error) {
	t, err := e.loadTransfer(id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (e *Engine) pending(id string) (*Transfer, error) {
	t, err := e.loadTransfer(id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, fmt.Errorf("%w: transfer %s is %s", ErrInvalidStateTransition, t.ID, t.Status)
	}
	return t, nil
}

func (e *Engine) requireAdmin(denom string, caller [20]byte) error {
	if e.admins == nil {
		return fmt.Errorf("%w: %v", ErrPermissionCheckFailed, errNilPermissions)
	}
	ok, err := e.admins.IsAdmin(denom, caller)
	if err != nil {
		if errors.Is(err, ErrPermissionCheckFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPermissionCheckFailed, err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) resolve(t *Transfer, next Status, action EscrowAction, evt *types.Event) (*Transfer, []types.Instruction, error) {
	msgs, err := BuildInstructions(t, action, e.escrow)
	if err != nil {
		return nil, nil, err
	}
	updated := t.Clone()
	updated.Status = next
	if err := e.storeTransfer(updated); err != nil {
		return nil, nil, err
	}
	e.emit(evt)
	return updated.Clone(), msgs, nil
}
