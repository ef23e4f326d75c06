package core

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"markertransfer/contract"
	"markertransfer/core/events"
	"markertransfer/core/genesis"
	"markertransfer/core/state"
	"markertransfer/core/types"
	"markertransfer/crypto"
	"markertransfer/native/common"
	"markertransfer/native/marker"
	"markertransfer/native/transfer"
	"markertransfer/observability/metrics"
	"markertransfer/storage"
)

var (
	ErrInvalidSignature = errors.New("node: invalid signature")
	ErrNonceMismatch    = errors.New("node: nonce mismatch")
	ErrChainIDMismatch  = errors.New("node: chain id mismatch")
	ErrUnknownTxType    = errors.New("node: unknown transaction type")
	ErrMalformedGrant   = errors.New("node: malformed grant")
)

const actionAuthorize = "authorize"

// Node hosts the transfer contract. Every transaction runs inside its own
// storage transaction; state and events become visible together on commit or
// not at all.
type Node struct {
	db       storage.Database
	chainID  string
	contract *contract.Contract
	emitter  events.Emitter
	logger   *slog.Logger
	quota    common.Quota
	now      func() time.Time
	stateMu  sync.Mutex
}

// NewNode binds the contract c to db for chainID.
func NewNode(db storage.Database, chainID string, c *contract.Contract) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if c == nil {
		return nil, fmt.Errorf("node: contract required")
	}
	chainID = strings.TrimSpace(chainID)
	if chainID == "" {
		return nil, fmt.Errorf("node: chain id required")
	}
	return &Node{
		db:       db,
		chainID:  chainID,
		contract: c,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		now:      time.Now,
	}, nil
}

// SetEmitter configures where committed events are published.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	n.logger = logger
}

// SetQuota limits how many transfers each account may propose per epoch.
func (n *Node) SetQuota(q common.Quota) { n.quota = q }

func (n *Node) ChainID() string { return n.chainID }

// EscrowAddress returns the account holding pending transfers.
func (n *Node) EscrowAddress() [20]byte { return n.contract.Address() }

// Receipt describes a committed transaction.
type Receipt struct {
	TxHash   string            `json:"txHash"`
	Sender   string            `json:"sender"`
	Nonce    uint64            `json:"nonce"`
	Response *contract.Response `json:"response"`
}

// GrantPayload is the data of a TxTypeGrant transaction. It sets the amount of
// Denom the contract escrow may pull from the signer; zero revokes.
type GrantPayload struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// Execute verifies and runs a signed transaction.
func (n *Node) Execute(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	ctx, span := otel.Tracer("markertransfer/core").Start(ctx, "node.execute")
	defer span.End()

	start := n.now()
	receipt, action, err := n.execute(ctx, tx)
	kind := ErrorKind(err)
	metrics.Transfers().ObserveExecution(action, kind, n.now().Sub(start))

	attrs := []any{slog.String("action", action)}
	if tx != nil {
		attrs = append(attrs, slog.Uint64("nonce", tx.Nonce))
	}
	if receipt != nil {
		attrs = append(attrs, slog.String("sender", receipt.Sender), slog.String("tx_hash", receipt.TxHash))
		if id, ok := receipt.Response.Attribute("id"); ok {
			attrs = append(attrs, slog.String("id", id))
		}
	}
	span.SetAttributes(attribute.String("rmt.action", action))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		n.logger.Warn("transaction rejected", append(attrs, slog.String("kind", kind), slog.Any("error", err))...)
		return nil, err
	}
	n.logger.Info("transaction committed", attrs...)
	return receipt, nil
}

func (n *Node) execute(ctx context.Context, tx *types.Transaction) (*Receipt, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if tx == nil {
		return nil, "", fmt.Errorf("node: nil transaction")
	}
	if !tx.Type.Valid() {
		return nil, "", fmt.Errorf("%w: %d", ErrUnknownTxType, tx.Type)
	}
	if tx.ChainID != n.chainID {
		return nil, "", fmt.Errorf("%w: got %q want %q", ErrChainIDMismatch, tx.ChainID, n.chainID)
	}
	from, err := tx.From()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, "", err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	txn, err := n.db.Begin()
	if err != nil {
		return nil, "", fmt.Errorf("node: begin transaction: %w", err)
	}
	defer txn.Discard()

	manager := state.NewManager(txn)
	keeper := marker.NewKeeper(manager)

	expected, err := manager.Nonce(from)
	if err != nil {
		return nil, "", err
	}
	if tx.Nonce != expected {
		metrics.Transfers().RecordNonceRejection()
		return nil, "", fmt.Errorf("%w: got %d want %d", ErrNonceMismatch, tx.Nonce, expected)
	}

	var (
		resp   *contract.Response
		action string
	)
	switch tx.Type {
	case types.TxTypeExecute:
		resp, action, err = n.executeContract(manager, keeper, from, tx)
	case types.TxTypeGrant:
		action = actionAuthorize
		resp, err = n.authorize(keeper, from, tx)
	}
	if err != nil {
		return nil, action, err
	}

	if err := manager.SetNonce(from, expected+1); err != nil {
		return nil, action, err
	}
	if err := txn.Commit(); err != nil {
		return nil, action, fmt.Errorf("node: commit: %w", err)
	}
	n.publish(resp.Events)

	return &Receipt{
		TxHash:   "0x" + hex.EncodeToString(hash),
		Sender:   crypto.FormatAccount(from),
		Nonce:    tx.Nonce,
		Response: resp,
	}, action, nil
}

func (n *Node) executeContract(manager *state.Manager, keeper *marker.Keeper, from [20]byte, tx *types.Transaction) (*contract.Response, string, error) {
	msg, err := contract.ParseExecuteMsg(tx.Data)
	if err != nil {
		return nil, "", err
	}
	action := contract.ExecuteAction(msg)
	if _, ok := msg.(contract.TransferMsg); ok {
		if err := n.consumeQuota(manager, from); err != nil {
			return nil, action, err
		}
	}
	deps := contract.Deps{Store: manager, Custody: keeper}
	resp, err := n.contract.Execute(deps, contract.MessageInfo{Sender: from, Funds: tx.Funds}, msg)
	if err != nil {
		return nil, action, err
	}
	if err := keeper.Apply(n.contract.Address(), resp.Messages); err != nil {
		return nil, action, fmt.Errorf("%w: %v", transfer.ErrEscrowFailed, err)
	}
	return resp, action, nil
}

func (n *Node) consumeQuota(manager *state.Manager, from [20]byte) error {
	if !n.quota.Enabled() {
		return nil
	}
	prev, err := manager.QuotaGet(from)
	if err != nil {
		return err
	}
	next, err := common.CheckQuota(n.quota, n.quota.Epoch(n.now()), prev, 1)
	if err != nil {
		return err
	}
	return manager.QuotaPut(from, next)
}

func (n *Node) authorize(keeper *marker.Keeper, from [20]byte, tx *types.Transaction) (*contract.Response, error) {
	if len(tx.Funds) > 0 {
		return nil, transfer.ErrFundsUnsupported
	}
	var payload GrantPayload
	if err := json.Unmarshal(tx.Data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGrant, err)
	}
	denom := strings.TrimSpace(payload.Denom)
	amount, ok := new(big.Int).SetString(strings.TrimSpace(payload.Amount), 10)
	if denom == "" || !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: denom and non-negative amount required", ErrMalformedGrant)
	}
	if err := keeper.Authorize(from, n.contract.Address(), denom, amount); err != nil {
		return nil, err
	}
	return &contract.Response{Attributes: []contract.Attribute{
		{Key: "action", Value: actionAuthorize},
		{Key: "denom", Value: denom},
		{Key: "amount", Value: amount.String()},
		{Key: "granter", Value: crypto.FormatAccount(from)},
	}}, nil
}

var eventStates = map[string]string{
	transfer.EventTypeTransferCreated:   transfer.StatusPending.String(),
	transfer.EventTypeTransferApproved:  transfer.StatusApproved.String(),
	transfer.EventTypeTransferRejected:  transfer.StatusRejected.String(),
	transfer.EventTypeTransferCancelled: transfer.StatusCancelled.String(),
}

func (n *Node) publish(evts []*types.Event) {
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		metrics.Transfers().RecordTransition(eventStates[evt.Type], evt.Attribute("denom"))
		n.emitter.Emit(events.Wrap(evt))
	}
}

// Query answers a read-only contract query against a consistent snapshot.
func (n *Node) Query(ctx context.Context, msg contract.QueryMsg) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out interface{}
	err := n.view(func(manager *state.Manager, keeper *marker.Keeper) error {
		var err error
		out, err = n.contract.Query(contract.Deps{Store: manager, Custody: keeper}, msg)
		return err
	})
	return out, err
}

// Marker returns the definition of denom.
func (n *Node) Marker(denom string) (*marker.Marker, error) {
	var out *marker.Marker
	err := n.view(func(_ *state.Manager, keeper *marker.Keeper) error {
		var err error
		out, err = keeper.Marker(denom)
		return err
	})
	return out, err
}

// Balance returns account's holding of denom.
func (n *Node) Balance(account [20]byte, denom string) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(_ *state.Manager, keeper *marker.Keeper) error {
		var err error
		out, err = keeper.Balance(account, denom)
		return err
	})
	return out, err
}

// Allowance returns how much of denom the escrow may still pull from granter.
func (n *Node) Allowance(granter [20]byte, denom string) (*big.Int, error) {
	var out *big.Int
	err := n.view(func(_ *state.Manager, keeper *marker.Keeper) error {
		var err error
		out, err = keeper.Allowance(granter, n.contract.Address(), denom)
		return err
	})
	return out, err
}

// Nonce returns the next nonce expected from account.
func (n *Node) Nonce(account [20]byte) (uint64, error) {
	var out uint64
	err := n.view(func(manager *state.Manager, _ *marker.Keeper) error {
		var err error
		out, err = manager.Nonce(account)
		return err
	})
	return out, err
}

func (n *Node) view(fn func(*state.Manager, *marker.Keeper) error) error {
	snap, err := n.db.Snapshot()
	if err != nil {
		return fmt.Errorf("node: snapshot: %w", err)
	}
	defer snap.Release()
	manager := state.NewReadOnlyManager(snap)
	return fn(manager, marker.NewKeeper(manager))
}

// InitGenesis applies spec when the store is empty. It returns
// genesis.ErrAlreadyApplied when the contract is already instantiated.
func (n *Node) InitGenesis(spec *genesis.GenesisSpec) error {
	if spec == nil {
		return fmt.Errorf("node: genesis spec required")
	}
	if strings.TrimSpace(spec.ChainID) != n.chainID {
		return fmt.Errorf("%w: genesis %q node %q", ErrChainIDMismatch, spec.ChainID, n.chainID)
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if err := genesis.BuildGenesisFromSpec(spec, n.db, n.contract); err != nil {
		return err
	}
	n.logger.Info("genesis applied", slog.String("chain_id", n.chainID), slog.Int("markers", len(spec.Markers)))
	return nil
}

// Migrate upgrades the stored contract to the running code version inside a
// single storage transaction.
func (n *Node) Migrate(ctx context.Context) (*contract.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	txn, err := n.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("node: begin transaction: %w", err)
	}
	defer txn.Discard()

	manager := state.NewManager(txn)
	resp, err := n.contract.Migrate(contract.Deps{Store: manager, Custody: marker.NewKeeper(manager)}, contract.MigrateMsg{})
	if err != nil {
		n.logger.Warn("contract migration refused", slog.String("kind", ErrorKind(err)), slog.Any("error", err))
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("node: commit: %w", err)
	}
	version, _ := resp.Attribute("version")
	n.logger.Info("contract migrated", slog.String("version", version))
	return resp, nil
}

// ErrorKind classifies err for clients, logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, ErrNonceMismatch):
		return "NonceMismatch"
	case errors.Is(err, ErrChainIDMismatch):
		return "ChainIdMismatch"
	case errors.Is(err, ErrUnknownTxType):
		return "UnknownTxType"
	case errors.Is(err, ErrMalformedGrant):
		return "MalformedGrant"
	case errors.Is(err, common.ErrQuotaRequestsExceeded), errors.Is(err, common.ErrQuotaCounterOverflow):
		return "QuotaExceeded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	}
	kind := contract.ErrorKind(err)
	if kind != "Internal" {
		return kind
	}
	switch {
	case errors.Is(err, marker.ErrMarkerNotFound):
		return "MarkerNotFound"
	case errors.Is(err, marker.ErrInvalidDenom), errors.Is(err, marker.ErrInvalidAmount):
		return "InvalidFields"
	case errors.Is(err, marker.ErrInsufficientBalance):
		return "InsufficientFunds"
	}
	return kind
}
