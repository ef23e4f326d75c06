package contract

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/mod/semver"

	"markertransfer/core/events"
	"markertransfer/core/state"
	"markertransfer/core/types"
	"markertransfer/crypto"
	"markertransfer/native/common"
	"markertransfer/native/transfer"
)

const (
	// ContractType is recorded at instantiation and checked on migration.
	ContractType = "restricted_marker_transfer"
	// Version is the semantic version written by this build.
	Version = "1.0.0"
	// ModuleName is the pause switch consulted before every execute.
	ModuleName = "transfer"

	legacyConfigBefore = "v0.3.0"
)

var (
	ErrInvalidContractType = errors.New("contract: invalid contract type")
	ErrNotInstantiated     = errors.New("contract: not instantiated")
	ErrAlreadyInstantiated = errors.New("contract: already instantiated")
	ErrMalformedMessage    = errors.New("contract: malformed message")
)

// UnsupportedUpgradeError is returned when a migration would lower the stored
// version.
type UnsupportedUpgradeError struct {
	Source string
	Target string
}

func (e *UnsupportedUpgradeError) Error() string {
	return fmt.Sprintf("contract: unsupported upgrade: %s => %s", e.Source, e.Target)
}

// Custody is the slice of the custody module the contract consults.
type Custody interface {
	transfer.PermissionQuerier
	transfer.MarkerView
}

// Deps binds a call to the state and custody view of the current unit of
// work.
type Deps struct {
	Store   *state.Manager
	Custody Custody
}

// MessageInfo describes who sent the call and what funds were attached.
type MessageInfo struct {
	Sender [20]byte
	Funds  []types.Coin
}

// Attribute is a single key/value pair reported to indexers.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response carries the custody instructions and observability data produced
// by a successful call.
type Response struct {
	Messages   []types.Instruction `json:"messages"`
	Attributes []Attribute         `json:"attributes"`
	Events     []*types.Event      `json:"events,omitempty"`
}

// Attribute returns the first attribute with key.
func (r *Response) Attribute(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, attr := range r.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// TransferList is the result of GetAllTransfers. NextStartAfter is set when
// the limit cut the listing short.
type TransferList struct {
	Transfers      []*transfer.Transfer `json:"transfers"`
	NextStartAfter string               `json:"next_start_after,omitempty"`
}

// Contract is the entry point dispatcher for the restricted marker transfer
// workflow. It holds no state of its own.
type Contract struct {
	address [20]byte
	pauses  common.PauseView
}

// New creates a dispatcher whose escrow account is address.
func New(address [20]byte) *Contract {
	return &Contract{address: address}
}

// Address returns the contract's escrow account.
func (c *Contract) Address() [20]byte { return c.address }

// SetPauses configures the pause switch consulted before each execute.
func (c *Contract) SetPauses(p common.PauseView) { c.pauses = p }

func (c *Contract) engine(deps Deps, emitter events.Emitter) *transfer.Engine {
	e := transfer.NewEngine()
	e.SetState(deps.Store)
	e.SetEscrowAddress(c.address)
	e.SetEmitter(emitter)
	if deps.Custody != nil {
		e.SetPermissions(transfer.NewCustodyOracle(deps.Custody))
		e.SetMarkers(deps.Custody)
	}
	return e
}

// Instantiate records the contract configuration and version. It may run
// once per store.
func (c *Contract) Instantiate(deps Deps, info MessageInfo, msg InstantiateMsg) (*Response, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if len(info.Funds) > 0 {
		return nil, transfer.ErrFundsUnsupported
	}
	_, exists, err := deps.Store.ContractVersion()
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyInstantiated
	}
	cfg := state.ContractConfig{Name: strings.TrimSpace(msg.Name)}
	if err := deps.Store.SetContractConfig(cfg); err != nil {
		return nil, err
	}
	if err := deps.Store.SetContractVersion(ContractType, Version); err != nil {
		return nil, err
	}
	return &Response{
		Messages: []types.Instruction{},
		Attributes: []Attribute{
			{Key: "contract_info", Value: fmt.Sprintf("%+v", cfg)},
			{Key: "action", Value: "init"},
		},
	}, nil
}

func (c *Contract) requireInstantiated(deps Deps) error {
	_, ok, err := deps.Store.ContractVersion()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInstantiated
	}
	return nil
}

// Execute routes msg to the lifecycle engine. On success the response lists
// the custody instructions the host must apply in the same unit of work.
func (c *Contract) Execute(deps Deps, info MessageInfo, msg ExecuteMsg) (*Response, error) {
	if err := common.Guard(c.pauses, ModuleName); err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMalformedMessage
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if err := c.requireInstantiated(deps); err != nil {
		return nil, err
	}
	if len(info.Funds) > 0 {
		return nil, transfer.ErrFundsUnsupported
	}

	collector := &events.Collector{}
	eng := c.engine(deps, collector)
	var (
		msgs []types.Instruction
		err  error
	)
	switch m := msg.(type) {
	case TransferMsg:
		recipient, perr := crypto.ParseAccount(m.Recipient)
		if perr != nil {
			return nil, transfer.InvalidFields("recipient")
		}
		_, msgs, err = eng.Create(info.Sender, m.ID, m.Denom, parseAmount(m.Amount), recipient)
	case ApproveTransferMsg:
		_, msgs, err = eng.Approve(info.Sender, m.ID)
	case RejectTransferMsg:
		_, msgs, err = eng.Reject(info.Sender, m.ID)
	case CancelTransferMsg:
		_, msgs, err = eng.Cancel(info.Sender, m.ID)
	default:
		return nil, fmt.Errorf("%w: unsupported execute message %T", ErrMalformedMessage, msg)
	}
	if err != nil {
		return nil, err
	}

	resp := &Response{Messages: msgs}
	for _, evt := range collector.Events() {
		raw := evt.Event()
		resp.Events = append(resp.Events, raw)
		resp.Attributes = append(resp.Attributes, orderedAttributes(raw)...)
	}
	return resp, nil
}

// parseAmount returns nil for anything that is not a plain decimal integer so
// the engine reports it as an invalid amount.
func parseAmount(raw string) *big.Int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return nil
		}
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil
	}
	return amount
}

func orderedAttributes(evt *types.Event) []Attribute {
	if evt == nil {
		return nil
	}
	out := make([]Attribute, 0, len(evt.Attributes))
	for _, key := range transfer.AttributeOrder {
		if value, ok := evt.Attributes[key]; ok {
			out = append(out, Attribute{Key: key, Value: value})
		}
	}
	return out
}

// Query answers read-only messages. It never writes.
func (c *Contract) Query(deps Deps, msg QueryMsg) (interface{}, error) {
	if msg == nil {
		return nil, ErrMalformedMessage
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	switch q := msg.(type) {
	case GetTransferQuery:
		t, ok, err := deps.Store.TransferGet(q.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, transfer.ErrNotFound
		}
		return t, nil
	case GetAllTransfersQuery:
		return listTransfers(deps.Store, q)
	case GetContractInfoQuery:
		cfg, ok, err := deps.Store.ContractConfig()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotInstantiated
		}
		return cfg, nil
	case GetVersionInfoQuery:
		v, ok, err := deps.Store.ContractVersion()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotInstantiated
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: unsupported query message %T", ErrMalformedMessage, msg)
	}
}

type transferFilter struct {
	status    *transfer.Status
	sender    *[20]byte
	recipient *[20]byte
	denom     string
}

func newTransferFilter(q GetAllTransfersQuery) transferFilter {
	var f transferFilter
	if q.State != "" {
		if s, err := transfer.ParseStatus(q.State); err == nil {
			f.status = &s
		}
	}
	if q.Sender != "" {
		if a, err := crypto.ParseAccount(q.Sender); err == nil {
			f.sender = &a
		}
	}
	if q.Recipient != "" {
		if a, err := crypto.ParseAccount(q.Recipient); err == nil {
			f.recipient = &a
		}
	}
	f.denom = strings.TrimSpace(q.Denom)
	return f
}

func (f transferFilter) match(t *transfer.Transfer) bool {
	switch {
	case f.status != nil && t.Status != *f.status:
		return false
	case f.sender != nil && t.Sender != *f.sender:
		return false
	case f.recipient != nil && t.Recipient != *f.recipient:
		return false
	case f.denom != "" && t.Denom != f.denom:
		return false
	}
	return true
}

func listTransfers(store *state.Manager, q GetAllTransfersQuery) (*TransferList, error) {
	filter := newTransferFilter(q)
	out := &TransferList{Transfers: []*transfer.Transfer{}}
	limit := int(q.Limit)
	more := false
	err := store.TransferIterate(q.StartAfter, func(t *transfer.Transfer) bool {
		if !filter.match(t) {
			return true
		}
		if limit > 0 && len(out.Transfers) == limit {
			more = true
			return false
		}
		out.Transfers = append(out.Transfers, t)
		return true
	})
	if err != nil {
		return nil, err
	}
	if more {
		out.NextStartAfter = out.Transfers[len(out.Transfers)-1].ID
	}
	return out, nil
}

func canonicalVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// Migrate upgrades stored state written by an earlier release of this
// contract. Downgrades and foreign contract types are refused.
func (c *Contract) Migrate(deps Deps, _ MigrateMsg) (*Response, error) {
	stored, ok, err := deps.Store.ContractVersion()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInstantiated
	}
	if stored.Contract != ContractType {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContractType, stored.Contract)
	}
	current := canonicalVersion(stored.Version)
	if current == "" {
		return nil, fmt.Errorf("contract: stored version %q is not semver", stored.Version)
	}
	target := canonicalVersion(Version)
	if semver.Compare(current, target) > 0 {
		return nil, &UnsupportedUpgradeError{Source: stored.Version, Target: Version}
	}
	if semver.Compare(current, legacyConfigBefore) < 0 {
		if err := migrateLegacyConfig(deps.Store); err != nil {
			return nil, err
		}
	}
	if err := deps.Store.SetContractVersion(ContractType, Version); err != nil {
		return nil, err
	}
	return &Response{
		Messages: []types.Instruction{},
		Attributes: []Attribute{
			{Key: "action", Value: "migrate"},
			{Key: "version", Value: Version},
		},
	}, nil
}

func migrateLegacyConfig(store *state.Manager) error {
	if _, ok, err := store.ContractConfig(); err != nil || ok {
		return err
	}
	legacy, ok, err := store.LegacyContractConfig()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("contract: no configuration found to migrate")
	}
	if err := store.SetContractConfig(*legacy); err != nil {
		return err
	}
	return store.DeleteLegacyContractConfig()
}

// ErrorKind extends transfer.Kind with the dispatcher's own error kinds.
func ErrorKind(err error) string {
	var upgrade *UnsupportedUpgradeError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, common.ErrModulePaused):
		return "ModulePaused"
	case errors.Is(err, ErrInvalidContractType):
		return "InvalidContractType"
	case errors.As(err, &upgrade):
		return "UnsupportedUpgrade"
	case errors.Is(err, ErrNotInstantiated):
		return "NotInstantiated"
	case errors.Is(err, ErrAlreadyInstantiated):
		return "AlreadyInstantiated"
	case errors.Is(err, ErrMalformedMessage):
		return "MalformedMessage"
	}
	return transfer.Kind(err)
}
