package state

import (
	"bytes"
	"fmt"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"markertransfer/native/common"
	"markertransfer/native/marker"
	"markertransfer/native/transfer"
	"markertransfer/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.LevelDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func testTransfer(id string, status transfer.Status) *transfer.Transfer {
	return &transfer.Transfer{
		ID:        id,
		Denom:     "x.coin",
		Amount:    big.NewInt(5),
		Sender:    testAddress(0x01),
		Recipient: testAddress(0x02),
		Status:    status,
	}
}

func TestTransferPutGet(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, ok, err := mgr.TransferGet("t1"); err != nil || ok {
		t.Fatalf("expected missing transfer, got ok=%v err=%v", ok, err)
	}
	if err := mgr.TransferPut(testTransfer("t1", transfer.StatusPending)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := mgr.TransferGet("t1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Amount.Int64() != 5 || got.Sender != testAddress(0x01) || got.Status != transfer.StatusPending {
		t.Fatalf("unexpected record %+v", got)
	}

	got.Status = transfer.StatusApproved
	if err := mgr.TransferPut(got); err != nil {
		t.Fatalf("replace: %v", err)
	}
	again, _, _ := mgr.TransferGet("t1")
	if again.Status != transfer.StatusApproved {
		t.Fatalf("expected replaced status, got %s", again.Status)
	}
}

func TestTransferPutRejectsInvalidRecord(t *testing.T) {
	mgr, _ := newTestManager(t)
	bad := testTransfer("t1", transfer.StatusPending)
	bad.Amount = big.NewInt(0)
	if err := mgr.TransferPut(bad); err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestTransferIterateOrderedAndRestartable(t *testing.T) {
	mgr, _ := newTestManager(t)
	for _, id := range []string{"c", "a", "e", "b", "d"} {
		if err := mgr.TransferPut(testTransfer(id, transfer.StatusPending)); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	collect := func(startAfter string, limit int) []string {
		var ids []string
		if err := mgr.TransferIterate(startAfter, func(tr *transfer.Transfer) bool {
			ids = append(ids, tr.ID)
			return limit <= 0 || len(ids) < limit
		}); err != nil {
			t.Fatalf("iterate: %v", err)
		}
		return ids
	}
	if got := fmt.Sprint(collect("", 0)); got != "[a b c d e]" {
		t.Fatalf("unexpected order %s", got)
	}
	if got := fmt.Sprint(collect("", 0)); got != "[a b c d e]" {
		t.Fatalf("second walk differs: %s", got)
	}
	if got := fmt.Sprint(collect("b", 2)); got != "[c d]" {
		t.Fatalf("unexpected page %s", got)
	}
	if got := fmt.Sprint(collect("e", 0)); got != "[]" {
		t.Fatalf("expected empty tail, got %s", got)
	}
}

func TestTransferIterateIgnoresOtherNamespaces(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.TransferPut(testTransfer("t1", transfer.StatusPending)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.SetContractVersion("restricted_marker_transfer", "1.0.0"); err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := mgr.SetNonce(testAddress(0x01), 3); err != nil {
		t.Fatalf("nonce: %v", err)
	}
	count := 0
	if err := mgr.TransferIterate("", func(*transfer.Transfer) bool { count++; return true }); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 transfer, got %d", count)
	}
}

func TestContractConfigAndVersion(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, ok, err := mgr.ContractConfig(); err != nil || ok {
		t.Fatalf("expected no config")
	}
	if err := mgr.SetContractConfig(ContractConfig{Name: "rmt"}); err != nil {
		t.Fatalf("set config: %v", err)
	}
	cfg, ok, err := mgr.ContractConfig()
	if err != nil || !ok || cfg.Name != "rmt" {
		t.Fatalf("unexpected config %+v ok=%v err=%v", cfg, ok, err)
	}
	if err := mgr.SetContractVersion("", "1.0.0"); err == nil {
		t.Fatalf("expected error for empty contract name")
	}
	if err := mgr.SetContractVersion("restricted_marker_transfer", "0.2.0"); err != nil {
		t.Fatalf("set version: %v", err)
	}
	v, ok, err := mgr.ContractVersion()
	if err != nil || !ok || v.Version != "0.2.0" {
		t.Fatalf("unexpected version %+v", v)
	}

	if err := mgr.SetLegacyContractConfig(ContractConfig{Name: "legacy"}); err != nil {
		t.Fatalf("set legacy: %v", err)
	}
	legacy, ok, err := mgr.LegacyContractConfig()
	if err != nil || !ok || legacy.Name != "legacy" {
		t.Fatalf("unexpected legacy config %+v", legacy)
	}
	if err := mgr.DeleteLegacyContractConfig(); err != nil {
		t.Fatalf("delete legacy: %v", err)
	}
	if _, ok, _ := mgr.LegacyContractConfig(); ok {
		t.Fatalf("legacy config not removed")
	}
}

func TestMarkerBalanceAndGrantStorage(t *testing.T) {
	mgr, _ := newTestManager(t)
	admin := testAddress(0xAD)
	mk := &marker.Marker{
		Denom:  "x.coin",
		Type:   marker.TypeRestricted,
		Grants: []marker.AccessGrant{{Address: admin, Permissions: []marker.Access{marker.AccessAdmin, marker.AccessTransfer}}},
	}
	if err := mgr.MarkerPut(mk); err != nil {
		t.Fatalf("put marker: %v", err)
	}
	stored, ok, err := mgr.MarkerGet("x.coin")
	if err != nil || !ok {
		t.Fatalf("get marker: ok=%v err=%v", ok, err)
	}
	if stored.Type != marker.TypeRestricted || !stored.HasAccess(admin, marker.AccessAdmin) {
		t.Fatalf("unexpected marker %+v", stored)
	}

	holder := testAddress(0x01)
	bal, err := mgr.BalanceGet(holder, "x.coin")
	if err != nil || !bal.IsZero() {
		t.Fatalf("expected zero balance, got %v err=%v", bal, err)
	}
	if err := mgr.BalancePut(holder, "x.coin", uint256.NewInt(250)); err != nil {
		t.Fatalf("put balance: %v", err)
	}
	bal, _ = mgr.BalanceGet(holder, "x.coin")
	if bal.Uint64() != 250 {
		t.Fatalf("unexpected balance %s", bal)
	}
	if err := mgr.BalancePut(holder, "x.coin", uint256.NewInt(0)); err != nil {
		t.Fatalf("clear balance: %v", err)
	}
	if has, _ := mgr.kv.Has(BalanceKey(holder, "x.coin")); has {
		t.Fatalf("zero balance should be removed")
	}

	grantee := testAddress(0xEE)
	if err := mgr.GrantPut(&marker.Grant{Granter: holder, Grantee: grantee, Denom: "x.coin", Limit: big.NewInt(40)}); err != nil {
		t.Fatalf("put grant: %v", err)
	}
	grant, ok, err := mgr.GrantGet(holder, grantee, "x.coin")
	if err != nil || !ok || grant.Limit.Int64() != 40 {
		t.Fatalf("unexpected grant %+v ok=%v err=%v", grant, ok, err)
	}
	if err := mgr.GrantDelete(holder, grantee, "x.coin"); err != nil {
		t.Fatalf("delete grant: %v", err)
	}
	if _, ok, _ := mgr.GrantGet(holder, grantee, "x.coin"); ok {
		t.Fatalf("grant not removed")
	}
}

func TestNonceDefaultsToZero(t *testing.T) {
	mgr, _ := newTestManager(t)
	acct := testAddress(0x07)
	if n, err := mgr.Nonce(acct); err != nil || n != 0 {
		t.Fatalf("expected zero nonce, got %d err=%v", n, err)
	}
	if err := mgr.SetNonce(acct, 9); err != nil {
		t.Fatalf("set nonce: %v", err)
	}
	if n, _ := mgr.Nonce(acct); n != 9 {
		t.Fatalf("expected 9, got %d", n)
	}
}

func TestReadOnlyManagerRejectsWrites(t *testing.T) {
	mgr, db := newTestManager(t)
	if err := mgr.TransferPut(testTransfer("t1", transfer.StatusPending)); err != nil {
		t.Fatalf("put: %v", err)
	}
	snap, err := db.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer snap.Release()
	ro := NewReadOnlyManager(snap)
	if _, ok, err := ro.TransferGet("t1"); err != nil || !ok {
		t.Fatalf("read through snapshot: ok=%v err=%v", ok, err)
	}
	if err := ro.TransferPut(testTransfer("t2", transfer.StatusPending)); err == nil {
		t.Fatalf("expected write to fail on read-only manager")
	}
}

func TestTransactionDiscardLeavesNoRecord(t *testing.T) {
	_, db := newTestManager(t)
	txn, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := NewManager(txn).TransferPut(testTransfer("t1", transfer.StatusPending)); err != nil {
		t.Fatalf("put: %v", err)
	}
	txn.Discard()
	if _, ok, err := NewManager(db).TransferGet("t1"); err != nil || ok {
		t.Fatalf("discarded write visible: ok=%v err=%v", ok, err)
	}
}

func TestQuotaRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	var acct [20]byte
	acct[0] = 7
	if got, err := m.QuotaGet(acct); err != nil || got != (common.QuotaNow{}) {
		t.Fatalf("expected zero counters, got %+v err=%v", got, err)
	}
	if err := m.QuotaPut(acct, common.QuotaNow{ReqCount: 3, EpochID: 9}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got, err := m.QuotaGet(acct); err != nil || got.ReqCount != 3 || got.EpochID != 9 {
		t.Fatalf("unexpected counters %+v err=%v", got, err)
	}
}
