package contract

import (
	"errors"
	"testing"

	"markertransfer/core/state"
	"markertransfer/storage"
)

func newMigrateDeps(t *testing.T) Deps {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return Deps{Store: state.NewManager(db)}
}

func TestMigrateSetsCurrentVersion(t *testing.T) {
	deps := newMigrateDeps(t)
	if err := deps.Store.SetContractVersion(ContractType, "0.3.0"); err != nil {
		t.Fatalf("seed version: %v", err)
	}
	if err := deps.Store.SetContractConfig(state.ContractConfig{Name: "rmt"}); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	if _, err := New(escrow).Migrate(deps, MigrateMsg{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	v, ok, err := deps.Store.ContractVersion()
	if err != nil || !ok {
		t.Fatalf("version: ok=%v err=%v", ok, err)
	}
	if v.Contract != ContractType || v.Version != Version {
		t.Fatalf("unexpected version %+v", v)
	}
}

func TestMigrateLegacyConfig(t *testing.T) {
	deps := newMigrateDeps(t)
	if err := deps.Store.SetLegacyContractConfig(state.ContractConfig{Name: "rmt"}); err != nil {
		t.Fatalf("seed legacy config: %v", err)
	}
	if err := deps.Store.SetContractVersion(ContractType, "0.2.0"); err != nil {
		t.Fatalf("seed version: %v", err)
	}
	if _, err := New(escrow).Migrate(deps, MigrateMsg{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg, ok, err := deps.Store.ContractConfig()
	if err != nil || !ok || cfg.Name != "rmt" {
		t.Fatalf("config not migrated: %+v ok=%v err=%v", cfg, ok, err)
	}
	if _, ok, _ := deps.Store.LegacyContractConfig(); ok {
		t.Fatalf("legacy config should be removed")
	}
}

func TestMigrateLegacyWithoutConfigFails(t *testing.T) {
	deps := newMigrateDeps(t)
	if err := deps.Store.SetContractVersion(ContractType, "0.1.0"); err != nil {
		t.Fatalf("seed version: %v", err)
	}
	if _, err := New(escrow).Migrate(deps, MigrateMsg{}); err == nil {
		t.Fatalf("expected error without any configuration")
	}
}

func TestMigrateInvalidContractType(t *testing.T) {
	deps := newMigrateDeps(t)
	if err := deps.Store.SetContractVersion("other_name", "0.3.0"); err != nil {
		t.Fatalf("seed version: %v", err)
	}
	_, err := New(escrow).Migrate(deps, MigrateMsg{})
	if !errors.Is(err, ErrInvalidContractType) {
		t.Fatalf("expected invalid contract type, got %v", err)
	}
	if ErrorKind(err) != "InvalidContractType" {
		t.Fatalf("unexpected kind %s", ErrorKind(err))
	}
}

func TestMigrateRefusesDowngrade(t *testing.T) {
	deps := newMigrateDeps(t)
	if err := deps.Store.SetContractVersion(ContractType, "999.0.0"); err != nil {
		t.Fatalf("seed version: %v", err)
	}
	_, err := New(escrow).Migrate(deps, MigrateMsg{})
	var upgrade *UnsupportedUpgradeError
	if !errors.As(err, &upgrade) {
		t.Fatalf("expected unsupported upgrade, got %v", err)
	}
	if upgrade.Source != "999.0.0" || upgrade.Target != Version {
		t.Fatalf("unexpected upgrade error %+v", upgrade)
	}
}

func TestMigrateRequiresInstantiation(t *testing.T) {
	deps := newMigrateDeps(t)
	if _, err := New(escrow).Migrate(deps, MigrateMsg{}); !errors.Is(err, ErrNotInstantiated) {
		t.Fatalf("expected not instantiated, got %v", err)
	}
}
