package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestAccountRoundTrip(t *testing.T) {
	var raw [20]byte
	copy(raw[:], bytes.Repeat([]byte{0x42}, 20))

	encoded := FormatAccount(raw)
	if !strings.HasPrefix(encoded, "tp1") {
		t.Fatalf("expected tp1 prefix, got %s", encoded)
	}
	decoded, err := ParseAccount(encoded)
	if err != nil {
		t.Fatalf("parse account: %v", err)
	}
	if decoded != raw {
		t.Fatalf("round trip mismatch: %x != %x", decoded, raw)
	}
}

func TestParseAccountRejectsForeignPrefix(t *testing.T) {
	var raw [20]byte
	foreign := NewAddress("pb", raw).String()
	if _, err := ParseAccount(foreign); err == nil {
		t.Fatalf("expected prefix error for %s", foreign)
	}
	if _, err := ParseAccount("not-an-address"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	a := ModuleAddress("restricted-marker-transfer")
	b := ModuleAddress("restricted-marker-transfer")
	if a != b {
		t.Fatalf("module address not deterministic")
	}
	if a == ModuleAddress("other") {
		t.Fatalf("distinct modules share an address")
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "sender.json")
	if err := WriteKeyFile(path, key, "secret"); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := ReadKeyFile(path, "secret")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), key.Bytes()) {
		t.Fatalf("loaded key mismatch")
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("address mismatch")
	}
	if _, err := ReadKeyFile(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
