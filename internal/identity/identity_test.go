package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/ledgerlink/internal/testutil/testlog"
)

func TestSignVerify(t *testing.T) {
	testlog.Start(t)
	id, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	sig := id.Sign([]byte("cookie"))
	if !Verify(id.Public(), []byte("cookie"), sig) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(id.Public(), []byte("other"), sig) {
		t.Fatalf("expected signature over other data to fail")
	}
	if Verify([]byte{1, 2, 3}, []byte("cookie"), sig) {
		t.Fatalf("short key must not verify")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "keys", "node.json")
	id, created, err := LoadOrCreate(path)
	if err != nil || !created {
		t.Fatalf("load or create: created=%v err=%v", created, err)
	}
	again, created, err := LoadOrCreate(path)
	if err != nil || created {
		t.Fatalf("second load: created=%v err=%v", created, err)
	}
	if again.ID() != id.ID() {
		t.Fatalf("identity changed across reload: %s != %s", again.ID(), id.ID())
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected key file mode %v", info.Mode().Perm())
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "node.json")
	if err := os.WriteFile(path, []byte(`{"private":"AAAA","public":"AAAA"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("expected ErrInvalidPrivateKey, got %v", err)
	}
	if _, _, err := LoadOrCreate(path); err == nil {
		t.Fatalf("corrupt file must not be silently replaced")
	}
}

func TestDecodeID(t *testing.T) {
	testlog.Start(t)
	id, err := Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pub, err := DecodeID(id.ID())
	if err != nil || !ValidPublicKey(pub) {
		t.Fatalf("decode id: %v", err)
	}
	if _, err := DecodeID("abc"); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}
