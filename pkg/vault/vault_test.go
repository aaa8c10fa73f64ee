package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

type staticKeys struct {
	key []byte
	err error
}

func (s staticKeys) MasterKey() ([]byte, error) { return s.key, s.err }

func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func openTestVault(t *testing.T) (*Vault, []byte) {
	t.Helper()
	key := newKey(t)
	v, err := Open(context.Background(), filepath.Join(t.TempDir(), DBFileName), staticKeys{key: key})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v, key
}

func mustCreate(t *testing.T, v *Vault, in Input) *Account {
	t.Helper()
	acc, err := v.CreateAccount(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", in.Email, err)
	}
	return acc
}

// TestOpen tests database creation and migration
func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", DBFileName)

	v, err := Open(context.Background(), path, staticKeys{key: newKey(t)})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer v.Close()

	if v.Path() != path {
		t.Errorf("Path() = %s, want %s", v.Path(), path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if perm := info.Mode().Perm(); perm != FileMode {
			t.Errorf("database mode = %o, want %o", perm, FileMode)
		}
	}

	for _, table := range []string{"accounts", "account_history", "goose_db_version"} {
		var n int
		err := v.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		if err != nil || n != 1 {
			t.Errorf("table %s missing (n=%d, err=%v)", table, n, err)
		}
	}

	var fk int
	if err := v.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil || fk != 1 {
		t.Errorf("foreign_keys = %d, want 1 (err=%v)", fk, err)
	}
}

// TestOpenIdempotent tests reopening an existing database
func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), DBFileName)
	keys := staticKeys{key: newKey(t)}

	v, err := Open(context.Background(), path, keys)
	if err != nil {
		t.Fatal(err)
	}
	mustCreate(t, v, Input{Email: "a@example.com", Password: "pw"})
	v.Close()

	v, err = Open(context.Background(), path, keys)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer v.Close()

	accounts, err := v.ListAccounts(context.Background(), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 || accounts[0].Password != "pw" {
		t.Errorf("after reopen accounts = %+v", accounts)
	}
}

// TestClosed tests that operations after Close fail cleanly
func TestClosed(t *testing.T) {
	v, _ := openTestVault(t)
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := v.ListAccounts(context.Background(), Filter{}); !errors.Is(err, ErrClosed) {
		t.Errorf("ListAccounts() after Close error = %v, want %v", err, ErrClosed)
	}
}
