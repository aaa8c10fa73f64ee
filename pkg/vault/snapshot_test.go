package vault

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestSnapshotReplaceRoundTrip tests restoring from a snapshot
func TestSnapshotReplaceRoundTrip(t *testing.T) {
	v, _ := openTestVault(t)
	ctx := context.Background()

	a := mustCreate(t, v, Input{Email: "a@example.com", Password: "pa", Secret: "JBSWY3DPEHPK3PXP"})
	b := mustCreate(t, v, Input{Email: "b@example.com", Password: "pb"})
	if _, err := v.ToggleSoldStatus(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := v.DeleteAccount(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	snap := filepath.Join(t.TempDir(), "snap.db")
	if err := v.Snapshot(ctx, snap); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(snap)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != FileMode {
			t.Errorf("snapshot mode = %o, want %o", perm, FileMode)
		}
	}

	// Diverge after the snapshot.
	mustCreate(t, v, Input{Email: "c@example.com", Password: "pc"})
	if err := v.DeleteAccount(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	if err := v.ReplaceFrom(ctx, snap); err != nil {
		t.Fatalf("ReplaceFrom() error = %v", err)
	}

	active, err := v.ListAccounts(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != a.ID || active[0].SoldStatus != SoldSold || active[0].Secret != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("active after restore = %+v", active)
	}
	trash, _ := v.ListDeleted(ctx)
	if len(trash) != 1 || trash[0].ID != b.ID {
		t.Errorf("trash after restore = %+v", trash)
	}
	history, _ := v.History(ctx, a.ID)
	if len(history) != 1 {
		t.Errorf("history after restore = %d entries, want 1", len(history))
	}

	// The attachment is gone and the vault keeps working.
	var n int
	if err := v.db.QueryRow("SELECT COUNT(*) FROM pragma_database_list WHERE name = 'backup_db'").Scan(&n); err != nil || n != 0 {
		t.Errorf("backup_db still attached (n=%d, err=%v)", n, err)
	}
	mustCreate(t, v, Input{Email: "d@example.com", Password: "pd"})
}

// TestSnapshotOverwrites tests that an existing destination is replaced
func TestSnapshotOverwrites(t *testing.T) {
	v, _ := openTestVault(t)
	dest := filepath.Join(t.TempDir(), "snap.db")
	if err := os.WriteFile(dest, []byte("stale"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := v.Snapshot(context.Background(), dest); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if err := VerifyFile(context.Background(), dest); err != nil {
		t.Errorf("VerifyFile(snapshot) error = %v", err)
	}
}

// TestReplaceFromLegacySource tests a source missing newer columns and history
func TestReplaceFromLegacySource(t *testing.T) {
	v, _ := openTestVault(t)
	ctx := context.Background()
	mustCreate(t, v, Input{Email: "current@example.com", Password: "x"})

	// Borrow a valid envelope for the legacy row.
	donor := mustCreate(t, v, Input{Email: "donor@example.com", Password: "legacy-pw"})
	var envelope string
	if err := v.db.QueryRow("SELECT password FROM accounts WHERE id = ?", donor.ID).Scan(&envelope); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "legacy.db")
	createLegacyDB(t, src,
		"INSERT INTO accounts (id, email, password, remark, status) VALUES (7, 'legacy@example.com', '"+envelope+"', 'r', 'pro')")

	if err := v.ReplaceFrom(ctx, src); err != nil {
		t.Fatalf("ReplaceFrom(legacy) error = %v", err)
	}

	all, err := v.ListAccounts(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("accounts after restore = %d, want 1", len(all))
	}
	got := all[0]
	if got.ID != 7 || got.Password != "legacy-pw" || got.Status != StatusPro || got.Country != "" || got.DeletedAt != "" {
		t.Errorf("restored legacy row = %+v", got)
	}
	if h, _ := v.History(ctx, 7); len(h) != 0 {
		t.Errorf("history = %d entries, want 0", len(h))
	}
}

// TestReplaceFromCorruptSource tests that a bad source leaves data intact
func TestReplaceFromCorruptSource(t *testing.T) {
	v, _ := openTestVault(t)
	ctx := context.Background()
	mustCreate(t, v, Input{Email: "keep@example.com", Password: "x"})

	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.db")
	if err := os.WriteFile(garbage, bytes.Repeat([]byte("not a database "), 512), 0600); err != nil {
		t.Fatal(err)
	}

	noAccounts := filepath.Join(dir, "empty.db")
	db, err := sql.Open("sqlite", noAccounts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE other (x INTEGER)"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	tests := []struct {
		name string
		path string
	}{
		{"garbage", garbage},
		{"no accounts table", noAccounts},
		{"missing file", filepath.Join(dir, "nope.db")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.ReplaceFrom(ctx, tt.path); err == nil {
				t.Fatal("ReplaceFrom() should fail")
			}
			all, err := v.ListAccounts(ctx, Filter{})
			if err != nil || len(all) != 1 {
				t.Errorf("accounts after failed restore = %d, %v", len(all), err)
			}
		})
	}

	if err := VerifyFile(ctx, garbage); !errors.Is(err, ErrCorruptSource) {
		t.Errorf("VerifyFile(garbage) error = %v, want %v", err, ErrCorruptSource)
	}
}

// TestDumpSQL tests the statement dump
func TestDumpSQL(t *testing.T) {
	v, _ := openTestVault(t)
	ctx := context.Background()
	a := mustCreate(t, v, Input{Email: "o'brien@example.com", Password: "p"})
	if _, err := v.ToggleStatus(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	b := mustCreate(t, v, Input{Email: "gone@example.com", Password: "p"})
	if err := v.DeleteAccount(ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := v.DumpSQL(ctx, &buf); err != nil {
		t.Fatalf("DumpSQL() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"CREATE TABLE accounts",
		"CREATE TABLE account_history",
		"'o''brien@example.com'",
		"'gone@example.com'",
		"INSERT INTO account_history (" + historyColumns + ")",
		"'v2:",
		"NULL",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q", want)
		}
	}
	if strings.Contains(out, "goose_db_version") {
		t.Error("dump should not include migration bookkeeping")
	}
	if strings.Index(out, "INSERT INTO accounts") > strings.Index(out, "INSERT INTO account_history") {
		t.Error("accounts should be dumped before history")
	}
}

// TestCheckIntegrity tests healthy and damaged vaults
func TestCheckIntegrity(t *testing.T) {
	v, _ := openTestVault(t)
	ctx := context.Background()
	a := mustCreate(t, v, Input{Email: "a@example.com", Password: "p", Secret: "S"})
	mustCreate(t, v, Input{Email: "b@example.com", Password: "p"})

	res, err := v.CheckIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || !res.DBIntegrity || res.Accounts != 2 || len(res.Undecryptable) != 0 {
		t.Errorf("CheckIntegrity() = %+v", res)
	}

	if _, err := v.db.Exec("UPDATE accounts SET secret = 'garbage' WHERE id = ?", a.ID); err != nil {
		t.Fatal(err)
	}
	res, err = v.CheckIntegrity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || len(res.Undecryptable) != 1 || !strings.Contains(res.Undecryptable[0], "field secret") {
		t.Errorf("CheckIntegrity() after tamper = %+v", res)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(v.Path(), 0644); err != nil {
			t.Fatal(err)
		}
		res, _ = v.CheckIntegrity(ctx)
		if res.PermissionsValid {
			t.Error("PermissionsValid should be false for 0644")
		}
	}
}
