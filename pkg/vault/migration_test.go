package vault

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
)

// legacySchema is the accounts table as created before migrations existed:
// no phone/reg_year/country/group_name/deleted_at, inline unique email.
const legacySchema = `CREATE TABLE accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	recovery TEXT,
	secret TEXT,
	remark TEXT,
	status TEXT NOT NULL DEFAULT 'inactive',
	sold_status TEXT NOT NULL DEFAULT 'unsold',
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

func createLegacyDB(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for _, stmt := range append([]string{legacySchema}, stmts...) {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("legacy setup %q: %v", stmt, err)
		}
	}
}

// TestLegacyUpgrade tests opening a database created before migrations
func TestLegacyUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), DBFileName)
	key := newKey(t)

	v, err := Open(context.Background(), path, staticKeys{key: key})
	if err != nil {
		t.Fatal(err)
	}
	acc := mustCreate(t, v, Input{Email: "old@example.com", Password: "pw"})
	var stored string
	if err := v.db.QueryRow("SELECT password FROM accounts WHERE id = ?", acc.ID).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	v.Close()

	legacyPath := filepath.Join(t.TempDir(), DBFileName)
	createLegacyDB(t, legacyPath,
		"INSERT INTO accounts (email, password, remark) VALUES ('old@example.com', '"+stored+"', 'kept')")

	v, err = Open(context.Background(), legacyPath, staticKeys{key: key})
	if err != nil {
		t.Fatalf("Open(legacy) error = %v", err)
	}
	defer v.Close()

	cols, err := tableColumns(context.Background(), v.db, "main", "accounts")
	if err != nil {
		t.Fatal(err)
	}
	for _, col := range legacyColumns {
		if !cols[col] {
			t.Errorf("column %s not added", col)
		}
	}

	var schema string
	if err := v.db.QueryRow("SELECT sql FROM sqlite_master WHERE name = 'accounts'").Scan(&schema); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.ToLower(schema), "email text unique") {
		t.Errorf("inline unique constraint survived: %s", schema)
	}

	got, err := v.GetAccount(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.Password != "pw" || got.Remark != "kept" {
		t.Errorf("legacy row = %+v", got)
	}

	// Trash then re-create, which the old inline constraint forbade.
	if err := v.DeleteAccount(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	mustCreate(t, v, Input{Email: "old@example.com", Password: "again"})
}

// TestMigrationFailure tests that a migration error closes the database
func TestMigrationFailure(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	boom := errors.New("boom")
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error { return boom }

	_, err := Open(context.Background(), filepath.Join(t.TempDir(), DBFileName), staticKeys{key: newKey(t)})
	if !errors.Is(err, boom) {
		t.Errorf("Open() error = %v, want %v", err, boom)
	}
}

// TestTableColumnsUnknownTable tests the empty result for a missing table
func TestTableColumnsUnknownTable(t *testing.T) {
	v, _ := openTestVault(t)
	cols, err := tableColumns(context.Background(), v.db, "main", "nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 0 {
		t.Errorf("tableColumns(nope) = %v, want empty", cols)
	}
}
