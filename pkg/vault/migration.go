package vault

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// gooseUpContext is replaced in tests.
var gooseUpContext = goose.UpContext

// legacyColumns were added to accounts after the first release. Databases
// created before schema migrations existed may lack them.
var legacyColumns = []string{"phone", "reg_year", "country", "group_name", "deleted_at"}

// migrateSchema brings db to the current schema. Legacy databases are
// patched first so the goose migration can create its indexes on them.
func migrateSchema(ctx context.Context, db *sql.DB) error {
	if err := upgradeLegacySchema(ctx, db); err != nil {
		return fmt.Errorf("vault: legacy schema upgrade failed: %w", err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("vault: failed to set migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("vault: migration failed: %w", err)
	}
	return nil
}

// upgradeLegacySchema adds missing columns and replaces an inline
// "email TEXT UNIQUE" constraint, which would block re-creating an account
// whose previous row sits in the trash.
func upgradeLegacySchema(ctx context.Context, db *sql.DB) error {
	var schema string
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(sql, '') FROM sqlite_master WHERE type='table' AND name='accounts'").Scan(&schema)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	columns, err := tableColumns(ctx, db, "main", "accounts")
	if err != nil {
		return fmt.Errorf("failed to get table columns: %w", err)
	}
	for _, col := range legacyColumns {
		if columns[col] {
			continue
		}
		if _, err := db.ExecContext(ctx, "ALTER TABLE accounts ADD COLUMN "+col+" TEXT"); err != nil {
			return fmt.Errorf("failed to add %s column: %w", col, err)
		}
	}

	if !strings.Contains(strings.ToLower(schema), "email text unique") {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE accounts_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL,
			password TEXT NOT NULL,
			recovery TEXT,
			phone TEXT,
			secret TEXT,
			reg_year TEXT,
			country TEXT,
			group_name TEXT,
			remark TEXT,
			status TEXT NOT NULL DEFAULT 'inactive',
			sold_status TEXT NOT NULL DEFAULT 'unsold',
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at TEXT
		)`,
		`INSERT INTO accounts_new (` + accountColumns + `)
		 SELECT ` + accountColumns + ` FROM accounts`,
		`DROP TABLE accounts`,
		`ALTER TABLE accounts_new RENAME TO accounts`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to rebuild accounts table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// tableColumns returns the column names of schema.table. An unknown table
// yields an empty map.
func tableColumns(ctx context.Context, q queryer, schema, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA %s.table_info(%s)", schema, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}

	return columns, rows.Err()
}
