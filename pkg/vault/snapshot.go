package vault

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var accountColumnList = strings.Split(strings.ReplaceAll(accountColumns, " ", ""), ",")

const historyColumns = "id, account_id, field_name, old_value, new_value, changed_at"

// Snapshot writes a consistent copy of the database to dest, replacing any
// existing file there.
func (v *Vault) Snapshot(ctx context.Context, dest string) error {
	if err := v.lock(); err != nil {
		return err
	}
	defer v.mu.Unlock()

	if _, err := v.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)"); err != nil {
		return fmt.Errorf("vault: WAL checkpoint failed: %w", err)
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: failed to replace snapshot file: %w", err)
	}
	if _, err := v.db.ExecContext(ctx, "VACUUM INTO "+quote(dest)); err != nil {
		return fmt.Errorf("vault: snapshot failed: %w", err)
	}
	if err := os.Chmod(dest, FileMode); err != nil {
		return fmt.Errorf("vault: failed to set snapshot permissions: %w", err)
	}
	return nil
}

// VerifyFile runs SQLite's integrity check against the database at path.
func VerifyFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("vault: cannot open source database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("vault: cannot open source database: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSource, err)
	}
	if !strings.EqualFold(result, "ok") {
		return fmt.Errorf("%w: %s", ErrCorruptSource, result)
	}
	return nil
}

// ReplaceFrom replaces every account and history row with those of the
// database at src, in one transaction. Columns missing from an older
// source are filled with NULL, and a source without a history table leaves
// the history empty.
func (v *Vault) ReplaceFrom(ctx context.Context, src string) error {
	if err := VerifyFile(ctx, src); err != nil {
		return err
	}

	if err := v.lock(); err != nil {
		return err
	}
	defer v.mu.Unlock()

	conn, err := v.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("vault: failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS backup_db", src); err != nil {
		return fmt.Errorf("vault: failed to attach source database: %w", err)
	}
	attached := true
	defer func() {
		if attached {
			_, _ = conn.ExecContext(context.Background(), "DETACH DATABASE backup_db")
		}
	}()

	if err := replaceTables(ctx, conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "DETACH DATABASE backup_db"); err != nil {
		return fmt.Errorf("vault: failed to detach source database: %w", err)
	}
	attached = false
	return nil
}

func replaceTables(ctx context.Context, conn *sql.Conn) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vault: failed to begin restore transaction: %w", err)
	}
	defer tx.Rollback()

	srcCols, err := tableColumns(ctx, tx, "backup_db", "accounts")
	if err != nil {
		return fmt.Errorf("vault: failed to inspect source database: %w", err)
	}
	if !srcCols["id"] || !srcCols["email"] || !srcCols["password"] {
		return fmt.Errorf("%w: no usable accounts table", ErrCorruptSource)
	}

	// Legacy sources may lack columns; NOT NULL ones get their defaults.
	selects := make([]string, len(accountColumnList))
	for i, col := range accountColumnList {
		switch {
		case srcCols[col]:
			selects[i] = col
		case col == "status":
			selects[i] = quote(StatusInactive)
		case col == "sold_status":
			selects[i] = quote(SoldUnsold)
		case col == "created_at" || col == "updated_at":
			selects[i] = "CURRENT_TIMESTAMP"
		default:
			selects[i] = "NULL"
		}
	}

	stmts := []string{
		"DELETE FROM account_history",
		"DELETE FROM accounts",
		"INSERT INTO accounts (" + accountColumns + ") SELECT " +
			strings.Join(selects, ", ") + " FROM backup_db.accounts",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("vault: restore failed: %w", err)
		}
	}

	var hasHistory int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM backup_db.sqlite_master WHERE type='table' AND name='account_history'").Scan(&hasHistory)
	if err != nil {
		return fmt.Errorf("vault: failed to inspect source history: %w", err)
	}
	if hasHistory > 0 {
		if _, err := tx.ExecContext(ctx, "INSERT INTO account_history ("+historyColumns+") SELECT "+
			historyColumns+" FROM backup_db.account_history"); err != nil {
			return fmt.Errorf("vault: failed to restore history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vault: failed to commit restore: %w", err)
	}
	return nil
}

// DumpSQL writes the schema and all rows (trash included) as SQL
// statements. Encrypted columns are written as stored.
func (v *Vault) DumpSQL(ctx context.Context, w io.Writer) error {
	if err := v.lock(); err != nil {
		return err
	}
	defer v.mu.Unlock()

	bw := bufio.NewWriter(w)

	schemas, err := v.schemaSQL(ctx)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		fmt.Fprintf(bw, "%s;\n\n", s)
	}

	if err := dumpTable(ctx, v.db, bw, "accounts", accountColumns); err != nil {
		return err
	}
	bw.WriteString("\n")
	if err := dumpTable(ctx, v.db, bw, "account_history", historyColumns); err != nil {
		return err
	}
	return bw.Flush()
}

func (v *Vault) schemaSQL(ctx context.Context) ([]string, error) {
	rows, err := v.db.QueryContext(ctx, `SELECT sql FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%' AND name NOT LIKE 'goose_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read schema: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("vault: failed to read schema: %w", err)
		}
		if s.Valid {
			out = append(out, s.String)
		}
	}
	return out, rows.Err()
}

func dumpTable(ctx context.Context, db *sql.DB, w *bufio.Writer, table, columns string) error {
	rows, err := db.QueryContext(ctx, "SELECT "+columns+" FROM "+table+" ORDER BY id")
	if err != nil {
		return fmt.Errorf("vault: failed to dump %s: %w", table, err)
	}
	defer rows.Close()

	n := len(strings.Split(columns, ","))
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("vault: failed to dump %s: %w", table, err)
		}
		literals := make([]string, n)
		for i, val := range values {
			literals[i] = sqlLiteral(val)
		}
		fmt.Fprintf(w, "INSERT INTO %s (%s) VALUES (%s);\n", table, columns, strings.Join(literals, ", "))
	}
	return rows.Err()
}

func sqlLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []byte:
		return quote(string(x))
	case string:
		return quote(x)
	default:
		return quote(fmt.Sprint(x))
	}
}

// quote returns s as a single-quoted SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// IntegrityCheckResult reports the health of the database.
type IntegrityCheckResult struct {
	Valid            bool     `json:"valid"`
	DBIntegrity      bool     `json:"db_integrity"`
	PermissionsValid bool     `json:"permissions_valid"`
	Accounts         int      `json:"accounts"`
	Undecryptable    []string `json:"undecryptable,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

// CheckIntegrity runs SQLite's integrity check, verifies file permissions
// and tries to open every stored envelope. Failures are collected, not
// returned; err is set only when the check itself cannot run.
func (v *Vault) CheckIntegrity(ctx context.Context) (*IntegrityCheckResult, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	result := &IntegrityCheckResult{Valid: true, PermissionsValid: true}

	if info, err := os.Stat(v.path); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			result.Valid = false
			result.PermissionsValid = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("database file has insecure permissions: %04o (expected 0600)", perm))
		}
	}

	var check string
	if err := v.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&check); err != nil {
		return nil, fmt.Errorf("vault: integrity check failed: %w", err)
	}
	if !strings.EqualFold(check, "ok") {
		result.Valid = false
		result.Errors = append(result.Errors, "database integrity check returned: "+check)
		return result, nil
	}
	result.DBIntegrity = true

	rows, err := v.db.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("vault: failed to scan accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		raw, err := scanRaw(rows)
		if err != nil {
			return nil, fmt.Errorf("vault: failed to scan accounts: %w", err)
		}
		result.Accounts++
		if _, _, err := v.codec.open(raw.id, raw.password, raw.secret); err != nil {
			var ie *IntegrityError
			if !errors.As(err, &ie) {
				return nil, err
			}
			result.Valid = false
			result.Undecryptable = append(result.Undecryptable,
				fmt.Sprintf("account %d field %s", ie.AccountID, ie.Field))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vault: failed to scan accounts: %w", err)
	}
	return result, nil
}
