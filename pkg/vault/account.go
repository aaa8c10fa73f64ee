package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// accountColumns is the column list shared by every account query.
const accountColumns = "id, email, password, recovery, phone, secret, reg_year, country, group_name, remark, status, sold_status, created_at, updated_at, deleted_at"

// Account is a decrypted account record.
type Account struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Recovery   string `json:"recovery"`
	Phone      string `json:"phone"`
	Secret     string `json:"secret"`
	RegYear    string `json:"reg_year"`
	Country    string `json:"country"`
	GroupName  string `json:"group_name"`
	Remark     string `json:"remark"`
	Status     string `json:"status"`
	SoldStatus string `json:"sold_status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	DeletedAt  string `json:"deleted_at,omitempty"`
}

// Input carries the user-editable fields of an account. Empty optional
// fields are stored as NULL.
type Input struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Recovery  string `json:"recovery,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Secret    string `json:"secret,omitempty"`
	RegYear   string `json:"reg_year,omitempty"`
	Country   string `json:"country,omitempty"`
	GroupName string `json:"group_name,omitempty"`
	Remark    string `json:"remark,omitempty"`
}

func (in Input) validate() error {
	if strings.TrimSpace(in.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return nil
}

// Filter narrows ListAccounts. Search matches email or remark as a
// substring; SoldStatus applies only when it is "sold" or "unsold".
type Filter struct {
	Search     string `json:"search,omitempty"`
	SoldStatus string `json:"sold_status,omitempty"`
}

// trackedFields are recorded in account_history when they change.
// password and secret are never tracked.
var trackedFields = []struct {
	name string
	get  func(*Input) string
}{
	{"email", func(in *Input) string { return in.Email }},
	{"recovery", func(in *Input) string { return in.Recovery }},
	{"phone", func(in *Input) string { return in.Phone }},
	{"reg_year", func(in *Input) string { return in.RegYear }},
	{"country", func(in *Input) string { return in.Country }},
	{"group_name", func(in *Input) string { return in.GroupName }},
	{"remark", func(in *Input) string { return in.Remark }},
}

type rowScanner interface {
	Scan(dest ...any) error
}

// rawAccount is an accounts row before decryption.
type rawAccount struct {
	id                                                     int64
	email, password                                        string
	recovery, phone, secret, regYear, country, group, note sql.NullString
	status, soldStatus, createdAt, updatedAt               string
	deletedAt                                              sql.NullString
}

func scanRaw(s rowScanner) (*rawAccount, error) {
	var r rawAccount
	err := s.Scan(&r.id, &r.email, &r.password, &r.recovery, &r.phone, &r.secret,
		&r.regYear, &r.country, &r.group, &r.note,
		&r.status, &r.soldStatus, &r.createdAt, &r.updatedAt, &r.deletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *rawAccount) input() Input {
	return Input{
		Email:     r.email,
		Recovery:  r.recovery.String,
		Phone:     r.phone.String,
		RegYear:   r.regYear.String,
		Country:   r.country.String,
		GroupName: r.group.String,
		Remark:    r.note.String,
	}
}

func (v *Vault) decode(r *rawAccount) (*Account, error) {
	password, secret, err := v.codec.open(r.id, r.password, r.secret)
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:         r.id,
		Email:      r.email,
		Password:   password,
		Recovery:   r.recovery.String,
		Phone:      r.phone.String,
		Secret:     secret,
		RegYear:    r.regYear.String,
		Country:    r.country.String,
		GroupName:  r.group.String,
		Remark:     r.note.String,
		Status:     r.status,
		SoldStatus: r.soldStatus,
		CreatedAt:  r.createdAt,
		UpdatedAt:  r.updatedAt,
		DeletedAt:  r.deletedAt.String,
	}, nil
}

func (v *Vault) queryAccounts(ctx context.Context, query string, args ...any) ([]*Account, error) {
	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*Account{}
	for rows.Next() {
		raw, err := scanRaw(rows)
		if err != nil {
			return nil, fmt.Errorf("vault: failed to scan account: %w", err)
		}
		acc, err := v.decode(raw)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vault: failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

func (v *Vault) getActive(ctx context.Context, id int64) (*Account, error) {
	row := v.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? AND deleted_at IS NULL", id)
	raw, err := scanRaw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read account: %w", err)
	}
	return v.decode(raw)
}

// ListAccounts returns active accounts matching f, newest id first.
func (v *Vault) ListAccounts(ctx context.Context, f Filter) ([]*Account, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()
	return v.listAccounts(ctx, f)
}

func (v *Vault) listAccounts(ctx context.Context, f Filter) ([]*Account, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any

	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		where = append(where, "(email LIKE ? OR remark LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if f.SoldStatus == SoldSold || f.SoldStatus == SoldUnsold {
		where = append(where, "sold_status = ?")
		args = append(args, f.SoldStatus)
	}

	query := "SELECT " + accountColumns + " FROM accounts WHERE " +
		strings.Join(where, " AND ") + " ORDER BY id DESC"
	return v.queryAccounts(ctx, query, args...)
}

// ListAccountsByIDs returns the active accounts among ids, newest id first.
func (v *Vault) ListAccountsByIDs(ctx context.Context, ids []int64) ([]*Account, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()
	return v.listAccountsByIDs(ctx, ids)
}

func (v *Vault) listAccountsByIDs(ctx context.Context, ids []int64) ([]*Account, error) {
	if len(ids) == 0 {
		return []*Account{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT " + accountColumns + " FROM accounts WHERE id IN (" + placeholders +
		") AND deleted_at IS NULL ORDER BY id DESC"
	return v.queryAccounts(ctx, query, args...)
}

// ListForExport selects by ids when any are given and by f otherwise.
func (v *Vault) ListForExport(ctx context.Context, ids []int64, f Filter) ([]*Account, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	if len(ids) > 0 {
		return v.listAccountsByIDs(ctx, ids)
	}
	return v.listAccounts(ctx, f)
}

// GetAccount returns one active account.
func (v *Vault) GetAccount(ctx context.Context, id int64) (*Account, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()
	return v.getActive(ctx, id)
}

// CreateAccount inserts a new account with status inactive and sold status unsold.
func (v *Vault) CreateAccount(ctx context.Context, in Input) (*Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	enc, err := v.codec.seal(in.Password, in.Secret)
	if err != nil {
		return nil, err
	}

	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	res, err := v.db.ExecContext(ctx, insertAccountSQL, insertArgs(in, enc)...)
	if err != nil {
		return nil, mapWriteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read new account id: %w", err)
	}
	return v.getActive(ctx, id)
}

const insertAccountSQL = `INSERT INTO accounts
	(email, password, recovery, phone, secret, reg_year, country, group_name, remark, status, sold_status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(in Input, enc sealed) []any {
	return []any{
		strings.TrimSpace(in.Email), enc.password,
		nullable(in.Recovery), nullable(in.Phone), enc.secret,
		nullable(in.RegYear), nullable(in.Country), nullable(in.GroupName), nullable(in.Remark),
		StatusInactive, SoldUnsold,
	}
}

// UpdateAccount replaces the editable fields of an active account and
// records changes to tracked fields in the same transaction.
func (v *Vault) UpdateAccount(ctx context.Context, id int64, in Input) (*Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.Email = strings.TrimSpace(in.Email)
	enc, err := v.codec.seal(in.Password, in.Secret)
	if err != nil {
		return nil, err
	}

	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? AND deleted_at IS NULL", id)
	old, err := scanRaw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read account: %w", err)
	}

	before := old.input()
	for _, f := range trackedFields {
		oldVal, newVal := f.get(&before), f.get(&in)
		if oldVal == newVal {
			continue
		}
		if err := insertHistory(ctx, tx, id, f.name, oldVal, newVal); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE accounts SET email = ?, password = ?, recovery = ?, phone = ?,
		secret = ?, reg_year = ?, country = ?, group_name = ?, remark = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL`,
		in.Email, enc.password, nullable(in.Recovery), nullable(in.Phone), enc.secret,
		nullable(in.RegYear), nullable(in.Country), nullable(in.GroupName), nullable(in.Remark), id)
	if err != nil {
		return nil, mapWriteError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("vault: failed to commit transaction: %w", err)
	}
	return v.getActive(ctx, id)
}

// DeleteAccount moves an active account to the trash.
func (v *Vault) DeleteAccount(ctx context.Context, id int64) error {
	if err := v.lock(); err != nil {
		return err
	}
	defer v.mu.Unlock()

	n, err := v.execCount(ctx, `UPDATE accounts SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAllAccounts moves every active account to the trash and returns the count.
func (v *Vault) DeleteAllAccounts(ctx context.Context) (int64, error) {
	if err := v.lock(); err != nil {
		return 0, err
	}
	defer v.mu.Unlock()

	return v.execCount(ctx, `UPDATE accounts SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE deleted_at IS NULL`)
}

// ListDeleted returns the trash, most recently deleted first.
func (v *Vault) ListDeleted(ctx context.Context) ([]*Account, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	return v.queryAccounts(ctx, "SELECT "+accountColumns+
		" FROM accounts WHERE deleted_at IS NOT NULL ORDER BY deleted_at DESC, id DESC")
}

// RestoreAccount moves an account out of the trash. It fails with
// ErrDuplicateEmail when another active account has taken its email.
func (v *Vault) RestoreAccount(ctx context.Context, id int64) (*Account, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	n, err := v.execCount(ctx, `UPDATE accounts SET deleted_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotDeleted
	}
	return v.getActive(ctx, id)
}

// PurgeAccount permanently removes an account that is in the trash.
// Its history goes with it.
func (v *Vault) PurgeAccount(ctx context.Context, id int64) error {
	if err := v.lock(); err != nil {
		return err
	}
	defer v.mu.Unlock()

	n, err := v.execCount(ctx, "DELETE FROM accounts WHERE id = ? AND deleted_at IS NOT NULL", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotDeleted
	}
	return nil
}

// PurgeAllDeleted empties the trash and returns the count.
func (v *Vault) PurgeAllDeleted(ctx context.Context) (int64, error) {
	if err := v.lock(); err != nil {
		return 0, err
	}
	defer v.mu.Unlock()

	return v.execCount(ctx, "DELETE FROM accounts WHERE deleted_at IS NOT NULL")
}

// ToggleStatus flips status between inactive and pro.
func (v *Vault) ToggleStatus(ctx context.Context, id int64) (*Account, error) {
	return v.toggle(ctx, id, "status", StatusPro, StatusInactive)
}

// ToggleSoldStatus flips sold_status between unsold and sold.
func (v *Vault) ToggleSoldStatus(ctx context.Context, id int64) (*Account, error) {
	return v.toggle(ctx, id, "sold_status", SoldSold, SoldUnsold)
}

// toggle sets column to off when it currently equals on, and to on otherwise.
func (v *Vault) toggle(ctx context.Context, id int64, column, on, off string) (*Account, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.mu.Unlock()

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT "+column+" FROM accounts WHERE id = ? AND deleted_at IS NULL", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read %s: %w", column, err)
	}

	next := on
	if current == on {
		next = off
	}
	if err := insertHistory(ctx, tx, id, column, current, next); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE accounts SET "+column+" = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL",
		next, id); err != nil {
		return nil, fmt.Errorf("vault: failed to update %s: %w", column, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("vault: failed to commit transaction: %w", err)
	}
	return v.getActive(ctx, id)
}

// BatchImport inserts inputs in one transaction. Rows that fail validation,
// encryption or insertion (duplicate email included) are counted and logged
// without aborting the batch.
func (v *Vault) BatchImport(ctx context.Context, inputs []Input) (ok, failed int, err error) {
	if _, err := v.codec.key(); err != nil {
		return 0, 0, err
	}

	if err := v.lock(); err != nil {
		return 0, 0, err
	}
	defer v.mu.Unlock()

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("vault: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertAccountSQL)
	if err != nil {
		return 0, 0, fmt.Errorf("vault: failed to prepare import statement: %w", err)
	}
	defer stmt.Close()

	for i, in := range inputs {
		if err := in.validate(); err != nil {
			v.logger.Warn(ctx, "import row rejected", "row", i+1, "error", err)
			failed++
			continue
		}
		enc, err := v.codec.seal(in.Password, in.Secret)
		if err != nil {
			v.logger.Warn(ctx, "import row encryption failed", "row", i+1, "email", in.Email, "error", err)
			failed++
			continue
		}
		if _, err := stmt.ExecContext(ctx, insertArgs(in, enc)...); err != nil {
			v.logger.Warn(ctx, "import row insert failed", "row", i+1, "email", in.Email, "error", mapWriteError(err))
			failed++
			continue
		}
		ok++
	}

	if err := stmt.Close(); err != nil {
		return 0, 0, fmt.Errorf("vault: failed to close import statement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("vault: failed to commit import, rolled back: %w", err)
	}
	return ok, failed, nil
}

func (v *Vault) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := v.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("vault: failed to get rows affected: %w", err)
	}
	return n, nil
}

// mapWriteError turns a unique-index violation into ErrDuplicateEmail.
func mapWriteError(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return ErrDuplicateEmail
	}
	return fmt.Errorf("vault: write failed: %w", err)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
