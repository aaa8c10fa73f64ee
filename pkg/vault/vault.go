// Package vault stores accounts in SQLite with password and 2FA secret
// encrypted at rest.
//
// All reads and writes go through a single connection guarded by a mutex.
// Plaintext passwords and secrets only exist in memory after decryption;
// the database holds "v2:" field envelopes (see pkg/crypto).
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/forest6511/acctvault/internal/logging"

	_ "modernc.org/sqlite"
)

const (
	DBFileName = "data.db"
	FileMode   = 0600 // Owner read/write only
	DirMode    = 0700 // Owner read/write/execute only

	// BusyTimeoutMillis bounds how long a statement waits on a locked database.
	BusyTimeoutMillis = 5000
)

// Account status values.
const (
	StatusInactive = "inactive"
	StatusPro      = "pro"
	SoldUnsold     = "unsold"
	SoldSold       = "sold"
)

// Errors
var (
	ErrNotFound       = errors.New("vault: account not found")
	ErrNotDeleted     = errors.New("vault: account not found or not in trash")
	ErrDuplicateEmail = errors.New("vault: an active account with this email already exists")
	ErrInvalidInput   = errors.New("vault: invalid account input")
	ErrClosed         = errors.New("vault: vault is closed")
	ErrCorruptSource  = errors.New("vault: source database failed integrity check")
)

// Vault owns the accounts database.
type Vault struct {
	path   string
	db     *sql.DB
	codec  *Codec
	logger logging.Logger
	mu     sync.Mutex
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger used for per-row import failures.
func WithLogger(l logging.Logger) Option {
	return func(v *Vault) {
		v.logger = l
	}
}

// Open opens (creating if needed) the database at path and migrates it.
// keys supplies the field encryption key.
func Open(ctx context.Context, path string, keys KeySource, opts ...Option) (*Vault, error) {
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return nil, fmt.Errorf("vault: failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open database: %w", err)
	}

	// A single connection keeps ATTACH and per-connection pragmas consistent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: failed to open database: %w", err)
	}
	if err := migrateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := os.Chmod(path, FileMode); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("vault: failed to set database permissions: %w", err)
	}

	v := &Vault{
		path:   path,
		db:     db,
		codec:  NewCodec(keys),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", BusyTimeoutMillis))
	return path + "?" + q.Encode()
}

// Close closes the database.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.db == nil {
		return nil
	}
	err := v.db.Close()
	v.db = nil
	return err
}

// Path returns the database file path.
func (v *Vault) Path() string {
	return v.path
}

// lock acquires the storage mutex and reports ErrClosed after Close.
func (v *Vault) lock() error {
	v.mu.Lock()
	if v.db == nil {
		v.mu.Unlock()
		return ErrClosed
	}
	return nil
}
