package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/forest6511/acctvault/internal/config"
	"github.com/forest6511/acctvault/internal/logging"
	"github.com/forest6511/acctvault/pkg/audit"
	"github.com/forest6511/acctvault/pkg/auth"
	"github.com/forest6511/acctvault/pkg/backup"
	"github.com/forest6511/acctvault/pkg/masterkey"
	"github.com/forest6511/acctvault/pkg/security"
	"github.com/forest6511/acctvault/pkg/service"
	"github.com/forest6511/acctvault/pkg/totp"
	"github.com/forest6511/acctvault/pkg/vault"
)

const (
	// EventSessionExpired is emitted when a call finds the session gone.
	EventSessionExpired = "session:expired"

	idleTimeout    = 15 * time.Minute
	clipboardClear = 30 * time.Second
)

var errNotReady = errors.New("vault is not open")

// App is bound to the frontend. It keeps the session token on the Go side;
// the frontend only sees login results.
type App struct {
	ctx    context.Context
	cfg    *config.Config
	logger logging.Logger

	vault   *vault.Vault
	backups *backup.Manager
	svc     *service.Service

	mu           sync.Mutex
	token        string
	lastActivity time.Time

	// Runtime calls, replaced in tests.
	emit     func(event string)
	setClip  func(text string) error
	readClip func() (string, error)
}

// NewApp creates the bridge for cfg. The vault is opened in startup.
func NewApp(cfg *config.Config, logger logging.Logger) *App {
	a := &App{cfg: cfg, logger: logger}
	a.emit = func(event string) { runtime.EventsEmit(a.ctx, event) }
	a.setClip = func(text string) error { return runtime.ClipboardSetText(a.ctx, text) }
	a.readClip = func() (string, error) { return runtime.ClipboardGetText(a.ctx) }
	return a
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	if err := a.open(ctx); err != nil {
		a.logger.Error(ctx, "failed to open vault", "error", err)
		return
	}
	if info, err := a.backups.Create(ctx, backup.ReasonStartup); err != nil {
		a.logger.Warn(ctx, "startup backup failed", "error", err)
	} else {
		a.logger.Info(ctx, "startup backup created", "name", info.Name)
	}
	go a.watchIdleTimeout(ctx)
}

// shutdown is called at app termination
func (a *App) shutdown(ctx context.Context) {
	a.ClearClipboard()
	_ = a.Logout()
	if a.vault != nil {
		a.vault.Close()
	}
}

func (a *App) open(ctx context.Context) error {
	keys := masterkey.New(masterkey.DefaultKeyPath(a.cfg.DataDir))
	key, err := keys.MasterKey()
	if err != nil {
		return err
	}
	if keys.Source() == masterkey.SourceGenerated {
		a.logger.Warn(ctx, "generated a new master key; back it up", "path", keys.Path())
	}

	v, err := vault.Open(ctx, a.cfg.DBPath, keys, vault.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.vault = v
	a.backups = backup.NewManager(a.cfg.BackupDir, v, backup.WithKeep(a.cfg.KeepBackups), backup.WithLogger(a.logger))

	opts := []service.Option{service.WithSource(audit.SourceDesktop), service.WithLogger(a.logger)}
	var gateOpts []auth.Option
	if !a.cfg.Audit.Disabled {
		al := audit.NewLogger(a.cfg.Audit.Dir)
		if err := al.SetHMACKey(key); err != nil {
			return fmt.Errorf("failed to initialize audit log: %w", err)
		}
		opts = append(opts, service.WithAuditor(al))
		gateOpts = append(gateOpts, auth.WithObserver(service.AuditObserver(al, audit.SourceDesktop)))
	}
	if a.cfg.S3.Enabled() {
		up, err := backup.NewS3Uploader(a.cfg.S3, a.logger)
		if err != nil {
			return err
		}
		opts = append(opts, service.WithUploader(up))
	}
	a.svc = service.New(auth.New(gateOpts...), v, a.backups, opts...)
	return nil
}

// watchIdleTimeout ends the session after idleTimeout without activity.
func (a *App) watchIdleTimeout(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.expireIfIdle(time.Now()) {
				a.emit(EventSessionExpired)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) expireIfIdle(now time.Time) bool {
	a.mu.Lock()
	token := a.token
	idle := now.Sub(a.lastActivity)
	a.mu.Unlock()

	if token == "" || idle <= idleTimeout {
		return false
	}
	_ = a.Logout()
	return true
}

// ResetIdleTimer is called on user activity
func (a *App) ResetIdleTimer() {
	a.mu.Lock()
	a.lastActivity = time.Now()
	a.mu.Unlock()
}

// session returns the current token and marks activity.
func (a *App) session() (string, error) {
	if a.svc == nil {
		return "", errNotReady
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastActivity = time.Now()
	return a.token, nil
}

// guard drops the local token and tells the frontend when err is an
// authentication failure.
func (a *App) guard(err error) error {
	if errors.Is(err, auth.ErrUnauthenticated) {
		a.mu.Lock()
		a.token = ""
		a.mu.Unlock()
		a.emit(EventSessionExpired)
	}
	return err
}

// ============================================================================
// Authentication API
// ============================================================================

// AuthStatus represents authentication state
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	DataDir       string `json:"dataDir"`
	Message       string `json:"message,omitempty"`
}

// Login opens a session with the admin password.
func (a *App) Login(password string) (auth.Result, error) {
	if a.svc == nil {
		return auth.Result{}, errNotReady
	}
	res := a.svc.Login(password)
	if res.Success {
		a.mu.Lock()
		a.token = res.SessionToken
		a.lastActivity = time.Now()
		a.mu.Unlock()
	}
	// The token stays on this side of the bridge.
	res.SessionToken = ""
	return res, nil
}

// Check reports whether the held session is still valid.
func (a *App) Check() AuthStatus {
	status := AuthStatus{DataDir: a.cfg.DataDir}
	token, err := a.session()
	if err != nil {
		status.Message = err.Error()
		return status
	}
	res := a.svc.Check(token)
	status.Authenticated = res.Success
	status.Message = res.Message
	return status
}

// Logout ends the session and clears the clipboard.
func (a *App) Logout() error {
	a.mu.Lock()
	token := a.token
	a.token = ""
	a.mu.Unlock()

	if token == "" || a.svc == nil {
		return nil
	}
	a.ClearClipboard()
	if err := a.svc.Logout(token); err != nil && !errors.Is(err, auth.ErrInvalidSession) {
		return err
	}
	return nil
}

// ============================================================================
// Account API
// ============================================================================

// ListAccounts returns active accounts matching search and soldStatus.
func (a *App) ListAccounts(search, soldStatus string) ([]*vault.Account, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	accounts, err := a.svc.ListAccounts(a.ctx, token, vault.Filter{Search: search, SoldStatus: soldStatus})
	return accounts, a.guard(err)
}

// GetAccount returns one account.
func (a *App) GetAccount(id int64) (*vault.Account, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	acc, err := a.svc.GetAccount(a.ctx, token, id)
	return acc, a.guard(err)
}

// CreateAccount adds an account.
func (a *App) CreateAccount(in vault.Input) (*vault.Account, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	acc, err := a.svc.CreateAccount(a.ctx, token, in)
	return acc, a.guard(err)
}

// UpdateAccount replaces the editable fields of an account.
func (a *App) UpdateAccount(id int64, in vault.Input) (*vault.Account, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	acc, err := a.svc.UpdateAccount(a.ctx, token, id, in)
	return acc, a.guard(err)
}

// DeleteAccount moves an account to the trash.
func (a *App) DeleteAccount(id int64) error {
	token, err := a.session()
	if err != nil {
		return err
	}
	return a.guard(a.svc.DeleteAccount(a.ctx, token, id))
}

// DeleteAllAccounts moves every active account to the trash.
func (a *App) DeleteAllAccounts() (int64, error) {
	token, err := a.session()
	if err != nil {
		return 0, err
	}
	n, err := a.svc.DeleteAllAccounts(a.ctx, token)
	return n, a.guard(err)
}

// ListDeleted returns the trash.
func (a *App) ListDeleted() ([]*vault.Account, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	accounts, err := a.svc.ListDeleted(a.ctx, token)
	return accounts, a.guard(err)
}

// RestoreAccount takes an account out of the trash.
func (a *App) RestoreAccount(id int64) (*vault.Account, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	acc, err := a.svc.RestoreAccount(a.ctx, token, id)
	return acc, a.guard(err)
}

// PurgeAccount permanently deletes a trashed account.
func (a *App) PurgeAccount(id int64) error {
	token, err := a.session()
	if err != nil {
		return err
	}
	return a.guard(a.svc.PurgeAccount(a.ctx, token, id))
}

// PurgeAllDeleted empties the trash.
func (a *App) PurgeAllDeleted() (int64, error) {
	token, err := a.session()
	if err != nil {
		return 0, err
	}
	n, err := a.svc.PurgeAllDeleted(a.ctx, token)
	return n, a.guard(err)
}

// ToggleStatus switches an account between inactive and pro.
func (a *App) ToggleStatus(id int64) (*vault.Account, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	acc, err := a.svc.ToggleStatus(a.ctx, token, id)
	return acc, a.guard(err)
}

// ToggleSoldStatus switches an account between unsold and sold.
func (a *App) ToggleSoldStatus(id int64) (*vault.Account, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	acc, err := a.svc.ToggleSoldStatus(a.ctx, token, id)
	return acc, a.guard(err)
}

// History returns the recorded changes of an account.
func (a *App) History(id int64) ([]*vault.History, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	h, err := a.svc.History(a.ctx, token, id)
	return h, a.guard(err)
}

// ImportText parses pasted text and imports the accounts found.
func (a *App) ImportText(text string) (*service.ImportResult, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	res, err := a.svc.ImportText(a.ctx, token, text)
	return res, a.guard(err)
}

// ============================================================================
// Clipboard API
// ============================================================================

// CopyPassword copies an account password and clears it after 30 seconds.
// The value is read from the vault, never taken from the caller.
func (a *App) CopyPassword(id int64) error {
	acc, err := a.GetAccount(id)
	if err != nil {
		return err
	}
	return a.CopyToClipboard(acc.Password)
}

// CopyTOTP copies the current 2FA code of an account.
func (a *App) CopyTOTP(id int64) (*totp.Code, error) {
	code, err := a.AccountTOTP(id)
	if err != nil {
		return nil, err
	}
	return code, a.CopyToClipboard(code.Code)
}

// CopyToClipboard sets the clipboard and clears it after 30 seconds
// unless it changed in the meantime.
func (a *App) CopyToClipboard(value string) error {
	if err := a.setClip(value); err != nil {
		return err
	}
	go func() {
		time.Sleep(clipboardClear)
		if current, _ := a.readClip(); current == value {
			_ = a.setClip("")
		}
	}()
	return nil
}

// ClearClipboard clears the system clipboard
func (a *App) ClearClipboard() {
	if a.ctx != nil {
		_ = a.setClip("")
	}
}

// ============================================================================
// Export, TOTP and security API
// ============================================================================

// ExportText renders accounts as text.
func (a *App) ExportText(req service.ExportRequest) (string, error) {
	token, err := a.session()
	if err != nil {
		return "", err
	}
	out, err := a.svc.ExportText(a.ctx, token, req)
	return out, a.guard(err)
}

// ExportSQL returns a SQL dump of the database.
func (a *App) ExportSQL() (string, error) {
	token, err := a.session()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	err = a.svc.ExportSQL(a.ctx, token, &b)
	return b.String(), a.guard(err)
}

// GenerateTOTP returns the current code for a raw secret.
func (a *App) GenerateTOTP(secret string) (*totp.Code, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	code, err := a.svc.GenerateTOTP(a.ctx, token, secret)
	return code, a.guard(err)
}

// AccountTOTP returns the current code for a stored account.
func (a *App) AccountTOTP(id int64) (*totp.Code, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	code, err := a.svc.AccountTOTP(a.ctx, token, id)
	return code, a.guard(err)
}

// SecurityScore scores password health.
func (a *App) SecurityScore() (*security.Score, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	score, err := a.svc.SecurityReport(a.ctx, token)
	return score, a.guard(err)
}

// ============================================================================
// Backup API
// ============================================================================

// CreateBackup snapshots the database.
func (a *App) CreateBackup(reason string) (*backup.Info, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	info, err := a.svc.CreateBackup(a.ctx, token, reason)
	return info, a.guard(err)
}

// ListBackups lists backups, newest first.
func (a *App) ListBackups() ([]*backup.Info, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	infos, err := a.svc.ListBackups(a.ctx, token)
	return infos, a.guard(err)
}

// RestoreBackup replaces the database with a backup.
func (a *App) RestoreBackup(name string) (*backup.Info, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	safety, err := a.svc.RestoreBackup(a.ctx, token, name)
	return safety, a.guard(err)
}

// UploadBackup copies a backup to the configured bucket.
func (a *App) UploadBackup(name string) (string, error) {
	token, err := a.session()
	if err != nil {
		return "", err
	}
	loc, err := a.svc.UploadBackup(a.ctx, token, name)
	return loc, a.guard(err)
}

// ============================================================================
// Audit Log API
// ============================================================================

// AuditLogEntry represents an audit log entry for frontend
type AuditLogEntry struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Source    string `json:"source"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// ListAuditLogs returns up to limit recent audit events.
func (a *App) ListAuditLogs(limit int) ([]AuditLogEntry, error) {
	token, err := a.session()
	if err != nil {
		return nil, err
	}
	events, err := a.svc.ListAudit(a.ctx, token, limit, time.Time{})
	if err != nil {
		return nil, a.guard(err)
	}

	entries := make([]AuditLogEntry, 0, len(events))
	for _, event := range events {
		errMsg := ""
		if event.Error != nil {
			errMsg = event.Error.Message
		}
		entries = append(entries, AuditLogEntry{
			Timestamp: event.Timestamp,
			Action:    event.Operation,
			Source:    event.Actor.Source,
			Success:   event.Result == audit.ResultSuccess,
			Error:     errMsg,
		})
	}
	return entries, nil
}

// VerifyAuditLogs verifies audit log integrity
func (a *App) VerifyAuditLogs() (bool, error) {
	token, err := a.session()
	if err != nil {
		return false, err
	}
	result, err := a.svc.VerifyAudit(a.ctx, token)
	if err != nil {
		return false, a.guard(err)
	}
	return result.Valid, nil
}
