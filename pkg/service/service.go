// Package service mediates every data access behind the auth gate.
//
// Each data-touching method takes the caller's session token and checks it
// with Gate.Require before touching storage. Outcomes are written to the
// audit log on a best-effort basis; an audit failure never fails the call.
package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/forest6511/acctvault/internal/logging"
	"github.com/forest6511/acctvault/pkg/audit"
	"github.com/forest6511/acctvault/pkg/auth"
	"github.com/forest6511/acctvault/pkg/backup"
	"github.com/forest6511/acctvault/pkg/export"
	"github.com/forest6511/acctvault/pkg/security"
	"github.com/forest6511/acctvault/pkg/vault"
)

// ErrAuditDisabled is returned by audit queries when no audit log is configured.
var ErrAuditDisabled = errors.New("service: audit log is not configured")

// Auditor records and reads back audit events. *audit.Logger implements it.
type Auditor interface {
	Log(op, source, result, key string, errInfo *audit.ErrorInfo, ctx map[string]any) error
	Verify() (*audit.VerifyResult, error)
	ListEvents(limit int, since time.Time) ([]audit.Event, error)
	Export(format string, since, until time.Time) ([]byte, error)
}

// Service is the single entry point used by the CLI, HTTP API, MCP server
// and desktop bridge.
type Service struct {
	gate     *auth.Gate
	vault    *vault.Vault
	backups  *backup.Manager
	audit    Auditor
	renderer *export.Renderer
	uploader backup.Uploader
	source   string
	now      func() time.Time
	logger   logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAuditor enables audit logging.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.audit = a }
}

// WithSource tags audit events with the calling surface (audit.SourceCLI, ...).
func WithSource(src string) Option {
	return func(s *Service) { s.source = src }
}

// WithUploader enables UploadBackup.
func WithUploader(u backup.Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithRenderer replaces the default export renderer.
func WithRenderer(r *export.Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

// WithClock sets the time source for TOTP codes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New returns a Service over the given gate, vault and backup manager.
func New(gate *auth.Gate, v *vault.Vault, backups *backup.Manager, opts ...Option) *Service {
	s := &Service{
		gate:     gate,
		vault:    v,
		backups:  backups,
		renderer: export.New(),
		source:   audit.SourceCLI,
		now:      time.Now,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuditObserver returns an auth.Observer that writes gate events to a.
// Pass it to auth.New with auth.WithObserver.
func AuditObserver(a Auditor, source string) auth.Observer {
	return auth.ObserverFunc(func(e auth.Event) {
		result := audit.ResultSuccess
		var ctx map[string]any
		switch e.Kind {
		case auth.EventLoginFailed:
			result = audit.ResultError
			ctx = map[string]any{"remaining": e.Remaining}
		case auth.EventLockout, auth.EventLoginBlocked, auth.EventLogoutFailed, auth.EventMisconfigured:
			result = audit.ResultDenied
		}
		_ = a.Log(string(e.Kind), source, result, "", nil, ctx)
	})
}

// Login passes through to the gate.
func (s *Service) Login(password string) auth.Result {
	return s.gate.Login(password)
}

// Check passes through to the gate.
func (s *Service) Check(token string) auth.Result {
	return s.gate.Check(token)
}

// Logout passes through to the gate.
func (s *Service) Logout(token string) error {
	return s.gate.Logout(token)
}

// denied audits a rejected call and returns err unchanged.
func (s *Service) denied(op string, err error) error {
	if s.audit != nil {
		var ae *auth.AuthError
		reason := err.Error()
		if errors.As(err, &ae) {
			reason = ae.Message
		}
		_ = s.audit.Log(audit.OpAuthDenied, s.source, audit.ResultDenied, "", nil,
			map[string]any{"op": op, "reason": reason})
	}
	return err
}

// record audits the outcome of op. key identifies the subject (an account
// id or backup name) and is stored only as an HMAC.
func (s *Service) record(op, key string, err error, ctx map[string]any) {
	if s.audit == nil {
		return
	}
	if err != nil {
		_ = s.audit.Log(op, s.source, audit.ResultError, key,
			&audit.ErrorInfo{Code: errorCode(err), Message: err.Error()}, ctx)
		return
	}
	_ = s.audit.Log(op, s.source, audit.ResultSuccess, key, nil, ctx)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, backup.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, vault.ErrDuplicateEmail):
		return "DUPLICATE"
	case errors.Is(err, vault.ErrInvalidInput), errors.Is(err, backup.ErrInvalidName):
		return "INVALID_INPUT"
	case errors.Is(err, vault.ErrIntegrity), errors.Is(err, backup.ErrChecksumMismatch),
		errors.Is(err, backup.ErrIntegrityFailed):
		return "INTEGRITY"
	default:
		return "INTERNAL"
	}
}

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// VerifyAudit walks the audit chain.
func (s *Service) VerifyAudit(ctx context.Context, token string) (*audit.VerifyResult, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied("audit.verify", err)
	}
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	return s.audit.Verify()
}

// ListAudit returns recent audit events.
func (s *Service) ListAudit(ctx context.Context, token string, limit int, since time.Time) ([]audit.Event, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied("audit.list", err)
	}
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	return s.audit.ListEvents(limit, since)
}

// ExportAudit renders audit events between since and until as "json" or "csv".
func (s *Service) ExportAudit(ctx context.Context, token, format string, since, until time.Time) ([]byte, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied("audit.export", err)
	}
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	return s.audit.Export(format, since, until)
}

// SecurityReport scores password hygiene across active accounts.
func (s *Service) SecurityReport(ctx context.Context, token string) (*security.Score, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied("security.report", err)
	}
	accounts, err := s.vault.ListAccounts(ctx, vault.Filter{})
	if err != nil {
		return nil, err
	}
	return security.NewCalculator().CalculateScore(accounts)
}
