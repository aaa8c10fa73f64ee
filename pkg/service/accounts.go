package service

import (
	"context"
	"fmt"

	"github.com/forest6511/acctvault/pkg/audit"
	"github.com/forest6511/acctvault/pkg/backup"
	"github.com/forest6511/acctvault/pkg/importer"
	"github.com/forest6511/acctvault/pkg/vault"
)

// ImportResult summarizes a batch import.
type ImportResult struct {
	Imported int             `json:"imported"`
	Failed   int             `json:"failed"`
	Stats    *importer.Stats `json:"stats,omitempty"`
	Notes    []string        `json:"notes,omitempty"`
}

// ListAccounts returns active accounts matching f.
func (s *Service) ListAccounts(ctx context.Context, token string, f vault.Filter) ([]*vault.Account, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied("account.list", err)
	}
	return s.vault.ListAccounts(ctx, f)
}

// GetAccount returns one active account.
func (s *Service) GetAccount(ctx context.Context, token string, id int64) (*vault.Account, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied("account.get", err)
	}
	return s.vault.GetAccount(ctx, id)
}

// CreateAccount stores a new account.
func (s *Service) CreateAccount(ctx context.Context, token string, in vault.Input) (*vault.Account, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpAccountCreate, err)
	}
	a, err := s.vault.CreateAccount(ctx, in)
	key := in.Email
	if a != nil {
		key = idKey(a.ID)
	}
	s.record(audit.OpAccountCreate, key, err, nil)
	return a, err
}

// UpdateAccount replaces an account's fields.
func (s *Service) UpdateAccount(ctx context.Context, token string, id int64, in vault.Input) (*vault.Account, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpAccountUpdate, err)
	}
	a, err := s.vault.UpdateAccount(ctx, id, in)
	s.record(audit.OpAccountUpdate, idKey(id), err, nil)
	return a, err
}

// DeleteAccount soft-deletes an account.
func (s *Service) DeleteAccount(ctx context.Context, token string, id int64) error {
	if err := s.gate.Require(token); err != nil {
		return s.denied(audit.OpAccountDelete, err)
	}
	err := s.vault.DeleteAccount(ctx, id)
	s.record(audit.OpAccountDelete, idKey(id), err, nil)
	return err
}

// DeleteAllAccounts takes a safety backup, then soft-deletes every active
// account. Nothing is deleted when the backup fails.
func (s *Service) DeleteAllAccounts(ctx context.Context, token string) (int64, error) {
	if err := s.gate.Require(token); err != nil {
		return 0, s.denied(audit.OpAccountDeleteAll, err)
	}

	info, err := s.backups.Create(ctx, backup.ReasonBeforeDeleteAll)
	if err != nil {
		err = fmt.Errorf("service: safety backup failed, nothing deleted: %w", err)
		s.record(audit.OpAccountDeleteAll, "", err, nil)
		return 0, err
	}
	s.record(audit.OpBackupCreate, info.Name, nil, map[string]any{"reason": backup.ReasonBeforeDeleteAll})

	n, err := s.vault.DeleteAllAccounts(ctx)
	s.record(audit.OpAccountDeleteAll, "", err, map[string]any{"count": n, "backup": info.Name})
	if err == nil {
		s.logger.Info(ctx, "all accounts deleted", "count", n, "backup", info.Name)
	}
	return n, err
}

// ListDeleted returns soft-deleted accounts.
func (s *Service) ListDeleted(ctx context.Context, token string) ([]*vault.Account, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied("account.list_deleted", err)
	}
	return s.vault.ListDeleted(ctx)
}

// RestoreAccount undoes a soft delete.
func (s *Service) RestoreAccount(ctx context.Context, token string, id int64) (*vault.Account, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpAccountRestore, err)
	}
	a, err := s.vault.RestoreAccount(ctx, id)
	s.record(audit.OpAccountRestore, idKey(id), err, nil)
	return a, err
}

// PurgeAccount permanently removes a soft-deleted account.
func (s *Service) PurgeAccount(ctx context.Context, token string, id int64) error {
	if err := s.gate.Require(token); err != nil {
		return s.denied(audit.OpAccountPurge, err)
	}
	err := s.vault.PurgeAccount(ctx, id)
	s.record(audit.OpAccountPurge, idKey(id), err, nil)
	return err
}

// PurgeAllDeleted permanently removes every soft-deleted account.
func (s *Service) PurgeAllDeleted(ctx context.Context, token string) (int64, error) {
	if err := s.gate.Require(token); err != nil {
		return 0, s.denied(audit.OpAccountPurgeAll, err)
	}
	n, err := s.vault.PurgeAllDeleted(ctx)
	s.record(audit.OpAccountPurgeAll, "", err, map[string]any{"count": n})
	return n, err
}

// ToggleStatus flips inactive and pro.
func (s *Service) ToggleStatus(ctx context.Context, token string, id int64) (*vault.Account, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpAccountToggleStatus, err)
	}
	a, err := s.vault.ToggleStatus(ctx, id)
	s.record(audit.OpAccountToggleStatus, idKey(id), err, nil)
	return a, err
}

// ToggleSoldStatus flips unsold and sold.
func (s *Service) ToggleSoldStatus(ctx context.Context, token string, id int64) (*vault.Account, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpAccountToggleSold, err)
	}
	a, err := s.vault.ToggleSoldStatus(ctx, id)
	s.record(audit.OpAccountToggleSold, idKey(id), err, nil)
	return a, err
}

// History returns an account's change history, newest first.
func (s *Service) History(ctx context.Context, token string, id int64) ([]*vault.History, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied("account.history", err)
	}
	return s.vault.History(ctx, id)
}

// BatchImport stores inputs in one transaction; per-row failures are counted.
func (s *Service) BatchImport(ctx context.Context, token string, inputs []vault.Input) (*ImportResult, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpAccountImport, err)
	}
	ok, failed, err := s.vault.BatchImport(ctx, inputs)
	s.record(audit.OpAccountImport, "", err, map[string]any{"imported": ok, "failed": failed})
	if err != nil {
		return nil, err
	}
	return &ImportResult{Imported: ok, Failed: failed}, nil
}

// ImportText parses free-form account text and imports what it finds.
func (s *Service) ImportText(ctx context.Context, token, text string) (*ImportResult, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpAccountImport, err)
	}

	parsed := importer.Parse(text)
	res := &ImportResult{Stats: &parsed.Stats, Notes: parsed.Notes}
	if len(parsed.Accounts) == 0 {
		return res, nil
	}

	ok, failed, err := s.vault.BatchImport(ctx, parsed.Accounts)
	s.record(audit.OpAccountImport, "", err, map[string]any{
		"imported": ok, "failed": failed, "invalid_lines": parsed.Stats.InvalidLines,
	})
	if err != nil {
		return nil, err
	}
	res.Imported, res.Failed = ok, failed
	return res, nil
}
