package service

import (
	"context"
	"io"

	"github.com/forest6511/acctvault/pkg/audit"
	"github.com/forest6511/acctvault/pkg/export"
	"github.com/forest6511/acctvault/pkg/totp"
	"github.com/forest6511/acctvault/pkg/vault"
)

// ExportRequest selects accounts by IDs, or by Filter when IDs is empty.
type ExportRequest struct {
	IDs    []int64           `json:"ids,omitempty"`
	Filter vault.Filter      `json:"filter"`
	Config export.TextConfig `json:"config"`
}

// ExportText renders the selected accounts as text.
func (s *Service) ExportText(ctx context.Context, token string, req ExportRequest) (string, error) {
	if err := s.gate.Require(token); err != nil {
		return "", s.denied(audit.OpExportText, err)
	}
	accounts, err := s.vault.ListForExport(ctx, req.IDs, req.Filter)
	if err != nil {
		s.record(audit.OpExportText, "", err, nil)
		return "", err
	}
	out := s.renderer.Text(accounts, req.Config)
	s.record(audit.OpExportText, "", nil, map[string]any{"count": len(accounts)})
	return out, nil
}

// ExportSQL writes a SQL dump of the database to w.
func (s *Service) ExportSQL(ctx context.Context, token string, w io.Writer) error {
	if err := s.gate.Require(token); err != nil {
		return s.denied(audit.OpExportSQL, err)
	}
	err := s.renderer.SQL(ctx, w, s.vault)
	s.record(audit.OpExportSQL, "", err, nil)
	return err
}

// GenerateTOTP returns the current code for a raw base32 secret.
func (s *Service) GenerateTOTP(ctx context.Context, token, secret string) (*totp.Code, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpTOTPGenerate, err)
	}
	code, err := totp.Generate(secret, s.now())
	s.record(audit.OpTOTPGenerate, "", err, nil)
	return code, err
}

// AccountTOTP returns the current code for a stored account's secret.
func (s *Service) AccountTOTP(ctx context.Context, token string, id int64) (*totp.Code, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpTOTPGenerate, err)
	}
	a, err := s.vault.GetAccount(ctx, id)
	if err != nil {
		s.record(audit.OpTOTPGenerate, idKey(id), err, nil)
		return nil, err
	}
	code, err := totp.Generate(a.Secret, s.now())
	s.record(audit.OpTOTPGenerate, idKey(id), err, nil)
	return code, err
}
