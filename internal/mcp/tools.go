package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/acctvault/pkg/backup"
	"github.com/forest6511/acctvault/pkg/security"
	"github.com/forest6511/acctvault/pkg/vault"
)

// AccountListInput represents input for account_list tool.
type AccountListInput struct {
	Search     string `json:"search,omitempty"`
	SoldStatus string `json:"sold_status,omitempty"`
}

// AccountListOutput represents output for account_list tool.
type AccountListOutput struct {
	Accounts []AccountInfo `json:"accounts"`
}

// AccountInfo is an account without plaintext credentials.
type AccountInfo struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	MaskedPassword string `json:"masked_password"`
	HasSecret      bool   `json:"has_secret"`
	HasRecovery    bool   `json:"has_recovery"`
	HasPhone       bool   `json:"has_phone"`
	RegYear        string `json:"reg_year,omitempty"`
	Country        string `json:"country,omitempty"`
	GroupName      string `json:"group_name,omitempty"`
	Remark         string `json:"remark,omitempty"`
	Status         string `json:"status"`
	SoldStatus     string `json:"sold_status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// AccountGetMaskedInput represents input for account_get_masked tool.
type AccountGetMaskedInput struct {
	ID    int64  `json:"id"`
	Field string `json:"field,omitempty"`
}

// AccountGetMaskedOutput represents output for account_get_masked tool.
type AccountGetMaskedOutput struct {
	ID          int64  `json:"id"`
	Field       string `json:"field"`
	MaskedValue string `json:"masked_value"`
	ValueLength int    `json:"value_length"`
}

// TOTPGenerateInput represents input for totp_generate tool.
type TOTPGenerateInput struct {
	ID int64 `json:"id"`
}

// TOTPGenerateOutput represents output for totp_generate tool.
type TOTPGenerateOutput struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Remaining int    `json:"remaining"`
}

// BackupListInput represents input for backup_list tool.
type BackupListInput struct{}

// BackupListOutput represents output for backup_list tool.
type BackupListOutput struct {
	Backups []*backup.Info `json:"backups"`
}

// SecurityScoreInput represents input for security_score tool.
type SecurityScoreInput struct{}

// SecurityScoreOutput represents output for security_score tool.
type SecurityScoreOutput struct {
	Score security.Score `json:"score"`
}

// maskableFields are the fields account_get_masked will reveal in masked form.
var maskableFields = map[string]func(*vault.Account) string{
	"password": func(a *vault.Account) string { return a.Password },
	"secret":   func(a *vault.Account) string { return a.Secret },
	"recovery": func(a *vault.Account) string { return a.Recovery },
	"phone":    func(a *vault.Account) string { return a.Phone },
}

func toInfo(a *vault.Account) AccountInfo {
	return AccountInfo{
		ID:             a.ID,
		Email:          a.Email,
		MaskedPassword: maskValue(a.Password),
		HasSecret:      a.Secret != "",
		HasRecovery:    a.Recovery != "",
		HasPhone:       a.Phone != "",
		RegYear:        a.RegYear,
		Country:        a.Country,
		GroupName:      a.GroupName,
		Remark:         a.Remark,
		Status:         a.Status,
		SoldStatus:     a.SoldStatus,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// handleAccountList handles the account_list tool call.
func (s *Server) handleAccountList(ctx context.Context, _ *mcp.CallToolRequest, input AccountListInput) (*mcp.CallToolResult, AccountListOutput, error) {
	accounts, err := s.svc.ListAccounts(ctx, s.token, vault.Filter{Search: input.Search, SoldStatus: input.SoldStatus})
	if err != nil {
		return nil, AccountListOutput{}, fmt.Errorf("failed to list accounts: %w", err)
	}

	output := AccountListOutput{Accounts: make([]AccountInfo, 0, len(accounts))}
	for _, a := range accounts {
		output.Accounts = append(output.Accounts, toInfo(a))
	}
	return nil, output, nil
}

// handleAccountGetMasked handles the account_get_masked tool call.
func (s *Server) handleAccountGetMasked(ctx context.Context, _ *mcp.CallToolRequest, input AccountGetMaskedInput) (*mcp.CallToolResult, AccountGetMaskedOutput, error) {
	if input.ID <= 0 {
		return nil, AccountGetMaskedOutput{}, errors.New("id is required")
	}
	field := strings.ToLower(strings.TrimSpace(input.Field))
	if field == "" {
		field = "password"
	}
	get, ok := maskableFields[field]
	if !ok {
		return nil, AccountGetMaskedOutput{}, fmt.Errorf("unsupported field %q: use password, secret, recovery or phone", input.Field)
	}

	a, err := s.svc.GetAccount(ctx, s.token, input.ID)
	if err != nil {
		return nil, AccountGetMaskedOutput{}, fmt.Errorf("failed to get account: %w", err)
	}

	value := get(a)
	return nil, AccountGetMaskedOutput{
		ID:          a.ID,
		Field:       field,
		MaskedValue: maskValue(value),
		ValueLength: len([]rune(value)),
	}, nil
}

// maskValue hides all but a short suffix: up to 4 characters are fully
// masked, up to 8 show the last 2, longer values show the last 4.
func maskValue(value string) string {
	runes := []rune(value)
	length := len(runes)
	if length == 0 {
		return ""
	}

	switch {
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + string(runes[length-2:])
	default:
		return strings.Repeat("*", length-4) + string(runes[length-4:])
	}
}

// handleTOTPGenerate handles the totp_generate tool call.
func (s *Server) handleTOTPGenerate(ctx context.Context, _ *mcp.CallToolRequest, input TOTPGenerateInput) (*mcp.CallToolResult, TOTPGenerateOutput, error) {
	if input.ID <= 0 {
		return nil, TOTPGenerateOutput{}, errors.New("id is required")
	}
	code, err := s.svc.AccountTOTP(ctx, s.token, input.ID)
	if err != nil {
		return nil, TOTPGenerateOutput{}, fmt.Errorf("failed to generate code: %w", err)
	}
	return nil, TOTPGenerateOutput{ID: input.ID, Code: code.Code, Remaining: code.Remaining}, nil
}

// handleBackupList handles the backup_list tool call.
func (s *Server) handleBackupList(ctx context.Context, _ *mcp.CallToolRequest, _ BackupListInput) (*mcp.CallToolResult, BackupListOutput, error) {
	list, err := s.svc.ListBackups(ctx, s.token)
	if err != nil {
		return nil, BackupListOutput{}, fmt.Errorf("failed to list backups: %w", err)
	}
	if list == nil {
		list = []*backup.Info{}
	}
	return nil, BackupListOutput{Backups: list}, nil
}

// handleSecurityScore handles the security_score tool call.
func (s *Server) handleSecurityScore(ctx context.Context, _ *mcp.CallToolRequest, _ SecurityScoreInput) (*mcp.CallToolResult, SecurityScoreOutput, error) {
	score, err := s.svc.SecurityReport(ctx, s.token)
	if err != nil {
		return nil, SecurityScoreOutput{}, fmt.Errorf("failed to score accounts: %w", err)
	}
	return nil, SecurityScoreOutput{Score: *score}, nil
}
