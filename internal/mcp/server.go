// Package mcp implements the MCP (Model Context Protocol) server for acctvault.
// AI agents see account metadata and masked values only; plaintext passwords
// and 2FA secrets never leave the process.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/acctvault/internal/logging"
	"github.com/forest6511/acctvault/pkg/auth"
	"github.com/forest6511/acctvault/pkg/service"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Server is the MCP server. It holds one session for its lifetime.
type Server struct {
	server *mcp.Server
	svc    *service.Service
	token  string
	logger logging.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Password is the admin password used to open a session.
	// If empty, it is read from GOOGLE_MANAGER_ADMIN_PASSWORD.
	Password string

	Logger logging.Logger
}

// NewServer logs in through svc and registers the tools.
func NewServer(svc *service.Service, opts *ServerOptions) (*Server, error) {
	if svc == nil {
		return nil, errors.New("mcp: service is required")
	}
	if opts == nil {
		opts = &ServerOptions{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	password := opts.Password
	if password == "" {
		password = os.Getenv(auth.EnvAdminPassword)
	}
	if password == "" {
		return nil, fmt.Errorf("mcp: no password provided: set %s environment variable", auth.EnvAdminPassword)
	}

	res := svc.Login(password)
	if !res.Success {
		return nil, fmt.Errorf("mcp: login failed: %s", res.Message)
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "acctvault", Version: Version}, nil),
		svc:    svc,
		token:  res.SessionToken,
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "account_list",
		Description: "List accounts with metadata. Passwords are masked and 2FA secrets are reported only as present or absent.",
	}, s.handleAccountList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "account_get_masked",
		Description: "Get a masked version of one account field (password, secret, recovery or phone), e.g. '****WXYZ'.",
	}, s.handleAccountGetMasked)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "totp_generate",
		Description: "Generate the current 6-digit TOTP code for an account's stored 2FA secret.",
	}, s.handleTOTPGenerate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "backup_list",
		Description: "List database backups, newest first.",
	}, s.handleBackupList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "security_score",
		Description: "Score password hygiene across active accounts: weak, reused, missing 2FA or recovery.",
	}, s.handleSecurityScore)
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()
	s.logger.Info(ctx, "mcp server starting", "version", Version)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close ends the session.
func (s *Server) Close() error {
	if s.token == "" {
		return nil
	}
	token := s.token
	s.token = ""
	if err := s.svc.Logout(token); err != nil && !errors.Is(err, auth.ErrInvalidSession) {
		return err
	}
	return nil
}
