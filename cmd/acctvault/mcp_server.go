package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/internal/mcp"
	"github.com/forest6511/acctvault/pkg/audit"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start the MCP server that gives AI coding assistants read-only,
masked access to the vault over stdio.

Available tools:
  - account_list:        List accounts with passwords and secrets removed
  - account_get_masked:  Get one masked field of an account (e.g. "****word")
  - totp_generate:       Current 2FA code for an account
  - backup_list:         List backups
  - security_score:      Password health score

Authentication:
  Set GOOGLE_MANAGER_ADMIN_PASSWORD before starting the server. The server
  logs in once and keeps the session until it exits.

Example MCP configuration:
  {
    "mcpServers": {
      "acctvault": {
        "type": "stdio",
        "command": "/path/to/acctvault",
        "args": ["mcp-server"],
        "env": {
          "GOOGLE_MANAGER_ADMIN_PASSWORD": "your-admin-password"
        }
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func runMCPServer(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, cfg, logger, audit.SourceMCP)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := mcp.NewServer(a.svc, &mcp.ServerOptions{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
