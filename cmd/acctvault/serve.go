package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/acctvault/internal/httpapi"
	"github.com/forest6511/acctvault/pkg/audit"
	"github.com/forest6511/acctvault/pkg/backup"
)

var (
	serveAddr       string
	serveSkipBackup bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API used by the web frontend",
	Long: `Run the local HTTP API. It binds to a loopback address only and accepts
browser requests from the configured allowed origins.

Clients log in with POST /api/auth/login and send the returned session token
as "Authorization: Bearer <token>" on every other call.

A startup backup is taken before the server begins listening.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.HTTP.Addr = serveAddr
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cfg, logger, audit.SourceAPI)
		if err != nil {
			return err
		}
		defer a.Close()

		if !serveSkipBackup {
			startupBackup(ctx, a)
		}

		srv := httpapi.New(a.svc, cfg.HTTP.Addr,
			httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
			httpapi.WithLogger(logger))
		printInfo("listening on http://%s (Ctrl+C to stop)", cfg.HTTP.Addr)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (loopback only; default from config)")
	serveCmd.Flags().BoolVar(&serveSkipBackup, "no-startup-backup", false, "Do not snapshot the database on start")
}

// startupBackup snapshots the database. A failure is logged, not fatal.
func startupBackup(ctx context.Context, a *app) {
	info, err := a.backups.Create(ctx, backup.ReasonStartup)
	if err != nil {
		logger.Warn(ctx, "startup backup failed", "error", err)
		return
	}
	logger.Info(ctx, "startup backup created", "name", info.Name)
}
