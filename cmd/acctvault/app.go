package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/forest6511/acctvault/internal/config"
	"github.com/forest6511/acctvault/internal/logging"
	"github.com/forest6511/acctvault/pkg/audit"
	"github.com/forest6511/acctvault/pkg/auth"
	"github.com/forest6511/acctvault/pkg/backup"
	"github.com/forest6511/acctvault/pkg/masterkey"
	"github.com/forest6511/acctvault/pkg/service"
	"github.com/forest6511/acctvault/pkg/vault"
)

// app is the wired object graph shared by every data command.
type app struct {
	cfg     *config.Config
	keys    *masterkey.Provider
	vault   *vault.Vault
	backups *backup.Manager
	audit   *audit.Logger
	svc     *service.Service
}

// openApp resolves the master key, opens the vault and builds the service.
// source tags audit events (audit.SourceCLI, audit.SourceAPI, ...).
func openApp(ctx context.Context, c *config.Config, l logging.Logger, source string) (*app, error) {
	keys := masterkey.New(masterkey.DefaultKeyPath(c.DataDir))
	key, err := keys.MasterKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}
	if keys.Source() == masterkey.SourceGenerated {
		l.Warn(ctx, "generated a new master key; back it up", "path", keys.Path())
	}

	v, err := vault.Open(ctx, c.DBPath, keys, vault.WithLogger(l))
	if err != nil {
		return nil, err
	}

	a := &app{cfg: c, keys: keys, vault: v}
	a.backups = backup.NewManager(c.BackupDir, v, backup.WithKeep(c.KeepBackups), backup.WithLogger(l))

	opts := []service.Option{service.WithSource(source), service.WithLogger(l)}
	gateOpts := []auth.Option{}
	if !c.Audit.Disabled {
		a.audit = audit.NewLogger(c.Audit.Dir)
		if err := a.audit.SetHMACKey(key); err != nil {
			v.Close()
			return nil, fmt.Errorf("failed to initialize audit log: %w", err)
		}
		opts = append(opts, service.WithAuditor(a.audit))
		gateOpts = append(gateOpts, auth.WithObserver(service.AuditObserver(a.audit, source)))
	}

	if c.S3.Enabled() {
		up, err := backup.NewS3Uploader(c.S3, l)
		if err != nil {
			v.Close()
			return nil, err
		}
		opts = append(opts, service.WithUploader(up))
	}

	a.svc = service.New(auth.New(gateOpts...), v, a.backups, opts...)
	return a, nil
}

func (a *app) Close() error {
	return a.vault.Close()
}

// adminPassword is replaced in tests.
var adminPassword = func() (string, error) {
	return readAdminPassword(stdin(), promptOut())
}

// withSession opens the app, logs in with the admin password and runs fn
// with the session token. The session is ended afterwards.
func withSession(ctx context.Context, fn func(a *app, token string) error) error {
	a, err := openApp(ctx, cfg, logger, audit.SourceCLI)
	if err != nil {
		return err
	}
	defer a.Close()

	password, err := adminPassword()
	if err != nil {
		return err
	}
	res := a.svc.Login(password)
	if !res.Success {
		if res.Banned {
			return fmt.Errorf("%w: %s", auth.ErrBanned, res.Message)
		}
		return errors.New(res.Message)
	}
	defer a.svc.Logout(res.SessionToken)

	return fn(a, res.SessionToken)
}
