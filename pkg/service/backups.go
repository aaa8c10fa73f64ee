package service

import (
	"context"
	"io"

	"github.com/forest6511/acctvault/pkg/audit"
	"github.com/forest6511/acctvault/pkg/backup"
)

// CreateBackup snapshots the database.
func (s *Service) CreateBackup(ctx context.Context, token, reason string) (*backup.Info, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpBackupCreate, err)
	}
	info, err := s.backups.Create(ctx, reason)
	name := ""
	if info != nil {
		name = info.Name
	}
	s.record(audit.OpBackupCreate, name, err, map[string]any{"reason": reason})
	return info, err
}

// ListBackups lists backups, newest first.
func (s *Service) ListBackups(ctx context.Context, token string) ([]*backup.Info, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied("backup.list", err)
	}
	return s.backups.List()
}

// RestoreBackup replaces the database with the named backup and returns the
// safety backup taken first.
func (s *Service) RestoreBackup(ctx context.Context, token, name string) (*backup.Info, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpBackupRestore, err)
	}
	safety, err := s.backups.Restore(ctx, name)
	s.record(audit.OpBackupRestore, name, err, nil)
	if err == nil {
		s.logger.Info(ctx, "backup restored", "name", name, "safety_backup", safety.Name)
	}
	return safety, err
}

// SealBackup writes the named backup to w as a password-encrypted archive.
func (s *Service) SealBackup(ctx context.Context, token, name string, w io.Writer, password []byte) (*backup.Header, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpBackupSeal, err)
	}
	h, err := s.backups.Seal(name, w, password)
	s.record(audit.OpBackupSeal, name, err, nil)
	return h, err
}

// UnsealBackup imports a sealed archive as a new restorable backup.
func (s *Service) UnsealBackup(ctx context.Context, token string, r io.Reader, password []byte) (*backup.Info, error) {
	if err := s.gate.Require(token); err != nil {
		return nil, s.denied(audit.OpBackupUnseal, err)
	}
	info, err := s.backups.Unseal(ctx, r, password)
	name := ""
	if info != nil {
		name = info.Name
	}
	s.record(audit.OpBackupUnseal, name, err, nil)
	return info, err
}

// UploadBackup copies the named backup to remote storage and returns its location.
func (s *Service) UploadBackup(ctx context.Context, token, name string) (string, error) {
	if err := s.gate.Require(token); err != nil {
		return "", s.denied(audit.OpBackupUpload, err)
	}
	if s.uploader == nil {
		return "", backup.ErrRemoteNotConfigured
	}
	loc, err := s.backups.Upload(ctx, name, s.uploader)
	s.record(audit.OpBackupUpload, name, err, nil)
	return loc, err
}
