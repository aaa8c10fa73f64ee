// Package backup manages database snapshots: timestamped local copies with
// checksum manifests, password-sealed archives for moving a snapshot
// off the machine, and optional upload to S3-compatible storage.
package backup

import "errors"

// Backup errors
var (
	// ErrInvalidName indicates a backup name that is empty, escapes the
	// backup directory, is not a .db file or contains other characters.
	ErrInvalidName = errors.New("backup: invalid backup name")

	// ErrNotFound indicates no backup with the given name exists.
	ErrNotFound = errors.New("backup: backup file does not exist")

	// ErrChecksumMismatch indicates the backup file no longer matches its manifest.
	ErrChecksumMismatch = errors.New("backup: checksum does not match manifest")

	// ErrInsufficientSpace indicates the backup directory lacks room for a snapshot.
	ErrInsufficientSpace = errors.New("backup: insufficient disk space")

	// ErrInvalidMagic indicates the archive has an invalid magic number.
	ErrInvalidMagic = errors.New("backup: invalid archive, magic number mismatch")

	// ErrUnsupportedVersion indicates the archive format version is not supported.
	ErrUnsupportedVersion = errors.New("backup: unsupported archive format version")

	// ErrIntegrityFailed indicates the HMAC or content checksum verification failed.
	ErrIntegrityFailed = errors.New("backup: archive integrity check failed")

	// ErrDecryptionFailed indicates decryption failed due to invalid password or corruption.
	ErrDecryptionFailed = errors.New("backup: archive decryption failed, invalid password or corrupted data")

	// ErrEmptyPassword indicates an empty password was provided.
	ErrEmptyPassword = errors.New("backup: password cannot be empty")

	// ErrTruncated indicates the archive ends before its declared length.
	ErrTruncated = errors.New("backup: archive is truncated")
)
