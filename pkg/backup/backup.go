package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forest6511/acctvault/internal/logging"
	"github.com/forest6511/acctvault/pkg/vault"
)

const (
	// DirName is the backups directory under the data directory.
	DirName = "backups"

	// DefaultKeep is how many backups survive cleanup.
	DefaultKeep = 20

	FileMode = 0600 // Owner read/write only
	DirMode  = 0700 // Owner read/write/execute only

	timestampLayout = "20060102_150405.000"
	listTimeLayout  = "2006-01-02 15:04:05"

	// minFreeBytes is required on top of the database size before snapshotting.
	minFreeBytes = 1 << 20
)

// Backup reasons used by the application.
const (
	ReasonManual          = "manual"
	ReasonStartup         = "startup"
	ReasonBeforeRestore   = "before_restore"
	ReasonBeforeDeleteAll = "before_delete_all"
	ReasonImported        = "imported"
)

// Store is the database being backed up. *vault.Vault implements it.
type Store interface {
	Path() string
	Snapshot(ctx context.Context, dest string) error
	ReplaceFrom(ctx context.Context, src string) error
}

// Seams replaced in tests.
var (
	verifyFile = vault.VerifyFile
	diskSpace  = checkDiskSpace
)

// Info describes one backup file.
type Info struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
	Checksum  string `json:"checksum,omitempty"`
}

// Manifest is the .json file written next to each backup.
type Manifest struct {
	CreatedAt string `json:"created_at"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Manager creates, lists and restores backups in one directory.
type Manager struct {
	dir    string
	store  Store
	keep   int
	now    func() time.Time
	logger logging.Logger
	mu     sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeep sets how many backups survive cleanup. Values below 1 are ignored.
func WithKeep(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.keep = n
		}
	}
}

// WithClock sets the time source used for names and manifests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger used for cleanup and space warnings.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager returns a Manager writing into dir.
func NewManager(dir string, store Store, opts ...Option) *Manager {
	m := &Manager{
		dir:    dir,
		store:  store,
		keep:   DefaultKeep,
		now:    time.Now,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the backups directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Create snapshots the store into a new backup named after reason, writes
// its manifest and prunes old backups.
func (m *Manager) Create(ctx context.Context, reason string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(ctx, reason, "")
}

// create does the work of Create. protect names a backup that cleanup
// must not remove.
func (m *Manager) create(ctx context.Context, reason, protect string) (*Info, error) {
	if err := os.MkdirAll(m.dir, DirMode); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}
	if err := m.checkSpace(); err != nil {
		return nil, err
	}

	now := m.now()
	path := filepath.Join(m.dir, backupName(now, reason))
	if err := m.store.Snapshot(ctx, path); err != nil {
		return nil, fmt.Errorf("backup: snapshot failed: %w", err)
	}
	if err := os.Chtimes(path, now, now); err != nil {
		return nil, fmt.Errorf("backup: failed to stamp backup: %w", err)
	}

	info, err := writeManifest(path, now)
	if err != nil {
		return nil, err
	}
	m.cleanup(ctx, protect)
	return info, nil
}

// backupName returns data_<timestamp>_<reason>_<nanos>.db, dropping the
// reason segment when it sanitizes to nothing.
func backupName(now time.Time, reason string) string {
	ts := now.Local().Format(timestampLayout)
	if suffix := sanitizeReason(reason); suffix != "" {
		return fmt.Sprintf("data_%s_%s_%d.db", ts, suffix, now.UnixNano())
	}
	return fmt.Sprintf("data_%s_%d.db", ts, now.UnixNano())
}

// sanitizeReason lower-cases ASCII alphanumerics and turns everything else
// into single underscores, trimmed at both ends. An empty reason is "manual".
func sanitizeReason(reason string) string {
	if reason == "" {
		reason = ReasonManual
	}
	var b strings.Builder
	for _, r := range reason {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	cleaned := b.String()
	for strings.Contains(cleaned, "__") {
		cleaned = strings.ReplaceAll(cleaned, "__", "_")
	}
	return strings.Trim(cleaned, "_")
}

// ValidateName trims name and checks that it is a plain .db file name made
// of ASCII letters, digits, '_', '-' and '.'.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.ContainsAny(trimmed, `/\`) || strings.Contains(trimmed, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, trimmed)
	}
	if !strings.HasSuffix(trimmed, ".db") {
		return "", fmt.Errorf("%w: must be a .db file", ErrInvalidName)
	}
	for _, r := range trimmed {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '_' || r == '-' || r == '.'
		if !ok {
			return "", fmt.Errorf("%w: contains %q", ErrInvalidName, r)
		}
	}
	return trimmed, nil
}

// Path returns the location of an existing backup.
func (m *Manager) Path(name string) (string, error) {
	name, err := ValidateName(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("backup: failed to stat backup: %w", err)
	}
	return path, nil
}

// List returns the backups, newest name first. A missing directory
// yields an empty list.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []*Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read backup directory: %w", err)
	}

	backups := []*Info{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		info := &Info{
			Name:      entry.Name(),
			SizeBytes: fi.Size(),
			CreatedAt: fi.ModTime().Local().Format(listTimeLayout),
		}
		if mf, err := readManifest(filepath.Join(m.dir, entry.Name())); err == nil {
			info.Checksum = mf.Checksum
		}
		backups = append(backups, info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Name > backups[j].Name
	})
	return backups, nil
}

// Restore replaces the store's contents with the named backup. The backup
// is checked against its manifest and SQLite's integrity check first, then
// a before_restore backup is taken. The returned Info describes that
// safety backup.
func (m *Manager) Restore(ctx context.Context, name string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, err := m.Path(name)
	if err != nil {
		return nil, err
	}
	if err := verifyManifest(path); err != nil {
		return nil, err
	}
	if err := verifyFile(ctx, path); err != nil {
		return nil, err
	}

	safety, err := m.create(ctx, ReasonBeforeRestore, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("backup: failed to back up current data before restore: %w", err)
	}
	if err := m.store.ReplaceFrom(ctx, path); err != nil {
		return safety, fmt.Errorf("backup: restore failed: %w", err)
	}
	return safety, nil
}

// cleanup removes all but the newest m.keep backups by modification time,
// with their manifests. Failures are logged, not returned.
func (m *Manager) cleanup(ctx context.Context, protect string) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.Warn(ctx, "failed to read backup directory for cleanup", "error", err)
		return
	}

	type file struct {
		name  string
		mtime time.Time
	}
	var files []file
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, file{entry.Name(), fi.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].mtime.Equal(files[j].mtime) {
			return files[i].mtime.After(files[j].mtime)
		}
		return files[i].name > files[j].name
	})

	if len(files) <= m.keep {
		return
	}
	for _, f := range files[m.keep:] {
		if f.name == protect {
			continue
		}
		path := filepath.Join(m.dir, f.name)
		if err := os.Remove(path); err != nil {
			m.logger.Warn(ctx, "failed to remove old backup", "name", f.name, "error", err)
		}
		if err := os.Remove(manifestPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn(ctx, "failed to remove old backup manifest", "name", f.name, "error", err)
		}
	}
}

// checkSpace fails when the backup directory's filesystem cannot hold a
// copy of the database. An unreadable filesystem is logged and allowed.
func (m *Manager) checkSpace() error {
	info, err := diskSpace(m.dir)
	if err != nil {
		m.logger.Warn(context.Background(), "disk space check unavailable", "error", err)
		return nil
	}

	need := uint64(minFreeBytes)
	if fi, err := os.Stat(m.store.Path()); err == nil {
		need += uint64(fi.Size())
	}
	if info.Available < need {
		return fmt.Errorf("%w: %d bytes available, %d needed", ErrInsufficientSpace, info.Available, need)
	}
	return nil
}

func manifestPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
}

func writeManifest(path string, now time.Time) (*Info, error) {
	sum, err := fileSHA256(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat backup: %w", err)
	}

	mf := Manifest{
		CreatedAt: now.Format(time.RFC3339),
		SizeBytes: fi.Size(),
		Checksum:  sum,
	}
	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath(path), data, FileMode); err != nil {
		return nil, fmt.Errorf("backup: failed to write manifest: %w", err)
	}

	return &Info{
		Name:      filepath.Base(path),
		SizeBytes: fi.Size(),
		CreatedAt: now.Local().Format(listTimeLayout),
		Checksum:  sum,
	}, nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath(path))
	if err != nil {
		return nil, err
	}
	var mf Manifest
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, err
	}
	return &mf, nil
}

// verifyManifest compares the file's checksum with its manifest. A missing
// or unreadable manifest is not an error; backups from older versions
// have none.
func verifyManifest(path string) error {
	mf, err := readManifest(path)
	if err != nil || mf.Checksum == "" {
		return nil
	}
	sum, err := fileSHA256(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(sum, mf.Checksum) {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, filepath.Base(path))
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("backup: failed to read backup: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("backup: failed to read backup: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
