package backup

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/forest6511/acctvault/pkg/vault"
)

type staticKeys []byte

func (k staticKeys) MasterKey() ([]byte, error) { return k, nil }

// stepClock returns a time one second later on every call.
func stepClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(time.Second)
		return t
	}
}

var testStart = time.Date(2026, 3, 1, 10, 0, 0, 123_000_000, time.Local)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *vault.Vault) {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	v, err := vault.Open(context.Background(), filepath.Join(dir, vault.DBFileName), staticKeys(key))
	if err != nil {
		t.Fatalf("vault.Open() error = %v", err)
	}
	t.Cleanup(func() { v.Close() })

	opts = append([]Option{WithClock(stepClock(testStart))}, opts...)
	return NewManager(filepath.Join(dir, DirName), v, opts...), v
}

func countFiles(t *testing.T, dir, ext string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		t.Fatal(err)
	}
	return len(matches)
}

// TestSanitizeReason tests reason normalization
func TestSanitizeReason(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "manual"},
		{"manual", "manual"},
		{"Before Restore", "before_restore"},
		{"before__delete--all", "before_delete_all"},
		{"__x__", "x"},
		{"  ", ""},
		{"中文", ""},
		{"Nightly-2026", "nightly_2026"},
	}
	for _, tt := range tests {
		if got := sanitizeReason(tt.in); got != tt.want {
			t.Errorf("sanitizeReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestBackupName tests the file name layout
func TestBackupName(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 678_000_000, time.Local)
	nanos := now.UnixNano()

	got := backupName(now, "startup")
	want := "data_20260102_030405.678_startup_" + strconv.FormatInt(nanos, 10) + ".db"
	if got != want {
		t.Errorf("backupName() = %s, want %s", got, want)
	}

	got = backupName(now, "!!!")
	want = "data_20260102_030405.678_" + strconv.FormatInt(nanos, 10) + ".db"
	if got != want {
		t.Errorf("backupName(empty reason) = %s, want %s", got, want)
	}

	if _, err := ValidateName(got); err != nil {
		t.Errorf("generated name rejected: %v", err)
	}
}

// TestValidateName tests backup name validation
func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "data_1.db", "data_1.db", false},
		{"trimmed", "  data_1.db \n", "data_1.db", false},
		{"dash and dot", "a-b.c.db", "a-b.c.db", false},
		{"empty", "   ", "", true},
		{"slash", "x/y.db", "", true},
		{"backslash", `x\y.db`, "", true},
		{"dotdot", "..db", "", true},
		{"traversal", "../data.db", "", true},
		{"wrong extension", "data.json", "", true},
		{"space inside", "data 1.db", "", true},
		{"unicode", "数据.db", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateName(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("ValidateName(%q) error = %v, want %v", tt.input, err, ErrInvalidName)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ValidateName(%q) = %q, %v, want %q", tt.input, got, err, tt.want)
			}
		})
	}
}

// TestCreate tests a backup and its manifest
func TestCreate(t *testing.T) {
	m, _ := newTestManager(t)

	info, err := m.Create(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(info.Name, "data_20260301_100000.123_manual_") || !strings.HasSuffix(info.Name, ".db") {
		t.Errorf("Name = %s", info.Name)
	}
	if info.CreatedAt != "2026-03-01 10:00:00" {
		t.Errorf("CreatedAt = %s", info.CreatedAt)
	}

	path := filepath.Join(m.Dir(), info.Name)
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if fi.Size() != info.SizeBytes {
		t.Errorf("SizeBytes = %d, want %d", info.SizeBytes, fi.Size())
	}
	if runtime.GOOS != "windows" && fi.Mode().Perm() != FileMode {
		t.Errorf("backup mode = %o, want %o", fi.Mode().Perm(), FileMode)
	}

	data, err := os.ReadFile(strings.TrimSuffix(path, ".db") + ".json")
	if err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	var mf Manifest
	if err := json.Unmarshal(data, &mf); err != nil {
		t.Fatal(err)
	}
	sum, _ := fileSHA256(path)
	if mf.Checksum != sum || info.Checksum != sum || len(sum) != 64 {
		t.Errorf("checksum manifest=%s info=%s file=%s", mf.Checksum, info.Checksum, sum)
	}
	if mf.SizeBytes != fi.Size() {
		t.Errorf("manifest size = %d, want %d", mf.SizeBytes, fi.Size())
	}
	if _, err := time.Parse(time.RFC3339, mf.CreatedAt); err != nil {
		t.Errorf("manifest created_at %q not RFC3339: %v", mf.CreatedAt, err)
	}

	if err := vault.VerifyFile(context.Background(), path); err != nil {
		t.Errorf("backup is not a valid database: %v", err)
	}
}

// TestCreateCleanup tests that only the newest backups are kept
func TestCreateCleanup(t *testing.T) {
	m, _ := newTestManager(t, WithKeep(3))
	ctx := context.Background()

	var names []string
	for i := 0; i < 5; i++ {
		info, err := m.Create(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, info.Name)
	}

	if n := countFiles(t, m.Dir(), ".db"); n != 3 {
		t.Errorf("backups = %d, want 3", n)
	}
	if n := countFiles(t, m.Dir(), ".json"); n != 3 {
		t.Errorf("manifests = %d, want 3", n)
	}
	for _, old := range names[:2] {
		if _, err := os.Stat(filepath.Join(m.Dir(), old)); !os.IsNotExist(err) {
			t.Errorf("old backup %s should be removed", old)
		}
	}
	for _, kept := range names[2:] {
		if _, err := os.Stat(filepath.Join(m.Dir(), kept)); err != nil {
			t.Errorf("recent backup %s missing: %v", kept, err)
		}
	}
}

// TestList tests ordering, checksums and non-backup files
func TestList(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	list, err := m.List()
	if err != nil || len(list) != 0 {
		t.Fatalf("List() on missing dir = %v, %v", list, err)
	}

	first, _ := m.Create(ctx, "a")
	second, _ := m.Create(ctx, "b")
	if err := os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(strings.TrimSuffix(filepath.Join(m.Dir(), first.Name), ".db") + ".json"); err != nil {
		t.Fatal(err)
	}

	list, err = m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("List() = %d entries, want 2", len(list))
	}
	if list[0].Name != second.Name || list[1].Name != first.Name {
		t.Errorf("order = %s, %s", list[0].Name, list[1].Name)
	}
	if list[0].Checksum != second.Checksum {
		t.Errorf("checksum = %q, want %q", list[0].Checksum, second.Checksum)
	}
	if list[1].Checksum != "" {
		t.Errorf("backup without manifest has checksum %q", list[1].Checksum)
	}
	if list[0].CreatedAt != "2026-03-01 10:00:01" {
		t.Errorf("CreatedAt = %s", list[0].CreatedAt)
	}
}

// TestRestore tests restoring data and the safety backup
func TestRestore(t *testing.T) {
	m, v := newTestManager(t)
	ctx := context.Background()

	if _, err := v.CreateAccount(ctx, vault.Input{Email: "kept@example.com", Password: "p"}); err != nil {
		t.Fatal(err)
	}
	snap, err := m.Create(ctx, "manual")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.CreateAccount(ctx, vault.Input{Email: "later@example.com", Password: "p"}); err != nil {
		t.Fatal(err)
	}

	safety, err := m.Restore(ctx, "  "+snap.Name+" ")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !strings.Contains(safety.Name, "_before_restore_") {
		t.Errorf("safety backup name = %s", safety.Name)
	}

	accounts, err := v.ListAccounts(ctx, vault.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 || accounts[0].Email != "kept@example.com" {
		t.Errorf("accounts after restore = %+v", accounts)
	}

	// The safety backup holds the pre-restore state.
	if _, err := m.Restore(ctx, safety.Name); err != nil {
		t.Fatal(err)
	}
	accounts, _ = v.ListAccounts(ctx, vault.Filter{})
	if len(accounts) != 2 {
		t.Errorf("accounts after undo = %d, want 2", len(accounts))
	}
}

// TestRestoreKeepsSource tests that cleanup never removes the backup being restored
func TestRestoreKeepsSource(t *testing.T) {
	m, _ := newTestManager(t, WithKeep(2))
	ctx := context.Background()

	oldest, _ := m.Create(ctx, "one")
	if _, err := m.Create(ctx, "two"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Restore(ctx, oldest.Name); err != nil {
		t.Fatalf("Restore(oldest) error = %v", err)
	}
}

// TestRestoreRejects tests failures that must leave data untouched
func TestRestoreRejects(t *testing.T) {
	m, v := newTestManager(t)
	ctx := context.Background()

	if _, err := v.CreateAccount(ctx, vault.Input{Email: "a@example.com", Password: "p"}); err != nil {
		t.Fatal(err)
	}
	good, _ := m.Create(ctx, "good")

	tampered, _ := m.Create(ctx, "tampered")
	mfPath := strings.TrimSuffix(filepath.Join(m.Dir(), tampered.Name), ".db") + ".json"
	mf, _ := json.Marshal(Manifest{Checksum: strings.Repeat("0", 64)})
	if err := os.WriteFile(mfPath, mf, 0600); err != nil {
		t.Fatal(err)
	}

	corrupt := "data_corrupt.db"
	if err := os.WriteFile(filepath.Join(m.Dir(), corrupt), []byte(strings.Repeat("junk", 1024)), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		backup  string
		wantErr error
	}{
		{"invalid name", "../" + good.Name, ErrInvalidName},
		{"not found", "data_missing.db", ErrNotFound},
		{"checksum mismatch", tampered.Name, ErrChecksumMismatch},
		{"corrupt database", corrupt, vault.ErrCorruptSource},
	}

	before := countFiles(t, m.Dir(), ".db")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Restore(ctx, tt.backup); !errors.Is(err, tt.wantErr) {
				t.Errorf("Restore(%s) error = %v, want %v", tt.backup, err, tt.wantErr)
			}
		})
	}
	if after := countFiles(t, m.Dir(), ".db"); after != before {
		t.Errorf("rejected restores created backups: %d -> %d", before, after)
	}
	accounts, _ := v.ListAccounts(ctx, vault.Filter{})
	if len(accounts) != 1 {
		t.Errorf("accounts = %d, want 1", len(accounts))
	}
}

// TestCreateDiskSpace tests the free space precheck
func TestCreateDiskSpace(t *testing.T) {
	orig := diskSpace
	t.Cleanup(func() { diskSpace = orig })

	m, _ := newTestManager(t)
	ctx := context.Background()

	diskSpace = func(string) (*DiskSpaceInfo, error) {
		return &DiskSpaceInfo{Total: 100, Available: 10}, nil
	}
	if _, err := m.Create(ctx, "x"); !errors.Is(err, ErrInsufficientSpace) {
		t.Errorf("Create() error = %v, want %v", err, ErrInsufficientSpace)
	}

	diskSpace = func(string) (*DiskSpaceInfo, error) {
		return nil, errors.New("statfs unsupported")
	}
	if _, err := m.Create(ctx, "x"); err != nil {
		t.Errorf("Create() with unknown disk space error = %v", err)
	}
}

// TestCheckDiskSpace tests the platform disk query
func TestCheckDiskSpace(t *testing.T) {
	info, err := checkDiskSpace(filepath.Join(t.TempDir(), "not-created-yet"))
	if err != nil {
		t.Fatalf("checkDiskSpace() error = %v", err)
	}
	if info.Total == 0 || info.Available > info.Total || info.UsedPct < 0 || info.UsedPct > 100 {
		t.Errorf("checkDiskSpace() = %+v", info)
	}
}
