package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestLogger(t *testing.T, opts ...Option) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	logger := NewLogger(dir, opts...)
	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	if err := logger.SetHMACKey(masterKey); err != nil {
		t.Fatalf("SetHMACKey failed: %v", err)
	}
	return logger, dir
}

func readEvents(t *testing.T, dir string) []Event {
	t.Helper()
	files, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	var events []Event
	for _, f := range files {
		got, err := readLogFile(f)
		if err != nil {
			t.Fatalf("readLogFile(%s) error = %v", f, err)
		}
		events = append(events, got...)
	}
	return events
}

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)

	if logger.Path() != tmpDir {
		t.Errorf("Path() = %s, want %s", logger.Path(), tmpDir)
	}
	if logger.prevHash != genesis {
		t.Errorf("prevHash = %s, want %s", logger.prevHash, genesis)
	}
	if logger.sessionID == "" || logger.sessionID == generateSessionID() {
		t.Error("expected a unique non-empty session ID")
	}
}

func TestLogWithoutHMACKey(t *testing.T) {
	logger := NewLogger(t.TempDir())
	if err := logger.LogSuccess(OpAccountCreate, SourceCLI, "1"); !errors.Is(err, ErrKeyNotSet) {
		t.Errorf("LogSuccess() error = %v, want %v", err, ErrKeyNotSet)
	}
	if _, err := logger.Verify(); !errors.Is(err, ErrKeyNotSet) {
		t.Errorf("Verify() error = %v, want %v", err, ErrKeyNotSet)
	}
}

// TestLogSuccess tests the written record and that the key is never stored in plaintext
func TestLogSuccess(t *testing.T) {
	logger, dir := newTestLogger(t)

	if err := logger.LogSuccess(OpAccountCreate, SourceAPI, "alice@example.com"); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if len(files) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(files))
	}
	raw, _ := os.ReadFile(files[0])
	if bytes.Contains(raw, []byte("alice@example.com")) {
		t.Error("log contains the plaintext key")
	}

	var event Event
	if err := json.Unmarshal(bytes.TrimSpace(raw), &event); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if event.Operation != OpAccountCreate || event.Result != ResultSuccess || event.Actor.Source != SourceAPI {
		t.Errorf("event = %+v", event)
	}
	if event.Chain.Sequence != 1 || event.Chain.PrevHash != genesis || event.Chain.HMAC == "" {
		t.Errorf("chain = %+v", event.Chain)
	}
	if event.KeyHMAC == "" || len(event.KeyHMAC) != 64 {
		t.Errorf("KeyHMAC = %q", event.KeyHMAC)
	}
	id, err := uuid.Parse(event.ID)
	if err != nil || id.Version() != 7 {
		t.Errorf("ID = %s, want a UUIDv7 (err %v)", event.ID, err)
	}
}

func TestLogErrorAndDenied(t *testing.T) {
	logger, dir := newTestLogger(t)

	if err := logger.LogError(OpBackupRestore, SourceCLI, "data_x.db", "RESTORE_FAILED", "checksum mismatch"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}
	if err := logger.LogDenied(OpAuthDenied, SourceMCP, "", "not logged in"); err != nil {
		t.Fatalf("LogDenied failed: %v", err)
	}

	events := readEvents(t, dir)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Result != ResultError || events[0].Error == nil || events[0].Error.Code != "RESTORE_FAILED" {
		t.Errorf("error event = %+v", events[0])
	}
	if events[1].Result != ResultDenied || events[1].Context["reason"] != "not logged in" || events[1].KeyHMAC != "" {
		t.Errorf("denied event = %+v", events[1])
	}
}

// TestChainPersistence tests that a new logger resumes the chain
func TestChainPersistence(t *testing.T) {
	logger1, dir := newTestLogger(t)
	for i := 0; i < 3; i++ {
		if err := logger1.LogSuccess(OpAccountUpdate, SourceCLI, "1"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	logger2 := NewLogger(dir)
	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	if err := logger2.SetHMACKey(masterKey); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := logger2.LogSuccess(OpTOTPGenerate, SourceCLI, "2"); err != nil {
			t.Fatalf("LogSuccess failed: %v", err)
		}
	}

	result, err := logger2.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid || result.RecordsTotal != 5 || result.RecordsVerified != 5 {
		t.Errorf("Verify() = %+v", result)
	}
}

// TestMonthlyFiles tests that events roll over to a new file each month and verify across files
func TestMonthlyFiles(t *testing.T) {
	now := time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)
	logger, dir := newTestLogger(t, WithClock(func() time.Time { return now }))

	if err := logger.LogSuccess(OpExportSQL, SourceCLI, ""); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if err := logger.LogSuccess(OpExportText, SourceCLI, ""); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"2026-01.jsonl", "2026-02.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	result, err := logger.Verify()
	if err != nil || !result.Valid || result.RecordsTotal != 2 {
		t.Errorf("Verify() = %+v, %v", result, err)
	}
}

// TestTamperingDetection tests that the HMAC chain detects edits, deletions and a wrong key
func TestTamperingDetection(t *testing.T) {
	setup := func(t *testing.T) (*Logger, string) {
		logger, dir := newTestLogger(t)
		for _, op := range []string{OpAccountCreate, OpAccountDelete, OpAccountPurge} {
			if err := logger.LogSuccess(op, SourceCLI, "7"); err != nil {
				t.Fatal(err)
			}
		}
		files, _ := filepath.Glob(filepath.Join(dir, "*.jsonl"))
		return logger, files[0]
	}

	t.Run("modified record", func(t *testing.T) {
		logger, file := setup(t)
		data, _ := os.ReadFile(file)
		data = bytes.Replace(data, []byte(OpAccountDelete), []byte(OpAccountRestore), 1)
		if err := os.WriteFile(file, data, 0600); err != nil {
			t.Fatal(err)
		}

		result, err := logger.Verify()
		if err != nil {
			t.Fatal(err)
		}
		if result.Valid || result.RecordsVerified != 2 {
			t.Errorf("Verify() = %+v, want one failed record", result)
		}
	})

	t.Run("deleted record", func(t *testing.T) {
		logger, file := setup(t)
		data, _ := os.ReadFile(file)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		kept := lines[0] + "\n" + lines[2] + "\n"
		if err := os.WriteFile(file, []byte(kept), 0600); err != nil {
			t.Fatal(err)
		}

		result, _ := logger.Verify()
		if result.Valid {
			t.Error("expected invalid chain after deleting a record")
		}
		var gap bool
		for _, e := range result.Errors {
			gap = gap || strings.Contains(e, "sequence gap")
		}
		if !gap {
			t.Errorf("errors = %v, want a sequence gap", result.Errors)
		}
	})

	t.Run("different key", func(t *testing.T) {
		_, file := setup(t)
		other := NewLogger(filepath.Dir(file))
		if err := other.SetHMACKey(bytes.Repeat([]byte{0xff}, 32)); err != nil {
			t.Fatal(err)
		}
		result, _ := other.Verify()
		if result.Valid || result.RecordsVerified != 0 {
			t.Errorf("Verify() with another key = %+v", result)
		}
	})
}

func TestVerifyEmptyLog(t *testing.T) {
	logger, _ := newTestLogger(t)
	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid || result.RecordsTotal != 0 {
		t.Errorf("Verify() = %+v", result)
	}
}

func TestListEvents(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	logger, _ := newTestLogger(t, WithClock(func() time.Time { return now }))

	for i := 0; i < 5; i++ {
		if err := logger.LogSuccess(OpBackupCreate, SourceCLI, ""); err != nil {
			t.Fatal(err)
		}
		now = now.Add(time.Hour)
	}

	tests := []struct {
		name    string
		limit   int
		since   time.Time
		wantLen int
		wantSeq int64
	}{
		{"all", 0, time.Time{}, 5, 1},
		{"limit keeps most recent", 2, time.Time{}, 2, 4},
		{"since", 0, time.Date(2026, 5, 1, 13, 30, 0, 0, time.UTC), 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := logger.ListEvents(tt.limit, tt.since)
			if err != nil {
				t.Fatalf("ListEvents() error = %v", err)
			}
			if len(events) != tt.wantLen {
				t.Fatalf("ListEvents() len = %d, want %d", len(events), tt.wantLen)
			}
			if events[0].Chain.Sequence != tt.wantSeq {
				t.Errorf("first seq = %d, want %d", events[0].Chain.Sequence, tt.wantSeq)
			}
		})
	}
}

func TestExport(t *testing.T) {
	logger, _ := newTestLogger(t)
	if err := logger.LogSuccess(OpAccountImport, SourceDesktop, "batch"); err != nil {
		t.Fatal(err)
	}

	out, err := logger.Export("csv", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Export(csv) error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 2 || lines[0] != "timestamp,operation,source,result,key_hash" {
		t.Errorf("csv = %q", out)
	}
	if !strings.Contains(lines[1], ",account.import,desktop,success,") {
		t.Errorf("csv row = %q", lines[1])
	}

	out, err = logger.Export("json", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	var events []Event
	if err := json.Unmarshal(out, &events); err != nil || len(events) != 1 {
		t.Errorf("json export = %s (%v)", out, err)
	}

	if _, err := logger.Export("xml", time.Time{}, time.Time{}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestCSVSafe(t *testing.T) {
	tests := map[string]string{
		"":        "",
		"normal":  "normal",
		"=SUM(1)": "'=SUM(1)",
		"+cmd":    "'+cmd",
		"-1":      "'-1",
		"@x":      "'@x",
	}
	for in, want := range tests {
		if got := csvSafe(in); got != want {
			t.Errorf("csvSafe(%q) = %q, want %q", in, got, want)
		}
	}
}
