// Package audit provides audit logging with HMAC chain for tamper detection.
//
// Events are appended as JSON lines to one file per month (YYYY-MM.jsonl).
// Each record carries the HMAC of the previous one, so deleting, reordering
// or editing any line breaks Verify. Account identifiers are stored only as
// HMACs; plaintext credentials are never written.
package audit

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// MinAuditDiskSpace is the free space required before each write.
const MinAuditDiskSpace = 1024 * 1024

// hkdfInfo separates the audit key from every other use of the master key.
const hkdfInfo = "acctvault-audit-v1"

const (
	genesis      = "genesis"
	metaFileName = "audit.meta"
)

// Operation types for audit logging
const (
	// Auth gate, mirroring auth.EventKind values
	OpAuthLogin         = "auth.login"
	OpAuthLoginFailed   = "auth.login_failed"
	OpAuthLockout       = "auth.lockout"
	OpAuthLoginBlocked  = "auth.login_blocked"
	OpAuthLogout        = "auth.logout"
	OpAuthLogoutFailed  = "auth.logout_failed"
	OpAuthMisconfigured = "auth.misconfigured"
	OpAuthDenied        = "auth.denied"

	// Accounts
	OpAccountCreate       = "account.create"
	OpAccountUpdate       = "account.update"
	OpAccountDelete       = "account.delete"
	OpAccountDeleteAll    = "account.delete_all"
	OpAccountRestore      = "account.restore"
	OpAccountPurge        = "account.purge"
	OpAccountPurgeAll     = "account.purge_all"
	OpAccountToggleStatus = "account.toggle_status"
	OpAccountToggleSold   = "account.toggle_sold"
	OpAccountImport       = "account.import"

	// Backups
	OpBackupCreate  = "backup.create"
	OpBackupRestore = "backup.restore"
	OpBackupSeal    = "backup.seal"
	OpBackupUnseal  = "backup.unseal"
	OpBackupUpload  = "backup.upload"

	// Export and 2FA
	OpExportText   = "export.text"
	OpExportSQL    = "export.sql"
	OpTOTPGenerate = "totp.generate"
)

// Source identifies where the operation originated
const (
	SourceCLI     = "cli"
	SourceMCP     = "mcp"
	SourceDesktop = "desktop"
	SourceAPI     = "api"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// ErrKeyNotSet is returned when logging before SetHMACKey.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// Event represents a single audit log record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"` // UUIDv7, time-ordered
	Timestamp string `json:"ts"` // RFC 3339, nanosecond precision

	Operation string `json:"op"`
	KeyHMAC   string `json:"key_hmac,omitempty"`

	Actor Actor `json:"actor"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]any `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Actor represents who performed the operation
type Actor struct {
	Type      string `json:"type"`
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain provides HMAC chain for tamper detection
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger handles audit log writing with HMAC chain
type Logger struct {
	path      string
	now       func() time.Time
	sessionID string

	mu         sync.Mutex
	hmacKey    []byte
	hmacKeySet bool
	sequence   int64
	prevHash   string
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock sets the time source for event timestamps and file rotation.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// NewLogger creates a new audit logger writing under path.
func NewLogger(path string, opts ...Option) *Logger {
	l := &Logger{
		path:      path,
		now:       time.Now,
		prevHash:  genesis,
		sessionID: generateSessionID(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetHMACKey derives the chain key from the master key with HKDF-SHA256 and
// resumes the chain from the saved state.
func (l *Logger) SetHMACKey(masterKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := hkdf.New(sha256.New, masterKey, nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := r.Read(key); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKey = key
	l.hmacKeySet = true

	if err := l.loadChainState(); err != nil {
		// First run.
		l.sequence = 0
		l.prevHash = genesis
	}
	return nil
}

// Log records an audit event. key, when non-empty, is stored as an HMAC.
func (l *Logger) Log(op, source, result, key string, errInfo *ErrorInfo, ctx map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return ErrKeyNotSet
	}
	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("audit: failed to generate event id: %w", err)
	}

	now := l.now().UTC()
	event := Event{
		Version:   1,
		ID:        id.String(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Actor: Actor{
			Type:      "admin",
			Source:    source,
			SessionID: l.sessionID,
		},
		Result:  result,
		Error:   errInfo,
		Context: ctx,
	}
	if key != "" {
		event.KeyHMAC = l.mac([]byte(key))
	}

	event.Chain.Sequence = l.sequence + 1
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.mac(recordData(&event))

	if err := l.writeEvent(&event, now); err != nil {
		return err
	}

	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations
func (l *Logger) LogSuccess(op, source, key string) error {
	return l.Log(op, source, ResultSuccess, key, nil, nil)
}

// LogError is a convenience method for failed operations
func (l *Logger) LogError(op, source, key, errCode, errMsg string) error {
	return l.Log(op, source, ResultError, key, &ErrorInfo{Code: errCode, Message: errMsg}, nil)
}

// LogDenied is a convenience method for denied operations
func (l *Logger) LogDenied(op, source, key, reason string) error {
	return l.Log(op, source, ResultDenied, key, nil, map[string]any{"reason": reason})
}

func (l *Logger) mac(data []byte) string {
	m := hmac.New(sha256.New, l.hmacKey)
	m.Write(data)
	return hex.EncodeToString(m.Sum(nil))
}

// recordData is the HMAC input: every field except the HMAC itself, with
// context keys sorted.
func recordData(e *Event) []byte {
	var errorData string
	if e.Error != nil {
		errorData = e.Error.Code + "|" + e.Error.Message
	}

	var ctx strings.Builder
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&ctx, "%s=%v|", k, e.Context[k])
	}

	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		e.Version, e.ID, e.Timestamp, e.Operation, e.KeyHMAC,
		e.Actor.Type, e.Actor.Source, e.Actor.SessionID,
		e.Result, errorData, ctx.String(),
		e.Chain.Sequence, e.Chain.PrevHash,
	))
}

func (l *Logger) writeEvent(event *Event, now time.Time) error {
	path := filepath.Join(l.path, now.Format("2006-01")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// ChainState holds the persistent chain state
type ChainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, metaFileName))
	if err != nil {
		return err
	}
	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(ChainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, metaFileName), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify checks the integrity of the audit log chain
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return nil, ErrKeyNotSet
	}

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := genesis
	var expectedSeq int64 = 1

	for i := range events {
		event := &events[i]
		result.RecordsTotal++

		if event.Chain.Sequence != expectedSeq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d",
				event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s: expected prev %s, got %s",
				event.ID, expectedPrev, event.Chain.PrevHash))
		}
		if !hmac.Equal([]byte(event.Chain.HMAC), []byte(l.mac(recordData(event)))) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		} else {
			result.RecordsVerified++
		}

		expectedPrev = event.Chain.HMAC
		expectedSeq++
	}
	return result, nil
}

// ListEvents returns the most recent limit events (0 = all) after since
// (zero = no filter), oldest first.
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	if !since.IsZero() {
		filtered := events[:0]
		for _, e := range events {
			ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
			if err != nil {
				continue
			}
			if ts.After(since) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Export renders events between since and until (zero = open) as "json"
// or "csv".
func (l *Logger) Export(format string, since, until time.Time) ([]byte, error) {
	l.mu.Lock()
	events, err := l.readAll()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	filtered := make([]Event, 0, len(events))
	for _, e := range events {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			continue
		}
		if (!since.IsZero() && ts.Before(since)) || (!until.IsZero() && ts.After(until)) {
			continue
		}
		filtered = append(filtered, e)
	}

	switch format {
	case "json":
		return json.MarshalIndent(filtered, "", "  ")
	case "csv":
		return formatCSV(filtered)
	default:
		return nil, fmt.Errorf("audit: unsupported format: %s", format)
	}
}

func formatCSV(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"timestamp", "operation", "source", "result", "key_hash"})
	for _, e := range events {
		key := e.KeyHMAC
		if len(key) > 16 {
			key = key[:16] + "..."
		}
		_ = w.Write([]string{
			csvSafe(e.Timestamp), csvSafe(e.Operation), csvSafe(e.Actor.Source),
			csvSafe(e.Result), csvSafe(key),
		})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// csvSafe neutralizes cells a spreadsheet would evaluate as a formula.
func csvSafe(s string) string {
	if s != "" && strings.ContainsRune("=+-@", rune(s[0])) {
		return "'" + s
	}
	return s
}

// Path returns the audit log directory path
func (l *Logger) Path() string {
	return l.path
}

func (l *Logger) readAll() ([]Event, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM names sort chronologically.
	sort.Strings(files)

	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", filepath.Base(file), err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func readLogFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("failed to parse line: %w", err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}
