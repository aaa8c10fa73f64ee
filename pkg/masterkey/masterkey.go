// Package masterkey provides the process master key used to encrypt account
// fields at rest.
//
// The key is resolved once per Provider and cached, including a failure:
//
//  1. GOOGLE_MANAGER_MASTER_KEY, as 64 hex characters or standard base64
//  2. the key file (32 raw bytes)
//  3. a freshly generated key, written to the key file with mode 0600
//
// The key file is created with O_EXCL so that two processes starting at the
// same time can never persist divergent keys; the loser reads the winner's file.
package masterkey

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/forest6511/acctvault/pkg/crypto"
)

const (
	// EnvKey is the environment variable holding an explicit master key.
	EnvKey = "GOOGLE_MANAGER_MASTER_KEY"

	// KeyFileName is the file name of the persisted key inside the data directory.
	KeyFileName = "master.key"

	// FileMode is the permission of the key file.
	FileMode = 0600

	// DirMode is the permission of the directory holding the key file.
	DirMode = 0700
)

var (
	// ErrBadFormat indicates the environment override does not decode to 32 bytes.
	ErrBadFormat = errors.New("masterkey: override must be 64 hex characters or base64 of exactly 32 bytes")

	// ErrCorruptFile indicates the key file exists but is not exactly 32 bytes.
	ErrCorruptFile = errors.New("masterkey: key file is corrupt, expected exactly 32 bytes")
)

// Source records where a key came from.
type Source string

const (
	SourceEnv       Source = "env"
	SourceFile      Source = "file"
	SourceGenerated Source = "generated"
)

// Provider resolves and caches the master key.
type Provider struct {
	keyPath   string
	lookupEnv func(string) (string, bool)
	random    io.Reader

	once   sync.Once
	key    []byte
	source Source
	err    error
}

// Option configures a Provider.
type Option func(*Provider)

// WithEnv replaces os.LookupEnv.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(p *Provider) {
		p.lookupEnv = lookup
	}
}

// WithRandom replaces crypto/rand as the source for generated keys.
func WithRandom(r io.Reader) Option {
	return func(p *Provider) {
		p.random = r
	}
}

// New returns a Provider persisting its key at keyPath.
func New(keyPath string, opts ...Option) *Provider {
	p := &Provider{
		keyPath:   keyPath,
		lookupEnv: os.LookupEnv,
		random:    rand.Reader,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultKeyPath returns the key file location inside dataDir.
func DefaultKeyPath(dataDir string) string {
	return filepath.Join(dataDir, KeyFileName)
}

// MasterKey returns the cached 32-byte key, resolving it on first use.
// The returned slice is shared and must not be modified.
func (p *Provider) MasterKey() ([]byte, error) {
	p.once.Do(p.resolve)
	if p.err != nil {
		return nil, p.err
	}
	return p.key, nil
}

// Source reports where the cached key came from. It is empty until
// MasterKey has succeeded.
func (p *Provider) Source() Source {
	p.once.Do(p.resolve)
	return p.source
}

// Path returns the key file path.
func (p *Provider) Path() string {
	return p.keyPath
}

func (p *Provider) resolve() {
	if raw, ok := p.lookupEnv(EnvKey); ok {
		p.key, p.err = ParseKey(raw)
		if p.err == nil {
			p.source = SourceEnv
		}
		return
	}

	key, err := readKeyFile(p.keyPath)
	switch {
	case err == nil:
		p.key, p.source = key, SourceFile
		return
	case !errors.Is(err, fs.ErrNotExist):
		p.err = err
		return
	}

	key, created, err := p.createKeyFile()
	if err != nil {
		p.err = err
		return
	}
	p.key = key
	if created {
		p.source = SourceGenerated
	} else {
		p.source = SourceFile
	}
}

// ParseKey decodes an override value: 64 hex characters (any case) first,
// standard base64 otherwise.
func ParseKey(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)

	var (
		key []byte
		err error
	)
	if len(s) == 2*crypto.KeyLength && isHex(s) {
		key, err = hex.DecodeString(s)
	} else {
		key, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if len(key) != crypto.KeyLength {
		crypto.SecureWipe(key)
		return nil, fmt.Errorf("%w: got %d bytes", ErrBadFormat, len(key))
	}
	return key, nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("masterkey: failed to read key file: %w", err)
	}
	if len(data) != crypto.KeyLength {
		crypto.SecureWipe(data)
		return nil, ErrCorruptFile
	}
	return data, nil
}

// createKeyFile generates and persists a new key. created is false when
// another process created the file first and its key was read back instead.
func (p *Provider) createKeyFile() (key []byte, created bool, err error) {
	if err := os.MkdirAll(filepath.Dir(p.keyPath), DirMode); err != nil {
		return nil, false, fmt.Errorf("masterkey: failed to create key directory: %w", err)
	}

	key = make([]byte, crypto.KeyLength)
	if _, err := io.ReadFull(p.random, key); err != nil {
		return nil, false, fmt.Errorf("masterkey: failed to generate key: %w", err)
	}

	f, err := os.OpenFile(p.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FileMode)
	if err != nil {
		crypto.SecureWipe(key)
		if errors.Is(err, fs.ErrExist) {
			existing, rerr := readKeyFile(p.keyPath)
			return existing, false, rerr
		}
		return nil, false, fmt.Errorf("masterkey: failed to create key file: %w", err)
	}

	if _, err := f.Write(key); err != nil {
		f.Close()
		os.Remove(p.keyPath)
		crypto.SecureWipe(key)
		return nil, false, fmt.Errorf("masterkey: failed to write key file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(p.keyPath)
		crypto.SecureWipe(key)
		return nil, false, fmt.Errorf("masterkey: failed to sync key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, false, fmt.Errorf("masterkey: failed to close key file: %w", err)
	}
	return key, true, nil
}
