// Package config resolves runtime settings for acctvault.
//
// Values are layered: Defaults, then an optional YAML or TOML file, then
// ACCTVAULT_* environment variables, then command-line flags. The admin
// password and master key override are environment-only and never appear here.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/forest6511/acctvault/pkg/backup"
	"github.com/forest6511/acctvault/pkg/vault"
)

// AppDirName is the directory created under the user config dir.
const AppDirName = "googlemanager"

// FileName is the config file read from the data directory by default.
const FileName = "config.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config holds resolved settings. Empty DBPath, BackupDir and Audit.Dir
// are derived from DataDir by Resolve.
type Config struct {
	DataDir     string          `yaml:"data_dir" toml:"data_dir"`
	DBPath      string          `yaml:"db_path" toml:"db_path"`
	BackupDir   string          `yaml:"backup_dir" toml:"backup_dir"`
	KeepBackups int             `yaml:"keep_backups" toml:"keep_backups"`
	HTTP        HTTPConfig      `yaml:"http" toml:"http"`
	Log         LogConfig       `yaml:"log" toml:"log"`
	Audit       AuditConfig     `yaml:"audit" toml:"audit"`
	S3          backup.S3Config `yaml:"s3" toml:"s3"`
}

// HTTPConfig configures the local HTTP API.
type HTTPConfig struct {
	Addr           string   `yaml:"addr" toml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	Dir      string `yaml:"dir" toml:"dir"`
	Disabled bool   `yaml:"disabled" toml:"disabled"`
}

// Flags carries command-line overrides. Empty fields leave the value alone.
type Flags struct {
	ConfigFile string
	DataDir    string
	LogLevel   string
	LogFormat  string
}

// DefaultDataDir returns <user config dir>/googlemanager, falling back to
// the home directory when no config dir is known.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, AppDirName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "."+AppDirName)
	}
	return AppDirName
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		DataDir:     DefaultDataDir(),
		KeepBackups: backup.DefaultKeep,
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:3001",
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://127.0.0.1:5173",
				"tauri://localhost",
			},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the config file, env and flags, and
// validates the result.
func Load(flags Flags) (*Config, error) {
	return load(flags, os.LookupEnv)
}

func load(flags Flags, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()

	// The data dir decides where the default config file lives, so resolve
	// it from env and flags before reading the file.
	dataDir := cfg.DataDir
	if v, ok := lookup(EnvDataDir); ok && strings.TrimSpace(v) != "" {
		dataDir = v
	}
	if flags.DataDir != "" {
		dataDir = flags.DataDir
	}

	path := flags.ConfigFile
	explicit := path != ""
	if !explicit {
		if v, ok := lookup(EnvConfigFile); ok && v != "" {
			path, explicit = v, true
		} else {
			path = filepath.Join(dataDir, FileName)
		}
	}
	if err := loadFile(cfg, path, explicit); err != nil {
		return nil, err
	}

	applyEnv(cfg, lookup)
	applyFlags(cfg, flags)
	cfg.Resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *Config, f Flags) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.Log.Format = f.LogFormat
	}
}

// Resolve fills derived paths from DataDir.
func (c *Config) Resolve() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, vault.DBFileName)
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.DataDir, backup.DirName)
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = filepath.Join(c.DataDir, "audit")
	}
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalid)
	}
	if c.KeepBackups < 1 {
		return fmt.Errorf("%w: keep_backups must be at least 1, got %d", ErrInvalid, c.KeepBackups)
	}
	if err := validateLoopback(c.HTTP.Addr); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

func validateLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: http addr %q: %v", ErrInvalid, addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%w: http addr %q must bind a loopback host", ErrInvalid, addr)
	}
	return nil
}
