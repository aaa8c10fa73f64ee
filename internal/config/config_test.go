package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c := Defaults()

	assert.Equal(t, "127.0.0.1:3001", c.HTTP.Addr)
	assert.Equal(t, 20, c.KeepBackups)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
	assert.Contains(t, c.HTTP.AllowedOrigins, "tauri://localhost")
	assert.Equal(t, AppDirName, filepath.Base(c.DataDir))
	assert.False(t, c.S3.Enabled())
}

func TestLoad_DerivesPaths(t *testing.T) {
	dir := t.TempDir()
	c, err := load(Flags{DataDir: dir}, env(nil))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data.db"), c.DBPath)
	assert.Equal(t, filepath.Join(dir, "backups"), c.BackupDir)
	assert.Equal(t, filepath.Join(dir, "audit"), c.Audit.Dir)
}

func TestLoad_YAMLFromDataDir(t *testing.T) {
	dir := t.TempDir()
	yml := "keep_backups: 5\nhttp:\n  addr: 127.0.0.1:4000\ns3:\n  bucket: from-file\n  region: eu-west-1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o600))

	c, err := load(Flags{}, env(map[string]string{EnvDataDir: dir}))
	require.NoError(t, err)

	assert.Equal(t, dir, c.DataDir)
	assert.Equal(t, 5, c.KeepBackups)
	assert.Equal(t, "127.0.0.1:4000", c.HTTP.Addr)
	assert.Equal(t, "from-file", c.S3.Bucket)
	assert.Equal(t, "eu-west-1", c.S3.Region)
	// untouched keys keep their defaults
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoad_TOMLExplicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acctvault.toml")
	tml := "data_dir = \"" + filepath.ToSlash(dir) + "\"\n\n[log]\nformat = \"json\"\n\n[s3]\nbucket = \"b\"\nprefix = \"laptop\"\n"
	require.NoError(t, os.WriteFile(path, []byte(tml), 0o600))

	c, err := load(Flags{ConfigFile: path}, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, "b", c.S3.Bucket)
	assert.Equal(t, "laptop", c.S3.Prefix)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("log:\n  level: warn\n  format: json\ns3:\n  bucket: file\n"), 0o600))

	c, err := load(
		Flags{DataDir: dir, LogLevel: "debug"},
		env(map[string]string{
			EnvLogLevel:    "error",
			EnvS3Bucket:    "env",
			EnvKeepBackups: "7",
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Log.Level, "flag beats env")
	assert.Equal(t, "json", c.Log.Format, "file beats default")
	assert.Equal(t, "env", c.S3.Bucket, "env beats file")
	assert.Equal(t, 7, c.KeepBackups)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := load(Flags{ConfigFile: filepath.Join(dir, "missing.yaml")}, env(nil))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("http: [oops"), 0o600))
	_, err = load(Flags{ConfigFile: bad}, env(nil))
	assert.Error(t, err)

	ini := filepath.Join(dir, "c.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o600))
	_, err = load(Flags{ConfigFile: ini}, env(nil))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = load(Flags{DataDir: dir}, env(map[string]string{EnvHTTPAddr: "0.0.0.0:3001"}))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"localhost", func(c *Config) { c.HTTP.Addr = "localhost:8080" }, false},
		{"ipv6 loopback", func(c *Config) { c.HTTP.Addr = "[::1]:3001" }, false},
		{"all interfaces", func(c *Config) { c.HTTP.Addr = ":3001" }, true},
		{"lan address", func(c *Config) { c.HTTP.Addr = "192.168.1.10:3001" }, true},
		{"no port", func(c *Config) { c.HTTP.Addr = "127.0.0.1" }, true},
		{"keep zero", func(c *Config) { c.KeepBackups = 0 }, true},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"empty data dir", func(c *Config) { c.DataDir = " " }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, name)

			want := Defaults()
			want.DataDir = dir
			want.S3.Bucket = "bucket"
			require.NoError(t, Save(want, path))

			got, err := load(Flags{ConfigFile: path}, env(nil))
			require.NoError(t, err)
			assert.Equal(t, "bucket", got.S3.Bucket)
			assert.Equal(t, want.HTTP.AllowedOrigins, got.HTTP.AllowedOrigins)

			info, err := os.Stat(path)
			require.NoError(t, err)
			if os.PathSeparator == '/' {
				assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
			}
		})
	}
}
