package config

import (
	"strconv"
	"strings"
)

// Environment variables read by Load.
const (
	EnvConfigFile  = "ACCTVAULT_CONFIG"
	EnvDataDir     = "ACCTVAULT_DATA_DIR"
	EnvHTTPAddr    = "ACCTVAULT_HTTP_ADDR"
	EnvLogLevel    = "ACCTVAULT_LOG_LEVEL"
	EnvLogFormat   = "ACCTVAULT_LOG_FORMAT"
	EnvKeepBackups = "ACCTVAULT_KEEP_BACKUPS"
	EnvS3Bucket    = "ACCTVAULT_S3_BUCKET"
	EnvS3Region    = "ACCTVAULT_S3_REGION"
	EnvS3Endpoint  = "ACCTVAULT_S3_ENDPOINT"
	EnvS3AccessKey = "ACCTVAULT_S3_ACCESS_KEY"
	EnvS3SecretKey = "ACCTVAULT_S3_SECRET_KEY"
	EnvS3Prefix    = "ACCTVAULT_S3_PREFIX"
)

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvDataDir, &cfg.DataDir)
	str(EnvHTTPAddr, &cfg.HTTP.Addr)
	str(EnvLogLevel, &cfg.Log.Level)
	str(EnvLogFormat, &cfg.Log.Format)
	str(EnvS3Bucket, &cfg.S3.Bucket)
	str(EnvS3Region, &cfg.S3.Region)
	str(EnvS3Endpoint, &cfg.S3.Endpoint)
	str(EnvS3AccessKey, &cfg.S3.AccessKey)
	str(EnvS3SecretKey, &cfg.S3.SecretKey)
	str(EnvS3Prefix, &cfg.S3.Prefix)

	if v, ok := lookup(EnvKeepBackups); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.KeepBackups = n
		}
	}
}
