package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/forest6511/acctvault/internal/logging"
)

// ErrRemoteNotConfigured indicates no bucket was configured for uploads.
var ErrRemoteNotConfigured = errors.New("backup: remote storage is not configured")

const defaultRegion = "us-east-1"

// Uploader copies a backup somewhere off the machine and returns where it went.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// S3Config describes an S3 or S3-compatible (MinIO) bucket.
type S3Config struct {
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Region    string `yaml:"region" toml:"region"`
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// S3Uploader uploads backups with PutObject.
type S3Uploader struct {
	cfg    S3Config
	logger logging.Logger
}

// NewS3Uploader returns an uploader for cfg. Static credentials are used
// when an access key is set; otherwise the default AWS chain applies.
func NewS3Uploader(cfg S3Config, logger logging.Logger) (*S3Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrRemoteNotConfigured
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &S3Uploader{cfg: cfg, logger: logger}, nil
}

// Key returns the object key for a backup name.
func (u *S3Uploader) Key(name string) string {
	prefix := strings.Trim(u.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func (u *S3Uploader) client(ctx context.Context) (*s3.Client, error) {
	region := u.cfg.Region
	if region == "" {
		region = defaultRegion
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if u.cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(u.cfg.AccessKey, u.cfg.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to load AWS config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if u.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(u.cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Upload puts r under the configured prefix and returns s3://bucket/key.
func (u *S3Uploader) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	name, err := ValidateName(name)
	if err != nil {
		return "", err
	}

	client, err := u.client(ctx)
	if err != nil {
		return "", err
	}

	key := u.Key(name)
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return "", fmt.Errorf("backup: upload failed: %w", err)
	}

	location := "s3://" + u.cfg.Bucket + "/" + key
	u.logger.Info(ctx, "backup uploaded", "location", location)
	return location, nil
}

// Upload sends the named backup through up.
func (m *Manager) Upload(ctx context.Context, name string, up Uploader) (string, error) {
	p, err := m.Path(name)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("backup: failed to open backup: %w", err)
	}
	defer f.Close()
	return up.Upload(ctx, filepath.Base(p), f)
}
