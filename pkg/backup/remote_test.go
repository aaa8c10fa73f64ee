package backup

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func stubS3(t *testing.T, put func(in *s3.PutObjectInput) error) *s3.Options {
	t.Helper()
	origLoad, origNew, origPut := loadDefaultAWSConfig, newS3ClientFromConfig, putObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
		putObject = origPut
	})

	var opts s3.Options
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			_ = fn(&lo)
		}
		return aws.Config{Region: lo.Region, Credentials: lo.Credentials}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		opts.Region = cfg.Region
		opts.Credentials = cfg.Credentials
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		if err := put(in); err != nil {
			return nil, err
		}
		return &s3.PutObjectOutput{}, nil
	}
	return &opts
}

func TestS3UploaderUpload(t *testing.T) {
	var gotBucket, gotKey, gotBody string
	opts := stubS3(t, func(in *s3.PutObjectInput) error {
		gotBucket, gotKey = aws.ToString(in.Bucket), aws.ToString(in.Key)
		b, _ := io.ReadAll(in.Body)
		gotBody = string(b)
		return nil
	})

	u, err := NewS3Uploader(S3Config{
		Bucket:    "vault-backups",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Prefix:    "/laptop/",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	loc, err := u.Upload(context.Background(), "data_1.db", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if loc != "s3://vault-backups/laptop/data_1.db" {
		t.Errorf("location = %s", loc)
	}
	if gotBucket != "vault-backups" || gotKey != "laptop/data_1.db" || gotBody != "payload" {
		t.Errorf("PutObject got bucket=%s key=%s body=%s", gotBucket, gotKey, gotBody)
	}
	if aws.ToString(opts.BaseEndpoint) != "http://127.0.0.1:9000" || !opts.UsePathStyle {
		t.Errorf("client options endpoint=%v pathStyle=%v", aws.ToString(opts.BaseEndpoint), opts.UsePathStyle)
	}
	if opts.Region != defaultRegion {
		t.Errorf("region = %s, want %s", opts.Region, defaultRegion)
	}
	creds, err := opts.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "minioadmin" {
		t.Errorf("credentials = %+v, %v", creds, err)
	}
}

func TestS3UploaderErrors(t *testing.T) {
	if _, err := NewS3Uploader(S3Config{}, nil); !errors.Is(err, ErrRemoteNotConfigured) {
		t.Errorf("NewS3Uploader(empty) error = %v, want %v", err, ErrRemoteNotConfigured)
	}

	boom := errors.New("put-fail")
	stubS3(t, func(*s3.PutObjectInput) error { return boom })
	u, _ := NewS3Uploader(S3Config{Bucket: "b", Region: "eu-west-1"}, nil)

	if _, err := u.Upload(context.Background(), "data_1.db", strings.NewReader("x")); !errors.Is(err, boom) {
		t.Errorf("Upload() error = %v, want %v", err, boom)
	}
	if _, err := u.Upload(context.Background(), "../etc/passwd", strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Upload(bad name) error = %v, want %v", err, ErrInvalidName)
	}
	if got := u.Key("data_1.db"); got != "data_1.db" {
		t.Errorf("Key() without prefix = %s", got)
	}
}

type recordingUploader struct {
	name string
	size int
}

func (r *recordingUploader) Upload(_ context.Context, name string, body io.Reader) (string, error) {
	b, err := io.ReadAll(body)
	r.name, r.size = name, len(b)
	return "mem://" + name, err
}

func TestManagerUpload(t *testing.T) {
	m, _ := newTestManager(t)
	info, err := m.Create(context.Background(), "manual")
	if err != nil {
		t.Fatal(err)
	}

	up := &recordingUploader{}
	loc, err := m.Upload(context.Background(), info.Name, up)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if loc != "mem://"+info.Name || up.name != info.Name || int64(up.size) != info.SizeBytes {
		t.Errorf("uploaded %s (%d bytes) to %s", up.name, up.size, loc)
	}

	if _, err := m.Upload(context.Background(), "data_none.db", up); !errors.Is(err, ErrNotFound) {
		t.Errorf("Upload(missing) error = %v, want %v", err, ErrNotFound)
	}
}
