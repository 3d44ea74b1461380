package media

import (
	"context"
	"errors"
	"io"
)

// ErrUploaderDisabled indicates that sharing uploads are not configured.
var ErrUploaderDisabled = errors.New("media uploader disabled")

// UploadInput wraps the payload required for persisting a file.
type UploadInput struct {
	Filename    string
	ContentType string
	Body        io.Reader
	Size        int64
}

// UploadResult captures the canonical object key and its accessible URL.
type UploadResult struct {
	Key string
	URL string
}

// Uploader hides the backing implementation for storing shared snapshots.
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (UploadResult, error)
}

type disabledUploader struct{}

func (disabledUploader) Upload(_ context.Context, _ UploadInput) (UploadResult, error) {
	return UploadResult{}, ErrUploaderDisabled
}

// Disabled returns an uploader that always signals disabled uploads.
func Disabled() Uploader {
	return disabledUploader{}
}

// Config represents the settings for S3 (or an S3-compatible API) and the
// local fallback directory.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicURL       string
	KeyPrefix       string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string

	// LocalDir enables the filesystem uploader when no bucket is set.
	LocalDir string
	// LocalURLPrefix is the route under which LocalDir is served.
	LocalURLPrefix string
}

// NewUploader wires S3 when a bucket and region are configured, the local
// uploader when LocalDir is set and a disabled uploader otherwise.
func NewUploader(ctx context.Context, cfg Config) (Uploader, error) {
	switch {
	case cfg.Bucket != "" && cfg.Region != "":
		return newS3Uploader(ctx, cfg)
	case cfg.LocalDir != "":
		return NewLocalUploader(cfg.LocalDir, cfg.LocalURLPrefix)
	default:
		return Disabled(), nil
	}
}
