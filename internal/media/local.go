package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalUploader stores shared snapshots on the local filesystem.
type LocalUploader struct {
	BaseDir   string
	URLPrefix string
}

// NewLocalUploader constructs an uploader that writes to the provided directory.
// If baseDir is empty, os.TempDir() is used.
func NewLocalUploader(baseDir, urlPrefix string) (*LocalUploader, error) {
	dir := baseDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local media dir: %w", err)
	}
	return &LocalUploader{
		BaseDir:   dir,
		URLPrefix: strings.TrimSuffix(urlPrefix, "/"),
	}, nil
}

// Upload writes the incoming content to a new file. The URL is the file name
// under URLPrefix, or empty when no prefix is configured.
func (l *LocalUploader) Upload(_ context.Context, input UploadInput) (UploadResult, error) {
	if input.Body == nil {
		return UploadResult{}, fmt.Errorf("upload body is required")
	}

	ext := filepath.Ext(input.Filename)
	if len(ext) > 10 {
		ext = ext[:10]
	}

	file, err := os.CreateTemp(l.BaseDir, "stylist-*"+ext)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create media file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, input.Body); err != nil {
		os.Remove(file.Name())
		return UploadResult{}, fmt.Errorf("write media file: %w", err)
	}

	result := UploadResult{Key: file.Name()}
	if l.URLPrefix != "" {
		result.URL = l.URLPrefix + "/" + filepath.Base(file.Name())
	}
	return result, nil
}
