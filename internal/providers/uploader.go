package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Uploader stores artifact bytes under a deterministic key. Writing the same
// key twice overwrites the earlier object.
type Uploader interface {
	UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error)
	Exists(ctx context.Context, objectPath string) (bool, error)
	URL(objectPath string) string
}

// ErrInvalidObjectPath rejects keys that are absolute or climb out of the
// storage root.
var ErrInvalidObjectPath = errors.New("invalid object path")

type localUploader struct {
	rootDir string
}

func NewLocalUploader(rootDir string) Uploader {
	return &localUploader{rootDir: rootDir}
}

func (u *localUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := u.path(objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return u.URL(objectPath), nil
}

func (u *localUploader) Exists(ctx context.Context, objectPath string) (bool, error) {
	p, err := u.path(objectPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (u *localUploader) URL(objectPath string) string {
	p, err := u.path(objectPath)
	if err != nil {
		return ""
	}
	abs, _ := filepath.Abs(p)
	return "file://" + abs
}

func (u *localUploader) path(objectPath string) (string, error) {
	rel := filepath.FromSlash(objectPath)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectPath, objectPath)
	}
	return filepath.Join(u.rootDir, rel), nil
}
