package providers

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
)

type gcsUploader struct {
	client     *storage.Client
	bucket     string
	publicRead bool
}

// NewGCSUploader stores artifacts in a Cloud Storage bucket using
// application default credentials.
func NewGCSUploader(ctx context.Context, bucket string, publicRead bool) (Uploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &gcsUploader{client: client, bucket: bucket, publicRead: publicRead}, nil
}

func (u *gcsUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	obj := u.client.Bucket(u.bucket).Object(objectPath)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", objectPath, err)
	}
	if u.publicRead {
		if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
			return "", fmt.Errorf("gcs acl %s: %w", objectPath, err)
		}
	}
	return u.URL(objectPath), nil
}

func (u *gcsUploader) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := u.client.Bucket(u.bucket).Object(objectPath).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (u *gcsUploader) URL(objectPath string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, objectPath)
}
