package providers

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

func NewRedisProvider(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// NewUploader picks the artifact store named by provider ("local" or "gcs").
func NewUploader(ctx context.Context, provider, bucket, localDir string, publicRead bool) (Uploader, error) {
	switch provider {
	case "", "local":
		return NewLocalUploader(localDir), nil
	case "gcs":
		return NewGCSUploader(ctx, bucket, publicRead)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", provider)
	}
}
