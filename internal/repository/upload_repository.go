package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/osvaldoandrade/dossier/pkg/domain"

	"github.com/go-redis/redis/v8"
)

type UploadRepository interface {
	SaveUpload(ctx context.Context, u domain.Upload) error
	GetUpload(ctx context.Context, uploadID string) (*domain.Upload, error)
	ClaimIdempotencyKey(ctx context.Context, key, uploadID string) (string, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

type uploadRedisRepo struct {
	rdb  *redis.Client
	tz   *time.Location
	seen *idempotencyFilter
}

func NewUploadRepository(rdb *redis.Client, tz *time.Location) UploadRepository {
	return &uploadRedisRepo{rdb: rdb, tz: tz, seen: newIdempotencyFilter(0, 0, 0)}
}

func (r *uploadRedisRepo) keyUploadsHash() string     { return "dossier:uploads" }
func (r *uploadRedisRepo) keyIdempotencyHash() string { return "dossier:uploads:idempotency" }

func (r *uploadRedisRepo) SaveUpload(ctx context.Context, u domain.Upload) error {
	if strings.TrimSpace(u.UploadID) == "" {
		return fmt.Errorf("upload id required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().In(r.tz)
	}
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal upload: %w", err)
	}
	if err := r.rdb.HSet(ctx, r.keyUploadsHash(), u.UploadID, string(b)).Err(); err != nil {
		return fmt.Errorf("redis HSET upload: %w", err)
	}
	return nil
}

func (r *uploadRedisRepo) GetUpload(ctx context.Context, uploadID string) (*domain.Upload, error) {
	js, err := r.rdb.HGet(ctx, r.keyUploadsHash(), uploadID).Result()
	if err == redis.Nil || js == "" {
		return nil, fmt.Errorf("not-found")
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET upload: %w", err)
	}
	var u domain.Upload
	if err := json.Unmarshal([]byte(js), &u); err != nil {
		return nil, fmt.Errorf("unmarshal upload: %w", err)
	}
	return &u, nil
}

// ClaimIdempotencyKey binds key to uploadID unless another upload owns it, and
// returns the owner. An owner whose upload no longer exists is replaced.
func (r *uploadRedisRepo) ClaimIdempotencyKey(ctx context.Context, key, uploadID string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("idempotency key required")
	}
	hash := r.keyIdempotencyHash()
	if r.seen.MaybeHas(key) {
		if owner, err := r.rdb.HGet(ctx, hash, key).Result(); err == nil && owner != "" {
			if n, err := r.rdb.HExists(ctx, r.keyUploadsHash(), owner).Result(); err == nil && n {
				return owner, nil
			}
			_ = r.rdb.HDel(ctx, hash, key).Err()
		}
	}
	ok, err := r.rdb.HSetNX(ctx, hash, key, uploadID).Result()
	if err != nil {
		return "", fmt.Errorf("redis HSETNX idempotency: %w", err)
	}
	r.seen.Add(key)
	if ok {
		return uploadID, nil
	}
	owner, err := r.rdb.HGet(ctx, hash, key).Result()
	if err != nil || owner == "" {
		return "", fmt.Errorf("idempotency conflict")
	}
	return owner, nil
}

func (r *uploadRedisRepo) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	if err := r.rdb.HDel(ctx, r.keyIdempotencyHash(), key).Err(); err != nil {
		return fmt.Errorf("redis HDEL idempotency: %w", err)
	}
	return nil
}
