package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/osvaldoandrade/dossier/pkg/domain"

	"github.com/go-redis/redis/v8"
)

// ResultRepository stores the latest ResultRecord per (work type, upload id).
// A rerun for the same upload replaces the earlier record.
type ResultRepository interface {
	SaveResult(ctx context.Context, rec domain.ResultRecord) error
	GetResult(ctx context.Context, workType domain.WorkType, uploadID string) (*domain.ResultRecord, error)
	GetResultByRequest(ctx context.Context, requestID string) (*domain.ResultRecord, error)
}

type resultRedisRepo struct {
	rdb *redis.Client
	tz  *time.Location
	ttl time.Duration
}

func NewResultRepository(rdb *redis.Client, tz *time.Location) ResultRepository {
	return &resultRedisRepo{rdb: rdb, tz: tz, ttl: 7 * 24 * time.Hour}
}

func (r *resultRedisRepo) keyResultsHash() string { return "dossier:results" }
func (r *resultRedisRepo) keyRequestIndex() string {
	return "dossier:results:by_request"
}
func (r *resultRedisRepo) keyTTLIndex() string { return "dossier:results:ttl" }

func resultField(wt domain.WorkType, uploadID string) string {
	return fmt.Sprintf("%s:%s", wt, uploadID)
}

func (r *resultRedisRepo) now() time.Time { return time.Now().In(r.tz) }

func (r *resultRedisRepo) SaveResult(ctx context.Context, rec domain.ResultRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	field := resultField(rec.WorkType, rec.UploadID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.keyResultsHash(), field, string(b))
	if rec.RequestID != "" {
		pipe.HSet(ctx, r.keyRequestIndex(), rec.RequestID, field)
	}
	// logical retention, swept by operators
	pipe.ZAdd(ctx, r.keyTTLIndex(), &redis.Z{Score: float64(r.now().Add(r.ttl).UTC().Unix()), Member: field})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis HSET result: %w", err)
	}
	return nil
}

func (r *resultRedisRepo) GetResult(ctx context.Context, workType domain.WorkType, uploadID string) (*domain.ResultRecord, error) {
	return r.load(ctx, resultField(workType, uploadID))
}

func (r *resultRedisRepo) GetResultByRequest(ctx context.Context, requestID string) (*domain.ResultRecord, error) {
	field, err := r.rdb.HGet(ctx, r.keyRequestIndex(), requestID).Result()
	if err == redis.Nil || field == "" {
		return nil, fmt.Errorf("not-found")
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET request index: %w", err)
	}
	return r.load(ctx, field)
}

func (r *resultRedisRepo) load(ctx context.Context, field string) (*domain.ResultRecord, error) {
	js, err := r.rdb.HGet(ctx, r.keyResultsHash(), field).Result()
	if err == redis.Nil || js == "" {
		return nil, fmt.Errorf("not-found")
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET result: %w", err)
	}
	var rec domain.ResultRecord
	if err := json.Unmarshal([]byte(js), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &rec, nil
}
