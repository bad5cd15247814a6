package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/osvaldoandrade/dossier/pkg/domain"

	"github.com/go-redis/redis/v8"
)

type CorpusRepository interface {
	PutCorpus(ctx context.Context, h domain.CorpusHandle) error
	GetCorpus(ctx context.Context, subject string) (*domain.CorpusHandle, error)
	ListCorpora(ctx context.Context) ([]domain.CorpusHandle, error)
}

type corpusRedisRepo struct {
	rdb *redis.Client
	tz  *time.Location
}

func NewCorpusRepository(rdb *redis.Client, tz *time.Location) CorpusRepository {
	return &corpusRedisRepo{rdb: rdb, tz: tz}
}

func (r *corpusRedisRepo) keyCorporaHash() string { return "dossier:corpora" }

func (r *corpusRedisRepo) PutCorpus(ctx context.Context, h domain.CorpusHandle) error {
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now().In(r.tz)
	}
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal corpus: %w", err)
	}
	if err := r.rdb.HSet(ctx, r.keyCorporaHash(), h.Subject, string(b)).Err(); err != nil {
		return fmt.Errorf("redis HSET corpus: %w", err)
	}
	return nil
}

func (r *corpusRedisRepo) GetCorpus(ctx context.Context, subject string) (*domain.CorpusHandle, error) {
	js, err := r.rdb.HGet(ctx, r.keyCorporaHash(), subject).Result()
	if err == redis.Nil || js == "" {
		return nil, fmt.Errorf("not-found")
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET corpus: %w", err)
	}
	var h domain.CorpusHandle
	if err := json.Unmarshal([]byte(js), &h); err != nil {
		return nil, fmt.Errorf("unmarshal corpus: %w", err)
	}
	return &h, nil
}

func (r *corpusRedisRepo) ListCorpora(ctx context.Context) ([]domain.CorpusHandle, error) {
	all, err := r.rdb.HGetAll(ctx, r.keyCorporaHash()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL corpora: %w", err)
	}
	out := make([]domain.CorpusHandle, 0, len(all))
	for _, js := range all {
		var h domain.CorpusHandle
		if err := json.Unmarshal([]byte(js), &h); err != nil {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}
