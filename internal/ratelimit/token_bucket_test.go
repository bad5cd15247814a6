package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestTokenBucketLimiter_Allow_Disabled(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lim := NewTokenBucketLimiter(rdb)

	dec, err := lim.Allow(context.Background(), "producer", "user-1", Bucket{})
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed when bucket disabled")
	}
}

func TestTokenBucketLimiter_Allow_BlocksAfterBurst(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lim := NewTokenBucketLimiter(rdb)
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1} // 1 token/sec, burst=1

	dec1, err := lim.Allow(context.Background(), "producer", "user-1", bucket)
	if err != nil {
		t.Fatalf("allow 1: %v", err)
	}
	if !dec1.Allowed {
		t.Fatalf("expected first request to be allowed")
	}

	dec2, err := lim.Allow(context.Background(), "producer", "user-1", bucket)
	if err != nil {
		t.Fatalf("allow 2: %v", err)
	}
	if dec2.Allowed {
		t.Fatalf("expected second request to be rate limited")
	}
	if dec2.RetryAfter <= 0 {
		t.Fatalf("expected retryAfter to be set")
	}

	decOther, err := lim.Allow(context.Background(), "producer", "user-2", bucket)
	if err != nil {
		t.Fatalf("allow other: %v", err)
	}
	if !decOther.Allowed {
		t.Fatalf("expected other subject to be allowed (independent bucket)")
	}
}

func TestTokenBucketLimiter_KeysAreScoped(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lim := NewTokenBucketLimiter(rdb)
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1}
	if dec, _ := lim.Allow(context.Background(), ScopeAnswering, "acme", bucket); !dec.Allowed {
		t.Fatal("expected first answering call to be allowed")
	}
	if dec, _ := lim.Allow(context.Background(), ScopeWebhook, "acme", bucket); !dec.Allowed {
		t.Fatal("webhook scope must not share the answering bucket")
	}
	for _, k := range mr.Keys() {
		if !strings.HasPrefix(k, "dossier:rl:") {
			t.Errorf("unexpected key %s", k)
		}
	}
}

type scriptedLimiter struct {
	decisions []Decision
	calls     int
}

func (s *scriptedLimiter) Allow(context.Context, string, string, Bucket) (Decision, error) {
	d := s.decisions[s.calls]
	s.calls++
	return d, nil
}

func TestWait(t *testing.T) {
	bucket := Bucket{RequestsPerMinute: 60, BurstSize: 1}

	lim := &scriptedLimiter{decisions: []Decision{{RetryAfter: time.Millisecond}, {Allowed: true}}}
	if err := Wait(context.Background(), lim, ScopeWebhook, "x", bucket); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if lim.calls != 2 {
		t.Fatalf("expected a retry, got %d calls", lim.calls)
	}

	if err := Wait(context.Background(), nil, ScopeWebhook, "x", bucket); err != nil {
		t.Fatalf("nil limiter should admit: %v", err)
	}

	blocked := &scriptedLimiter{decisions: []Decision{{RetryAfter: time.Hour}}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := Wait(ctx, blocked, ScopeWebhook, "x", bucket); err == nil {
		t.Fatal("expected context error")
	}
}
