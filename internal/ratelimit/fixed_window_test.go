package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	ctx := context.Background()
	first := limiter.Allow(ctx, "ip-1")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first request should pass with 1 remaining, got %+v", first)
	}
	if !limiter.Allow(ctx, "ip-1").Allowed {
		t.Fatalf("second request should pass")
	}
	third := limiter.Allow(ctx, "ip-1")
	if third.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if third.RetryAfter <= 0 || third.RetryAfter > time.Minute {
		t.Fatalf("retry after out of range: %v", third.RetryAfter)
	}
	if !limiter.Allow(ctx, "ip-2").Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterFailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	mr.Close()
	if limiter.Allow(context.Background(), "ip-1").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterValidation(t *testing.T) {
	if _, err := NewRedisFixedWindowLimiter("", "", "p", 1, time.Second); err == nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(nil, "p", 1, time.Second); err == nil {
		t.Fatalf("expected constructor error for nil client")
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if _, err := NewFixedWindowLimiter(client, "p", 0, time.Second); err == nil {
		t.Fatalf("expected constructor error for zero limit")
	}
}
