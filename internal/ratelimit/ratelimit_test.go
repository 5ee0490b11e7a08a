package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestInMemoryLimiter_Allow(t *testing.T) {
	l := NewInMemoryLimiter(3)
	ctx := context.Background()

	d, err := l.Allow(ctx, "user1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("expected first request to be allowed")
	}
	if d.Remaining != 2 {
		t.Errorf("expected remaining 2, got %d", d.Remaining)
	}

	l.Allow(ctx, "user1")
	l.Allow(ctx, "user1")

	d, _ = l.Allow(ctx, "user1")
	if d.Allowed {
		t.Error("expected request over the limit to be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", d.Remaining)
	}
}

func TestInMemoryLimiter_DifferentUsers(t *testing.T) {
	l := NewInMemoryLimiter(1)
	ctx := context.Background()

	l.Allow(ctx, "user1")

	if d, _ := l.Allow(ctx, "user1"); d.Allowed {
		t.Error("user1 should be limited")
	}
	if d, _ := l.Allow(ctx, "user2"); !d.Allowed {
		t.Error("user2 should not be limited")
	}
}

func TestInMemoryLimiter_WindowReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewInMemoryLimiter(1)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	d, _ := l.Allow(ctx, "user1")
	if !d.ResetAt.Equal(now.Add(time.Minute)) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, now.Add(time.Minute))
	}
	if d, _ := l.Allow(ctx, "user1"); d.Allowed {
		t.Error("second request in window should be denied")
	}

	now = now.Add(time.Minute)
	if d, _ := l.Allow(ctx, "user1"); !d.Allowed {
		t.Error("request after window reset should be allowed")
	}
}

func TestRedisLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLimiter(client, 2)
	ctx := context.Background()

	for i, wantAllowed := range []bool{true, true, false} {
		d, err := l.Allow(ctx, "user1")
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i, err)
		}
		if d.Allowed != wantAllowed {
			t.Errorf("Allow() #%d allowed = %v, want %v", i, d.Allowed, wantAllowed)
		}
	}

	if d, _ := l.Allow(ctx, "user2"); !d.Allowed {
		t.Error("user2 should have its own window")
	}

	if ttl := mr.TTL(keyPrefix + "user1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("key TTL = %v, want within one minute", ttl)
	}
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	l := NewRedisLimiter(client, 1)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "user1")
	if d, _ := l.Allow(ctx, "user1"); d.Allowed {
		t.Fatal("second request should be denied")
	}

	now = now.Add(2 * time.Minute)
	if d, _ := l.Allow(ctx, "user1"); !d.Allowed {
		t.Error("old entries should have slid out of the window")
	}
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	l := NewRedisLimiter(client, 1)
	if _, err := l.Allow(context.Background(), "user1"); err == nil {
		t.Error("expected error when redis is unreachable")
	}
}
