package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestRedisRateLimiterAllow(t *testing.T) {
	ctx := context.Background()

	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisRateLimiter
		if !l.Allow(ctx, "user@example.com") {
			t.Fatalf("expected fail-open for nil limiter")
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		l := &redisRateLimiter{
			logger: zap.NewNop(),
			client: &mockRedisEvaler{result: 1},
			window: time.Minute,
			max:    3,
			prefix: "auth:issue:rl:",
		}
		if l.Allow(ctx, "   ") {
			t.Fatalf("expected empty key to be rejected")
		}
	})

	t.Run("allow when count within max", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 2}
		l := &redisRateLimiter{
			logger: zap.NewNop(),
			client: mock,
			window: 2 * time.Minute,
			max:    3,
			prefix: "auth:issue:rl:",
		}
		if !l.Allow(ctx, " two_factor:User@Example.com ") {
			t.Fatalf("expected allow when count <= max")
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "auth:issue:rl:two_factor:user@example.com" {
			t.Fatalf("unexpected key normalization, got %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != 120 {
			t.Fatalf("expected TTL seconds=120, got %+v", mock.lastArgs)
		}
		if mock.lastScript != redisIssueAllowScript {
			t.Fatalf("expected script to match")
		}
	})

	t.Run("deny when count exceeds max", func(t *testing.T) {
		l := &redisRateLimiter{
			logger: zap.NewNop(),
			client: &mockRedisEvaler{result: 4},
			window: time.Minute,
			max:    3,
			prefix: "auth:issue:rl:",
		}
		if l.Allow(ctx, "user@example.com") {
			t.Fatalf("expected deny when count > max")
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		l := &redisRateLimiter{
			logger: zap.New(core),
			client: &mockRedisEvaler{err: errors.New("redis down")},
			window: time.Minute,
			max:    3,
			prefix: "auth:issue:rl:",
		}
		if !l.Allow(ctx, "user@example.com") {
			t.Fatalf("expected fail-open on redis errors")
		}
		if logs.Len() != 1 {
			t.Fatalf("expected 1 warning logged, got %d", logs.Len())
		}
		entry := logs.All()[0]
		if entry.ContextMap()["key"] != "auth:issue:rl:user@example.com" {
			t.Fatalf("expected limiter key in log, got %+v", entry.ContextMap())
		}
	})
}

func TestRedisRateLimiter_WithMiniredis(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisRateLimiter(zap.NewNop(), client, time.Minute, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if !l.Allow(ctx, "password_reset:user@example.com") {
			t.Fatalf("expected attempt %d allowed", i+1)
		}
	}
	if l.Allow(ctx, "password_reset:user@example.com") {
		t.Fatalf("expected third attempt denied")
	}
	if !l.Allow(ctx, "password_reset:other@example.com") {
		t.Fatalf("expected other key allowed")
	}

	mr.FastForward(2 * time.Minute)
	if !l.Allow(ctx, "password_reset:user@example.com") {
		t.Fatalf("expected allow after window")
	}
}

func TestMemoryRateLimiter(t *testing.T) {
	l := NewMemoryRateLimiter(50*time.Millisecond, 2)
	ctx := context.Background()

	if !l.Allow(ctx, "k") || !l.Allow(ctx, "K ") {
		t.Fatalf("expected first two attempts allowed")
	}
	if l.Allow(ctx, "k") {
		t.Fatalf("expected third attempt denied")
	}
	if l.Allow(ctx, "") {
		t.Fatalf("expected empty key denied")
	}
	time.Sleep(70 * time.Millisecond)
	if !l.Allow(ctx, "k") {
		t.Fatalf("expected allow after window")
	}
}

func TestMemoryRateLimiter_EvictsIdleKeys(t *testing.T) {
	l := NewMemoryRateLimiter(time.Minute, 2).(*memoryRateLimiter)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		if !l.Allow(ctx, "two_factor:"+key) {
			t.Fatalf("expected %s allowed", key)
		}
	}
	if len(l.hits) != 3 {
		t.Fatalf("expected 3 tracked keys, got %d", len(l.hits))
	}

	now = now.Add(2 * time.Minute)
	if !l.Allow(ctx, "two_factor:d@example.com") {
		t.Fatalf("expected new key allowed")
	}
	if len(l.hits) != 1 {
		t.Fatalf("expected idle keys evicted, got %d tracked", len(l.hits))
	}
	if _, ok := l.hits["two_factor:d@example.com"]; !ok {
		t.Fatalf("expected active key kept")
	}
}
