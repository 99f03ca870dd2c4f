package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMemoryRefreshTokenStore_Basics(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	ctx := context.Background()

	ok, err := store.Exists(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("expected missing token false,nil; got %v,%v", ok, err)
	}

	if err := store.Store(ctx, "jti-1", "u1", 50*time.Millisecond); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	ok, err = store.Exists(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("expected token exists, got %v,%v", ok, err)
	}

	time.Sleep(70 * time.Millisecond)
	ok, err = store.Exists(ctx, "jti-1")
	if err != nil || ok {
		t.Fatalf("expected token expired, got %v,%v", ok, err)
	}
}

func TestMemoryRefreshTokenStore_RevokeAndEmptyJTI(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	ctx := context.Background()
	if err := store.Store(ctx, "", "u1", time.Minute); err != nil {
		t.Fatalf("empty jti store should be no-op, got %v", err)
	}
	if err := store.Store(ctx, "jti-2", "u1", time.Minute); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := store.Revoke(ctx, "jti-2"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	ok, err := store.Exists(ctx, "jti-2")
	if err != nil || ok {
		t.Fatalf("expected revoked token absent, got %v,%v", ok, err)
	}
}

func TestMemoryRefreshTokenStore_RevokeUser(t *testing.T) {
	store := NewMemoryRefreshTokenStore()
	ctx := context.Background()
	_ = store.Store(ctx, "a", "u1", time.Minute)
	_ = store.Store(ctx, "b", "u1", time.Minute)
	_ = store.Store(ctx, "c", "u2", time.Minute)

	if err := store.RevokeUser(ctx, "u1"); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	for _, jti := range []string{"a", "b"} {
		if ok, _ := store.Exists(ctx, jti); ok {
			t.Fatalf("expected %s revoked", jti)
		}
	}
	if ok, _ := store.Exists(ctx, "c"); !ok {
		t.Fatalf("expected other user's token kept")
	}
}

func TestRedisRefreshTokenStore_Basics(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisRefreshTokenStore(client)
	ctx := context.Background()

	if err := store.Store(ctx, " j1 ", "u1", time.Minute); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if !mr.Exists("auth:refresh:j1") {
		t.Fatalf("expected key auth:refresh:j1")
	}
	if ttl := mr.TTL("auth:refresh:j1"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}
	members, err := mr.Members("auth:refresh:user:u1")
	if err != nil || len(members) != 1 || members[0] != "j1" {
		t.Fatalf("expected user set with j1, got %v,%v", members, err)
	}

	ok, err := store.Exists(ctx, " j1 ")
	if err != nil || !ok {
		t.Fatalf("expected exists true,nil; got %v,%v", ok, err)
	}

	if err := store.Revoke(ctx, " j1 "); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	ok, err = store.Exists(ctx, "j1")
	if err != nil || ok {
		t.Fatalf("expected revoked, got %v,%v", ok, err)
	}
}

func TestRedisRefreshTokenStore_ExpiresWithTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisRefreshTokenStore(client)
	ctx := context.Background()

	if err := store.Store(ctx, "j1", "u1", time.Minute); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	ok, err := store.Exists(ctx, "j1")
	if err != nil || ok {
		t.Fatalf("expected expired token absent, got %v,%v", ok, err)
	}
}

func TestRedisRefreshTokenStore_RevokeUser(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisRefreshTokenStore(client)
	ctx := context.Background()

	_ = store.Store(ctx, "a", "u1", time.Minute)
	_ = store.Store(ctx, "b", "u1", time.Minute)
	_ = store.Store(ctx, "c", "u2", time.Minute)

	if err := store.RevokeUser(ctx, "u1"); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if mr.Exists("auth:refresh:a") || mr.Exists("auth:refresh:b") || mr.Exists("auth:refresh:user:u1") {
		t.Fatalf("expected u1 keys removed")
	}
	if !mr.Exists("auth:refresh:c") {
		t.Fatalf("expected u2 token kept")
	}
}

func TestRedisRefreshTokenStore_ErrorPathsAndEmptyJTI(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewRedisRefreshTokenStore(client)
	ctx := context.Background()

	if err := store.Store(ctx, "", "u1", time.Minute); err != nil {
		t.Fatalf("empty jti store should be no-op, got %v", err)
	}
	ok, err := store.Exists(ctx, "")
	if err != nil || ok {
		t.Fatalf("empty jti exists should be false,nil; got %v,%v", ok, err)
	}
	if err := store.Revoke(ctx, ""); err != nil {
		t.Fatalf("empty jti revoke should be no-op, got %v", err)
	}

	mr.Close()
	if err := store.Store(ctx, "j2", "u1", time.Minute); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := store.Exists(ctx, "j2"); err == nil {
		t.Fatalf("expected exists error")
	}
	if err := store.Revoke(ctx, "j2"); err == nil {
		t.Fatalf("expected revoke error")
	}
}

func TestNewRedisRefreshTokenStore_NilClient(t *testing.T) {
	if store := NewRedisRefreshTokenStore(nil); store != nil {
		t.Fatalf("expected nil store for nil client")
	}
}
