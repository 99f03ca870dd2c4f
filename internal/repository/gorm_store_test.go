package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"learnhub/internal/domain"
)

func newGormTestStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := MigrateGorm(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGormStore(db), db
}

func testToken(kind domain.TokenKind, email, hash string, expiresAt time.Time) domain.Token {
	return domain.Token{
		ID:        "id-" + hash,
		Kind:      kind,
		Email:     email,
		Hash:      hash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
}

func TestGormStore_UpsertKeepsOneTokenPerEmail(t *testing.T) {
	store, db := newGormTestStore(t)
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)

	if err := store.Tokens().Upsert(ctx, testToken(domain.TokenVerification, "a@x.com", "h1", exp)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := store.Tokens().Upsert(ctx, testToken(domain.TokenVerification, "a@x.com", "h2", exp)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int64
	if err := db.Table("verification_tokens").Where("email = ?", "a@x.com").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one token row, got %d", count)
	}
	if _, err := store.Tokens().GetByHash(ctx, domain.TokenVerification, "h1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected replaced token to be gone, got %v", err)
	}
	got, err := store.Tokens().GetByEmail(ctx, domain.TokenVerification, "a@x.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.Hash != "h2" || got.ID != "id-h2" {
		t.Fatalf("expected latest token, got %+v", got)
	}
}

func TestGormStore_TokenKindsAreIsolated(t *testing.T) {
	store, _ := newGormTestStore(t)
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)

	if err := store.Tokens().Upsert(ctx, testToken(domain.TokenPasswordReset, "a@x.com", "r1", exp)); err != nil {
		t.Fatalf("upsert reset: %v", err)
	}
	if _, err := store.Tokens().GetByHash(ctx, domain.TokenVerification, "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected reset token invisible to verification kind, got %v", err)
	}
	if _, err := store.Tokens().GetByHash(ctx, domain.TokenPasswordReset, "r1"); err != nil {
		t.Fatalf("expected reset token found, got %v", err)
	}
	if err := store.Tokens().Upsert(ctx, domain.Token{Kind: "bogus"}); !errors.Is(err, ErrUnknownTokenKind) {
		t.Fatalf("expected ErrUnknownTokenKind, got %v", err)
	}
}

func TestGormStore_DeleteAndDeleteExpired(t *testing.T) {
	store, _ := newGormTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	live := testToken(domain.TokenTwoFactor, "live@x.com", "live", now.Add(time.Hour))
	stale := testToken(domain.TokenTwoFactor, "stale@x.com", "stale", now.Add(-time.Hour))
	for _, tok := range []domain.Token{live, stale} {
		if err := store.Tokens().Upsert(ctx, tok); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	n, err := store.Tokens().DeleteExpired(ctx, domain.TokenTwoFactor, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired token removed, got %d", n)
	}
	if err := store.Tokens().Delete(ctx, domain.TokenTwoFactor, live.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Tokens().Delete(ctx, domain.TokenTwoFactor, live.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestGormStore_UserLifecycle(t *testing.T) {
	store, _ := newGormTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := domain.User{
		ID:           "u1",
		Email:        "a@x.com",
		DisplayName:  "A",
		PasswordHash: "hash",
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.Users().Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := user
	dup.ID = "u2"
	if err := store.Users().Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if err := store.Users().VerifyEmail(ctx, "u1", now); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := store.Users().SetTwoFactor(ctx, "u1", true); err != nil {
		t.Fatalf("set 2fa: %v", err)
	}
	if err := store.Users().UpdatePassword(ctx, "u1", "hash2"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	got, err := store.Users().GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EmailVerifiedAt == nil || !got.IsTwoFactorEnabled || got.PasswordHash != "hash2" {
		t.Fatalf("unexpected user state: %+v", got)
	}
	if err := store.Users().UpdatePassword(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGormStore_OAuthOnlyUserHasNoPassword(t *testing.T) {
	store, _ := newGormTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := domain.User{
		ID:              "u1",
		Email:           "o@x.com",
		AuthProvider:    "github",
		AuthSubject:     "42",
		EmailVerifiedAt: &now,
		Role:            domain.RoleUser,
	}
	if err := store.Users().Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Users().GetByAuth(ctx, "github", "42")
	if err != nil {
		t.Fatalf("get by auth: %v", err)
	}
	if got.HasPassword() {
		t.Fatalf("expected no password hash for oauth user")
	}
}

func TestGormStore_WithinTxRollsBack(t *testing.T) {
	store, _ := newGormTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx Store) error {
		if err := tx.Users().Create(ctx, domain.User{ID: "u1", Email: "a@x.com", Role: domain.RoleUser}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.Users().GetByID(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rollback to discard user, got %v", err)
	}
}

func TestGormStore_TwoFactorConfirmationReplace(t *testing.T) {
	store, _ := newGormTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	repo := store.TwoFactorConfirmations()
	if err := repo.Replace(ctx, domain.TwoFactorConfirmation{ID: "c1", UserID: "u1", CreatedAt: now}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := repo.Replace(ctx, domain.TwoFactorConfirmation{ID: "c2", UserID: "u1", CreatedAt: now}); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	got, err := repo.GetByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "c2" {
		t.Fatalf("expected latest confirmation c2, got %s", got.ID)
	}
	if err := repo.Delete(ctx, "c2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByUserID(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
