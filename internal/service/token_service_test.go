package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"learnhub/internal/domain"
	"learnhub/internal/repository"
)

func newTestTokenService() (*TokenService, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	return NewTokenService(zap.NewNop(), store, time.Hour, time.Hour, 5*time.Minute), store
}

func TestTokenService_IssueReplacesPrevious(t *testing.T) {
	svc, store := newTestTokenService()
	ctx := context.Background()

	first, err := svc.Issue(ctx, domain.TokenPasswordReset, "User@Example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := svc.Issue(ctx, domain.TokenPasswordReset, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if first.Value == second.Value {
		t.Fatalf("expected distinct token values")
	}
	if second.Email != "user@example.com" {
		t.Fatalf("expected normalized email, got %s", second.Email)
	}

	if _, err := svc.Validate(ctx, domain.TokenPasswordReset, first.Value); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected replaced token to be gone, got %v", err)
	}
	got, err := svc.Validate(ctx, domain.TokenPasswordReset, second.Value)
	if err != nil {
		t.Fatalf("expected latest token valid, got %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("expected token %s, got %s", second.ID, got.ID)
	}

	stored, err := store.Tokens().GetByEmail(ctx, domain.TokenPasswordReset, "user@example.com")
	if err != nil || stored.ID != second.ID {
		t.Fatalf("expected single stored token %s, got %+v (%v)", second.ID, stored, err)
	}
}

func TestTokenService_IssueTokenShapes(t *testing.T) {
	svc, _ := newTestTokenService()
	ctx := context.Background()
	start := time.Now().UTC()

	v, err := svc.Issue(ctx, domain.TokenVerification, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(v.Value) != 43 {
		t.Fatalf("expected 43 char base64url value, got %d", len(v.Value))
	}
	if v.Hash == "" || v.Hash == v.Value {
		t.Fatalf("expected hashed storage value")
	}
	if v.ExpiresAt.Before(start.Add(59*time.Minute)) || v.ExpiresAt.After(start.Add(61*time.Minute)) {
		t.Fatalf("expected expiry around 1h, got %v", v.ExpiresAt)
	}

	code, err := svc.Issue(ctx, domain.TokenTwoFactor, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(code.Value) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code.Value)
	}
	for _, r := range code.Value {
		if r < '0' || r > '9' {
			t.Fatalf("expected digits only, got %q", code.Value)
		}
	}
	if code.ExpiresAt.After(start.Add(6 * time.Minute)) {
		t.Fatalf("expected 5m expiry, got %v", code.ExpiresAt)
	}
}

func TestTokenService_IssueRejectsInvalidEmail(t *testing.T) {
	svc, _ := newTestTokenService()
	_, err := svc.Issue(context.Background(), domain.TokenVerification, "not-an-email")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), domain.TokenKind("other"), "user@example.com"); !errors.Is(err, repository.ErrUnknownTokenKind) {
		t.Fatalf("expected ErrUnknownTokenKind, got %v", err)
	}
}

func TestTokenService_ValidateExpiredLeavesRecord(t *testing.T) {
	svc, store := newTestTokenService()
	ctx := context.Background()

	token, err := svc.Issue(ctx, domain.TokenVerification, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

	if _, err := svc.Validate(ctx, domain.TokenVerification, token.Value); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := store.Tokens().GetByEmail(ctx, domain.TokenVerification, "user@example.com"); err != nil {
		t.Fatalf("expected expired token to stay stored, got %v", err)
	}
	if _, err := svc.Validate(ctx, domain.TokenVerification, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty value, got %v", err)
	}
}

func TestTokenService_ValidateRejectsTwoFactorKind(t *testing.T) {
	svc, _ := newTestTokenService()
	ctx := context.Background()

	token, err := svc.Issue(ctx, domain.TokenTwoFactor, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Validate(ctx, domain.TokenTwoFactor, token.Value); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for two-factor kind, got %v", err)
	}
}

func TestTokenService_CheckCode(t *testing.T) {
	svc, _ := newTestTokenService()
	ctx := context.Background()

	token, err := svc.Issue(ctx, domain.TokenTwoFactor, "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.CheckCode(ctx, "user@example.com", otherCode(token.Value)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong code, got %v", err)
	}
	if _, err := svc.CheckCode(ctx, "nobody@example.com", token.Value); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other email, got %v", err)
	}
	if _, err := svc.CheckCode(ctx, "user@example.com", token.Value); err != nil {
		t.Fatalf("expected valid code, got %v", err)
	}

	svc.now = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }
	if _, err := svc.CheckCode(ctx, "user@example.com", token.Value); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestTokenService_SweepExpired(t *testing.T) {
	svc, store := newTestTokenService()
	ctx := context.Background()

	for _, kind := range []domain.TokenKind{domain.TokenVerification, domain.TokenPasswordReset, domain.TokenTwoFactor} {
		if _, err := svc.Issue(ctx, kind, "old@example.com"); err != nil {
			t.Fatalf("issue: %v", err)
		}
	}
	svc.now = func() time.Time { return time.Now().UTC().Add(3 * time.Hour) }
	if _, err := svc.Issue(ctx, domain.TokenVerification, "fresh@example.com"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	removed, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	for _, kind := range []domain.TokenKind{domain.TokenVerification, domain.TokenPasswordReset, domain.TokenTwoFactor} {
		if removed[kind] != 1 {
			t.Fatalf("expected 1 %s token removed, got %d", kind, removed[kind])
		}
	}
	if _, err := store.Tokens().GetByEmail(ctx, domain.TokenVerification, "fresh@example.com"); err != nil {
		t.Fatalf("expected live token kept, got %v", err)
	}
}

// otherCode devuelve un codigo de 6 digitos distinto de code.
func otherCode(code string) string {
	b := []byte(code)
	if b[5] == '9' {
		b[5] = '0'
	} else {
		b[5]++
	}
	return string(b)
}
