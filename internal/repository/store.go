package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"learnhub/internal/domain"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrDuplicate        = errors.New("record already exists")
	ErrUnknownTokenKind = errors.New("unknown token kind")
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByAuth(ctx context.Context, provider, subject string) (domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	VerifyEmail(ctx context.Context, id string, verifiedAt time.Time) error
	LinkOAuth(ctx context.Context, id, provider, subject string) error
	SetTwoFactor(ctx context.Context, id string, enabled bool) error
}

// TokenRepository guarda los tokens de verificacion, reset y 2FA.
// Hay a lo sumo un token por (kind, email): Upsert reemplaza el anterior
// en una sola sentencia.
type TokenRepository interface {
	Upsert(ctx context.Context, token domain.Token) error
	GetByHash(ctx context.Context, kind domain.TokenKind, hash string) (domain.Token, error)
	GetByEmail(ctx context.Context, kind domain.TokenKind, email string) (domain.Token, error)
	Delete(ctx context.Context, kind domain.TokenKind, id string) error
	DeleteExpired(ctx context.Context, kind domain.TokenKind, before time.Time) (int64, error)
}

// TwoFactorConfirmationRepository guarda el marcador de 2FA por usuario.
type TwoFactorConfirmationRepository interface {
	Replace(ctx context.Context, confirmation domain.TwoFactorConfirmation) error
	GetByUserID(ctx context.Context, userID string) (domain.TwoFactorConfirmation, error)
	Delete(ctx context.Context, id string) error
}

// Store agrupa los repositorios del core de auth. WithinTx ejecuta fn con
// un Store ligado a una transaccion; cualquier error hace rollback.
type Store interface {
	Users() UserRepository
	Tokens() TokenRepository
	TwoFactorConfirmations() TwoFactorConfirmationRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

var tokenTables = map[domain.TokenKind]string{
	domain.TokenVerification:  "verification_tokens",
	domain.TokenPasswordReset: "password_reset_tokens",
	domain.TokenTwoFactor:     "two_factor_tokens",
}

func tokenTable(kind domain.TokenKind) (string, error) {
	table, ok := tokenTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTokenKind, kind)
	}
	return table, nil
}
