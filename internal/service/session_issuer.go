package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"learnhub/internal/domain"
	"learnhub/internal/repository"
)

var (
	ErrCredentialsSignin = errors.New("credentials signin failed")
	ErrAccessDenied      = errors.New("access denied")
)

type Credentials struct {
	Email    string
	Password string
}

// Session es lo que recibe el cliente tras un login completo.
type Session struct {
	User       domain.User `json:"user"`
	Tokens     TokenPair   `json:"tokens"`
	RedirectTo string      `json:"redirectTo,omitempty"`
}

// SessionIssuer establece la sesion una vez superados los chequeos previos.
type SessionIssuer interface {
	EstablishSession(ctx context.Context, creds Credentials, redirectTo string) (Session, error)
}

// CredentialsSessionIssuer autoriza email+password, aplica el callback de
// sign-in y emite el par JWT.
type CredentialsSessionIssuer struct {
	logger *zap.Logger
	store  repository.Store
	jwt    *JWTService
}

func NewCredentialsSessionIssuer(logger *zap.Logger, store repository.Store, jwt *JWTService) *CredentialsSessionIssuer {
	return &CredentialsSessionIssuer{
		logger: logger,
		store:  store,
		jwt:    jwt,
	}
}

func (i *CredentialsSessionIssuer) EstablishSession(ctx context.Context, creds Credentials, redirectTo string) (Session, error) {
	if i.jwt == nil {
		return Session{}, errors.New("jwt not configured")
	}
	user, err := i.authorize(ctx, creds)
	if err != nil {
		return Session{}, err
	}
	if err := i.signIn(ctx, user); err != nil {
		return Session{}, err
	}
	pair, err := i.jwt.GeneratePair(ctx, user)
	if err != nil {
		return Session{}, fmt.Errorf("generate tokens: %w", err)
	}
	return Session{User: user, Tokens: pair, RedirectTo: redirectTo}, nil
}

func (i *CredentialsSessionIssuer) authorize(ctx context.Context, creds Credentials) (domain.User, error) {
	email := normalizeEmail(creds.Email)
	if !validEmail(email) || creds.Password == "" {
		return domain.User{}, ErrCredentialsSignin
	}
	user, err := i.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrCredentialsSignin
		}
		return domain.User{}, err
	}
	if !user.HasPassword() {
		return domain.User{}, ErrCredentialsSignin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return domain.User{}, ErrCredentialsSignin
	}
	return user, nil
}

// signIn exige email verificado y, con 2FA, consume el marcador de
// confirmacion.
func (i *CredentialsSessionIssuer) signIn(ctx context.Context, user domain.User) error {
	if !user.IsVerified() {
		return ErrAccessDenied
	}
	if !user.IsTwoFactorEnabled {
		return nil
	}
	confirmation, err := i.store.TwoFactorConfirmations().GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccessDenied
		}
		return err
	}
	if err := i.store.TwoFactorConfirmations().Delete(ctx, confirmation.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// otro login concurrente ya lo consumio
			return ErrAccessDenied
		}
		return err
	}
	if i.logger != nil {
		i.logger.Debug("two-factor confirmation consumed", zap.String("user_id", user.ID))
	}
	return nil
}
