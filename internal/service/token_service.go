package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnhub/internal/domain"
	"learnhub/internal/repository"
)

const (
	opaqueTokenBytes = 32
	twoFactorDigits  = 6
)

// TokenService emite y valida los tokens de un solo uso.
type TokenService struct {
	logger *zap.Logger
	store  repository.Store
	ttls   map[domain.TokenKind]time.Duration
	now    func() time.Time
}

func NewTokenService(logger *zap.Logger, store repository.Store, verificationTTL, resetTTL, twoFactorTTL time.Duration) *TokenService {
	if verificationTTL <= 0 {
		verificationTTL = time.Hour
	}
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	if twoFactorTTL <= 0 {
		twoFactorTTL = 5 * time.Minute
	}
	return &TokenService{
		logger: logger,
		store:  store,
		ttls: map[domain.TokenKind]time.Duration{
			domain.TokenVerification:  verificationTTL,
			domain.TokenPasswordReset: resetTTL,
			domain.TokenTwoFactor:     twoFactorTTL,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Issue genera un token nuevo y reemplaza el anterior del mismo tipo para
// el email. Value del resultado es el unico lugar donde aparece en claro.
func (s *TokenService) Issue(ctx context.Context, kind domain.TokenKind, email string) (domain.Token, error) {
	return s.issue(ctx, s.store.Tokens(), kind, email)
}

func (s *TokenService) issue(ctx context.Context, tokens repository.TokenRepository, kind domain.TokenKind, email string) (domain.Token, error) {
	if !kind.Valid() {
		return domain.Token{}, fmt.Errorf("%w: %q", repository.ErrUnknownTokenKind, kind)
	}
	email = normalizeEmail(email)
	if !validEmail(email) {
		return domain.Token{}, newAuthError(ErrValidation, MsgInvalidFields)
	}

	value, err := generateTokenValue(kind)
	if err != nil {
		return domain.Token{}, err
	}
	now := s.now()
	token := domain.Token{
		ID:        uuid.NewString(),
		Kind:      kind,
		Email:     email,
		Value:     value,
		Hash:      hashToken(kind, email, value),
		ExpiresAt: now.Add(s.ttls[kind]),
		CreatedAt: now,
	}
	if err := tokens.Upsert(ctx, token); err != nil {
		return domain.Token{}, err
	}
	return token, nil
}

// Validate busca un token de verificacion o reset por su valor. No borra
// nada: el llamador lo elimina junto con su efecto.
// Devuelve ErrNotFound o ErrExpired; TokenTwoFactor es ErrValidation.
func (s *TokenService) Validate(ctx context.Context, kind domain.TokenKind, value string) (domain.Token, error) {
	if kind == domain.TokenTwoFactor {
		return domain.Token{}, fmt.Errorf("%w: two-factor codes are checked with CheckCode", ErrValidation)
	}
	if value == "" {
		return domain.Token{}, ErrNotFound
	}
	token, err := s.store.Tokens().GetByHash(ctx, kind, hashToken(kind, "", value))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Token{}, ErrNotFound
		}
		return domain.Token{}, err
	}
	if token.Expired(s.now()) {
		return domain.Token{}, ErrExpired
	}
	return token, nil
}

// GetByEmail devuelve el token vigente o vencido de kind para email.
func (s *TokenService) GetByEmail(ctx context.Context, kind domain.TokenKind, email string) (domain.Token, error) {
	token, err := s.store.Tokens().GetByEmail(ctx, kind, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Token{}, ErrNotFound
		}
		return domain.Token{}, err
	}
	return token, nil
}

// CheckCode compara un codigo 2FA con el guardado para email. Ausente o
// distinto devuelve ErrNotFound; vencido, ErrExpired.
func (s *TokenService) CheckCode(ctx context.Context, email, code string) (domain.Token, error) {
	token, err := s.GetByEmail(ctx, domain.TokenTwoFactor, email)
	if err != nil {
		return domain.Token{}, err
	}
	got := hashToken(domain.TokenTwoFactor, token.Email, code)
	if subtle.ConstantTimeCompare([]byte(got), []byte(token.Hash)) != 1 {
		return domain.Token{}, ErrNotFound
	}
	if token.Expired(s.now()) {
		return domain.Token{}, ErrExpired
	}
	return token, nil
}

// SweepExpired borra los tokens vencidos de todos los tipos.
func (s *TokenService) SweepExpired(ctx context.Context) (map[domain.TokenKind]int64, error) {
	now := s.now()
	removed := make(map[domain.TokenKind]int64, len(s.ttls))
	for _, kind := range []domain.TokenKind{domain.TokenVerification, domain.TokenPasswordReset, domain.TokenTwoFactor} {
		n, err := s.store.Tokens().DeleteExpired(ctx, kind, now)
		if err != nil {
			return removed, fmt.Errorf("sweep %s tokens: %w", kind, err)
		}
		removed[kind] = n
		if s.logger != nil && n > 0 {
			s.logger.Info("expired tokens removed", zap.String("kind", string(kind)), zap.Int64("count", n))
		}
	}
	return removed, nil
}

func generateTokenValue(kind domain.TokenKind) (string, error) {
	if kind == domain.TokenTwoFactor {
		n, err := rand.Int(rand.Reader, big.NewInt(1000000))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%0*d", twoFactorDigits, n.Int64()), nil
	}
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashToken deriva lo que se guarda en token_hash. Los codigos 2FA llevan
// el email como sal: el espacio de 6 digitos chocaria con el indice unico.
func hashToken(kind domain.TokenKind, email, value string) string {
	input := value
	if kind == domain.TokenTwoFactor {
		input = email + ":" + value
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
