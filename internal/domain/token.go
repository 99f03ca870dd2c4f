package domain

import "time"

// TokenKind identifica la tabla y el flujo al que pertenece un token.
type TokenKind string

const (
	TokenVerification  TokenKind = "verification"
	TokenPasswordReset TokenKind = "password_reset"
	TokenTwoFactor     TokenKind = "two_factor"
)

func (k TokenKind) Valid() bool {
	switch k {
	case TokenVerification, TokenPasswordReset, TokenTwoFactor:
		return true
	}
	return false
}

// Token es un secreto de un solo uso ligado a un email.
// Value solo se conoce al emitirlo; en almacenamiento vive Hash.
type Token struct {
	ID        string    `json:"id"`
	Kind      TokenKind `json:"kind"`
	Email     string    `json:"email"`
	Value     string    `json:"-"`
	Hash      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// TwoFactorConfirmation marca que el segundo factor fue validado para el
// intento de login en curso. Se consume al emitir la sesion.
type TwoFactorConfirmation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
