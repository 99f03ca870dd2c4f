package service

import "errors"

// Categorias de error. Cada AuthError desenvuelve a una de ellas y la capa
// HTTP decide el status con errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrConflict    = errors.New("conflict")
	ErrCredential  = errors.New("credential error")
	ErrUpstream    = errors.New("upstream error")
	ErrRateLimited = errors.New("rate limited")
	ErrForbidden   = errors.New("forbidden")
)

// Mensajes visibles para el usuario.
const (
	MsgInvalidFields        = "Invalid fields"
	MsgUserNotFound         = "User does not exist"
	MsgEmailNotFound        = "Email does not exist"
	MsgEmailInUse           = "Email already in use"
	MsgInvalidCode          = "Invalid code"
	MsgCodeExpired          = "Code expired"
	MsgInvalidCredentials   = "Invalid credentials"
	MsgSomethingWentWrong   = "Something went wrong"
	MsgEmailNotVerified     = "Email not verified, please check your email"
	MsgMissingToken         = "Missing token"
	MsgInvalidToken         = "Invalid token"
	MsgTokenExpired         = "Token has expired"
	MsgTokenNotFound        = "Token does not exist"
	MsgSendFailed           = "Failed to send email"
	MsgTooManyRequests      = "Too many requests, try again later"
	MsgConfirmationSent     = "Confirmation email sent"
	MsgNewVerificationSent  = "New verification token sent to your email"
	MsgResetSent            = "Reset email sent"
	MsgPasswordUpdated      = "Password updated"
	MsgEmailVerified        = "Email verified"
	MsgTwoFactorUnavailable = "Two-factor requires a password account"
)

// AuthError es un error con mensaje para el usuario. Error devuelve el
// mensaje y Unwrap la categoria.
type AuthError struct {
	Kind    error
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Kind
}

func newAuthError(kind error, message string) *AuthError {
	return &AuthError{Kind: kind, Message: message}
}

// UserMessage devuelve el mensaje para el usuario si err lo tiene.
func UserMessage(err error) (string, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message, true
	}
	return "", false
}
