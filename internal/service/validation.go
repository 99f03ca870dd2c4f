package service

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Esquemas de entrada de cada accion.

type RegisterInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
	Name     string `validate:"required,max=120"`
}

type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,max=72"`
	// Code no se valida aca: un codigo mal formado es "Invalid code".
	Code string
	// RedirectTo es el destino post-login. Solo se aceptan rutas locales;
	// cualquier otra cosa usa el configurado.
	RedirectTo string `validate:"omitempty,max=2048"`
}

type ResetInput struct {
	Email string `validate:"required,email"`
}

type NewPasswordInput struct {
	Token    string
	Password string `validate:"required,min=6,max=72"`
}

type OAuthInput struct {
	Provider    string `validate:"required,max=64"`
	Subject     string `validate:"required,max=255"`
	Email       string `validate:"omitempty,email"`
	DisplayName string `validate:"max=120"`
}

func validateInput(input any) error {
	if err := validate.Struct(input); err != nil {
		return newAuthError(ErrValidation, MsgInvalidFields)
	}
	return nil
}

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

// safeRedirect acepta solo rutas relativas al sitio ("/x", no "//host").
func safeRedirect(target, fallback string) string {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.ContainsAny(target, "\\\r\n") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return target
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
