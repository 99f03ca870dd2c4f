package email

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Message struct {
	Subject string
	Text    string
}

// Content arma asunto y cuerpo de cada correo. Los enlaces apuntan a las
// paginas del frontend bajo baseURL.
type Content struct {
	baseURL         string
	verificationTTL time.Duration
	resetTTL        time.Duration
	twoFactorTTL    time.Duration
}

func NewContent(baseURL string, verificationTTL, resetTTL, twoFactorTTL time.Duration) *Content {
	return &Content{
		baseURL:         strings.TrimRight(baseURL, "/"),
		verificationTTL: verificationTTL,
		resetTTL:        resetTTL,
		twoFactorTTL:    twoFactorTTL,
	}
}

func (c *Content) VerificationLink(token string) string {
	return c.baseURL + "/auth/new-verification?token=" + url.QueryEscape(token)
}

func (c *Content) PasswordResetLink(token string) string {
	return c.baseURL + "/auth/new-password?token=" + url.QueryEscape(token)
}

func (c *Content) Verification(token string) Message {
	return Message{
		Subject: "Confirm your email",
		Text: fmt.Sprintf(
			"Confirm your email address: %s\nThe link expires in %s.\nIf you did not create an account, ignore this email.\n",
			c.VerificationLink(token),
			humanDuration(c.verificationTTL),
		),
	}
}

func (c *Content) PasswordReset(token string) Message {
	return Message{
		Subject: "Reset your password",
		Text: fmt.Sprintf(
			"Reset your password: %s\nThe link expires in %s.\nIf you did not request this, ignore this email.\n",
			c.PasswordResetLink(token),
			humanDuration(c.resetTTL),
		),
	}
}

func (c *Content) TwoFactor(code string) Message {
	return Message{
		Subject: "Your 2FA code",
		Text: fmt.Sprintf(
			"Your 2FA code is %s.\nIt is valid for %s.\n",
			code,
			humanDuration(c.twoFactorTTL),
		),
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	case d >= time.Minute && d%time.Minute == 0:
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
