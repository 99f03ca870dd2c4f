package email

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Sender define la interfaz para los correos del flujo de auth.
type Sender interface {
	SendVerificationEmail(ctx context.Context, toEmail, token string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
	SendTwoFactorEmail(ctx context.Context, toEmail, code string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerificationEmail(context.Context, string, string) error {
	return s.err()
}

func (s *disabledSender) SendPasswordResetEmail(context.Context, string, string) error {
	return s.err()
}

func (s *disabledSender) SendTwoFactorEmail(context.Context, string, string) error {
	return s.err()
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

// LogSender escribe los correos en el log en vez de enviarlos. Solo para
// desarrollo local: los tokens quedan en claro en el log.
type LogSender struct {
	logger  *zap.Logger
	content *Content
}

func NewLogSender(logger *zap.Logger, content *Content) *LogSender {
	return &LogSender{logger: logger, content: content}
}

func (s *LogSender) SendVerificationEmail(_ context.Context, toEmail, token string) error {
	return s.log(toEmail, s.content.Verification(token))
}

func (s *LogSender) SendPasswordResetEmail(_ context.Context, toEmail, token string) error {
	return s.log(toEmail, s.content.PasswordReset(token))
}

func (s *LogSender) SendTwoFactorEmail(_ context.Context, toEmail, code string) error {
	return s.log(toEmail, s.content.TwoFactor(code))
}

func (s *LogSender) log(to string, msg Message) error {
	s.logger.Info("email (log sender)",
		zap.String("to", to),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}
