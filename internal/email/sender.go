package email

import (
	"context"
	"errors"

	"feedgears/internal/domain"
)

// Sender define la interfaz para los correos del flujo de autenticación.
type Sender interface {
	SendPasswordReset(ctx context.Context, toEmail, username string, token domain.AppToken) error
	SendVerification(ctx context.Context, toEmail, username string, token domain.AppToken, apiKey domain.APIKey) error
	SendAPIKeyRecovery(ctx context.Context, toEmail, username string, apiKey domain.APIKey) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

func (s *disabledSender) SendPasswordReset(_ context.Context, _, _ string, _ domain.AppToken) error {
	return s.err()
}

func (s *disabledSender) SendVerification(_ context.Context, _, _ string, _ domain.AppToken, _ domain.APIKey) error {
	return s.err()
}

func (s *disabledSender) SendAPIKeyRecovery(_ context.Context, _, _ string, _ domain.APIKey) error {
	return s.err()
}
