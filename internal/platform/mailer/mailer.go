// Copyright (c) 2026 Cathedra. All rights reserved.

/*
Package mailer provides the outbound email delivery adapter backed by Mailgun.

It implements the EmailProvider port consumed by the auth service for
verification codes and password-reset links. Delivery errors are always
returned to the caller so the service can decide whether a flow may proceed.
*/
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

// sendTimeout bounds a single Mailgun API call.
const sendTimeout = 30 * time.Second

// Mailer sends transactional auth emails through the Mailgun HTTP API.
type Mailer struct {
	client *mailgun.MailgunImpl
	from   string
	logger *slog.Logger
}

// NewMailer builds a Mailgun-backed mailer. All three settings are required;
// an incomplete configuration fails fast at startup rather than at send time.
func NewMailer(domain, apiKey, from string, logger *slog.Logger) (*Mailer, error) {
	if domain == "" || apiKey == "" || from == "" {
		return nil, fmt.Errorf("mailer: domain, api key and sender address are all required")
	}

	return &Mailer{
		client: mailgun.NewMailgun(domain, apiKey),
		from:   from,
		logger: logger,
	}, nil
}

// SendVerificationCode delivers a 6-digit email verification code.
func (m *Mailer) SendVerificationCode(ctx context.Context, recipient, code string) error {
	subject := "Your Cathedra verification code"
	body := fmt.Sprintf(
		"Your Cathedra verification code is: %s\n\nThis code expires shortly. If you did not request it, you can safely ignore this email.",
		code,
	)

	return m.send(ctx, recipient, subject, body)
}

// SendPasswordResetEmail delivers a password-reset token to the account owner.
//
// The token is the raw secret; only its hash is stored server-side, so this
// email is the single place the plaintext ever exists.
func (m *Mailer) SendPasswordResetEmail(ctx context.Context, recipient, token string) error {
	subject := "Reset your Cathedra password"
	body := fmt.Sprintf(
		"We received a request to reset your Cathedra password.\n\nUse this token to complete the reset: %s\n\nIf you did not request a reset, no action is needed.",
		token,
	)

	return m.send(ctx, recipient, subject, body)
}

// send performs the actual Mailgun API call with a bounded timeout.
func (m *Mailer) send(ctx context.Context, recipient, subject, body string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	message := m.client.NewMessage(m.from, subject, body)
	if err := message.AddRecipient(recipient); err != nil {
		return fmt.Errorf("mailer: invalid recipient: %w", err)
	}

	_, id, err := m.client.Send(sendCtx, message)
	if err != nil {
		return fmt.Errorf("mailer: send failed: %w", err)
	}

	m.logger.Info("email_queued",
		slog.String("mailgun_id", id),
		slog.String("subject", subject),
	)

	return nil
}
