// Package mailer abstracts transactional email delivery.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Message is a single outbound email.
type Message struct {
	To       string
	Subject  string
	Body     string
	HTMLBody string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridSender delivers mail through the SendGrid API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGridSender constructs a SendGrid backed sender.
func NewSendGridSender(apiKey, fromName, fromAddr string) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromAddr),
	}
}

// Send delivers the message, treating non-2xx API responses as errors.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	to := mail.NewEmail("", msg.To)
	html := msg.HTMLBody
	if html == "" {
		html = msg.Body
	}
	m := mail.NewSingleEmail(s.from, msg.Subject, to, msg.Body, html)
	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mailer: send: status %d", resp.StatusCode)
	}
	return nil
}

// LogSender records messages to the logger instead of delivering them.
// Used in development when no API key is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the message.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email delivery skipped (no mail provider configured)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// FromConfig picks a sender based on whether the API key is set.
func FromConfig(apiKey, fromName, fromAddr string, logger *slog.Logger) Sender {
	if apiKey == "" {
		return LogSender{Logger: logger}
	}
	return NewSendGridSender(apiKey, fromName, fromAddr)
}
