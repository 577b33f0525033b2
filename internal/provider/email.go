// Package provider contains the channel sender adapters used by the
// notification dispatcher: email (Resend API or SMTP), SMS and WhatsApp
// (Twilio) and a logging stub for channels without a provider account.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/pkg/logger"
)

// ErrNoAddress is returned when a send is attempted without a recipient.
var ErrNoAddress = errors.New("provider: empty recipient address")

// ResendEmailSender delivers HTML email through the Resend API.
type ResendEmailSender struct {
	client *resend.Client
	from   string
}

// NewResendEmailSender creates a Resend-backed email sender.
func NewResendEmailSender(apiKey, from string) *ResendEmailSender {
	return &ResendEmailSender{client: resend.NewClient(apiKey), from: from}
}

// WithBaseURL points the client at another API host.
func (s *ResendEmailSender) WithBaseURL(raw string) (*ResendEmailSender, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse resend base url: %w", err)
	}
	s.client.BaseURL = u
	return s, nil
}

// Send implements notification.Sender.
func (s *ResendEmailSender) Send(ctx context.Context, address string, content notification.Content) error {
	if address == "" {
		return ErrNoAddress
	}

	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{address},
		Subject: content.Subject,
		Html:    content.Body,
	})
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}

	logger.Debug("email accepted by resend",
		zap.String("message_id", sent.Id),
	)
	return nil
}

// SMTPEmailSender delivers HTML email through an SMTP relay.
type SMTPEmailSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPEmailSender creates an SMTP-backed email sender.
func NewSMTPEmailSender(host string, port int, username, password, from string) *SMTPEmailSender {
	return &SMTPEmailSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send implements notification.Sender. gomail has no context support, so
// cancellation is enforced by the dispatcher's send timeout.
func (s *SMTPEmailSender) Send(ctx context.Context, address string, content notification.Content) error {
	if address == "" {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.dialer.DialAndSend(s.message(address, content)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPEmailSender) message(address string, content notification.Content) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", address)
	m.SetHeader("Subject", content.Subject)
	m.SetBody("text/html", content.Body)
	return m
}
