// Package mail renders and delivers transactional account emails.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoSenders is returned by an empty Fallback chain.
var ErrNoSenders = errors.New("mail: no senders configured")

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender builds a sender for apiKey.
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

// Send posts the message to Resend.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("resend send to %s: %w", redact(msg.To), err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. It backs
// local development.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs the plain text body, which carries the action link.
func (s LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email not delivered, logging instead", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}

// Fallback tries each sender in order until one succeeds.
type Fallback []Sender

// Send returns nil on the first successful delivery, otherwise every error.
func (f Fallback) Send(ctx context.Context, msg Message) error {
	if len(f) == 0 {
		return ErrNoSenders
	}
	var errs []error
	for _, sender := range f {
		err := sender.Send(ctx, msg)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

func redact(email string) string {
	at := strings.IndexByte(email, '@')
	switch {
	case at < 0:
		return "***"
	case at <= 1:
		return "***" + email[at:]
	}
	return email[:1] + "***" + email[at:]
}
