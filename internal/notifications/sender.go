package notifications

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidRecipient is returned when a message has no usable destination.
var ErrInvalidRecipient = errors.New("notifications: invalid recipient")

// WhatsAppSender delivers a rendered WhatsApp message and returns the provider message id.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, phone, body string) (string, error)
	Configured() bool
}

// EmailSender delivers an HTML email.
type EmailSender interface {
	SendEmail(ctx context.Context, email Email) error
	Configured() bool
}

// Email is an outgoing HTML message.
type Email struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Attachment is a file sent along with an email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// LogSender stands in for an unconfigured channel: every message is logged and reported as delivered
// so local environments can walk the full booking flow.
type LogSender struct {
	logger *zap.Logger
}

var (
	_ WhatsAppSender = (*LogSender)(nil)
	_ EmailSender    = (*LogSender)(nil)
)

// NewLogSender constructs a LogSender. A nil logger discards output.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger.Named("notifications.mock")}
}

func (s *LogSender) SendWhatsApp(_ context.Context, phone, body string) (string, error) {
	to := FormatPhone(phone)
	if to == "" {
		return "", ErrInvalidRecipient
	}
	s.logger.Info("mock whatsapp message", zap.String("to", to), zap.Int("length", len(body)))
	return "", nil
}

func (s *LogSender) SendEmail(_ context.Context, email Email) error {
	if strings.TrimSpace(email.To) == "" {
		return ErrInvalidRecipient
	}
	s.logger.Info("mock email message",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.Int("attachments", len(email.Attachments)),
	)
	return nil
}

// Configured is always false; callers record messages sent through LogSender as skipped.
func (s *LogSender) Configured() bool { return false }
