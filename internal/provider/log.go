package provider

import (
	"context"

	"go.uber.org/zap"

	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/pkg/logger"
)

// LogSender records the message in the service log instead of delivering
// it. It stands in for channels without a configured provider account and
// always reports success.
type LogSender struct {
	channel notification.Channel
}

// NewLogSender creates a logging stub for ch.
func NewLogSender(ch notification.Channel) *LogSender {
	return &LogSender{channel: ch}
}

// Send implements notification.Sender.
func (s *LogSender) Send(_ context.Context, address string, content notification.Content) error {
	if address == "" {
		return ErrNoAddress
	}
	logger.Info("notification delivery stubbed",
		zap.String("channel", string(s.channel)),
		zap.String("address", address),
		zap.String("subject", content.Subject),
		zap.Int("body_length", len(content.Body)),
	)
	return nil
}
