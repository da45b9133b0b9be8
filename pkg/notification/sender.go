package notification

import (
	"context"

	"github.com/identra/identra/pkg/logging"
)

// Sender delivers a templated notification (email, SMS) to a recipient.
// The real transport lives outside the core; this is the consumed interface.
type Sender interface {
	Send(ctx context.Context, templateID, recipient string, data map[string]any) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, templateID, recipient string, data map[string]any) error

func (f SenderFunc) Send(ctx context.Context, templateID, recipient string, data map[string]any) error {
	return f(ctx, templateID, recipient, data)
}

// LogSender logs notifications instead of sending them. Default for
// development and tests.
type LogSender struct {
	Logger logging.Logger
}

func (s *LogSender) Send(ctx context.Context, templateID, recipient string, data map[string]any) error {
	s.Logger.Info("notification suppressed", "template", templateID, "recipient", recipient)
	return nil
}
