package notification

import (
	"context"
	"log/slog"

	"github.com/veritoken/veritoken/pkg/verify"
)

// LogNotifier writes notifications to the log instead of delivering them.
// Development use only: the logged text contains the plaintext credential.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the rendered message.
func (l *LogNotifier) Send(ctx context.Context, n verify.Notification) error {
	msg := renderMessage(n)
	l.logger.Info("notification (log delivery, not for production)",
		"type", n.Token.Type,
		"user_id", n.User.ID,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}
