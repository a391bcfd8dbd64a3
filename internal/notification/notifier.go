// Package notification delivers issued tokens and codes to users over the
// configured channels. The verificators hand it the public token; everything
// here is formatting and transport.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veritoken/veritoken/pkg/domain"
	"github.com/veritoken/veritoken/pkg/verify"
)

// ChannelSender delivers one rendered message over a single channel.
type ChannelSender interface {
	Send(ctx context.Context, user domain.User, msg Message) error
}

// Message is a channel-agnostic rendering of a notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Dispatcher fans a notification out to the selected channels. It implements
// verify.Notifier. Channels without a configured sender, or without an
// address on the user, are skipped.
type Dispatcher struct {
	logger  *slog.Logger
	senders map[string]ChannelSender
}

// NewDispatcher creates a dispatcher. Nil senders are allowed and disable the
// corresponding channel.
func NewDispatcher(logger *slog.Logger, email, sms ChannelSender) *Dispatcher {
	senders := make(map[string]ChannelSender)
	if email != nil {
		senders[domain.ChannelEmail] = email
	}
	if sms != nil {
		senders[domain.ChannelSMS] = sms
	}
	return &Dispatcher{logger: logger, senders: senders}
}

// Send delivers the notification. An empty channel subset means every
// configured channel the user can receive. Send fails only when no channel
// could be attempted at all.
func (d *Dispatcher) Send(ctx context.Context, n verify.Notification) error {
	channels := n.Channels
	if len(channels) == 0 {
		channels = []string{domain.ChannelEmail, domain.ChannelSMS}
	}

	msg := renderMessage(n)

	var sent int
	for _, channel := range channels {
		sender, ok := d.senders[channel]
		if !ok || !n.User.CanReceive(channel) {
			continue
		}
		if err := sender.Send(ctx, n.User, msg); err != nil {
			return fmt.Errorf("failed to send %s notification: %w", channel, err)
		}
		sent++
		d.logger.Info("notification sent", "channel", channel, "type", n.Token.Type, "user_id", n.User.ID)
	}

	if sent == 0 {
		return fmt.Errorf("no deliverable channel for user %s", n.User.ID)
	}
	return nil
}

// renderMessage formats the notification. Messages are rendered at issuance,
// so the stated expiry is the token's own lifetime, not a wall-clock delta.
func renderMessage(n verify.Notification) Message {
	minutes := int(n.Token.ExpiresAt.Sub(n.Token.IssuedAt).Minutes())

	if n.URL != "" {
		return Message{
			Subject: "Reset password",
			Text: fmt.Sprintf(
				"You are receiving this message because we received a password reset request for your account. Reset your password: %s This link will expire in %d minutes.",
				n.URL, minutes),
			HTML: fmt.Sprintf(`<html><body>
		<h2>Reset password</h2>
		<p>You are receiving this email because we received a password reset request for your account.</p>
		<p><a href="%s">Reset password</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This password reset link will expire in %d minutes.</p>
		<p>If you did not request a password reset, no further action is required.</p>
	</body></html>`, n.URL, n.URL, minutes),
		}
	}

	return Message{
		Subject: "Verification code",
		Text:    fmt.Sprintf("Your verification code is %s. The code will expire in %d minutes.", n.Token.ID, minutes),
		HTML: fmt.Sprintf(`<html><body>
		<h2>Verification code</h2>
		<p>Your verification code is:</p>
		<p><strong>%s</strong></p>
		<p>The code will expire in %d minutes.</p>
	</body></html>`, n.Token.ID, minutes),
	}
}
