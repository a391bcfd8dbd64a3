package notification

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/veritoken/veritoken/pkg/domain"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// EmailSender delivers messages over SMTP.
type EmailSender struct {
	config EmailConfig
}

// NewEmailSender creates an SMTP email sender.
func NewEmailSender(config EmailConfig) *EmailSender {
	return &EmailSender{config: config}
}

// Send delivers the message to the user's email address.
func (s *EmailSender) Send(ctx context.Context, user domain.User, msg Message) error {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, user.Email, msg.Subject, msg.HTML)

	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return smtp.SendMail(addr, auth, s.config.From, []string{user.Email}, []byte(body))
}
