package email

import (
	"context"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/idframe/idframe/internal/observability/logger"
)

// SMTPSender implements Sender over SMTP.
type SMTPSender struct {
	Host string
	Port int
	From string
	User string
	Pass string
}

// NewSMTPSender builds an SMTP sender.
func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, From: from, User: user, Pass: pass}
}

// Send delivers one multipart/alternative message.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	if htmlBody != "" {
		m.AddAlternative("text/html", htmlBody)
	}

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	if err := d.DialAndSend(m); err != nil {
		logger.From(ctx).Error("email send failed",
			logger.Component("email.smtp"),
			logger.String("host", s.Host),
			logger.Err(err),
		)
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}
