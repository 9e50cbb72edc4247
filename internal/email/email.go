// Package email delivers the invitation notifications this core emits.
// Delivery mechanics are an external concern; the rest of the system only
// depends on the Sender interface.
package email

import "context"

// Sender sends one email with HTML and plain-text alternatives.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// NoopSender discards messages. Default when no SMTP is configured.
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	return nil
}
