package jobs

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers notification email. The SMTP implementation is used
// in production; tests substitute a recorder.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends plain-text mail through a single SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
}

// Send delivers one message. Delivery guarantees beyond the relay
// handoff are out of scope; asynq retries the task on error.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	if m.Addr == "" {
		return fmt.Errorf("jobs: smtp relay not configured")
	}
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	return smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg))
}
