package report

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer notifies a recipient that their report is ready.
type Mailer interface {
	SendReportLink(ctx context.Context, recipient, subject, link string) error
}

// SMTPMailer delivers report links over plain SMTP.
type SMTPMailer struct {
	addr     string
	from     string
	username string
	password string
}

// NewSMTPMailer creates a mailer. addr is host:port, username and password
// may be empty for unauthenticated relays.
func NewSMTPMailer(addr, from, username, password string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from, username: username, password: password}
}

func (m *SMTPMailer) SendReportLink(ctx context.Context, recipient, subject, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "Your report is ready. Download it here:\r\n\r\n%s\r\n", link)

	var auth smtp.Auth
	if m.username != "" {
		host := m.addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.username, m.password, host)
	}

	if err := smtp.SendMail(m.addr, auth, m.from, []string{recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send report mail to %s: %w", recipient, err)
	}
	return nil
}
