package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/inspecto-app/inspecto/internal/pkg/env"
)

// SMTPMailer sends plain text emails through an SMTP relay.
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailerFromEnv reads SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD
// and SMTP_SENDER. It returns nil when no host is configured.
func NewSMTPMailerFromEnv() *SMTPMailer {
	host := env.GetEnv("SMTP_HOST", "")
	if host == "" {
		fiberlog.Info("[Mail] SMTP_HOST not set, billing notices are disabled")
		return nil
	}
	sender := env.GetEnv("SMTP_SENDER", "")
	if sender == "" {
		sender = "no-reply@" + env.GetEnv("PUBLIC_DOMAIN", "localhost")
		fiberlog.Infof("[Mail] SMTP_SENDER not set, using %s", sender)
	}
	return &SMTPMailer{
		Host:     host,
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   sender,
	}
}

// Send delivers one message. net/smtp has no context support, so ctx is only
// checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("mail: empty recipient")
	}

	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	send := m.send
	if send == nil {
		send = smtp.SendMail
	}

	addr := net.JoinHostPort(m.Host, m.Port)
	if err := send(addr, auth, m.Sender, []string{to}, buildMessage(m.Sender, to, subject, body)); err != nil {
		fiberlog.Errorf("[Mail] sending %q to %s via %s: %v", subject, to, addr, err)
		return err
	}
	fiberlog.Infof("[Mail] sent %q to %s", subject, to)
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, to, headerValue(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// headerValue strips line breaks so a subject cannot inject headers.
func headerValue(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
