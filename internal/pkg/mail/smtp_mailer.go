package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/ManuelReschke/PlaceFox/internal/pkg/env"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// ErrNotConfigured is returned when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp not configured")

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain HTML e-mails via SMTP.
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string

	send sendFunc
	now  func() time.Time
}

func NewSMTPMailerFromEnv() *SMTPMailer {
	m := &SMTPMailer{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   env.GetEnv("SMTP_SENDER", ""),
		send:     smtp.SendMail,
		now:      time.Now,
	}
	if m.Sender == "" {
		m.Sender = "no-reply@localhost"
		log.Warnf("SMTP_SENDER not set, using default sender: %s", m.Sender)
	}
	return m
}

// Send delivers one message. ctx only guards against starting a send after
// the caller gave up; net/smtp itself is not cancellable.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.Host == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	addr := fmt.Sprintf("%s:%s", m.Host, m.Port)

	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(addr, auth, m.Sender, []string{to}, m.buildMessage(to, subject, body)); err != nil {
		return errors.Wrapf(err, "send mail to %s via %s", to, addr)
	}
	log.Infof("Email sent to %s via %s", to, addr)
	return nil
}

func (m *SMTPMailer) buildMessage(to, subject, body string) []byte {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	domain := "localhost"
	if i := strings.LastIndex(m.Sender, "@"); i >= 0 && i < len(m.Sender)-1 {
		domain = m.Sender[i+1:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.Sender)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
