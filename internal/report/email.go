package report

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/crossval/crossval/internal/config"
)

// Mailer sends run summaries over SMTP.
type Mailer struct {
	cfg config.EmailConfig
}

func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send delivers the summary email. A failed delivery never fails the run;
// the caller logs the error and moves on.
func (m *Mailer) Send(subject, body string) error {
	if !m.cfg.Enabled || len(m.cfg.To) == 0 {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	msg := m.message(subject, body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	if !m.cfg.UseTLS {
		if err := smtp.SendMail(addr, auth, m.cfg.From, m.cfg.To, msg); err != nil {
			return fmt.Errorf("sending report email: %w", err)
		}
		return nil
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("connecting to smtp server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: m.cfg.SMTPHost}); err != nil {
		return fmt.Errorf("starting tls: %w", err)
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	for _, to := range m.cfg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("setting recipient %s: %w", to, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("opening message body: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing message body: %w", err)
	}
	return client.Quit()
}

func (m *Mailer) message(subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
