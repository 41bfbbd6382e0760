package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/sakif/circles/internal/model"
)

// SMTPConfig holds the SMTP settings for EmailSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// mailDialer is the part of *gomail.Dialer EmailSender uses.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers email-channel messages over SMTP.
type EmailSender struct {
	from   string
	dialer mailDialer
}

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &EmailSender{from: cfg.From, dialer: d}
}

func (s *EmailSender) Send(ctx context.Context, m *model.OutboxMessage) error {
	if strings.HasPrefix(m.Recipient, model.BlueskyEmailPrefix) {
		return errors.New("notify: bluesky recipient routed to email")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.Recipient)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)
	msg.AddAlternative("text/html", plainToHTML(m.Body))

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("notify: sending email to %s: %w", m.Recipient, err)
	}
	return nil
}

// plainToHTML escapes body and keeps its line breaks.
func plainToHTML(body string) string {
	var b strings.Builder
	b.WriteString("<p>")
	for i, line := range strings.Split(body, "\n") {
		if i > 0 {
			b.WriteString("<br>")
		}
		b.WriteString(htmlEscaper.Replace(line))
	}
	b.WriteString("</p>")
	return b.String()
}

var htmlEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&#34;", `'`, "&#39;")
