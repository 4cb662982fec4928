// Package mail renders and delivers the account emails: verification codes
// and password-reset links.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const product = "CloudPrime"

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer renders the account emails and hands them to a Sender.
type Mailer struct {
	sender      Sender
	frontendURL string
	now         func() time.Time
}

func NewMailer(sender Sender, frontendURL string) *Mailer {
	return &Mailer{sender: sender, frontendURL: strings.TrimRight(frontendURL, "/"), now: time.Now}
}

// SendOTP mails a verification code valid for validFor.
func (m *Mailer) SendOTP(ctx context.Context, to, name, code string, validFor time.Duration) error {
	html, err := m.render("otp.html", map[string]any{
		"Name":     name,
		"Code":     code,
		"ValidFor": humanDuration(validFor),
	})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: "Your " + product + " verification code",
		HTML:    html,
	})
}

// SendPasswordReset mails a link carrying the raw reset token.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, token string, validFor time.Duration) error {
	html, err := m.render("reset.html", map[string]any{
		"Name":     name,
		"URL":      m.frontendURL + "/reset-password?token=" + token,
		"ValidFor": humanDuration(validFor),
	})
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: "Password reset request - " + product,
		HTML:    html,
	})
}

func (m *Mailer) render(name string, data map[string]any) (string, error) {
	data["Product"] = product
	data["Year"] = m.now().Year()

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}

// SMTPSender delivers mail through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPSender(host string, port int, username, password, fromName, fromEmail string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), fromEmail),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	if err := smtp.SendMail(addr, auth, envelopeFrom(s.from), []string{msg.To}, buildMIME(s.from, msg)); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	return nil
}

func envelopeFrom(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

func buildMIME(from string, msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return b.Bytes()
}

// LogSender writes messages to the log instead of delivering them. Used when
// no SMTP relay is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: slog.Default().With("component", "mail")}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("mail not delivered: no SMTP relay configured",
		"to", msg.To,
		"subject", msg.Subject,
		"bytes", len(msg.HTML),
	)
	return nil
}
