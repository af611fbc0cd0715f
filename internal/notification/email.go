package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"
)

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// EmailService renders account and invitation emails and hands them to a Sender.
type EmailService struct {
	sender Sender
}

func NewEmailService(sender Sender) *EmailService {
	return &EmailService{sender: sender}
}

var templates = template.Must(template.New("").Parse(`
{{define "reset"}}<html><body>
<h2>Reset your password</h2>
<p>A password reset was requested for your QC Inspect account.</p>
<p><a href="{{.URL}}">Choose a new password</a></p>
<p>This link expires in 1 hour. If you did not ask for it, ignore this email.</p>
</body></html>{{end}}
{{define "verify"}}<html><body>
<h2>Confirm your email address</h2>
<p><a href="{{.URL}}">Confirm your email</a></p>
<p>This link expires in 24 hours.</p>
</body></html>{{end}}
{{define "invite"}}<html><body>
<h2>You have been invited to {{.Tenant}}</h2>
<p>Sign in or create an account with this email address, then open the link below to join.</p>
<p><a href="{{.URL}}">Join {{.Tenant}}</a></p>
<p>This invitation expires in 7 days.</p>
</body></html>{{end}}
`))

func (s *EmailService) SendVerificationEmail(ctx context.Context, to, verifyURL string) error {
	return s.send(ctx, to, "Confirm your email address", "verify", map[string]string{"URL": verifyURL})
}

func (s *EmailService) SendPasswordResetEmail(ctx context.Context, to, resetURL string) error {
	return s.send(ctx, to, "Reset your password", "reset", map[string]string{"URL": resetURL})
}

func (s *EmailService) SendInvitationEmail(ctx context.Context, to, tenantName, inviteURL string) error {
	subject := fmt.Sprintf("You're invited to join %s on QC Inspect", tenantName)
	return s.send(ctx, to, subject, "invite", map[string]string{"URL": inviteURL, "Tenant": tenantName})
}

func (s *EmailService) send(ctx context.Context, to, subject, name string, data any) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("render %s email: %w", name, err)
	}
	return s.sender.Send(ctx, Message{To: to, Subject: subject, HTML: body.String()})
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	config EmailConfig
}

func NewSMTPSender(config EmailConfig) *SMTPSender {
	return &SMTPSender{config: config}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, msg.To, msg.Subject, msg.HTML)

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return smtp.SendMail(addr, auth, s.config.From, []string{msg.To}, []byte(raw))
}

// LogSender writes messages to the log instead of sending them. Used when
// SMTP is not configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email not sent: smtp disabled",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}
