package services

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gopkg.in/gomail.v2"
)

// DefaultEmailTimeout bounds one SMTP dial and send
const DefaultEmailTimeout = 10 * time.Second

// EmailConfig holds the SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// EmailService handles sending emails via SMTP
type EmailService struct {
	from    string
	timeout time.Duration
	send    func(*gomail.Message) error
}

// NewEmailService creates a new email service instance
func NewEmailService(config EmailConfig) *EmailService {
	if config.Port == 0 {
		config.Port = 587
	}
	if config.From == "" {
		config.From = "SpeakNowly <noreply@speaknowly.com>"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultEmailTimeout
	}

	e := &EmailService{from: config.From, timeout: config.Timeout}
	if config.Host != "" && config.Username != "" && config.Password != "" {
		dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
		e.send = func(m *gomail.Message) error { return dialer.DialAndSend(m) }
	}
	return e
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.send != nil
}

// SendVerificationCode emails a one-time code
func (e *EmailService) SendVerificationCode(ctx context.Context, to, name, code string, purpose model.VerificationPurpose) error {
	if !e.IsConfigured() {
		log.Warn().Str("to", to).Str("code", code).Msg("SMTP not configured, verification code not sent")
		return nil
	}

	subject := "Your SpeakNowly verification code"
	if purpose == model.VerificationPasswordReset {
		subject = "Reset your SpeakNowly password"
	}
	body := layout(subject, fmt.Sprintf(`<p>Hello %s,</p>
<p>Your code is:</p>
<p class="code">%s</p>
<p>It expires in 10 minutes. If you did not request it, ignore this email.</p>`, html.EscapeString(displayName(name)), html.EscapeString(code)))

	return e.sendEmail(ctx, to, subject, body)
}

// SendAnalysisReady emails the overall band of a graded test
func (e *EmailService) SendAnalysisReady(ctx context.Context, to, name string, kind model.TestKind, score float64) error {
	if !e.IsConfigured() {
		return nil
	}
	subject := fmt.Sprintf("Your %s result is ready", kind)
	body := layout(subject, fmt.Sprintf(`<p>Hello %s,</p>
<p>Your %s test has been graded.</p>
<p class="code">Band %.1f</p>
<p>Open SpeakNowly to read the detailed feedback.</p>`, html.EscapeString(displayName(name)), kind, score))

	return e.sendEmail(ctx, to, subject, body)
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

func layout(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%s</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .container { background-color: #ffffff; border-radius: 8px; padding: 32px; }
        .code { font-size: 28px; font-weight: 700; letter-spacing: 4px; color: #1a56db; }
        .footer { margin-top: 24px; font-size: 12px; color: #666; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        %s
        <div class="footer">SpeakNowly</div>
    </div>
</body>
</html>`, html.EscapeString(title), content)
}

// sendEmail dials and sends, giving up after the configured timeout
func (e *EmailService) sendEmail(ctx context.Context, to, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.send(m) }()

	select {
	case err := <-done:
		if err != nil {
			return apperr.Upstream("failed to send email", err)
		}
		log.Info().Str("to", to).Str("subject", subject).Msg("email sent")
		return nil
	case <-ctx.Done():
		return apperr.Upstream("email delivery timed out", ctx.Err())
	}
}
