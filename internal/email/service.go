package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"golang.org/x/time/rate"

	"github.com/foothill/blog/internal/logging"
)

// SendFunc delivers one message. It matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	smtpHost     string
	smtpPort     string
	smtpUser     string
	smtpPassword string
	fromEmail    string
	limiter      *rate.Limiter
	send         SendFunc
}

// NewService builds the mailer. sendsPerMinute caps outbound messages; the
// limiter allows a burst of the same size.
func NewService(smtpHost, smtpPort, smtpUser, smtpPassword, fromEmail string, sendsPerMinute int) *Service {
	if fromEmail == "" {
		fromEmail = smtpUser
	}
	if sendsPerMinute <= 0 {
		sendsPerMinute = 1
	}
	return &Service{
		smtpHost:     smtpHost,
		smtpPort:     smtpPort,
		smtpUser:     smtpUser,
		smtpPassword: smtpPassword,
		fromEmail:    fromEmail,
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(sendsPerMinute)), sendsPerMinute),
		send:         smtp.SendMail,
	}
}

// WithSender replaces the SMTP transport. Used by tests.
func (s *Service) WithSender(send SendFunc) *Service {
	s.send = send
	return s
}

// SendPasswordResetEmail sends a password reset link to the user.
// This method is designed to be called in a goroutine; it waits for the
// send limiter until ctx is done.
func (s *Service) SendPasswordResetEmail(ctx context.Context, toEmail, resetLink string, ttl time.Duration) error {
	logger := logging.GetLoggerFromContext(ctx)

	subject := "Password Reset Request"
	body, err := s.renderPasswordResetEmailTemplate(resetLink, ttl)
	if err != nil {
		logger.Error("failed to render password reset email template", "error", err)
		return fmt.Errorf("render template: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	if err := s.sendEmail(toEmail, subject, body); err != nil {
		logger.Error("failed to send password reset email", "email", toEmail, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("password reset email sent", "email", toEmail)
	return nil
}

func (s *Service) sendEmail(to, subject, body string) error {
	var auth smtp.Auth
	if s.smtpUser != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPassword, s.smtpHost)
	}

	// Build message
	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		s.fromEmail, to, subject, body,
	))

	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)
	return s.send(addr, auth, s.fromEmail, []string{to}, msg)
}

var passwordResetTemplate = template.Must(template.New("passwordReset").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 5px;
        }
        .button {
            display: inline-block;
            background-color: #5f788a;
            color: white !important;
            padding: 12px 30px;
            text-decoration: none;
            border-radius: 5px;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            font-size: 12px;
            color: #666;
        }
    </style>
</head>
<body>
    <div class="content">
        <h2>Reset your password</h2>
        <p>To reset your password, visit the following link:</p>

        <a href="{{.ResetLink}}" class="button" style="color: white !important;">Reset Password</a>

        <p style="word-break: break-all;">{{.ResetLink}}</p>

        <p>If you did not make this request then simply ignore this email and no changes will be made.</p>
    </div>
    <div class="footer">
        <p>This link will expire in {{.Expiry}}.</p>
    </div>
</body>
</html>
`))

func (s *Service) renderPasswordResetEmailTemplate(resetLink string, ttl time.Duration) (string, error) {
	var buf bytes.Buffer
	data := struct {
		ResetLink string
		Expiry    string
	}{
		ResetLink: resetLink,
		Expiry:    humanDuration(ttl),
	}

	if err := passwordResetTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}

// humanDuration renders whole hours or minutes, e.g. "30 minutes", "1 hour"
func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return plural(int(d/time.Hour), "hour")
	}
	minutes := int(d / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return plural(minutes, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
