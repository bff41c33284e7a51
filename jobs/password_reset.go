package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"gopkg.in/gomail.v2"

	jobmetrics "github.com/ticketslave/ticketslave/internal/jobs"
)

// Mail is a rendered outgoing message.
type Mail struct {
	To      string
	Subject string
	HTML    string
}

// MailSender delivers one message.
type MailSender interface {
	Send(ctx context.Context, m Mail) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

// Send implements MailSender.
func (s *SMTPSender) Send(_ context.Context, m Mail) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.HTML)
	return s.dialer.DialAndSend(msg)
}

// LogSender writes mail to the log instead of sending it. Used when no SMTP
// relay is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements MailSender.
func (s LogSender) Send(_ context.Context, m Mail) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail not sent, no smtp relay", slog.String("to", m.To), slog.String("subject", m.Subject))
	return nil
}

var resetMailTemplate = template.Must(template.New("reset").Parse(
	`<b>Use this link to reset your password</b><br>` +
		`<a href="{{.Link}}">{{.Link}}</a><br>` +
		`<small>The link expires at {{.Expires}}.</small>`))

// PasswordResetMailJob renders and sends password recovery mail.
type PasswordResetMailJob struct {
	Sender   MailSender
	ResetURL string
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	now      func() time.Time
}

// NewPasswordResetMailJob wires dependencies for the mail handler.
func NewPasswordResetMailJob(sender MailSender, resetURL string, logger *slog.Logger, metrics *jobmetrics.Metrics) *PasswordResetMailJob {
	return &PasswordResetMailJob{Sender: sender, ResetURL: resetURL, Logger: logger, Metrics: metrics, now: time.Now}
}

// Handle processes password reset mail tasks.
func (j *PasswordResetMailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("password reset mail: handler not configured")
	}
	var payload PasswordResetMailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("password reset mail: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Email == "" || payload.Token == "" {
		return fmt.Errorf("password reset mail: empty recipient or token: %w", asynq.SkipRetry)
	}
	logger := j.logger()
	if j.clock().After(payload.ExpiresAt) {
		logger.Warn("password reset token expired before delivery")
		return nil
	}

	tracker := j.metrics().Track(TaskPasswordResetMail)
	link, err := resetLink(j.ResetURL, payload.Token)
	if err != nil {
		return tracker.End(fmt.Errorf("password reset mail: %v: %w", err, asynq.SkipRetry))
	}
	var body strings.Builder
	err = resetMailTemplate.Execute(&body, map[string]string{
		"Link":    link,
		"Expires": payload.ExpiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return tracker.End(err)
	}
	if err := j.Sender.Send(ctx, Mail{To: payload.Email, Subject: "Reset your password", HTML: body.String()}); err != nil {
		logger.Error("password reset mail", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("password reset mail sent")
	return tracker.End(nil)
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid reset url %q", base)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (j *PasswordResetMailJob) clock() time.Time {
	if j.now != nil {
		return j.now()
	}
	return time.Now()
}

func (j *PasswordResetMailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPasswordResetMail))
	}
	return slog.Default().With(slog.String("job", TaskPasswordResetMail))
}

func (j *PasswordResetMailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
