package notifications

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/shopvibe/shopvibe-backend/pkg/config"
	"github.com/shopvibe/shopvibe-backend/pkg/logger"
)

// Sender delivers one receipt message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSender picks SMTP delivery when a host is configured, log-only otherwise.
func NewSender(cfg config.SMTPConfig, logg *logger.Logger) Sender {
	if cfg.Host == "" {
		return &logSender{logg: logg}
	}
	return &smtpSender{cfg: cfg}
}

type smtpSender struct {
	cfg config.SMTPConfig
}

func (s *smtpSender) Send(ctx context.Context, to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

type logSender struct {
	logg *logger.Logger
}

func (s *logSender) Send(ctx context.Context, to, subject, body string) error {
	if s.logg == nil {
		return nil
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"to":      to,
		"subject": subject,
		"bytes":   len(body),
	})
	s.logg.Info(logCtx, "mail delivery skipped (no smtp host configured)")
	return nil
}
