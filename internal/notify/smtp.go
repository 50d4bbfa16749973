package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"datashare/internal/platform/config"
)

// SMTPNotifier delivers notifications over plain SMTP.
type SMTPNotifier struct {
	cfg config.SMTPConfig
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) Send(_ context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.User != "" {
		auth = smtp.PlainAuth("", n.cfg.User, n.cfg.Pass, n.cfg.Host)
	}

	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.cfg.From, msg.To, subjectFor(msg.Template), renderBody(msg))

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
