package notify

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/vaidashi/invoice-reconciler/internal/config"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

// EmailNotifier sends notifications over SMTP to a fixed recipient list
type EmailNotifier struct {
	cfg    config.SMTPConfig
	logger logger.Logger
}

// NewEmailNotifier creates a new EmailNotifier
func NewEmailNotifier(cfg config.SMTPConfig, logger logger.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// Notify sends one plain-text email
func (n *EmailNotifier) Notify(subject, body string) error {
	msg := email.NewEmail()
	msg.From = n.cfg.From
	msg.To = n.cfg.Recipients
	msg.Subject = subject
	msg.Text = []byte(body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := msg.Send(addr, auth); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Debug("Sent notification email", "subject", subject, "recipients", len(n.cfg.Recipients))
	return nil
}
