package services

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "course-marketplace/errors"
	"course-marketplace/logger"
	"course-marketplace/models"

	"gopkg.in/gomail.v2"
)

// SMTPConfig carries the outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPMailer sends email over SMTP with gomail.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	log    *logger.Logger
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		log:    logger.Default().With("component", "smtp"),
	}
}

// Send delivers msg. Called by the email consumer, or directly when Kafka
// is disabled.
func (m *SMTPMailer) Send(msg models.EmailMessage) error {
	if m.cfg.From == "" {
		return fmt.Errorf("email sender not configured (set EMAIL_FROM or SMTP_USER)")
	}
	if m.cfg.User == "" || m.cfg.Password == "" {
		return fmt.Errorf("smtp credentials not configured (set SMTP_USER and SMTP_PASS)")
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.cfg.From)
	gm.SetHeader("To", msg.Recipient)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.Body)
	if msg.Attachment != "" {
		gm.Attach(msg.Attachment)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		m.log.Error("Failed to send email to %s: %v", msg.Recipient, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.log.Info("Email sent to %s (%s)", msg.Recipient, msg.Subject)
	return nil
}

// EmailHandler decodes an email.send event from the emails topic and hands
// it to mailer. Malformed events are rejected so the consumer dead-letters
// them.
func EmailHandler(mailer Mailer) func(ctx context.Context, value []byte) error {
	return func(ctx context.Context, value []byte) error {
		var msg models.EmailMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			return apperrors.E(apperrors.Invalid, "malformed email event", err)
		}
		switch {
		case msg.Recipient == "":
			return apperrors.NewInvalidParamsError("invalid recipient in email event")
		case msg.Subject == "":
			return apperrors.NewInvalidParamsError("invalid subject in email event")
		case msg.Body == "":
			return apperrors.NewInvalidParamsError("invalid body in email event")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return mailer.Send(msg)
	}
}
