package mailer

import (
	"context"
	"fmt"

	"class-booking/internal/util"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
}

// SMTPMailer delivers messages through an SMTP relay
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.SSL

	return &SMTPMailer{
		dialer: dialer,
		from:   cfg.From,
		logger: util.GetLogger(),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	_, span := util.StartSpan(ctx, "mailer.Send")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)

	if err := m.dialer.DialAndSend(gm); err != nil {
		m.logger.Error("Failed to send email", zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("send email: %w", err)
	}

	m.logger.Info("Email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// LogMailer only logs messages. Used when no SMTP relay is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{logger: util.GetLogger()}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("Email not delivered, no SMTP relay configured",
		zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
