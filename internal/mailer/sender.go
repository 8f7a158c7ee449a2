// Package mailer renders and sends the order confirmation mails.
package mailer

import (
	"context"
	"fmt"

	"github.com/drluca/shopstream/orderform/config"
	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

// Message is one outgoing mail.
type Message struct {
	To        string
	Subject   string
	HTMLBody  string
	FromEmail string
	FromName  string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mails through an SMTP relay.
type SMTPSender struct {
	client *mail.Client
}

func NewSMTPSender(cfg config.Config) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithPort(cfg.SMTPPort),
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}
	return &SMTPSender{client: client}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := buildMessage(msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("Mail sent")
	return nil
}

func buildMessage(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(msg.FromName, msg.FromEmail); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.FromEmail, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	return m, nil
}

// LogSender only logs mails. It is used when no SMTP host is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Int("bodyBytes", len(msg.HTMLBody)).
		Msg("SMTP disabled, mail not delivered")
	return nil
}
