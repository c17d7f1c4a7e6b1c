package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"github.com/example/notify-worker/internal/notify"
)

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	DefaultFrom string
	BaseDelay   time.Duration
}

// SMTPEmailProvider delivers mail over SMTP. Selected instead of the HTTP
// email provider when an SMTP host is configured.
type SMTPEmailProvider struct {
	cfg    SMTPConfig
	Logger zerolog.Logger
}

func NewSMTPEmailProvider(cfg SMTPConfig, logger zerolog.Logger) (*SMTPEmailProvider, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp provider: SMTP_HOST is required")
	}
	if cfg.DefaultFrom == "" {
		return nil, errors.New("smtp provider: EMAIL_FROM is required")
	}
	return &SMTPEmailProvider{cfg: cfg, Logger: logger}, nil
}

func (p *SMTPEmailProvider) Name() string { return "email" }

func (p *SMTPEmailProvider) Send(ctx context.Context, req *notify.Request) error {
	msg, err := p.buildMessage(req.Email)
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	return withRetry(ctx, p.Logger, p.Name(), p.cfg.BaseDelay, func() error {
		return p.deliver(ctx, msg)
	})
}

func (p *SMTPEmailProvider) buildMessage(opts *notify.EmailOptions) (*mail.Msg, error) {
	m := mail.NewMsg()
	from := opts.From
	if from == "" {
		from = p.cfg.DefaultFrom
	}
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(opts.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", opts.To, err)
	}
	if opts.ReplyTo != "" {
		if err := m.ReplyTo(opts.ReplyTo); err != nil {
			return nil, fmt.Errorf("invalid reply-to %q: %w", opts.ReplyTo, err)
		}
	}
	m.Subject(opts.Subject)
	m.SetBodyString(mail.TypeTextPlain, opts.Body)
	for _, a := range opts.Attachments {
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Content)); err != nil {
			return nil, fmt.Errorf("attach %q: %w", a.Filename, err)
		}
	}
	return m, nil
}

func (p *SMTPEmailProvider) deliver(ctx context.Context, msg *mail.Msg) error {
	c, err := mail.NewClient(p.cfg.Host,
		mail.WithPort(p.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(p.cfg.Username),
		mail.WithPassword(p.cfg.Password),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return transportError(p.Name(), err)
	}
	return nil
}
