package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/notify-worker/internal/notify"
)

type SMSConfig struct {
	Endpoint    string
	AccountSID  string
	AuthToken   string
	DefaultFrom string
	BaseDelay   time.Duration
}

// SMSProvider delivers text messages through a Twilio-style REST API.
type SMSProvider struct {
	cfg    SMSConfig
	Client *http.Client
	Logger zerolog.Logger
}

func NewSMSProvider(cfg SMSConfig, logger zerolog.Logger) (*SMSProvider, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("sms provider: SMS_ACCOUNT_SID and SMS_AUTH_TOKEN are required")
	}
	if cfg.DefaultFrom == "" {
		return nil, errors.New("sms provider: SMS_FROM is required")
	}
	return &SMSProvider{cfg: cfg, Logger: logger}, nil
}

func (p *SMSProvider) Name() string { return "sms" }

func (p *SMSProvider) Send(ctx context.Context, req *notify.Request) error {
	opts := req.SMS
	from := opts.From
	if from == "" {
		from = p.cfg.DefaultFrom
	}
	form := url.Values{}
	form.Set("To", opts.To)
	form.Set("From", from)
	form.Set("Body", opts.Body)

	return withRetry(ctx, p.Logger, p.Name(), p.cfg.BaseDelay, func() error {
		return p.post(ctx, form)
	})
}

func (p *SMSProvider) post(ctx context.Context, form url.Values) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.cfg.Endpoint, p.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

	resp, err := httpClient(p.Client).Do(req)
	if err != nil {
		return transportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(p.Name(), resp.StatusCode, resp.Status); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}
