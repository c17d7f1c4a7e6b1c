package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/notify-worker/internal/notify"
)

type PushConfig struct {
	Endpoint  string
	ServerKey string
	BaseDelay time.Duration
}

// PushProvider delivers mobile push notifications through an FCM-style HTTP
// API. Multicast sends the full token list in one batch call.
type PushProvider struct {
	cfg    PushConfig
	Client *http.Client
	Logger zerolog.Logger
}

func NewPushProvider(cfg PushConfig, logger zerolog.Logger) (*PushProvider, error) {
	if cfg.ServerKey == "" {
		return nil, errors.New("push provider: PUSH_SERVER_KEY is required")
	}
	return &PushProvider{cfg: cfg, Logger: logger}, nil
}

func (p *PushProvider) Name() string { return "push" }

func (p *PushProvider) Send(ctx context.Context, req *notify.Request) error {
	payload, err := buildPushPayload(req.Push)
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	return withRetry(ctx, p.Logger, p.Name(), p.cfg.BaseDelay, func() error {
		return p.post(ctx, payload)
	})
}

func buildPushPayload(opts *notify.PushOptions) ([]byte, error) {
	notification := map[string]any{
		"title": opts.Title,
		"body":  opts.Body,
	}
	if opts.ImageURL != "" {
		notification["image"] = opts.ImageURL
	}
	if opts.ClickURL != "" {
		notification["click_action"] = opts.ClickURL
	}

	body := map[string]any{"notification": notification}
	if len(opts.Data) > 0 {
		body["data"] = opts.Data
	}
	if len(opts.Tokens) > 0 {
		body["registration_ids"] = opts.Tokens
	} else {
		body["to"] = opts.Token
	}
	return json.Marshal(body)
}

func (p *PushProvider) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/fcm/send", bytes.NewReader(payload))
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+p.cfg.ServerKey)

	resp, err := httpClient(p.Client).Do(req)
	if err != nil {
		return transportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(p.Name(), resp.StatusCode, resp.Status); err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	return nil
}
