package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/notify-worker/internal/notify"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when the
// caller supplies a shared secret.
const SignatureHeader = "X-Webhook-Signature"

type WebhookConfig struct {
	BaseDelay time.Duration
}

// WebhookProvider performs plain HTTP deliveries with caller-specified method,
// headers, and body. It needs no credentials of its own.
type WebhookProvider struct {
	cfg    WebhookConfig
	Client *http.Client
	Logger zerolog.Logger
}

func NewWebhookProvider(cfg WebhookConfig, logger zerolog.Logger) *WebhookProvider {
	return &WebhookProvider{cfg: cfg, Logger: logger}
}

func (p *WebhookProvider) Name() string { return "webhook" }

func (p *WebhookProvider) Send(ctx context.Context, req *notify.Request) error {
	opts := req.Webhook
	var payload []byte
	if opts.Body != nil {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return &Error{Provider: p.Name(), Retryable: false, Err: err}
		}
		payload = b
	}
	return withRetry(ctx, p.Logger, p.Name(), p.cfg.BaseDelay, func() error {
		return p.deliver(ctx, opts, payload)
	})
}

func (p *WebhookProvider) deliver(ctx context.Context, opts *notify.WebhookOptions, payload []byte) error {
	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, opts.URL, bytes.NewReader(payload))
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, opts.Secret))
	}

	resp, err := httpClient(p.Client).Do(req)
	if err != nil {
		return transportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(p.Name(), resp.StatusCode, resp.Status); err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time. Not used on
// the dispatch path; it validates payloads this system receives as a webhook
// consumer elsewhere.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected, err := hex.DecodeString(Sign(payload, secret))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
