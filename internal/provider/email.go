package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/notify-worker/internal/notify"
)

type EmailConfig struct {
	Endpoint    string
	APIKey      string
	DefaultFrom string
	BaseDelay   time.Duration
}

// EmailProvider delivers mail through a SendGrid-style HTTP API.
type EmailProvider struct {
	cfg    EmailConfig
	Client *http.Client
	Logger zerolog.Logger
}

func NewEmailProvider(cfg EmailConfig, logger zerolog.Logger) (*EmailProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("email provider: EMAIL_API_KEY is required")
	}
	if cfg.DefaultFrom == "" {
		return nil, errors.New("email provider: EMAIL_FROM is required")
	}
	return &EmailProvider{cfg: cfg, Logger: logger}, nil
}

func (p *EmailProvider) Name() string { return "email" }

func (p *EmailProvider) Send(ctx context.Context, req *notify.Request) error {
	return p.SendBulk(ctx, []*notify.EmailOptions{req.Email})
}

// SendBulk broadcasts one message to many recipients in a single call to the
// provider's batch endpoint, one personalization per recipient. The batch API
// carries a single content block, so every message must share the first one's
// body, sender, reply-to, and attachments; mixed-content input fails without a
// send attempt.
func (p *EmailProvider) SendBulk(ctx context.Context, msgs []*notify.EmailOptions) error {
	if len(msgs) == 0 {
		return nil
	}
	payload, err := p.buildPayload(msgs)
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	return withRetry(ctx, p.Logger, p.Name(), p.cfg.BaseDelay, func() error {
		return p.post(ctx, payload)
	})
}

func (p *EmailProvider) buildPayload(msgs []*notify.EmailOptions) ([]byte, error) {
	first := msgs[0]
	personalizations := make([]map[string]any, 0, len(msgs))
	for i, m := range msgs {
		if m.Body != first.Body || m.From != first.From || m.ReplyTo != first.ReplyTo ||
			len(m.Attachments) != len(first.Attachments) {
			return nil, fmt.Errorf("bulk email: message %d differs in content from the first; bulk sends are a single-content broadcast", i)
		}
		personalizations = append(personalizations, map[string]any{
			"to":      []map[string]string{{"email": m.To}},
			"subject": m.Subject,
		})
	}

	from := first.From
	if from == "" {
		from = p.cfg.DefaultFrom
	}
	body := map[string]any{
		"personalizations": personalizations,
		"from":             map[string]string{"email": from},
		"content": []map[string]string{
			{"type": "text/plain", "value": first.Body},
		},
	}
	if first.ReplyTo != "" {
		body["reply_to"] = map[string]string{"email": first.ReplyTo}
	}
	if len(first.Attachments) > 0 {
		attachments := make([]map[string]string, 0, len(first.Attachments))
		for _, a := range first.Attachments {
			attachments = append(attachments, map[string]string{
				"filename": a.Filename,
				"type":     a.MediaType,
				"content":  base64.StdEncoding.EncodeToString(a.Content),
			})
		}
		body["attachments"] = attachments
	}
	return json.Marshal(body)
}

func (p *EmailProvider) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/mail/send", bytes.NewReader(payload))
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := httpClient(p.Client).Do(req)
	if err != nil {
		return transportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(p.Name(), resp.StatusCode, resp.Status); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
