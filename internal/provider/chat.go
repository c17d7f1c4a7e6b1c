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

type ChatConfig struct {
	Endpoint  string
	BotToken  string
	BaseDelay time.Duration
}

// ChatProvider posts messages to a Slack-style chat API. Always singular; the
// API has no batch endpoint.
type ChatProvider struct {
	cfg    ChatConfig
	Client *http.Client
	Logger zerolog.Logger
}

func NewChatProvider(cfg ChatConfig, logger zerolog.Logger) (*ChatProvider, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("chat provider: CHAT_BOT_TOKEN is required")
	}
	return &ChatProvider{cfg: cfg, Logger: logger}, nil
}

func (p *ChatProvider) Name() string { return "chat" }

func (p *ChatProvider) Send(ctx context.Context, req *notify.Request) error {
	opts := req.Chat
	body := map[string]any{
		"channel": opts.Channel,
		"text":    opts.Text,
	}
	if len(opts.Blocks) > 0 {
		body["blocks"] = opts.Blocks
	}
	if opts.ThreadTS != "" {
		body["thread_ts"] = opts.ThreadTS
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	return withRetry(ctx, p.Logger, p.Name(), p.cfg.BaseDelay, func() error {
		return p.post(ctx, payload)
	})
}

func (p *ChatProvider) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return &Error{Provider: p.Name(), Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.BotToken)

	resp, err := httpClient(p.Client).Do(req)
	if err != nil {
		return transportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(p.Name(), resp.StatusCode, resp.Status); err != nil {
		return fmt.Errorf("post chat message: %w", err)
	}

	// The API reports request-level failures like unknown channel IDs inside a
	// 200 response body.
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return transportError(p.Name(), fmt.Errorf("decode response: %w", err))
	}
	if !result.OK {
		retryable := result.Error == "rate_limited" || result.Error == "service_unavailable"
		return fmt.Errorf("post chat message: %w", &Error{
			Provider:  p.Name(),
			Retryable: retryable,
			Err:       fmt.Errorf("api error: %s", result.Error),
		})
	}
	return nil
}
