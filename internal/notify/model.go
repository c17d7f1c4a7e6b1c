package notify

import (
	"errors"
	"fmt"
)

type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelChat    Channel = "chat"
	ChannelWebhook Channel = "webhook"
)

// ErrInvalidRequest marks a malformed or mismatched request. Jobs failing with
// it are never worth re-delivering.
var ErrInvalidRequest = errors.New("invalid notification request")

// Request is one notification to deliver. Channel discriminates which of the
// option payloads must be set; exactly one must be present and it must match.
// Template fields only take effect for email requests.
type Request struct {
	Channel      Channel        `json:"channel"`
	Template     string         `json:"template,omitempty"`
	TemplateData map[string]any `json:"template_data,omitempty"`

	Email   *EmailOptions   `json:"email,omitempty"`
	SMS     *SMSOptions     `json:"sms,omitempty"`
	Push    *PushOptions    `json:"push,omitempty"`
	Chat    *ChatOptions    `json:"chat,omitempty"`
	Webhook *WebhookOptions `json:"webhook,omitempty"`

	UserID   string         `json:"user_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Attachment struct {
	Filename  string `json:"filename"`
	Content   []byte `json:"content"`
	MediaType string `json:"media_type"`
}

type EmailOptions struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body,omitempty"`
	From        string       `json:"from,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type SMSOptions struct {
	To   string `json:"to"`
	Body string `json:"body"`
	From string `json:"from,omitempty"`
}

// PushOptions targets a single device token or, for multicast, a token list.
type PushOptions struct {
	Token    string            `json:"token,omitempty"`
	Tokens   []string          `json:"tokens,omitempty"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	ImageURL string            `json:"image_url,omitempty"`
	ClickURL string            `json:"click_url,omitempty"`
}

type ChatOptions struct {
	Channel  string           `json:"channel"`
	Text     string           `json:"text"`
	Blocks   []map[string]any `json:"blocks,omitempty"`
	ThreadTS string           `json:"thread_ts,omitempty"`
}

type WebhookOptions struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
	Secret  string            `json:"secret,omitempty"`
}

// Validate checks the channel discriminant against the option payloads.
func (r *Request) Validate() error {
	set := 0
	for _, present := range []bool{r.Email != nil, r.SMS != nil, r.Push != nil, r.Chat != nil, r.Webhook != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one channel option payload required, got %d", ErrInvalidRequest, set)
	}

	switch r.Channel {
	case ChannelEmail:
		if r.Email == nil {
			return payloadMismatch(r.Channel)
		}
		if r.Email.To == "" {
			return fmt.Errorf("%w: email recipient required", ErrInvalidRequest)
		}
	case ChannelSMS:
		if r.SMS == nil {
			return payloadMismatch(r.Channel)
		}
		if r.SMS.To == "" {
			return fmt.Errorf("%w: sms recipient required", ErrInvalidRequest)
		}
	case ChannelPush:
		if r.Push == nil {
			return payloadMismatch(r.Channel)
		}
		if r.Push.Token == "" && len(r.Push.Tokens) == 0 {
			return fmt.Errorf("%w: push device token required", ErrInvalidRequest)
		}
	case ChannelChat:
		if r.Chat == nil {
			return payloadMismatch(r.Channel)
		}
		if r.Chat.Channel == "" {
			return fmt.Errorf("%w: chat channel id required", ErrInvalidRequest)
		}
	case ChannelWebhook:
		if r.Webhook == nil {
			return payloadMismatch(r.Channel)
		}
		if r.Webhook.URL == "" {
			return fmt.Errorf("%w: webhook url required", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unrecognized channel %q", ErrInvalidRequest, r.Channel)
	}
	return nil
}

func payloadMismatch(ch Channel) error {
	return fmt.Errorf("%w: option payload does not match channel %q", ErrInvalidRequest, ch)
}

// BatchError reports partial failure of a batch dispatch. Successes are not
// rolled back; the counts are the whole story.
type BatchError struct {
	Succeeded int
	Failed    int
	Total     int
	Errs      []error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch dispatch: %d of %d requests failed (%d succeeded)", e.Failed, e.Total, e.Succeeded)
}

func (e *BatchError) Unwrap() []error { return e.Errs }
