// Package provider holds the channel adapters. Each adapter wraps one external
// delivery API, validates its credentials at construction time, and retries
// transient failures up to three attempts before surfacing the last error.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// maxAttempts bounds the adapter-internal retry envelope per send.
const maxAttempts = 3

const defaultBaseDelay = 500 * time.Millisecond

// Error classifies a delivery failure. Retryable failures (network, 5xx,
// rate limits) are re-attempted; permanent ones (bad credentials, invalid
// recipient) are not.
type Error struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err carries a transient provider classification
// anywhere in its tree. Aggregates count as retryable when any member does, so
// a partially failed batch is re-delivered as long as one failure could still
// succeed.
func IsRetryable(err error) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok && pe.Retryable {
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				if IsRetryable(e) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return false
		}
	}
	return false
}

// withRetry runs op up to maxAttempts times, waiting between attempts and
// logging each failure with its attempt number. Permanent errors stop the
// envelope early; the last error is surfaced unchanged.
func withRetry(ctx context.Context, logger zerolog.Logger, name string, baseDelay time.Duration, op func() error) error {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		var pe *Error
		if errors.As(err, &pe) && !pe.Retryable {
			return backoff.Permanent(err)
		}
		logger.Warn().Err(err).Str("provider", name).Int("attempt", attempt).Msg("send attempt failed")
		return err
	}, policy)
}

// classifyStatus maps an HTTP response status onto the retryable/permanent
// taxonomy. 2xx/3xx are success, 429 and 5xx are transient, other 4xx are not.
func classifyStatus(name string, status int, statusText string) error {
	switch {
	case status < 400:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return &Error{Provider: name, Retryable: true, Err: fmt.Errorf("temporary error: %s", statusText)}
	default:
		return &Error{Provider: name, Retryable: false, Err: fmt.Errorf("permanent error: %s", statusText)}
	}
}

func transportError(name string, err error) error {
	return &Error{Provider: name, Retryable: true, Err: err}
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 5 * time.Second}
}
