package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), zerolog.Nop(), "test", time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &Error{Provider: "test", Retryable: true, Err: errors.New("flaky")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetrySurfacesLastErrorAfterExhaustion(t *testing.T) {
	calls := 0
	last := &Error{Provider: "test", Retryable: true, Err: errors.New("still down")}
	err := withRetry(context.Background(), zerolog.Nop(), "test", time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &Error{Provider: "test", Retryable: true, Err: errors.New("down")}
		}
		return last
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "exactly three attempts")
	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Same(t, last, pe, "last error surfaced unchanged")
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := &Error{Provider: "test", Retryable: false, Err: errors.New("bad credentials")}
	err := withRetry(context.Background(), zerolog.Nop(), "test", time.Millisecond, func() error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors are not re-attempted")
	assert.False(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&Error{Provider: "p", Retryable: true, Err: errors.New("x")}))
	assert.False(t, IsRetryable(&Error{Provider: "p", Retryable: false, Err: errors.New("x")}))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))

	wrapped := errors.Join(errors.New("outer"), &Error{Provider: "p", Retryable: true, Err: errors.New("x")})
	assert.True(t, IsRetryable(wrapped))
}

func TestIsRetryableAggregates(t *testing.T) {
	permanent := &Error{Provider: "p", Retryable: false, Err: errors.New("bad recipient")}
	transient := &Error{Provider: "p", Retryable: true, Err: errors.New("gateway down")}

	// A permanent member ahead of a transient one must not mask it.
	assert.True(t, IsRetryable(errors.Join(permanent, transient)))
	assert.True(t, IsRetryable(errors.Join(transient, permanent)))
	assert.False(t, IsRetryable(errors.Join(permanent, permanent)))

	nested := errors.Join(errors.New("context"), errors.Join(permanent, transient))
	assert.True(t, IsRetryable(nested))
}

func TestClassifyStatus(t *testing.T) {
	assert.NoError(t, classifyStatus("p", 202, "202 Accepted"))
	assert.True(t, IsRetryable(classifyStatus("p", 500, "500 Internal Server Error")))
	assert.True(t, IsRetryable(classifyStatus("p", 429, "429 Too Many Requests")))

	err := classifyStatus("p", 400, "400 Bad Request")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}
