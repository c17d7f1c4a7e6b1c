package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/notify-worker/internal/notify"
	"github.com/example/notify-worker/internal/provider"
)

func newPushProvider(t *testing.T, endpoint string) *provider.PushProvider {
	t.Helper()
	p, err := provider.NewPushProvider(provider.PushConfig{
		Endpoint:  endpoint,
		ServerKey: "key-test",
		BaseDelay: time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestNewPushProviderRequiresServerKey(t *testing.T) {
	_, err := provider.NewPushProvider(provider.PushConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestPushSendSingleToken(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
	}))
	defer srv.Close()

	p := newPushProvider(t, srv.URL)
	err := p.Send(context.Background(), &notify.Request{
		Channel: notify.ChannelPush,
		Push: &notify.PushOptions{
			Token:    "tok-1",
			Title:    "T",
			Body:     "B",
			Data:     map[string]string{"k": "v"},
			ImageURL: "https://img.example.com/x.png",
			ClickURL: "https://example.com/open",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "key=key-test", gotAuth)
	assert.Equal(t, "tok-1", gotPayload["to"])
	notification := gotPayload["notification"].(map[string]any)
	assert.Equal(t, "T", notification["title"])
	assert.Equal(t, "https://img.example.com/x.png", notification["image"])
	assert.Equal(t, "https://example.com/open", notification["click_action"])
	assert.Equal(t, map[string]any{"k": "v"}, gotPayload["data"])
}

func TestPushSendMulticastSingleCall(t *testing.T) {
	var calls int
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
	}))
	defer srv.Close()

	p := newPushProvider(t, srv.URL)
	err := p.Send(context.Background(), &notify.Request{
		Channel: notify.ChannelPush,
		Push: &notify.PushOptions{
			Tokens: []string{"tok-1", "tok-2", "tok-3"},
			Title:  "T",
			Body:   "B",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "multicast is one batch call")
	assert.Len(t, gotPayload["registration_ids"].([]any), 3)
	assert.NotContains(t, gotPayload, "to")
}
