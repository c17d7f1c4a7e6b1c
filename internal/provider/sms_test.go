package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/notify-worker/internal/notify"
	"github.com/example/notify-worker/internal/provider"
)

func TestNewSMSProviderRequiresCredentials(t *testing.T) {
	_, err := provider.NewSMSProvider(provider.SMSConfig{DefaultFrom: "+15550100"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestSMSSend(t *testing.T) {
	var gotPath string
	var gotForm url.Values
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p, err := provider.NewSMSProvider(provider.SMSConfig{
		Endpoint:    srv.URL,
		AccountSID:  "AC123",
		AuthToken:   "tok",
		DefaultFrom: "+15550100",
		BaseDelay:   time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)

	err = p.Send(context.Background(), &notify.Request{
		Channel: notify.ChannelSMS,
		SMS:     &notify.SMSOptions{To: "+15550199", Body: "your code is 1234"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", gotPath)
	assert.Equal(t, "AC123", gotUser)
	assert.Equal(t, "tok", gotPass)
	assert.Equal(t, "+15550199", gotForm.Get("To"))
	assert.Equal(t, "+15550100", gotForm.Get("From"), "default sender number applied")
	assert.Equal(t, "your code is 1234", gotForm.Get("Body"))
}

func TestSMSSendSenderOverride(t *testing.T) {
	var gotFrom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotFrom = r.PostForm.Get("From")
	}))
	defer srv.Close()

	p, err := provider.NewSMSProvider(provider.SMSConfig{
		Endpoint:    srv.URL,
		AccountSID:  "AC123",
		AuthToken:   "tok",
		DefaultFrom: "+15550100",
		BaseDelay:   time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)

	err = p.Send(context.Background(), &notify.Request{
		Channel: notify.ChannelSMS,
		SMS:     &notify.SMSOptions{To: "+15550199", Body: "hi", From: "+15550111"},
	})
	require.NoError(t, err)
	assert.Equal(t, "+15550111", gotFrom)
}
