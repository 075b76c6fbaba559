package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coopdesk/internal/config"
)

func newBrevoServer(t *testing.T, status int, captured *map[string]any, apiKey *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*apiKey = r.Header.Get("api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, captured)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"messageId":"m-1"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBrevoSenderSendsTemplateParams(t *testing.T) {
	var payload map[string]any
	var key string
	srv := newBrevoServer(t, http.StatusCreated, &payload, &key)

	sender := NewBrevoSender(config.NotificationConfig{
		APIURL:      srv.URL,
		APIKey:      "k-123",
		SenderEmail: "noreply@coopdesk.test",
		SenderName:  "Coopdesk",
		TemplateID:  7,
	})
	err := sender.Send(context.Background(), EmailMessage{
		ToEmail:        "ana@north.test",
		ToName:         "Ana",
		Subject:        "[Coopdesk] Pump",
		HTML:           "<p>ignored</p>",
		TemplateParams: map[string]any{"title": "Pump"},
	})
	require.NoError(t, err)

	assert.Equal(t, "k-123", key)
	assert.EqualValues(t, 7, payload["templateId"])
	assert.Equal(t, map[string]any{"title": "Pump"}, payload["params"])
	assert.NotContains(t, payload, "htmlContent")
}

func TestBrevoSenderFallsBackToBodies(t *testing.T) {
	var payload map[string]any
	var key string
	srv := newBrevoServer(t, http.StatusCreated, &payload, &key)

	sender := NewBrevoSender(config.NotificationConfig{APIURL: srv.URL, APIKey: "k", SenderEmail: "a@b.test"})
	require.NoError(t, sender.Send(context.Background(), EmailMessage{ToEmail: "x@y.test", Subject: "s", HTML: "<p>h</p>", Text: "t"}))

	assert.Equal(t, "<p>h</p>", payload["htmlContent"])
	assert.Equal(t, "t", payload["textContent"])
	assert.NotContains(t, payload, "templateId")
}

func TestBrevoSenderReportsProviderErrors(t *testing.T) {
	var payload map[string]any
	var key string
	srv := newBrevoServer(t, http.StatusBadRequest, &payload, &key)

	sender := NewBrevoSender(config.NotificationConfig{APIURL: srv.URL, APIKey: "k", SenderEmail: "a@b.test"})
	err := sender.Send(context.Background(), EmailMessage{ToEmail: "x@y.test"})
	require.ErrorContains(t, err, "400")
}

func TestBrevoSenderRequiresCredentials(t *testing.T) {
	sender := NewBrevoSender(config.NotificationConfig{APIURL: "http://unused"})
	require.ErrorIs(t, sender.Send(context.Background(), EmailMessage{ToEmail: "x@y.test"}), ErrNotConfigured)
}

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper()
	first, err := d.FirstDelivery(context.Background(), "t-1:tr-1:ana@north.test")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstDelivery(context.Background(), "t-1:tr-1:ana@north.test")
	require.NoError(t, err)
	assert.False(t, again)
}
