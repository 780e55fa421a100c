package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equityintel/internal/common"
)

func newTestNotifier(t *testing.T, url string) *WebhookNotifier {
	t.Helper()
	notifier, err := NewWebhookNotifier(&common.NotifyConfig{
		WebhookURL: url,
		Timeout:    "5s",
	}, common.GetLogger())
	require.NoError(t, err)
	return notifier
}

func TestSendTruncatesLongContentByRunes(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		received = payload["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := newTestNotifier(t, server.URL)
	long := strings.Repeat("業績予想の修正に関するお知らせ。", 300)
	require.NoError(t, notifier.Send(context.Background(), long))

	assert.True(t, utf8.ValidString(received))
	assert.Equal(t, 1903, utf8.RuneCountInString(received))
	assert.True(t, strings.HasSuffix(received, "..."))
}

func TestSendRejectedStatusReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	notifier := newTestNotifier(t, server.URL)
	err := notifier.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSendWithoutURLDropsSilently(t *testing.T) {
	notifier := newTestNotifier(t, "")
	assert.NoError(t, notifier.Send(context.Background(), "hello"))
}
