package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"equityintel/internal/httpclient"
)

func TestFetchPageTextRetriesTransientFailure(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html><body><p>決算説明資料を掲載しました。</p></body></html>"))
	}))
	defer server.Close()

	policy := httpclient.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond, BackoffMax: time.Millisecond}
	text := fetchPageText(context.Background(), server.Client(), server.URL, policy, 200)

	assert.Equal(t, 2, hits)
	assert.Contains(t, text, "決算説明資料")
}

func TestFetchPageTextPermanentFailureYieldsNothing(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	policy := httpclient.RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond, BackoffMax: time.Millisecond}
	text := fetchPageText(context.Background(), server.Client(), server.URL, policy, 200)

	assert.Equal(t, 1, hits)
	assert.Empty(t, text)
}
