package evidence

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"equityintel/internal/httpclient"
)

// fetchPageText downloads a web page and returns its visible text.
// Returns "" on any failure; IR pages are optional evidence.
func fetchPageText(ctx context.Context, client *http.Client, pageURL string, policy httpclient.RetryPolicy, limit int) string {
	body, err := httpclient.GetBytes(ctx, client, pageURL, policy, nil)
	if err != nil {
		return ""
	}

	text := decodeBytes(body)
	if strings.Contains(text, "<") && strings.Contains(text, ">") {
		text = stripMarkup(text)
	}
	return safeText(text, limit)
}

// domainOf extracts the lowercase hostname, "" when unparseable.
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
