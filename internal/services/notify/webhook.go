package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"equityintel/internal/common"
	"equityintel/internal/httpclient"
)

// WebhookNotifier posts intelligence summaries to a chat webhook.
// Delivery is fire-and-forget; the caller records the outcome but never
// retries.
type WebhookNotifier struct {
	webhookURL string
	client     *http.Client
	logger     arbor.ILogger
}

// NewWebhookNotifier creates a webhook notification sink. An empty URL
// yields a notifier that drops everything, so callers need no nil
// checks.
func NewWebhookNotifier(config *common.NotifyConfig, logger arbor.ILogger) (*WebhookNotifier, error) {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid notify timeout %q: %w", config.Timeout, err)
	}
	return &WebhookNotifier{
		webhookURL: config.WebhookURL,
		client:     httpclient.NewDefaultHTTPClient(timeout),
		logger:     logger,
	}, nil
}

// Send delivers one message. Chat webhooks cap message length, so
// content is truncated rather than rejected.
func (n *WebhookNotifier) Send(ctx context.Context, content string) error {
	if n.webhookURL == "" {
		n.logger.Debug().Msg("Webhook URL not configured, notification dropped")
		return nil
	}
	if runes := []rune(content); len(runes) > 1900 {
		content = string(runes[:1900]) + "..."
	}

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}

	n.logger.Debug().Int("length", len(content)).Msg("Notification delivered")
	return nil
}
