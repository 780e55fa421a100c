package filings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"equityintel/internal/common"
	"equityintel/internal/httpclient"
	"equityintel/internal/models"
)

// Client talks to the regulatory disclosure API. It implements both
// interfaces.FilingLister and interfaces.FilingDownloader.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	policy  httpclient.RetryPolicy
	logger  arbor.ILogger
}

// listResponse is the shape of the daily document index.
type listResponse struct {
	Results []listResult `json:"results"`
}

type listResult struct {
	DocID       string `json:"docID"`
	DocDesc     string `json:"docDescription"`
	SubmitTime  string `json:"submitDateTime"`
	SecCode     string `json:"secCode"`
	WithdrawFlg string `json:"withdrawalStatus"`
}

// NewClient creates a disclosure API client from config.
func NewClient(config *common.FilingsConfig, logger arbor.ILogger) (*Client, error) {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid filings timeout %q: %w", config.Timeout, err)
	}
	interval, err := time.ParseDuration(config.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid filings rate limit %q: %w", config.RateLimit, err)
	}

	policy := httpclient.NewDefaultRetryPolicy()
	if config.Retries > 0 {
		policy.MaxRetries = config.Retries
	}
	if config.Backoff != "" {
		if policy.Backoff, err = time.ParseDuration(config.Backoff); err != nil {
			return nil, fmt.Errorf("invalid filings backoff %q: %w", config.Backoff, err)
		}
	}
	if config.BackoffMax != "" {
		if policy.BackoffMax, err = time.ParseDuration(config.BackoffMax); err != nil {
			return nil, fmt.Errorf("invalid filings backoff cap %q: %w", config.BackoffMax, err)
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		client:  httpclient.NewDefaultHTTPClient(timeout),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		policy:  policy,
		logger:  logger,
	}, nil
}

// List returns the filings disclosed on the business date. Withdrawn
// documents and documents without a security code are dropped.
func (c *Client) List(ctx context.Context, businessDate string) ([]models.FilingRef, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	listURL := fmt.Sprintf("%s/api/v2/documents.json?%s", c.baseURL, url.Values{
		"date":             {businessDate},
		"type":             {"2"},
		"Subscription-Key": {c.apiKey},
	}.Encode())

	body, err := httpclient.GetBytes(ctx, c.client, listURL, c.policy, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list filings for %s: %w", businessDate, err)
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse filing list for %s: %w", businessDate, err)
	}

	refs := make([]models.FilingRef, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.DocID == "" || r.SecCode == "" {
			continue
		}
		if r.WithdrawFlg != "" && r.WithdrawFlg != "0" {
			continue
		}
		refs = append(refs, models.FilingRef{
			FilingID:     r.DocID,
			Description:  r.DocDesc,
			SubmitTime:   r.SubmitTime,
			SecurityCode: normalizeCode(r.SecCode),
		})
	}

	c.logger.Debug().
		Str("business_date", businessDate).
		Int("filings", len(refs)).
		Msg("Filing list fetched")
	return refs, nil
}

// Download fetches the raw payload for a filing id and file-type
// variant. Callers are responsible for sniffing the payload format;
// the API reports errors inside 200 responses.
func (c *Client) Download(ctx context.Context, filingID string, fileType int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := httpclient.GetBytes(ctx, c.client, c.downloadURL(filingID, fileType), c.policy, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download filing %s type %d: %w", filingID, fileType, err)
	}
	return body, nil
}

// DocumentURL resolves the canonical public URL for a filing variant.
// This is what gets recorded as evidence source URL, without the key.
func (c *Client) DocumentURL(filingID string, fileType int) string {
	return fmt.Sprintf("%s/api/v2/documents/%s?type=%d", c.baseURL, filingID, fileType)
}

func (c *Client) downloadURL(filingID string, fileType int) string {
	return fmt.Sprintf("%s/api/v2/documents/%s?%s", c.baseURL, filingID, url.Values{
		"type":             {fmt.Sprintf("%d", fileType)},
		"Subscription-Key": {c.apiKey},
	}.Encode())
}

// normalizeCode trims the exchange-suffix digit the disclosure API
// appends to 4-digit codes (e.g. "72030" -> "7203").
func normalizeCode(code string) string {
	if len(code) == 5 && code[4] == '0' {
		return code[:4]
	}
	return code
}
