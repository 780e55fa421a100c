package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// TransientError marks a failure worth retrying (timeouts, 429, 5xx).
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient http error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient http error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that retrying cannot fix (4xx other
// than 429, malformed responses).
type PermanentError struct {
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("permanent http error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("permanent http error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryPolicy controls exponential backoff for transient failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	BackoffMax time.Duration
}

// NewDefaultRetryPolicy returns a policy suitable for filing downloads.
func NewDefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Backoff:    1 * time.Second,
		BackoffMax: 30 * time.Second,
	}
}

// backoffFor doubles the initial backoff per attempt, capped at BackoffMax.
func (p RetryPolicy) backoffFor(attempt int) time.Duration {
	d := p.Backoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	return d
}

// GetBytes performs a GET with retry on transient failures and returns
// the response body. Non-429 client errors fail immediately with a
// PermanentError.
func GetBytes(ctx context.Context, client *http.Client, url string, policy RetryPolicy, header http.Header) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := policy.backoffFor(attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		body, err := getOnce(ctx, client, url, header)
		if err == nil {
			return body, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", policy.MaxRetries+1, lastErr)
}

func getOnce(ctx context.Context, client *http.Client, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Network errors and client timeouts are retryable.
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransientError{Err: fmt.Errorf("reading response body: %w", err)}
		}
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("server returned %s", resp.Status)}
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, &PermanentError{StatusCode: resp.StatusCode, Err: fmt.Errorf("server returned %s", resp.Status)}
	}
}
