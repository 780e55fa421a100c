package llm

import (
	"strings"
	"time"
)

// RetryPolicy defines backoff behavior for transient LLM API failures.
type RetryPolicy struct {
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewDefaultRetryPolicy returns a policy tuned for rate-limit windows.
func NewDefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff:    5 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// BackoffFor computes the wait before retry number attempt+1.
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
		if backoff >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// IsTransientError reports whether an API error is worth retrying:
// rate limits, server-side failures and timeouts. Other client errors
// (bad request, auth) never succeed on retry.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, token := range []string{
		"429",
		"rate limit",
		"overloaded",
		"500",
		"502",
		"503",
		"529",
		"timeout",
		"deadline exceeded",
		"connection reset",
	} {
		if strings.Contains(errStr, token) {
			return true
		}
	}
	return false
}
