package tiktok

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultRetryMax     = 2
	defaultRetryWaitMin = 250 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
)

// RetryOptions tunes the retry policy shared by the API clients. Zero values
// use the defaults; a negative RetryMax disables retries.
type RetryOptions struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// newRetryClient retries connection errors, 429 and 5xx with exponential
// backoff. The last response is handed back so callers can report its status.
func newRetryClient(base *http.Client, opts RetryOptions, logger *slog.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	if base != nil {
		rc.HTTPClient = base
	}
	rc.Logger = logger
	rc.RetryMax = defaultRetryMax
	switch {
	case opts.RetryMax < 0:
		rc.RetryMax = 0
	case opts.RetryMax > 0:
		rc.RetryMax = opts.RetryMax
	}
	rc.RetryWaitMin = defaultRetryWaitMin
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	rc.RetryWaitMax = defaultRetryWaitMax
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.RetryWaitMax = max(rc.RetryWaitMax, rc.RetryWaitMin)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}
