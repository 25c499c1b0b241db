package partyserver

import (
	"errors"
	"net/http"
	"time"

	"partyserver-client/internal/infra/retry"
)

// IsRetryable classifies err for caller-side retry policies
// Transport failures and timeouts are retryable, and so are application errors on 429 or 5xx
// ErrCircuitOpen is not, retrying into an open breaker only burns attempts
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrInvalidArgument) {
		return false
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout) {
		return true
	}
	if apiErr, ok := IsAPIError(err); ok {
		switch apiErr.StatusCode() {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// RetryAfter returns the Retry-After delay of a throttled application error
func RetryAfter(err error) time.Duration {
	apiErr, ok := IsAPIError(err)
	if !ok || apiErr.Response == nil || apiErr.StatusCode() != http.StatusTooManyRequests {
		return 0
	}
	return retry.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
}

// RetryOptions builds retry.Options classified for this client
func RetryOptions(maxRetries int, baseDelay, maxDelay time.Duration) retry.Options {
	return retry.Options{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
		Retryable:  IsRetryable,
		RetryAfter: RetryAfter,
	}
}
