package retry

// Caller-side retry with exponential backoff and full jitter
// The API client never retries by itself, callers opt in by wrapping a call with Do
// Classification is pluggable, the PartyServer client supplies IsRetryable and RetryAfter
// A server-provided Retry-After delay wins over the jittered delay

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Retryable decides whether err is worth another attempt, nil retries nothing
	Retryable func(err error) bool
	// RetryAfter extracts a server-requested delay from err, zero means none
	RetryAfter func(err error) time.Duration
	// OnRetry is called before each sleep
	OnRetry func(attempt int, delay time.Duration, err error)
}

func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	layouts := []string{time.RFC1123, time.RFC1123Z, time.RFC850, time.ANSIC}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
			return 0
		}
	}
	return 0
}

func clamp(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

// FullJitterSleep returns a random delay in [0, min(base*2^attempt, max)]
func FullJitterSleep(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if baseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	capped := clamp(baseDelay<<attempt, maxDelay)
	if capped <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(capped) + 1))
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out
// The last error is returned unchanged so callers can still inspect it
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 300 * time.Millisecond
	}

	totalAttempts := 1 + opts.MaxRetries
	var lastErr error

	for attempt := 0; attempt < totalAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if opts.Retryable == nil || !opts.Retryable(err) || attempt == totalAttempts-1 {
			return lastErr
		}

		sleep := FullJitterSleep(attempt, opts.BaseDelay, opts.MaxDelay)
		if opts.RetryAfter != nil {
			if ra := opts.RetryAfter(err); ra > 0 {
				sleep = clamp(ra, opts.MaxDelay)
			}
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, sleep, err)
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return lastErr
		case <-t.C:
		}
	}

	return lastErr
}
