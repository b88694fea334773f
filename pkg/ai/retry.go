package ai

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"aiassistant/internal/util"
)

// Backoff bounds Retry. The delay before attempt n+1 is BaseDelay*2^(n-1)
// plus up to the same amount of jitter, capped at MaxDelay.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter returns a random duration in [0, d). Nil uses math/rand.
	Jitter func(d time.Duration) time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

type statusCoder interface {
	StatusCode() int
}

// Retryable reports whether err is a rate limit or server-class failure.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc statusCoder
	if !errors.As(err, &sc) {
		return false
	}
	code := sc.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned.
func Retry[T any](ctx context.Context, b Backoff, fn func(context.Context) (T, error)) (T, error) {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	jitter := b.Jitter
	if jitter == nil {
		jitter = func(d time.Duration) time.Duration {
			if d <= 0 {
				return 0
			}
			return time.Duration(rand.Int64N(int64(d)))
		}
	}
	logger := util.LoggerFromContext(ctx)

	var (
		zero T
		err  error
	)
	delay := b.BaseDelay
	for attempt := 1; ; attempt++ {
		var out T
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if attempt >= b.Attempts || !Retryable(err) {
			return zero, err
		}
		wait := delay + jitter(delay)
		if b.MaxDelay > 0 && wait > b.MaxDelay {
			wait = b.MaxDelay
		}
		logger.Warn("completion retry", "attempt", attempt, "wait", wait.String(), "err", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
