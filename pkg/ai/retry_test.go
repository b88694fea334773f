package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastBackoff() Backoff {
	return Backoff{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: func(time.Duration) time.Duration { return 0 }}
}

func TestRetryRecovers(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), fastBackoff(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ProviderError{Status: 503, Message: "busy"}
		}
		return "ok", nil
	})
	if err != nil || out != "ok" || calls != 3 {
		t.Fatalf("out=%q err=%v calls=%d", out, err, calls)
	}
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastBackoff(), func(context.Context) (int, error) {
		calls++
		return 0, &ProviderError{Status: 429, Message: "slow down"}
	})
	var perr *ProviderError
	if !errors.As(err, &perr) || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastBackoff(), func(context.Context) (int, error) {
		calls++
		return 0, &ProviderError{Status: 401, Message: "bad key"}
	})
	if err == nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
	calls = 0
	_, _ = Retry(context.Background(), fastBackoff(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("plain")
	})
	if calls != 1 {
		t.Fatalf("errors without status must not retry, calls=%d", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := Backoff{Attempts: 5, BaseDelay: time.Hour}
	calls := 0
	_, err := Retry(ctx, b, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, &ProviderError{Status: 500}
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
