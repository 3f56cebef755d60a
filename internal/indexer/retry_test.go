package indexer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffEventuallySucceeds(t *testing.T) {
	calls := 0
	err := newBackoff(2, time.Millisecond).do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after 3 calls, got %d %v", calls, err)
	}
}

func TestBackoffGivesUp(t *testing.T) {
	failure := errors.New("permanent")
	calls := 0
	err := newBackoff(1, time.Millisecond).do(context.Background(), func(ctx context.Context) error {
		calls++
		return failure
	})
	if !errors.Is(err, failure) || calls != 2 {
		t.Fatalf("expected 2 calls and the last error, got %d %v", calls, err)
	}
}

func TestBackoffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := newBackoff(5, time.Hour).do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("temporary")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancel after 1 call, got %d %v", calls, err)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := newBackoff(10, time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, maxRetryDelay, maxRetryDelay}
	for attempt, expected := range want {
		if got := b.delay(attempt); got != expected {
			t.Fatalf("attempt %d: delay %s, want %s", attempt, got, expected)
		}
	}
	if got := newBackoff(-1, 0); got.retries != 0 || got.base != defaultRetryDelay {
		t.Fatalf("defaults mismatch: %+v", got)
	}
}
