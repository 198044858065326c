package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Options{Attempts: 3}, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls != 1 {
		t.Fatalf("got %d after %d calls", got, calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Options{Attempts: 5, Delay: time.Millisecond}, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("got %q after %d calls", got, calls)
	}
}

func TestDoPropagatesLastErrorVerbatim(t *testing.T) {
	sentinel := errors.New("final failure")
	calls := 0
	_, err := Do(context.Background(), Options{Attempts: 2}, func(context.Context) (int, error) {
		calls++
		if calls == 3 {
			return 0, sentinel
		}
		return 0, errors.New("earlier failure")
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Do(ctx, Options{Attempts: 100, Delay: 10 * time.Millisecond}, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("always fails")
		})
	}()
	time.Sleep(25 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retry loop did not stop after cancellation")
	}
	if calls > 10 {
		t.Fatalf("too many attempts after cancel: %d", calls)
	}
}
