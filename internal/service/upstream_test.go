package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeout_ReturnsResult(t *testing.T) {
	got, err := withTimeout(context.Background(), time.Second, func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("expected ok,nil; got %q,%v", got, err)
	}
}

func TestWithTimeout_StopsWaitingAtDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := withTimeout(context.Background(), 30*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("expected early return, took %v", time.Since(start))
	}
}
