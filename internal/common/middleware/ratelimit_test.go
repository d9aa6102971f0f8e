package middleware

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(2, 1)

	if !tb.Allow() || !tb.Allow() {
		t.Fatalf("expected full bucket to allow capacity requests")
	}
	if tb.Allow() {
		t.Fatalf("expected empty bucket to deny")
	}
}

func TestTokenBucketWaitCancel(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	if !tb.Allow() {
		t.Fatalf("expected first token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); err == nil {
		t.Fatalf("expected Wait to fail when ctx expires before refill")
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)
	boom := func() error { return ErrBreakerOpen } // 任意非 nil 错误

	cb.Call(boom)
	cb.Call(boom)

	if cb.GetState() != StateOpen {
		t.Fatalf("expected breaker open after max failures, got %v", cb.GetState())
	}
	if err := cb.Call(func() error { return nil }); err != ErrBreakerOpen {
		t.Fatalf("expected fast-fail while open, got %v", err)
	}
}
