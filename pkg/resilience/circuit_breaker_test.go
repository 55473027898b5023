package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.OnError(RateLimitError{Provider: "gemini"})
	if !cb.Allow() {
		t.Fatalf("expected breaker closed after one failure")
	}
	cb.OnError(fmt.Errorf("wrapped: %w", RateLimitError{Provider: "gemini"}))
	if cb.Allow() {
		t.Fatalf("expected breaker open after threshold")
	}
	now = now.Add(2 * time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected breaker closed after cooldown")
	}
}

func TestCircuitBreakerIgnoresOtherErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.OnError(errors.New("network down"))
	if !cb.Allow() {
		t.Fatalf("non rate-limit errors must not open the breaker")
	}
	cb.OnError(RateLimitError{})
	cb.OnSuccess()
	if !cb.Allow() {
		t.Fatalf("success must reset the breaker")
	}
}
