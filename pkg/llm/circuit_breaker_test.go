package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/sapa/pkg/metrics"
	"github.com/harunnryd/sapa/pkg/resilience"
)

type stubAdapter struct {
	calls int
	err   error
}

func (s *stubAdapter) Name() string { return "stub" }

func (s *stubAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	s.calls++
	if s.err != nil {
		return Response{}, s.err
	}
	return Response{Text: "ok"}, nil
}

func TestCircuitBreakerAdapterDeniesWhenOpen(t *testing.T) {
	inner := &stubAdapter{err: resilience.RateLimitError{Provider: "stub", Message: "quota"}}
	obs := metrics.NewMemoryObserver()
	a := NewCircuitBreakerAdapter(inner, resilience.NewCircuitBreaker(1, time.Minute))
	a.SetObserver(obs)

	if _, err := a.Generate(context.Background(), Prompt("hi")); !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	_, err := a.Generate(context.Background(), Prompt("hi"))
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected denial as rate limit error, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected open breaker to skip upstream, calls=%d", inner.calls)
	}
	var sawOpen, sawDenied bool
	for _, ev := range obs.Snapshot() {
		switch ev.Name {
		case metrics.EventBreakerOpen:
			sawOpen = true
		case metrics.EventBreakerDenied:
			sawDenied = true
		}
	}
	if !sawOpen || !sawDenied {
		t.Fatalf("expected breaker open and denied events")
	}
}

func TestCircuitBreakerAdapterPassesThrough(t *testing.T) {
	inner := &stubAdapter{}
	a := NewCircuitBreakerAdapter(inner, nil)
	resp, err := a.Generate(context.Background(), Prompt("hi"))
	if err != nil || resp.Text != "ok" {
		t.Fatalf("unexpected result %q %v", resp.Text, err)
	}
	inner.err = errors.New("boom")
	if _, err := a.Generate(context.Background(), Prompt("hi")); err == nil {
		t.Fatalf("expected upstream error")
	}
	if a.Name() != "stub" {
		t.Fatalf("expected inner name")
	}
}
