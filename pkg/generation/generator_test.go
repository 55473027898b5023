package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/sapa/pkg/errorsx"
	"github.com/harunnryd/sapa/pkg/llm"
	mockllm "github.com/harunnryd/sapa/pkg/providers/mock"
	"github.com/harunnryd/sapa/pkg/resilience"
)

func TestGenerateSuccessVerbatim(t *testing.T) {
	adapter := mockllm.NewLLMAdapter(mockllm.LLMConfig{ResponseText: "  School 8 baje khulta hai.\n"})
	g := New(adapter, Config{})
	text, err := g.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "  School 8 baje khulta hai.\n" {
		t.Fatalf("expected verbatim text, got %q", text)
	}
	if adapter.LastPrompt() != "prompt" {
		t.Fatalf("expected prompt forwarded, got %q", adapter.LastPrompt())
	}
}

func TestGenerateFailureKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "quota", err: resilience.RateLimitError{Provider: "gemini"}, want: KindQuotaExceeded},
		{name: "auth", err: llm.StatusError{Provider: "gemini", Code: 401}, want: KindAuthFailure},
		{name: "malformed", err: llm.ErrMalformedResponse, want: KindMalformedResponse},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "server", err: llm.StatusError{Provider: "gemini", Code: 500}, want: KindUnknown},
		{name: "other", err: errors.New("connection reset"), want: KindUnknown},
	}
	for _, tc := range cases {
		g := New(mockllm.NewLLMAdapter(mockllm.LLMConfig{Err: tc.err}), Config{Fallback: "sorry"})
		text, err := g.Generate(context.Background(), "prompt")
		if text != "sorry" {
			t.Fatalf("%s: expected fallback text, got %q", tc.name, text)
		}
		if KindOf(err) != tc.want {
			t.Fatalf("%s: expected kind %s, got %s (%v)", tc.name, tc.want, KindOf(err), err)
		}
		if !errors.Is(err, tc.err) {
			t.Fatalf("%s: expected cause preserved", tc.name)
		}
	}
}

func TestGenerateTimeout(t *testing.T) {
	g := New(mockllm.NewLLMAdapter(mockllm.LLMConfig{Block: true}), Config{Timeout: 20 * time.Millisecond})
	start := time.Now()
	text, err := g.Generate(context.Background(), "prompt")
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced")
	}
	if text != DefaultFallback || KindOf(err) != KindTimeout {
		t.Fatalf("expected timeout fallback, got %q %v", text, err)
	}
	if KindOf(err).Reason() != errorsx.ReasonLLMTimeout {
		t.Fatalf("unexpected reason %s", KindOf(err).Reason())
	}
}

func TestGenerateEmptyTextIsMalformed(t *testing.T) {
	g := New(mockllm.NewLLMAdapter(mockllm.LLMConfig{Replies: []string{""}}), Config{})
	text, err := g.Generate(context.Background(), "prompt")
	if text != DefaultFallback || KindOf(err) != KindMalformedResponse {
		t.Fatalf("expected malformed fallback, got %q %v", text, err)
	}
}

type panicAdapter struct{}

func (panicAdapter) Name() string { return "panicky" }

func (panicAdapter) Generate(context.Context, llm.Context) (llm.Response, error) {
	panic("nil map")
}

func TestGenerateRecoversPanics(t *testing.T) {
	g := New(panicAdapter{}, Config{})
	text, err := g.Generate(context.Background(), "prompt")
	if text != g.Fallback() || KindOf(err) != KindUnknown {
		t.Fatalf("expected recovered fallback, got %q %v", text, err)
	}
}

func TestNewDefaultsStayInsideWebhookDeadline(t *testing.T) {
	g := New(nil, Config{})
	if g.timeout != DefaultTimeout || g.timeout >= 15*time.Second {
		t.Fatalf("unexpected default timeout %s", g.timeout)
	}
	if g.fallback != DefaultFallback {
		t.Fatalf("unexpected default fallback %q", g.fallback)
	}
}
