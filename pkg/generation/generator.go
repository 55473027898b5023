package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/harunnryd/sapa/pkg/errorsx"
	"github.com/harunnryd/sapa/pkg/llm"
	"github.com/harunnryd/sapa/pkg/logging"
	"github.com/harunnryd/sapa/pkg/resilience"
)

const (
	DefaultTimeout  = 12 * time.Second
	DefaultFallback = "Maaf kijiye, abhi kuch technical issue hai. Thodi der baad try kariye."
)

// Kind classifies a failed completion call.
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindAuthFailure       Kind = "auth_failure"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindMalformedResponse Kind = "malformed_response"
	KindUnknown           Kind = "unknown"
)

// Reason maps the kind onto the shared reason codes used in logs.
func (k Kind) Reason() errorsx.ReasonCode {
	switch k {
	case KindTimeout:
		return errorsx.ReasonLLMTimeout
	case KindAuthFailure:
		return errorsx.ReasonLLMAuth
	case KindQuotaExceeded:
		return errorsx.ReasonLLMQuota
	case KindMalformedResponse:
		return errorsx.ReasonLLMMalformed
	default:
		return errorsx.ReasonLLMGenerate
	}
}

// Error is returned alongside the fallback text when generation fails.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation %s (%s): %v", e.Kind, e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

type Config struct {
	Timeout  time.Duration
	Fallback string
}

// Generator turns a composed prompt into reply text using one completion call.
type Generator struct {
	adapter  llm.Adapter
	timeout  time.Duration
	fallback string
	log      *slog.Logger
}

func New(adapter llm.Adapter, cfg Config) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback
	}
	return &Generator{
		adapter:  adapter,
		timeout:  cfg.Timeout,
		fallback: cfg.Fallback,
		log:      logging.NewComponentLogger(slog.Default(), "generator"),
	}
}

// SetLogger replaces the component logger.
func (g *Generator) SetLogger(log *slog.Logger) {
	if log != nil {
		g.log = logging.NewComponentLogger(log, "generator")
	}
}

// Fallback returns the text used when generation fails.
func (g *Generator) Fallback() string { return g.fallback }

// Generate submits prompt to the completion service. On success it returns
// the generated text verbatim. On any failure, including a panicking adapter,
// it returns the fallback text together with an *Error.
func (g *Generator) Generate(ctx context.Context, prompt string) (text string, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			text, err = g.fail(&Error{Kind: KindUnknown, Provider: g.adapter.Name(), Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	resp, callErr := g.adapter.Generate(ctx, llm.Prompt(prompt))
	if callErr == nil && resp.Text == "" {
		callErr = llm.ErrMalformedResponse
	}
	if callErr != nil {
		return g.fail(&Error{Kind: classify(ctx, callErr), Provider: g.adapter.Name(), Err: callErr})
	}
	g.log.Debug("generation_completed",
		"provider", g.adapter.Name(),
		"finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.TotalTokens)
	return resp.Text, nil
}

func (g *Generator) fail(gerr *Error) (string, error) {
	g.log.Error("generation_failed",
		"provider", gerr.Provider,
		"kind", string(gerr.Kind),
		"reason_code", string(gerr.Kind.Reason()),
		"error", gerr.Err.Error())
	return g.fallback, gerr
}

func classify(ctx context.Context, err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}
	if resilience.IsRateLimit(err) {
		return KindQuotaExceeded
	}
	var se llm.StatusError
	if errors.As(err, &se) && se.IsAuth() {
		return KindAuthFailure
	}
	if errors.Is(err, llm.ErrMalformedResponse) {
		return KindMalformedResponse
	}
	return KindUnknown
}
