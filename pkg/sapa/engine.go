package sapa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harunnryd/sapa/pkg/agent"
	"github.com/harunnryd/sapa/pkg/conversation"
	"github.com/harunnryd/sapa/pkg/generation"
	"github.com/harunnryd/sapa/pkg/language"
	"github.com/harunnryd/sapa/pkg/llm"
	"github.com/harunnryd/sapa/pkg/logging"
	"github.com/harunnryd/sapa/pkg/metrics"
	"github.com/harunnryd/sapa/pkg/prompt"
	"github.com/harunnryd/sapa/pkg/redact"
	"github.com/harunnryd/sapa/pkg/resilience"
	"github.com/harunnryd/sapa/pkg/runner"
	"github.com/harunnryd/sapa/pkg/transports"
	"github.com/harunnryd/sapa/pkg/transports/console"
	"github.com/harunnryd/sapa/pkg/transports/twilio"
)

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Logger    *slog.Logger
	// Observers receive every metrics event in addition to the defaults.
	Observers []metrics.Observer
	// Sender overrides the Twilio REST sender.
	Sender transports.MessageSender
}

// Engine wires configuration, providers and transports into a running
// WhatsApp assistant.
type Engine struct {
	cfg       Config
	providers *ProviderRegistry
	agent     *agent.Agent
	twilio    *twilio.Transport
	console   *console.Handler
	asyncObs  *metrics.AsyncObserver
	jsonl     *metrics.JSONLObserver
	log       *slog.Logger
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	redact.SetEnabled(cfg.Privacy.RedactPII)
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	log := logging.NewComponentLogger(base, "engine")

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
	}

	obsList := []metrics.Observer{metrics.NewLoggerObserver(base)}
	var jsonl *metrics.JSONLObserver
	if path := strings.TrimSpace(cfg.Observability.MetricsPath); path != "" {
		f, err := openMetricsFile(path)
		if err != nil {
			return nil, err
		}
		jsonl = metrics.NewJSONLObserver(f)
		obsList = append(obsList, jsonl)
	}
	obsList = append(obsList, opts.Observers...)
	asyncObs := metrics.NewAsyncObserver(metrics.NewMultiObserver(obsList...), cfg.Observability.AsyncBuffer)

	adapter, err := providers.BuildLLM(cfg.Vendors.LLM.Provider, cfg)
	if err != nil {
		asyncObs.Close()
		return nil, err
	}
	if cb := cfg.Generation.CircuitBreaker; cb.Enabled {
		breaker := llm.NewCircuitBreakerAdapter(adapter,
			resilience.NewCircuitBreaker(cb.Threshold, time.Duration(cb.CooldownMS)*time.Millisecond))
		breaker.SetObserver(asyncObs)
		adapter = breaker
	}
	generator := generation.New(adapter, generation.Config{
		Timeout:  time.Duration(cfg.Generation.TimeoutMS) * time.Millisecond,
		Fallback: cfg.Generation.Fallback,
	})
	generator.SetLogger(base)

	ag := agent.New(agent.Options{
		Store:                conversation.NewStore(cfg.Conversation.MaxHistory),
		Classifier:           language.NewClassifier(),
		Composer:             prompt.NewComposer(cfg.Conversation.PromptTurns),
		Generator:            generator,
		Policy:               cfg.Policy.Text,
		EmptyPrompt:          cfg.Conversation.EmptyPrompt,
		DiscardFallbackTurns: !cfg.Conversation.RecordFallbackTurns,
		Observer:             asyncObs,
		Logger:               base,
	})

	tw := twilio.New(cfg.Twilio, ag)
	tw.SetObserver(asyncObs)
	tw.SetLogger(base)
	if opts.Sender != nil {
		tw.SetSender(opts.Sender)
	}
	transcriber, err := providers.BuildTranscriber(cfg.Vendors.STT.Provider, cfg)
	if err != nil {
		asyncObs.Close()
		return nil, err
	}
	if transcriber != nil {
		tw.SetTranscriber(transcriber)
	}

	var con *console.Handler
	if cfg.Console.Enabled {
		con = console.New(cfg.Console, ag)
		con.SetObserver(asyncObs)
		con.SetLogger(base)
		tw.Mount(con.Path(), con)
	}

	log.Info("sapa_init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"max_history", cfg.Conversation.MaxHistory,
		"prompt_turns", cfg.Conversation.PromptTurns,
		"console", cfg.Console.Enabled,
		"redact_pii", cfg.Privacy.RedactPII)

	return &Engine{
		cfg:       cfg,
		providers: providers,
		agent:     ag,
		twilio:    tw,
		console:   con,
		asyncObs:  asyncObs,
		jsonl:     jsonl,
		log:       log,
	}, nil
}

func openMetricsFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("metrics dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open metrics file: %w", err)
	}
	return f, nil
}

// Start begins serving HTTP. It returns once the listener is bound.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.twilio.Start(ctx); err != nil {
		return err
	}
	fields := []any{}
	for k, v := range e.twilio.ReadyFields() {
		fields = append(fields, k, v)
	}
	e.log.Info("sapa_ready", fields...)
	return nil
}

// Drain stops accepting messages and waits for in-flight turns.
func (e *Engine) Drain(ctx context.Context) error {
	e.log.Info("sapa_draining")
	if e.console != nil {
		e.console.Drain()
	}
	err := e.twilio.Shutdown(ctx)
	e.closeObservers()
	return err
}

// Stop closes the server immediately.
func (e *Engine) Stop() error {
	err := e.twilio.Stop()
	e.closeObservers()
	return err
}

func (e *Engine) closeObservers() {
	e.asyncObs.Close()
	if e.jsonl != nil {
		if err := e.jsonl.Close(); err != nil {
			e.log.Warn("metrics_close_failed", "error", err.Error())
		}
	}
}

// Run starts the engine under a lifecycle runner and blocks until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	timeout := time.Duration(e.cfg.DrainTimeoutMS) * time.Millisecond
	// The server outlives ctx so that Drain can finish in-flight webhooks.
	lr := runner.NewLifecycleRunner(e, runner.Hooks{
		OnStart: func() error { return e.Start(context.Background()) },
		OnStop:  func() { e.log.Info("sapa_stopped") },
	}, timeout)
	err := lr.Run(ctx)
	if errors.Is(err, runner.ErrDrainTimeout) {
		e.log.Warn("sapa_drain_timeout", "timeout_ms", e.cfg.DrainTimeoutMS)
	}
	return err
}

// Stats is a point-in-time view of engine load.
type Stats struct {
	Identities    int
	DroppedEvents int64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Identities:    e.agent.Store().Identities(),
		DroppedEvents: e.asyncObs.Dropped(),
	}
}

func (e *Engine) Agent() *agent.Agent { return e.agent }

// Handler exposes every HTTP route without binding a listener.
func (e *Engine) Handler() http.Handler { return e.twilio.Handler() }

func (e *Engine) Transport() *twilio.Transport { return e.twilio }

func (e *Engine) ProviderRegistry() *ProviderRegistry { return e.providers }

func (e *Engine) Config() Config { return e.cfg }

var _ runner.Drainer = (*Engine)(nil)
