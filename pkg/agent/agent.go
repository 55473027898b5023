package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/sapa/pkg/conversation"
	"github.com/harunnryd/sapa/pkg/errorsx"
	"github.com/harunnryd/sapa/pkg/generation"
	"github.com/harunnryd/sapa/pkg/language"
	"github.com/harunnryd/sapa/pkg/logging"
	"github.com/harunnryd/sapa/pkg/metrics"
	"github.com/harunnryd/sapa/pkg/prompt"
	"github.com/harunnryd/sapa/pkg/redact"
)

// DefaultEmptyPrompt asks the sender what they want to know.
const DefaultEmptyPrompt = "Aap kya janna chahte hain? Main school ka AI assistant hun."

// Classifier labels an utterance with a reply language.
type Classifier interface {
	Classify(text string) language.Variant
}

// Generator produces reply text for a prompt. It must always return usable
// text, reporting failures through err.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	Store      *conversation.Store
	Classifier Classifier
	Composer   *prompt.Composer
	Generator  Generator
	Policy     string
	// EmptyPrompt is returned for blank messages.
	EmptyPrompt string
	// DiscardFallbackTurns keeps failed generations out of history.
	DiscardFallbackTurns bool
	Observer             metrics.Observer
	Logger               *slog.Logger
}

// Agent runs one conversational turn per inbound message.
type Agent struct {
	store          *conversation.Store
	classifier     Classifier
	composer       *prompt.Composer
	generator      Generator
	policy         string
	emptyPrompt    string
	discardFailure bool
	obs            metrics.Observer
	log            *slog.Logger
}

func New(opts Options) *Agent {
	if opts.Store == nil {
		opts.Store = conversation.NewStore(conversation.DefaultMaxHistory)
	}
	if opts.Classifier == nil {
		opts.Classifier = language.NewClassifier()
	}
	if opts.Composer == nil {
		opts.Composer = prompt.NewComposer(prompt.DefaultTurns)
	}
	if opts.EmptyPrompt == "" {
		opts.EmptyPrompt = DefaultEmptyPrompt
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	return &Agent{
		store:          opts.Store,
		classifier:     opts.Classifier,
		composer:       opts.Composer,
		generator:      opts.Generator,
		policy:         opts.Policy,
		emptyPrompt:    opts.EmptyPrompt,
		discardFailure: opts.DiscardFallbackTurns,
		obs:            opts.Observer,
		log:            logging.NewComponentLogger(opts.Logger, "agent"),
	}
}

// Store exposes the conversation store backing the agent.
func (a *Agent) Store() *conversation.Store { return a.store }

// HandleTurn answers userText from identity. Blank text yields the empty
// prompt without touching history. Turns for the same identity are
// serialized; other identities proceed concurrently.
func (a *Agent) HandleTurn(ctx context.Context, identity, userText string) string {
	if strings.TrimSpace(userText) == "" {
		a.log.Info("turn_empty", "identity", redact.Identity(identity))
		return a.emptyPrompt
	}
	start := time.Now()
	turnID := uuid.NewString()

	unlock := a.store.Lock(identity)
	defer unlock()

	variant := a.classifier.Classify(userText)
	history := a.store.GetRecent(identity, a.composer.Turns())
	p := a.composer.Compose(a.policy, history, userText, variant)

	reply, err := a.generator.Generate(ctx, p)
	outcome := "ok"
	if err != nil {
		outcome = "fallback"
		kind := generation.KindOf(err)
		reason := ReasonFor(err)
		a.log.Warn("turn_generation_fallback",
			"turn_id", turnID,
			"identity", redact.Identity(identity),
			"kind", string(kind),
			"reason_code", string(reason),
			"error", err.Error())
		a.obs.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventGenerationFailed,
			Time:  time.Now(),
			Value: 1,
			Tags:  map[string]string{"kind": string(kind), "reason_code": string(reason)},
		})
	}
	if err == nil || !a.discardFailure {
		a.store.Append(identity, conversation.Turn{User: userText, Agent: reply})
	}

	latency := time.Since(start)
	a.log.Info("turn_handled",
		"turn_id", turnID,
		"identity", redact.Identity(identity),
		"variant", variant.String(),
		"history_turns", len(history),
		"outcome", outcome,
		"latency_ms", latency.Milliseconds())
	a.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventTurnHandled,
		Time:  time.Now(),
		Value: float64(latency.Milliseconds()),
		Tags:  map[string]string{"variant": variant.String(), "outcome": outcome},
	})
	return reply
}

// ReasonFor returns the log reason code for an error produced by a turn.
func ReasonFor(err error) errorsx.ReasonCode {
	if err == nil {
		return errorsx.ReasonUnknown
	}
	return generation.KindOf(err).Reason()
}
