package transports

import (
	"context"
	"io"
)

// Transport is a network boundary that feeds inbound messages to a TurnHandler.
// Implementations are responsible for their own network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// TurnHandler answers one inbound message. It always returns reply text.
type TurnHandler interface {
	HandleTurn(ctx context.Context, identity, text string) string
}

// TurnHandlerFunc adapts a function to TurnHandler.
type TurnHandlerFunc func(ctx context.Context, identity, text string) string

func (f TurnHandlerFunc) HandleTurn(ctx context.Context, identity, text string) string {
	return f(ctx, identity, text)
}

// MessageSender delivers an outbound message and returns the platform message id.
type MessageSender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio io.Reader, mimeType string) (string, error)
}

// Drainer stops accepting new work while letting in-flight requests finish.
type Drainer interface {
	Drain()
}

// ReadyReporter allows transports to expose readiness metadata (e.g., webhook URLs).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
