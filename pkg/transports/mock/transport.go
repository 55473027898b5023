package mock

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/sapa/pkg/transports"
)

// Message is an inbound message paired with the reply it produced.
type Message struct {
	From  string
	Body  string
	Reply string
}

// Transport is an in-memory transport for local testing and integration.
// It implements the transports.Transport interface without any network dependency.
type Transport struct {
	handler transports.TurnHandler
	closed  atomic.Bool

	mu      sync.Mutex
	history []Message
	sent    []Message
}

func New(handler transports.TurnHandler) *Transport {
	return &Transport{handler: handler}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.closed.Store(true)
	return nil
}

// Deliver feeds an inbound message to the handler and returns its reply.
// After Stop it returns an empty reply without calling the handler.
func (t *Transport) Deliver(ctx context.Context, from, body string) string {
	if t.closed.Load() {
		return ""
	}
	reply := t.handler.HandleTurn(ctx, from, body)
	t.mu.Lock()
	t.history = append(t.history, Message{From: from, Body: body, Reply: reply})
	t.mu.Unlock()
	return reply
}

// Send records an outbound message and returns a synthetic id.
func (t *Transport) Send(_ context.Context, to, body string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, Message{From: to, Body: body})
	return "mock-" + strconv.Itoa(len(t.sent)), nil
}

// Delivered exposes inbound messages for inspection.
func (t *Transport) Delivered() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.history))
	copy(out, t.history)
	return out
}

// Sent exposes outbound messages for inspection.
func (t *Transport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.sent))
	copy(out, t.sent)
	return out
}

var (
	_ transports.Transport     = (*Transport)(nil)
	_ transports.MessageSender = (*Transport)(nil)
)
