package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/sapa/pkg/llm"
)

// LLMAdapter replays scripted replies. When Replies is exhausted the last
// reply (or ResponseText) is repeated.
type LLMAdapter struct {
	cfg LLMConfig

	mu      sync.Mutex
	calls   int
	prompts []llm.Context
}

type LLMConfig struct {
	ResponseText string
	Replies      []string
	Err          error
	// Block makes Generate wait for ctx cancellation.
	Block bool
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	a.mu.Lock()
	idx := a.calls
	a.calls++
	a.prompts = append(a.prompts, input)
	a.mu.Unlock()

	if a.cfg.Block {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	text := a.cfg.ResponseText
	if n := len(a.cfg.Replies); n > 0 {
		if idx >= n {
			idx = n - 1
		}
		text = a.cfg.Replies[idx]
	}
	return llm.Response{Text: text, FinishReason: "stop"}, nil
}

// Calls returns how many times Generate ran.
func (a *LLMAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// LastPrompt returns the content of the last user message received.
func (a *LLMAdapter) LastPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.prompts) == 0 {
		return ""
	}
	msgs := a.prompts[len(a.prompts)-1].Messages
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

var _ llm.Adapter = (*LLMAdapter)(nil)
