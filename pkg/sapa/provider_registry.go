package sapa

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/sapa/pkg/llm"
	"github.com/harunnryd/sapa/pkg/transports"
)

type LLMFactory func(cfg Config) (llm.Adapter, error)
type TranscriberFactory func(cfg Config) (transports.Transcriber, error)

// ProviderRegistry maps vendor names from configuration onto constructors.
type ProviderRegistry struct {
	llm map[string]LLMFactory
	stt map[string]TranscriberFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		llm: make(map[string]LLMFactory),
		stt: make(map[string]TranscriberFactory),
	}
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterTranscriber(name string, factory TranscriberFactory) {
	r.stt[normalizeName(name)] = factory
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config) (llm.Adapter, error) {
	fn := r.llm[normalizeName(provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s (have %s)", provider, strings.Join(names(r.llm), ", "))
	}
	return fn(cfg)
}

// BuildTranscriber returns nil without error when provider is empty.
func (r *ProviderRegistry) BuildTranscriber(provider string, cfg Config) (transports.Transcriber, error) {
	if normalizeName(provider) == "" {
		return nil, nil
	}
	fn := r.stt[normalizeName(provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s (have %s)", provider, strings.Join(names(r.stt), ", "))
	}
	return fn(cfg)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func names[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
