package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harunnryd/sapa/pkg/llm"
	"github.com/harunnryd/sapa/pkg/resilience"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey          string   `mapstructure:"api_key"`
	Model           string   `mapstructure:"model"`
	Temperature     *float32 `mapstructure:"temperature"`
	MaxOutputTokens int      `mapstructure:"max_output_tokens"`
}

// Adapter calls the Gemini API through google.golang.org/genai.
type Adapter struct {
	cfg    Config
	models contentGenerator
}

// NewAdapter creates a client for the Gemini developer API.
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return newAdapter(cfg, client.Models), nil
}

func newAdapter(cfg Config, models contentGenerator) *Adapter {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Adapter{cfg: cfg, models: models}
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	contents, config := a.toProviderFormat(input)
	resp, err := a.models.GenerateContent(ctx, a.cfg.Model, contents, config)
	if err != nil {
		return llm.Response{}, translateError(err)
	}
	return fromProviderFormat(resp)
}

func (a *Adapter) toProviderFormat(input llm.Context) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{Temperature: a.cfg.Temperature}
	if a.cfg.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(a.cfg.MaxOutputTokens)
	}
	var system []string
	contents := make([]*genai.Content, 0, len(input.Messages))
	for _, m := range input.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleModel:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, config
}

func fromProviderFormat(resp *genai.GenerateContentResponse) (llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.Response{}, fmt.Errorf("gemini: no candidates: %w", llm.ErrMalformedResponse)
	}
	first := resp.Candidates[0]
	if first == nil || first.Content == nil {
		return llm.Response{}, fmt.Errorf("gemini: empty candidate: %w", llm.ErrMalformedResponse)
	}
	var b strings.Builder
	for _, p := range first.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return llm.Response{}, fmt.Errorf("gemini: no text (finish_reason=%s): %w", first.FinishReason, llm.ErrMalformedResponse)
	}
	out := llm.Response{Text: b.String(), FinishReason: string(first.FinishReason)}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func translateError(err error) error {
	code, msg, ok := apiError(err)
	if !ok {
		return err
	}
	if code == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "gemini", Message: msg}
	}
	return llm.StatusError{Provider: "gemini", Code: code, Message: msg}
}

func apiError(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Message, true
	}
	return 0, "", false
}

var _ llm.Adapter = (*Adapter)(nil)
