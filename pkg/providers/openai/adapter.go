package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/sapa/pkg/llm"
	"github.com/harunnryd/sapa/pkg/resilience"
)

// Adapter talks to any OpenAI-compatible chat completions endpoint.
type Adapter struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

type Config struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

func NewAdapter(cfg Config) *Adapter {
	a := &Adapter{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
	if a.BaseURL == "" {
		a.BaseURL = "https://api.openai.com/v1"
	}
	if a.Model == "" {
		a.Model = "gpt-4o-mini"
	}
	return a
}

func (a *Adapter) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	body, err := a.buildRequest(input)
	if err != nil {
		return llm.Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/chat/completions", body)
	if err != nil {
		return llm.Response{}, err
	}
	a.applyHeaders(req)
	resp, err := a.client().Do(req)
	if err != nil {
		return llm.Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return llm.Response{}, resilience.RateLimitError{Provider: "openai", Message: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return llm.Response{}, llm.StatusError{Provider: "openai", Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return llm.Response{}, fmt.Errorf("openai: decode: %v: %w", err, llm.ErrMalformedResponse)
	}
	return fromProviderFormat(payload)
}

func fromProviderFormat(payload chatResponse) (llm.Response, error) {
	if len(payload.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("openai: no choices: %w", llm.ErrMalformedResponse)
	}
	first := payload.Choices[0]
	if strings.TrimSpace(first.Message.Content) == "" {
		return llm.Response{}, fmt.Errorf("openai: empty content: %w", llm.ErrMalformedResponse)
	}
	return llm.Response{
		Text:         first.Message.Content,
		FinishReason: first.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		},
	}, nil
}

func (a *Adapter) buildRequest(input llm.Context) (*bytes.Buffer, error) {
	req := chatRequest{Model: a.Model, Messages: make([]chatMessage, 0, len(input.Messages))}
	for _, m := range input.Messages {
		role := m.Role
		if role == llm.RoleModel {
			role = "assistant"
		}
		req.Messages = append(req.Messages, chatMessage{Role: role, Content: m.Content})
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(b), nil
}

func (a *Adapter) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

var _ llm.Adapter = (*Adapter)(nil)
