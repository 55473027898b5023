package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/sapa/pkg/llm"
	"github.com/harunnryd/sapa/pkg/resilience"
	"google.golang.org/genai"
)

type stubModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (s *stubModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.model = model
	s.contents = contents
	s.config = config
	return s.resp, s.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func TestGenerateReturnsText(t *testing.T) {
	stub := &stubModels{resp: textResponse("School 8 baje khulta hai.")}
	a := newAdapter(Config{}, stub)

	resp, err := a.Generate(context.Background(), llm.Prompt("school kitne baje khulta hai"))
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if resp.Text != "School 8 baje khulta hai." {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if stub.model != DefaultModel {
		t.Fatalf("expected default model, got %q", stub.model)
	}
	if len(stub.contents) != 1 || len(stub.contents[0].Parts) != 1 || stub.contents[0].Parts[0].Text != "school kitne baje khulta hai" {
		t.Fatalf("expected single user content with prompt")
	}
}

func TestGenerateSystemMessagesBecomeInstruction(t *testing.T) {
	stub := &stubModels{resp: textResponse("ok")}
	a := newAdapter(Config{Model: "gemini-custom"}, stub)
	input := llm.Context{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "be polite"},
		{Role: llm.RoleUser, Content: "hi"},
	}}
	if _, err := a.Generate(context.Background(), input); err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if stub.config == nil || stub.config.SystemInstruction == nil {
		t.Fatalf("expected system instruction")
	}
	if len(stub.contents) != 1 {
		t.Fatalf("expected system message removed from contents, got %d", len(stub.contents))
	}
	if stub.model != "gemini-custom" {
		t.Fatalf("expected configured model, got %q", stub.model)
	}
}

func TestGenerateMalformedResponses(t *testing.T) {
	cases := []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
		textResponse("   "),
	}
	for i, resp := range cases {
		a := newAdapter(Config{}, &stubModels{resp: resp})
		_, err := a.Generate(context.Background(), llm.Prompt("hi"))
		if !errors.Is(err, llm.ErrMalformedResponse) {
			t.Fatalf("case %d: expected malformed response error, got %v", i, err)
		}
	}
}

func TestGenerateTranslatesAPIErrors(t *testing.T) {
	a := newAdapter(Config{}, &stubModels{err: genai.APIError{Code: 429, Message: "quota exhausted"}})
	if _, err := a.Generate(context.Background(), llm.Prompt("hi")); !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	a = newAdapter(Config{}, &stubModels{err: genai.APIError{Code: 403, Message: "bad key"}})
	_, err := a.Generate(context.Background(), llm.Prompt("hi"))
	var se llm.StatusError
	if !errors.As(err, &se) || !se.IsAuth() {
		t.Fatalf("expected auth status error, got %v", err)
	}

	plain := errors.New("dial tcp: timeout")
	a = newAdapter(Config{}, &stubModels{err: plain})
	if _, err := a.Generate(context.Background(), llm.Prompt("hi")); !errors.Is(err, plain) {
		t.Fatalf("expected passthrough error, got %v", err)
	}
}

func TestNewAdapterRequiresKey(t *testing.T) {
	if _, err := NewAdapter(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
