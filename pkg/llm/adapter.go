package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role names used in Message.Role.
const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
)

type Message struct {
	Role    string
	Content string
}

type Context struct {
	Messages []Message
}

// Prompt wraps a single composed prompt as one user message.
func Prompt(text string) Context {
	return Context{Messages: []Message{{Role: RoleUser, Content: text}}}
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// Adapter is a completion service. Generate performs one non-streaming request.
type Adapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Name() string
}

// ErrMalformedResponse marks a provider reply that carried no usable text.
var ErrMalformedResponse = errors.New("malformed completion response")

// StatusError is a non-2xx reply from a provider API.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Message)
}

// IsAuth reports whether the status denotes rejected credentials.
func (e StatusError) IsAuth() bool {
	return e.Code == 401 || e.Code == 403
}
