package ai

import "context"

// ChatMessage is one turn sent to the provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params are the sampling settings for one request.
type Params struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stop        []string
}

// CompletionRequest is a provider-agnostic chat completion request. An empty
// Model means the client default.
type CompletionRequest struct {
	Model    string
	Messages []ChatMessage
	Params   Params
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

type Completion struct {
	Content string
	Model   string
	Usage   *Usage
}

// Completer produces chat completions. GroqClient implements it.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}
