package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

// GroqClient calls the Groq OpenAI-compatible /chat/completions endpoint.
type GroqClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGroqClient builds a client. Empty baseURL and model fall back to the
// Groq defaults. An empty apiKey is accepted; requests then fail with
// ErrMissingAPIKey so callers can report a configuration error.
func NewGroqClient(baseURL, apiKey, model string) *GroqClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultGroqModel
	}
	return &GroqClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Model is the default model name.
func (c *GroqClient) Model() string { return c.model }

// Configured reports whether an API key is set.
func (c *GroqClient) Configured() bool { return c.apiKey != "" }

// Complete implements Completer.
func (c *GroqClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if c.apiKey == "" {
		return Completion{}, ErrMissingAPIKey
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	reqBody := oaiChatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Params.Temperature,
		MaxTokens:   req.Params.MaxTokens,
		TopP:        req.Params.TopP,
		Stream:      false,
		Stop:        req.Params.Stop,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		perr := &ProviderError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var errResp oaiErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
			perr.Type = errResp.Error.Type
			perr.Message = errResp.Error.Message
		}
		if perr.Message == "" {
			perr.Message = resp.Status
		}
		return Completion{}, perr
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Completion{}, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if len(chatResp.Choices) == 0 {
		return Completion{}, ErrUnexpectedResponse
	}
	out := Completion{
		Content: chatResp.Choices[0].Message.Content,
		Model:   model,
	}
	if chatResp.Usage != nil {
		out.Usage = &Usage{
			Prompt:     chatResp.Usage.PromptTokens,
			Completion: chatResp.Usage.CompletionTokens,
			Total:      chatResp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// OpenAI-compatible request/response types.

type oaiChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream"`
	Stop        []string      `json:"stop,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
