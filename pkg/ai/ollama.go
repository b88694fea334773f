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
	DefaultOllamaBaseURL = "http://127.0.0.1:11434"
	DefaultOllamaModel   = "llama3.1"
)

// OllamaClient calls the Ollama /api/chat endpoint. It needs no API key,
// which makes it the usual choice for local development.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient constructs a client with the provided base URL and model.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Model is the default model name.
func (c *OllamaClient) Model() string { return c.model }

// Complete implements Completer.
func (c *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Params.Temperature,
			NumPredict:  req.Params.MaxTokens,
			TopP:        req.Params.TopP,
			Stop:        req.Params.Stop,
		},
	}

	var resp ollamaChatResponse
	if err := c.doJSON(ctx, "/api/chat", reqBody, &resp); err != nil {
		return Completion{}, err
	}
	if resp.Message.Role == "" && resp.Message.Content == "" {
		return Completion{}, ErrUnexpectedResponse
	}
	out := Completion{Content: resp.Message.Content, Model: model}
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		out.Usage = &Usage{
			Prompt:     resp.PromptEvalCount,
			Completion: resp.EvalCount,
			Total:      resp.PromptEvalCount + resp.EvalCount,
		}
	}
	return out, nil
}

func (c *OllamaClient) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		perr := &ProviderError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var errResp ollamaErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			perr.Message = errResp.Error
		}
		if perr.Message == "" {
			perr.Message = resp.Status
		}
		return perr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

// Ollama /api/chat request/response types.

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Message         ChatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}
