package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aiassistant/internal/util"
	"aiassistant/pkg/ai"
)

// Config holds runtime configuration for the proxy core.
type Config struct {
	Completer ai.Completer
	Model     string
	Now       func() time.Time
}

// App wraps the provider with the assistant prompt policy.
type App struct {
	completer ai.Completer
	model     string
	now       func() time.Time
}

// Message is one turn as the browser sends it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Metadata describes how a reply was produced.
type Metadata struct {
	Model       string    `json:"model"`
	IsCodeQuery bool      `json:"isCodeQuery"`
	Tokens      *ai.Usage `json:"tokens"`
}

// Reply is a successful completion.
type Reply struct {
	Message  string   `json:"message"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Health is the outcome of a provider probe.
type Health struct {
	Status     string `json:"status"`
	Model      string `json:"model,omitempty"`
	Timestamp  string `json:"timestamp"`
	Connection string `json:"connection"`
	Error      string `json:"error,omitempty"`
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completer required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = ai.DefaultGroqModel
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{completer: cfg.Completer, model: model, now: now}, nil
}

// Model is the model requests are sent to.
func (a *App) Model() string { return a.model }

// Configured reports whether the provider has credentials. Completers that
// cannot tell are assumed configured.
func (a *App) Configured() bool {
	c, ok := a.completer.(interface{ Configured() bool })
	return !ok || c.Configured()
}

// Complete answers the conversation in msgs. The system prompt is always
// prepended; sampling depends on whether the last message looks like a
// programming question.
func (a *App) Complete(ctx context.Context, msgs []Message) (Reply, error) {
	if len(msgs) == 0 {
		return Reply{}, ErrMessagesRequired
	}
	chat := make([]ai.ChatMessage, 0, len(msgs)+1)
	chat = append(chat, ai.ChatMessage{Role: "system", Content: ai.SystemPrompt})
	for _, m := range msgs {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			return Reply{}, fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
		}
		chat = append(chat, ai.ChatMessage{Role: m.Role, Content: m.Content})
	}
	isCode := ai.IsCodeRelated(msgs[len(msgs)-1].Content)

	out, err := a.completer.Complete(ctx, ai.CompletionRequest{
		Model:    a.model,
		Messages: chat,
		Params:   ai.ParamsFor(isCode),
	})
	if err != nil {
		return Reply{}, err
	}
	content := ai.ProcessResponse(out.Content, isCode)
	model := out.Model
	if model == "" {
		model = a.model
	}
	util.LoggerFromContext(ctx).Debug("completion done", "model", model, "is_code", isCode, "chars", len(content))
	return Reply{
		Message: content,
		Content: content,
		Metadata: Metadata{
			Model:       model,
			IsCodeQuery: isCode,
			Tokens:      out.Usage,
		},
	}, nil
}

// Health sends a tiny completion to check provider connectivity. The
// returned bool reports a healthy provider.
func (a *App) Health(ctx context.Context) (Health, bool) {
	ts := a.now().UTC().Format(time.RFC3339Nano)
	_, err := a.completer.Complete(ctx, ai.CompletionRequest{
		Model:    a.model,
		Messages: []ai.ChatMessage{{Role: "user", Content: "Hello"}},
		Params:   ai.HealthParams(),
	})
	if err == nil {
		return Health{
			Status:     "Chat API is running",
			Model:      a.model,
			Timestamp:  ts,
			Connection: "healthy",
		}, true
	}
	if ai.Classify(err) == ai.KindConfig {
		return Health{
			Status:     "Chat API configuration error",
			Error:      err.Error(),
			Timestamp:  ts,
			Connection: "unhealthy",
		}, false
	}
	return Health{
		Status:     "Chat API has issues",
		Error:      err.Error(),
		Timestamp:  ts,
		Connection: "unhealthy",
	}, false
}
