package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aiassistant/internal/util"
	"aiassistant/pkg/domain"
)

// EmptyReply stands in for a completion without content.
const EmptyReply = "Sorry, I received an empty response."

// Turn is one message sent to the proxy.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls the completion proxy over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a proxy error response.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("proxy status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("proxy status %d (%s): %s", e.Status, e.Type, e.Message)
}

// StatusCode exposes the HTTP status for retry decisions.
func (e *APIError) StatusCode() int { return e.Status }

// NewClient constructs a proxy client. A zero timeout uses 90 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Turns converts stored messages into proxy turns.
func Turns(msgs []domain.Message) []Turn {
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Turn{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Complete sends turns and returns the reply text. A reply without content
// yields EmptyReply.
func (c *Client) Complete(ctx context.Context, turns []Turn) (string, error) {
	data, err := json.Marshal(chatRequest{Messages: turns})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if id := util.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(util.RequestIDHeader, id)
	}

	var out chatResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Content) == "" {
		return EmptyReply, nil
	}
	return out.Content, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Type  string `json:"type"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Type: errResp.Type, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type chatRequest struct {
	Messages []Turn `json:"messages"`
}

type chatResponse struct {
	Content string `json:"content"`
}
