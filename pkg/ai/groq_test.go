package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGroqClientComplete(t *testing.T) {
	var got oaiChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Recursion is..."}}],"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`))
	}))
	defer srv.Close()

	c := NewGroqClient(srv.URL+"/", "key-1", "")
	out, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []ChatMessage{{Role: "system", Content: SystemPrompt}, {Role: "user", Content: "Explain recursion"}},
		Params:   ParamsFor(true),
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Content != "Recursion is..." || out.Model != DefaultGroqModel {
		t.Fatalf("completion = %+v", out)
	}
	if out.Usage == nil || out.Usage.Total != 17 {
		t.Fatalf("usage = %+v", out.Usage)
	}
	if got.Model != DefaultGroqModel || got.Temperature != 0.3 || got.MaxTokens != 2048 || got.TopP != 0.95 || got.Stream {
		t.Fatalf("request = %+v", got)
	}
	if len(got.Stop) != 2 || got.Stop[0] != "<|end_of_turn|>" {
		t.Fatalf("stop = %v", got.Stop)
	}
}

func TestGroqClientMissingKey(t *testing.T) {
	c := NewGroqClient("", "", "")
	if c.Configured() {
		t.Fatalf("expected unconfigured client")
	}
	_, err := c.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v", err)
	}
	if Classify(err) != KindConfig {
		t.Fatalf("kind = %s", Classify(err))
	}
}

func TestGroqClientProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"tokens"}}`))
	}))
	defer srv.Close()

	_, err := NewGroqClient(srv.URL, "k", "m").Complete(context.Background(), CompletionRequest{})
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %T %v", err, err)
	}
	if perr.Status != http.StatusTooManyRequests || perr.Message != "slow down" || perr.Type != "tokens" {
		t.Fatalf("provider error = %+v", perr)
	}
	if Classify(err) != KindRate || !Retryable(err) {
		t.Fatalf("429 should classify as retryable rate limit")
	}
}

func TestGroqClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewGroqClient(srv.URL, "k", "").Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("err = %v", err)
	}
	if kind := Classify(err); kind != KindAPI || MessageFor(kind, err) != FormatMessage {
		t.Fatalf("kind = %s message = %q", kind, MessageFor(kind, err))
	}
}
