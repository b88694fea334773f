package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"aiassistant/internal/ratelimit"
	"aiassistant/pkg/ai"
	"aiassistant/services/proxy/internal/app"
)

type fakeProvider struct {
	status int
	body   string
	calls  atomic.Int32
	auth   atomic.Value
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.calls.Add(1)
	p.auth.Store(r.Header.Get("Authorization"))
	if r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(p.status)
	_, _ = w.Write([]byte(p.body))
}

func newProxy(t *testing.T, provider *fakeProvider, apiKey string, limiter *ratelimit.FixedWindowLimiter) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(provider)
	t.Cleanup(upstream.Close)
	core, err := app.New(app.Config{Completer: ai.NewGroqClient(upstream.URL, apiKey, "")})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core, Limiter: limiter}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postChat(t *testing.T, srv *httptest.Server, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, out
}

const okBody = `{"choices":[{"message":{"role":"assistant","content":"Answer: 42"}}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`

func TestChatSuccess(t *testing.T) {
	provider := &fakeProvider{status: http.StatusOK, body: okBody}
	srv := newProxy(t, provider, "k", nil)

	status, out := postChat(t, srv, `{"messages":[{"role":"user","content":"write a python function"}]}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d body=%v", status, out)
	}
	if out["content"] != "## Answer: 42" || out["message"] != "## Answer: 42" {
		t.Fatalf("content = %v", out["content"])
	}
	meta := out["metadata"].(map[string]any)
	if meta["model"] != ai.DefaultGroqModel || meta["isCodeQuery"] != true {
		t.Fatalf("metadata = %v", meta)
	}
	tokens := meta["tokens"].(map[string]any)
	if tokens["total"] != float64(7) {
		t.Fatalf("tokens = %v", tokens)
	}
	if provider.auth.Load() != "Bearer k" {
		t.Fatalf("auth header = %v", provider.auth.Load())
	}
}

func TestChatValidation(t *testing.T) {
	srv := newProxy(t, &fakeProvider{status: http.StatusOK, body: okBody}, "k", nil)
	for _, body := range []string{`{}`, `{"messages":[]}`, `not json`, `{"messages":"hi"}`} {
		status, out := postChat(t, srv, body)
		if status != http.StatusBadRequest || out["error"] != "Messages array is required" {
			t.Fatalf("body %q: status=%d out=%v", body, status, out)
		}
	}
}

func TestChatMissingKey(t *testing.T) {
	provider := &fakeProvider{status: http.StatusOK, body: okBody}
	srv := newProxy(t, provider, "", nil)
	status, out := postChat(t, srv, `{"messages":[{"role":"user","content":"hi"}]}`)
	if status != http.StatusInternalServerError || out["type"] != "config_error" {
		t.Fatalf("status=%d out=%v", status, out)
	}
	if provider.calls.Load() != 0 {
		t.Fatalf("provider should not be called")
	}
}

func TestChatProviderErrors(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantType   string
		wantPrefix string
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, http.StatusTooManyRequests, "rate_limit", "Rate limit exceeded"},
		{"auth", http.StatusUnauthorized, `{"error":{"message":"Invalid API Key"}}`, http.StatusUnauthorized, "auth_error", "API configuration error"},
		{"server", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, http.StatusInternalServerError, "api_error", "API error: "},
		{"no choices", http.StatusOK, `{"choices":[]}`, http.StatusInternalServerError, "api_error", "Unexpected response format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newProxy(t, &fakeProvider{status: tc.status, body: tc.body}, "k", nil)
			status, out := postChat(t, srv, `{"messages":[{"role":"user","content":"hi"}]}`)
			if status != tc.wantStatus || out["type"] != tc.wantType {
				t.Fatalf("status=%d out=%v", status, out)
			}
			if msg, _ := out["error"].(string); !strings.HasPrefix(msg, tc.wantPrefix) {
				t.Fatalf("error = %q", msg)
			}
		})
	}
}

func TestChatHealth(t *testing.T) {
	srv := newProxy(t, &fakeProvider{status: http.StatusOK, body: okBody}, "k", nil)
	resp, err := http.Get(srv.URL + "/api/chat")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK || out["connection"] != "healthy" || out["status"] != "Chat API is running" {
		t.Fatalf("status=%d out=%v", resp.StatusCode, out)
	}

	broken := newProxy(t, &fakeProvider{status: http.StatusOK, body: okBody}, "", nil)
	resp2, err := http.Get(broken.URL + "/api/chat")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	out = nil
	_ = json.NewDecoder(resp2.Body).Decode(&out)
	if resp2.StatusCode != http.StatusServiceUnavailable || out["status"] != "Chat API configuration error" {
		t.Fatalf("status=%d out=%v", resp2.StatusCode, out)
	}
}

func TestChatRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(mr.Addr(), "", "test:proxy", 1, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	srv := newProxy(t, &fakeProvider{status: http.StatusOK, body: okBody}, "k", limiter)

	if status, _ := postChat(t, srv, `{"messages":[{"role":"user","content":"hi"}]}`); status != http.StatusOK {
		t.Fatalf("first request status = %d", status)
	}
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("second request status=%d retry=%q", resp.StatusCode, resp.Header.Get("Retry-After"))
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	srv := newProxy(t, &fakeProvider{status: http.StatusOK, body: okBody}, "k", nil)
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/chat", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
