package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"aiassistant/pkg/ai"
	"aiassistant/pkg/domain"
	"aiassistant/pkg/events"
	"aiassistant/pkg/store"
	"aiassistant/services/workspace/internal/chatclient"
)

func TestSendPromotesDraftAndPersists(t *testing.T) {
	kv := store.NewMemoryKV()
	c := &scriptedCompleter{results: []completion{{text: "Recursion is a function calling itself."}}}
	pub := &recordingPublisher{}
	cfg := testConfig(kv, c)
	cfg.Publisher = pub
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	w, _ := m.Workspace(context.Background(), "ws-1")

	res, err := w.Send(context.Background(), "  What is recursion in programming?  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Status != domain.ThreadCommitted || res.Reply == nil || res.Failed || res.Dropped {
		t.Fatalf("result = %+v", res)
	}
	if res.UserMessage.Content != "What is recursion in programming?" {
		t.Fatalf("user message = %q", res.UserMessage.Content)
	}
	convs := w.Conversations()
	if len(convs) != 1 || convs[0].ID != res.ConversationID {
		t.Fatalf("conversations = %+v", convs)
	}
	if convs[0].Title != "What is recursion in programming?" {
		t.Fatalf("title = %q", convs[0].Title)
	}
	if len(convs[0].Messages) != 2 || convs[0].Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("messages = %+v", convs[0].Messages)
	}

	want := []events.Type{events.MessageAppended, events.MessageAppended, events.ConversationCommitted}
	got := pub.Types()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	// A fresh manager over the same store sees the committed conversation.
	m2, err := New(testConfig(kv, c))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	w2, _ := m2.Workspace(context.Background(), "ws-1")
	st := w2.State()
	if len(st.Conversations) != 1 || st.ActiveConversationID != res.ConversationID {
		t.Fatalf("reloaded state = %+v", st)
	}
	if st.Active == nil || st.Active.Status != domain.ThreadCommitted {
		t.Fatalf("active = %+v", st.Active)
	}
}

func TestSendDraftIsNotPersisted(t *testing.T) {
	kv := store.NewMemoryKV()
	c := &scriptedCompleter{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	m, err := New(testConfig(kv, c))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	w, _ := m.Workspace(context.Background(), "ws-1")

	done := make(chan SendResult, 1)
	go func() {
		res, _ := w.Send(context.Background(), "hello")
		done <- res
	}()
	<-c.started
	st := w.State()
	if st.Active == nil || st.Active.Status != domain.ThreadDraft || len(st.Conversations) != 0 || !st.Sending {
		t.Fatalf("pending state = %+v", st)
	}
	if _, ok, _ := kv.Get(context.Background(), "ws-1:ai-assistant-current-conversation"); ok {
		t.Fatalf("draft id must not be persisted")
	}
	close(c.gate)
	<-done
}

func TestSendSendsHistoryWindow(t *testing.T) {
	c := &scriptedCompleter{}
	_, w := newTestWorkspace(t, c, func(cfg *Config) { cfg.HistoryLimit = 3 })

	for i := 0; i < 3; i++ {
		if _, err := w.Send(context.Background(), fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	calls := c.Calls()
	if len(calls) != 3 {
		t.Fatalf("calls = %d", len(calls))
	}
	if len(calls[0]) != 1 {
		t.Fatalf("first call should carry only the new message: %+v", calls[0])
	}
	last := calls[2]
	if len(last) != 4 {
		t.Fatalf("last call turns = %+v", last)
	}
	if last[0].Role != "assistant" || last[0].Content != "reply 1" || last[3].Content != "question 2" {
		t.Fatalf("last call turns = %+v", last)
	}
}

func TestSendErrorPlaceholders(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"config", &chatclient.APIError{Status: 500, Type: "config_error", Message: ai.ErrMissingAPIKey.Error()}, ai.ErrMissingAPIKey.Error()},
		{"rate limit", &chatclient.APIError{Status: 429, Type: "rate_limit", Message: "slow"}, ai.RateLimitMessage},
		{"api", &chatclient.APIError{Status: 500, Type: "api_error", Message: "API error: boom"}, ChatErrorReply},
		{"network", errors.New("dial tcp: connection refused"), ChatErrorReply},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, w := newTestWorkspace(t, &scriptedCompleter{results: []completion{{err: tc.err}}}, nil)
			res, err := w.Send(context.Background(), "hi")
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if !res.Failed || res.Reply == nil || res.Reply.Content != tc.want {
				t.Fatalf("result = %+v", res)
			}
			if res.Status != domain.ThreadCommitted {
				t.Fatalf("placeholder should still commit the draft: %+v", res)
			}
		})
	}
}

func TestSendRejectsEmptyAndConcurrent(t *testing.T) {
	c := &scriptedCompleter{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	_, w := newTestWorkspace(t, c, nil)

	if _, err := w.Send(context.Background(), " \n\t"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := w.Send(context.Background(), "first")
		done <- err
	}()
	<-c.started
	if _, err := w.Send(context.Background(), "second"); !errors.Is(err, ErrSendInProgress) {
		t.Fatalf("expected ErrSendInProgress, got %v", err)
	}
	close(c.gate)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	if w.State().Sending {
		t.Fatalf("sending flag not cleared")
	}
}

func TestSendReplyDroppedWhenConversationDeleted(t *testing.T) {
	c := &scriptedCompleter{}
	_, w := newTestWorkspace(t, c, nil)
	first, err := w.Send(context.Background(), "keep me")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	c.mu.Lock()
	c.gate = make(chan struct{})
	c.started = make(chan struct{}, 1)
	c.mu.Unlock()

	done := make(chan SendResult, 1)
	go func() {
		res, _ := w.Send(context.Background(), "follow up")
		done <- res
	}()
	<-c.started
	if err := w.DeleteConversation(context.Background(), first.ConversationID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	close(c.gate)

	select {
	case res := <-done:
		if !res.Dropped || res.Reply != nil {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("send did not finish")
	}
	if len(w.Conversations()) != 0 {
		t.Fatalf("reply resurrected the conversation")
	}
}

func TestSendReplyLandsInOriginalConversation(t *testing.T) {
	c := &scriptedCompleter{}
	_, w := newTestWorkspace(t, c, nil)
	first, _ := w.Send(context.Background(), "first topic")
	other := w.NewConversation(context.Background())

	c.mu.Lock()
	c.gate = make(chan struct{})
	c.started = make(chan struct{}, 1)
	c.mu.Unlock()
	done := make(chan SendResult, 1)
	go func() {
		res, _ := w.Send(context.Background(), "second topic")
		done <- res
	}()
	<-c.started
	if err := w.SelectConversation(context.Background(), first.ConversationID); err != nil {
		t.Fatalf("select: %v", err)
	}
	close(c.gate)
	res := <-done
	if res.ConversationID != other.ID || res.Dropped {
		t.Fatalf("result = %+v", res)
	}
	for _, conv := range w.Conversations() {
		if conv.ID == other.ID && len(conv.Messages) != 2 {
			t.Fatalf("other conversation messages = %+v", conv.Messages)
		}
		if conv.ID == first.ConversationID && len(conv.Messages) != 2 {
			t.Fatalf("first conversation messages = %+v", conv.Messages)
		}
	}
}

func TestReplyForError(t *testing.T) {
	if got := replyForError(&chatclient.APIError{Status: http.StatusUnauthorized, Type: "auth_error", Message: "x"}); got != ChatErrorReply {
		t.Fatalf("auth reply = %q", got)
	}
}
