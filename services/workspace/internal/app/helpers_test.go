package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aiassistant/pkg/ai"
	"aiassistant/pkg/events"
	"aiassistant/pkg/store"
	"aiassistant/services/workspace/internal/chatclient"
)

type completion struct {
	text string
	err  error
}

// scriptedCompleter replays results in order, repeating the last one.
type scriptedCompleter struct {
	mu      sync.Mutex
	calls   [][]chatclient.Turn
	results []completion
	// gate, when set, blocks each call until a value is received.
	gate    chan struct{}
	started chan struct{}
}

func (s *scriptedCompleter) Complete(_ context.Context, turns []chatclient.Turn) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]chatclient.Turn(nil), turns...))
	var r completion
	switch {
	case len(s.results) == 0:
		r = completion{text: fmt.Sprintf("reply %d", len(s.calls))}
	case len(s.results) == 1:
		r = s.results[0]
	default:
		r = s.results[0]
		s.results = s.results[1:]
	}
	gate, started := s.gate, s.started
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return r.text, r.err
}

func (s *scriptedCompleter) Calls() [][]chatclient.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]chatclient.Turn(nil), s.calls...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func testConfig(kv store.KV, c Completer) Config {
	var seq atomic.Int64
	var tick atomic.Int64
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return Config{
		KV:        kv,
		Completer: c,
		Backoff:   ai.Backoff{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Now: func() time.Time {
			return base.Add(time.Duration(tick.Add(1)) * time.Second)
		},
		NewID: func() string {
			return fmt.Sprintf("id-%03d", seq.Add(1))
		},
	}
}

func newTestWorkspace(t *testing.T, c Completer, mutate func(*Config)) (*Manager, *Workspace) {
	t.Helper()
	cfg := testConfig(store.NewMemoryKV(), c)
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	w, err := m.Workspace(context.Background(), "ws-1")
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	return m, w
}
