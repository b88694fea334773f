package events

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 32

// Hub fans events out to in-process subscribers of a workspace. A full
// subscriber buffer drops the event for that subscriber only.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscription receives events for one workspace until closed.
type Subscription struct {
	ch          chan Event
	hub         *Hub
	workspaceID string
	once        sync.Once
	dropped     atomic.Int64
}

// Events is closed when the subscription or the hub is closed.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped counts events lost to a full buffer.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a subscriber for workspaceID. Subscribing to a closed
// hub returns an already closed subscription.
func (h *Hub) Subscribe(workspaceID string) *Subscription {
	s := &Subscription{ch: make(chan Event, h.buffer), hub: h, workspaceID: workspaceID}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	set := h.subs[workspaceID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[workspaceID] = set
	}
	set[s] = struct{}{}
	return s
}

// Subscribers counts live subscriptions for a workspace.
func (h *Hub) Subscribers(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[workspaceID])
}

func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[e.WorkspaceID] {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for ws, set := range h.subs {
		for s := range set {
			s.once.Do(func() { close(s.ch) })
		}
		delete(h.subs, ws)
	}
	return nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.subs[s.workspaceID]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.workspaceID)
		}
	}
	s.once.Do(func() { close(s.ch) })
}
