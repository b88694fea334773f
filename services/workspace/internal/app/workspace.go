package app

import (
	"context"
	"sync"
	"time"

	"aiassistant/internal/util"
	"aiassistant/pkg/cards"
	"aiassistant/pkg/convo"
	"aiassistant/pkg/domain"
	"aiassistant/pkg/events"
	"aiassistant/pkg/persist"
)

// Workspace is one user's conversations, cards and popup sessions. All
// state is guarded by mu; completion calls run without holding it.
type Workspace struct {
	id      string
	m       *Manager
	persist *persist.Adapter
	// lastUsed is guarded by the manager's mutex.
	lastUsed time.Time

	mu               sync.Mutex
	convos           *convo.Store
	cards            *cards.Store
	drag             cards.DragState
	sidebarOpen      bool
	sending          bool
	explanations     map[string]*explanation
	explanationOrder []string
}

// State is the full view a client renders from.
type State struct {
	WorkspaceID          string                `json:"workspaceId"`
	Conversations        []domain.Conversation `json:"conversations"`
	ActiveConversationID string                `json:"activeConversationId,omitempty"`
	Active               *domain.Thread        `json:"active,omitempty"`
	Cards                []domain.ContentCard  `json:"cards"`
	SidebarOpen          bool                  `json:"sidebarOpen"`
	Drag                 cards.DragView        `json:"drag"`
	Sending              bool                  `json:"sending"`
}

func (w *Workspace) ID() string { return w.id }

// idle reports whether nothing is in flight. A workspace whose lock is held
// counts as busy.
func (w *Workspace) idle() bool {
	if !w.mu.TryLock() {
		return false
	}
	defer w.mu.Unlock()
	if w.sending {
		return false
	}
	for _, e := range w.explanations {
		if e.Pending {
			return false
		}
	}
	return true
}

func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State{
		WorkspaceID:          w.id,
		Conversations:        w.convos.Conversations(),
		ActiveConversationID: w.convos.ActiveID(),
		Cards:                w.cards.Cards(),
		SidebarOpen:          w.sidebarOpen,
		Drag:                 w.drag.View(),
		Sending:              w.sending,
	}
	if thread, ok := w.convos.Active(); ok {
		st.Active = &thread
	}
	return st
}

// Conversations lists committed conversations, most recent first.
func (w *Workspace) Conversations() []domain.Conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.convos.Conversations()
}

// NewConversation commits an empty conversation and makes it active.
func (w *Workspace) NewConversation(ctx context.Context) domain.Conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	conv := w.convos.CreateConversation(nil)
	w.saveConversationsLocked(ctx)
	w.publishLocked(ctx, events.Event{Type: events.ConversationCreated, ConversationID: conv.ID})
	return conv
}

// SelectConversation activates id, discarding any draft.
func (w *Workspace) SelectConversation(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.convos.SelectConversation(id); err != nil {
		return err
	}
	w.saveActiveLocked(ctx)
	w.publishLocked(ctx, events.Event{Type: events.ConversationSelected, ConversationID: id})
	return nil
}

// DeleteConversation removes a committed conversation. Unknown ids are a
// no-op: nothing is saved or published.
func (w *Workspace) DeleteConversation(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.convos.DeleteConversation(id) {
		return nil
	}
	w.saveConversationsLocked(ctx)
	w.publishLocked(ctx, events.Event{Type: events.ConversationDeleted, ConversationID: id})
	return nil
}

// SetSidebar records whether the conversation sidebar is open.
func (w *Workspace) SetSidebar(ctx context.Context, open bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sidebarOpen == open {
		return open
	}
	w.sidebarOpen = open
	pctx, cancel := w.persistContext(ctx)
	defer cancel()
	if err := w.persist.SaveSidebar(pctx, open); err != nil {
		w.logPersistError(ctx, err)
	}
	w.publishLocked(ctx, events.Event{Type: events.SidebarToggled})
	return open
}

func (w *Workspace) saveConversationsLocked(ctx context.Context) {
	pctx, cancel := w.persistContext(ctx)
	defer cancel()
	if err := w.persist.SaveConversations(pctx, w.convos.Conversations()); err != nil {
		w.logPersistError(ctx, err)
	}
	if err := w.persist.SaveActive(pctx, w.convos.PersistedActiveID()); err != nil {
		w.logPersistError(ctx, err)
	}
}

func (w *Workspace) saveActiveLocked(ctx context.Context) {
	pctx, cancel := w.persistContext(ctx)
	defer cancel()
	if err := w.persist.SaveActive(pctx, w.convos.PersistedActiveID()); err != nil {
		w.logPersistError(ctx, err)
	}
}

func (w *Workspace) saveCardsLocked(ctx context.Context) {
	pctx, cancel := w.persistContext(ctx)
	defer cancel()
	if err := w.persist.SaveCards(pctx, w.cards.Cards()); err != nil {
		w.logPersistError(ctx, err)
	}
}

// persistContext detaches writes from the request so a client hanging up
// does not lose state.
func (w *Workspace) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (w *Workspace) logPersistError(ctx context.Context, err error) {
	util.LoggerFromContext(ctx).Error("persist workspace state", "workspace_id", w.id, "err", err)
}

// publishLocked runs under mu so subscribers see events in mutation order.
func (w *Workspace) publishLocked(ctx context.Context, e events.Event) {
	e.WorkspaceID = w.id
	e.At = w.m.now()
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := w.m.publisher.Publish(pctx, e); err != nil {
		util.LoggerFromContext(ctx).Warn("publish event", "workspace_id", w.id, "type", e.Type, "err", err)
	}
}
