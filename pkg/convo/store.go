package convo

import (
	"fmt"
	"time"

	"aiassistant/internal/util"
	"aiassistant/pkg/domain"
)

// AppendResult reports where an appended message landed.
type AppendResult struct {
	MessageID      string              `json:"messageId"`
	ConversationID string              `json:"conversationId"`
	Status         domain.ThreadStatus `json:"status"`
	// Created is set when the append allocated a new conversation id.
	Created bool `json:"created"`
	// Promoted is set when the append turned the draft into a conversation.
	Promoted bool `json:"promoted"`
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides the identity source.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Store owns committed conversations, the draft slot and the active id.
// It is not safe for concurrent use; callers serialize access.
type Store struct {
	conversations []domain.Conversation // most recent first
	draft         *domain.Draft
	activeID      string

	now   func() time.Time
	newID func() string
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:   func() time.Time { return time.Now().UTC() },
		newID: util.NewID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// AppendMessage adds a message to targetID, or to the active thread when
// targetID is empty. With nothing active a new thread is started: a user
// message opens a draft, an assistant message commits a conversation titled
// with the default placeholder. An assistant reply to the draft promotes it.
func (s *Store) AppendMessage(content string, role domain.Role, targetID string) (AppendResult, error) {
	if !role.Valid() {
		return AppendResult{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	now := s.now()
	msg := domain.Message{ID: s.newID(), Content: content, Role: role, Timestamp: now}

	target := targetID
	if target == "" {
		target = s.activeID
	}

	if target == "" {
		id := s.newID()
		s.activeID = id
		if role == domain.RoleUser {
			s.draft = &domain.Draft{ID: id, Messages: []domain.Message{msg}, CreatedAt: now}
			return AppendResult{MessageID: msg.ID, ConversationID: id, Status: domain.ThreadDraft, Created: true}, nil
		}
		s.prepend(domain.Conversation{
			ID:        id,
			Title:     domain.DefaultConversationTitle,
			Messages:  []domain.Message{msg},
			CreatedAt: now,
			UpdatedAt: now,
		})
		return AppendResult{MessageID: msg.ID, ConversationID: id, Status: domain.ThreadCommitted, Created: true}, nil
	}

	if s.draft != nil && s.draft.ID == target {
		s.draft.Messages = append(s.draft.Messages, msg)
		if role == domain.RoleUser {
			return AppendResult{MessageID: msg.ID, ConversationID: target, Status: domain.ThreadDraft}, nil
		}
		s.prepend(domain.Conversation{
			ID:        s.draft.ID,
			Title:     titleFor(s.draft.Messages),
			Messages:  s.draft.Messages,
			CreatedAt: s.draft.CreatedAt,
			UpdatedAt: now,
		})
		s.draft = nil
		return AppendResult{MessageID: msg.ID, ConversationID: target, Status: domain.ThreadCommitted, Promoted: true}, nil
	}

	idx := s.indexOf(target)
	if idx < 0 {
		return AppendResult{}, fmt.Errorf("%w: %s", ErrConversationNotFound, target)
	}
	conv := &s.conversations[idx]
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = now
	if conv.Title == domain.DefaultConversationTitle {
		conv.Title = titleFor(conv.Messages)
	}
	return AppendResult{MessageID: msg.ID, ConversationID: conv.ID, Status: domain.ThreadCommitted}, nil
}

// CreateConversation commits a new conversation holding initial and makes it
// active. Any draft is discarded.
func (s *Store) CreateConversation(initial []domain.Message) domain.Conversation {
	now := s.now()
	conv := domain.Conversation{
		ID:        s.newID(),
		Title:     titleFor(initial),
		Messages:  domain.CloneMessages(initial),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.prepend(conv)
	s.activeID = conv.ID
	s.draft = nil
	return conv.Clone()
}

// SelectConversation activates a committed conversation and discards any draft.
func (s *Store) SelectConversation(id string) error {
	if s.indexOf(id) < 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	s.activeID = id
	s.draft = nil
	return nil
}

// DeleteConversation removes a committed conversation and reports whether it
// existed. Deleting the active conversation activates the most recent
// remaining one, or nothing. Unknown ids change nothing.
func (s *Store) DeleteConversation(id string) bool {
	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	activeGone := s.activeID == id
	if s.draft != nil {
		activeGone = activeGone || s.activeID == s.draft.ID
		s.draft = nil
	}
	if activeGone {
		s.activeID = ""
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		}
	}
	return true
}

// ActiveID returns the active thread id, draft or committed.
func (s *Store) ActiveID() string {
	return s.activeID
}

// Active returns the tagged view of the active thread.
func (s *Store) Active() (domain.Thread, bool) {
	if s.activeID == "" {
		return domain.Thread{}, false
	}
	if s.draft != nil && s.draft.ID == s.activeID {
		return domain.Thread{
			Status:   domain.ThreadDraft,
			ID:       s.draft.ID,
			Title:    domain.DefaultConversationTitle,
			Messages: domain.CloneMessages(s.draft.Messages),
		}, true
	}
	idx := s.indexOf(s.activeID)
	if idx < 0 {
		return domain.Thread{}, false
	}
	conv := s.conversations[idx]
	return domain.Thread{
		Status:   domain.ThreadCommitted,
		ID:       conv.ID,
		Title:    conv.Title,
		Messages: domain.CloneMessages(conv.Messages),
	}, true
}

// Conversations lists committed conversations, most recent first.
func (s *Store) Conversations() []domain.Conversation {
	out := make([]domain.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Clone())
	}
	return out
}

// Conversation looks up a committed conversation.
func (s *Store) Conversation(id string) (domain.Conversation, bool) {
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.Conversation{}, false
	}
	return s.conversations[idx].Clone(), true
}

// FindMessage resolves a message id against the active thread first and then
// every committed conversation.
func (s *Store) FindMessage(id string) (domain.Message, bool) {
	if thread, ok := s.Active(); ok {
		for _, m := range thread.Messages {
			if m.ID == id {
				return m, true
			}
		}
	}
	for _, c := range s.conversations {
		for _, m := range c.Messages {
			if m.ID == id {
				return m, true
			}
		}
	}
	return domain.Message{}, false
}

// History returns up to limit trailing messages of a draft or committed
// thread. limit <= 0 returns everything.
func (s *Store) History(conversationID string, limit int) []domain.Message {
	var msgs []domain.Message
	switch {
	case s.draft != nil && s.draft.ID == conversationID:
		msgs = s.draft.Messages
	default:
		idx := s.indexOf(conversationID)
		if idx < 0 {
			return []domain.Message{}
		}
		msgs = s.conversations[idx].Messages
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return domain.CloneMessages(msgs)
}

// PersistedActiveID is the active id when it names a committed conversation.
// Drafts are never persisted, so an active draft yields "".
func (s *Store) PersistedActiveID() string {
	if s.indexOf(s.activeID) < 0 {
		return ""
	}
	return s.activeID
}

// Restore replaces the store content with loaded state. The saved active id
// wins when it names a loaded conversation, otherwise the first one does.
func (s *Store) Restore(conversations []domain.Conversation, activeID string) {
	s.conversations = make([]domain.Conversation, 0, len(conversations))
	for _, c := range conversations {
		if c.Title == "" {
			c.Title = titleFor(c.Messages)
		}
		s.conversations = append(s.conversations, c.Clone())
	}
	s.draft = nil
	s.activeID = ""
	switch {
	case activeID != "" && s.indexOf(activeID) >= 0:
		s.activeID = activeID
	case len(s.conversations) > 0:
		s.activeID = s.conversations[0].ID
	}
}

func (s *Store) prepend(conv domain.Conversation) {
	s.conversations = append([]domain.Conversation{conv}, s.conversations...)
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}
