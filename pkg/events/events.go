package events

import (
	"context"
	"errors"
	"time"
)

// Type names a workspace state change.
type Type string

const (
	MessageAppended       Type = "message.appended"
	ConversationCommitted Type = "conversation.committed"
	ConversationCreated   Type = "conversation.created"
	ConversationSelected  Type = "conversation.selected"
	ConversationDeleted   Type = "conversation.deleted"
	CardCreated           Type = "card.created"
	CardDeleted           Type = "card.deleted"
	CardsReordered        Type = "cards.reordered"
	SidebarToggled        Type = "sidebar.toggled"
)

// Event tells observers that workspace state changed. Consumers re-read the
// state they care about; events carry ids only.
type Event struct {
	Type           Type      `json:"type"`
	WorkspaceID    string    `json:"workspaceId"`
	ConversationID string    `json:"conversationId,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	CardID         string    `json:"cardId,omitempty"`
	At             time.Time `json:"at"`
}

// Publisher delivers events. Publishing is best effort: callers log
// failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Multi fans an event out to every publisher.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
