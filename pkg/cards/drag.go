package cards

import (
	"fmt"
	"strings"

	"aiassistant/pkg/domain"
)

// DragKind distinguishes the two intents a drag gesture can carry.
type DragKind string

const (
	// DragInsert carries a message id from the chat panel.
	DragInsert DragKind = "insert"
	// DragReorder carries a card id from inside the collection.
	DragReorder DragKind = "reorder"
)

// DragPayload is the tagged data attached to a drag gesture.
type DragPayload struct {
	Kind      DragKind `json:"kind"`
	MessageID string   `json:"messageId,omitempty"`
	CardID    string   `json:"cardId,omitempty"`
}

// Validate checks that the payload carries exactly the id its kind needs.
func (p DragPayload) Validate() error {
	switch p.Kind {
	case DragInsert:
		if strings.TrimSpace(p.MessageID) == "" || p.CardID != "" {
			return fmt.Errorf("%w: insert needs a message id only", ErrInvalidPayload)
		}
	case DragReorder:
		if strings.TrimSpace(p.CardID) == "" || p.MessageID != "" {
			return fmt.Errorf("%w: reorder needs a card id only", ErrInvalidPayload)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, p.Kind)
	}
	return nil
}

// DragView is the transient ghost and hover state shown while dragging.
type DragView struct {
	Active       bool     `json:"active"`
	Kind         DragKind `json:"kind,omitempty"`
	SourceCardID string   `json:"sourceCardId,omitempty"`
	HoverCardID  string   `json:"hoverCardId,omitempty"`
}

// DragState tracks one gesture at a time. End resets it regardless of
// whether a drop happened.
type DragState struct {
	view DragView
}

// Begin starts a gesture, replacing any gesture that never ended.
func (d *DragState) Begin(p DragPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d.view = DragView{Active: true, Kind: p.Kind}
	if p.Kind == DragReorder {
		d.view.SourceCardID = p.CardID
	}
	return nil
}

// Hover records the card under the pointer. Only reorder gestures track a
// card target; an insert gesture is aimed at the collection as a whole.
func (d *DragState) Hover(cardID string) {
	if !d.view.Active || d.view.Kind != DragReorder {
		return
	}
	if cardID == d.view.SourceCardID {
		cardID = ""
	}
	d.view.HoverCardID = cardID
}

func (d *DragState) End() {
	d.view = DragView{}
}

func (d *DragState) View() DragView {
	return d.view
}

// IntentAction is what a drop resolves to.
type IntentAction string

const (
	IntentNone   IntentAction = "none"
	IntentCreate IntentAction = "create"
	IntentMove   IntentAction = "move"
)

type Intent struct {
	Action       IntentAction `json:"action"`
	MessageID    string       `json:"messageId,omitempty"`
	SourceCardID string       `json:"sourceCardId,omitempty"`
	TargetCardID string       `json:"targetCardId,omitempty"`
}

// Resolve decides what a drop means. targetCardID is the card the payload
// was dropped on, or "" for the collection itself. A reorder payload never
// resolves to a create, wherever it lands.
func Resolve(p DragPayload, targetCardID string) Intent {
	if p.Validate() != nil {
		return Intent{Action: IntentNone}
	}
	switch p.Kind {
	case DragInsert:
		return Intent{Action: IntentCreate, MessageID: p.MessageID}
	case DragReorder:
		if targetCardID == "" || targetCardID == p.CardID {
			return Intent{Action: IntentNone}
		}
		return Intent{Action: IntentMove, SourceCardID: p.CardID, TargetCardID: targetCardID}
	}
	return Intent{Action: IntentNone}
}

// DropResult reports the effect of a drop.
type DropResult struct {
	Intent  Intent              `json:"intent"`
	Card    *domain.ContentCard `json:"card,omitempty"`
	Created bool                `json:"created"`
	Moved   bool                `json:"moved"`
}

// MessageLookup resolves a message id for an insert drop.
type MessageLookup func(messageID string) (domain.Message, bool)

// Drop resolves p against targetCardID and applies it to the store.
func (s *Store) Drop(p DragPayload, targetCardID string, find MessageLookup) (DropResult, error) {
	if err := p.Validate(); err != nil {
		return DropResult{}, err
	}
	intent := Resolve(p, targetCardID)
	res := DropResult{Intent: intent}
	switch intent.Action {
	case IntentCreate:
		msg, ok := find(intent.MessageID)
		if !ok {
			return res, fmt.Errorf("%w: %s", ErrMessageNotFound, intent.MessageID)
		}
		card, created := s.Create(msg)
		res.Created = created
		if card.ID != "" {
			res.Card = &card
		}
	case IntentMove:
		if s.indexOf(intent.TargetCardID) < 0 {
			res.Intent = Intent{Action: IntentNone}
			return res, nil
		}
		if err := s.Move(intent.SourceCardID, intent.TargetCardID); err != nil {
			return res, err
		}
		res.Moved = true
	}
	return res, nil
}
