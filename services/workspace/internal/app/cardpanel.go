package app

import (
	"context"
	"fmt"

	"aiassistant/pkg/cards"
	"aiassistant/pkg/domain"
	"aiassistant/pkg/events"
	"aiassistant/pkg/storage"
)

// Cards lists saved cards, newest first unless reordered.
func (w *Workspace) Cards() []domain.ContentCard {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cards.Cards()
}

// CreateCard saves the assistant message messageID as a card. Saving content
// that is already on a card returns that card with created false.
func (w *Workspace) CreateCard(ctx context.Context, messageID string) (domain.ContentCard, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg, ok := w.convos.FindMessage(messageID)
	if !ok {
		return domain.ContentCard{}, false, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	if msg.Role != domain.RoleAssistant {
		return domain.ContentCard{}, false, ErrNotAssistantMessage
	}
	card, created := w.cards.Create(msg)
	if created {
		w.saveCardsLocked(ctx)
		w.publishLocked(ctx, events.Event{Type: events.CardCreated, CardID: card.ID, MessageID: messageID})
	}
	return card, created, nil
}

// DeleteCard removes a card; deleting an unknown id changes nothing.
func (w *Workspace) DeleteCard(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.cards.Delete(id) {
		return nil
	}
	w.saveCardsLocked(ctx)
	w.publishLocked(ctx, events.Event{Type: events.CardDeleted, CardID: id})
	return nil
}

// ReorderCards applies a full permutation of the current card ids.
func (w *Workspace) ReorderCards(ctx context.Context, ids []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.cards.Reorder(ids); err != nil {
		return err
	}
	w.saveCardsLocked(ctx)
	w.publishLocked(ctx, events.Event{Type: events.CardsReordered})
	return nil
}

// BeginDrag starts a gesture carrying p.
func (w *Workspace) BeginDrag(p cards.DragPayload) (cards.DragView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.drag.Begin(p); err != nil {
		return cards.DragView{}, err
	}
	return w.drag.View(), nil
}

// HoverDrag marks cardID as the drop target under the pointer.
func (w *Workspace) HoverDrag(cardID string) cards.DragView {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.drag.Hover(cardID)
	return w.drag.View()
}

// EndDrag clears the gesture whether or not a drop happened.
func (w *Workspace) EndDrag() cards.DragView {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.drag.End()
	return w.drag.View()
}

// Drop applies p dropped on targetCardID ("" for the collection) and ends
// the gesture. Insert payloads resolve their message against the active
// thread first and then every conversation.
func (w *Workspace) Drop(ctx context.Context, p cards.DragPayload, targetCardID string) (cards.DropResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.drag.End()
	res, err := w.cards.Drop(p, targetCardID, w.convos.FindMessage)
	if err != nil {
		return res, err
	}
	switch {
	case res.Created:
		w.saveCardsLocked(ctx)
		w.publishLocked(ctx, events.Event{Type: events.CardCreated, CardID: res.Card.ID, MessageID: p.MessageID})
	case res.Moved:
		w.saveCardsLocked(ctx)
		w.publishLocked(ctx, events.Event{Type: events.CardsReordered, CardID: p.CardID})
	}
	return res, nil
}

// ExportCards uploads the card collection and returns a download link.
func (w *Workspace) ExportCards(ctx context.Context) (storage.Export, error) {
	if w.m.exporter == nil {
		return storage.Export{}, ErrExportDisabled
	}
	snapshot := w.Cards()
	return w.m.exporter.Export(ctx, w.id, snapshot)
}
