package cards

import (
	"fmt"
	"time"

	"aiassistant/internal/util"
	"aiassistant/pkg/domain"
)

const (
	titleMaxRunes = 50
	ellipsis      = "..."
)

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

// Store keeps the ordered card collection, most recent first.
// Content is unique across cards. Not safe for concurrent use.
type Store struct {
	cards []domain.ContentCard
	now   func() time.Time
	newID func() string
}

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

// CardTitle is the preview title for card content.
func CardTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleMaxRunes {
		return content
	}
	return string(runes[:titleMaxRunes]) + ellipsis
}

// Create saves an assistant message as a card. User messages and content
// already on a card are ignored; created reports whether a card was added.
func (s *Store) Create(msg domain.Message) (card domain.ContentCard, created bool) {
	if msg.Role != domain.RoleAssistant {
		return domain.ContentCard{}, false
	}
	for _, c := range s.cards {
		if c.Content == msg.Content {
			return c, false
		}
	}
	card = domain.ContentCard{
		ID:        s.newID(),
		Content:   msg.Content,
		Title:     CardTitle(msg.Content),
		CreatedAt: s.now(),
	}
	s.cards = append([]domain.ContentCard{card}, s.cards...)
	return card, true
}

// Delete removes a card and reports whether it existed.
func (s *Store) Delete(id string) bool {
	idx := s.indexOf(id)
	if idx < 0 {
		return false
	}
	s.cards = append(s.cards[:idx], s.cards[idx+1:]...)
	return true
}

// Reorder replaces the order wholesale. ids must name every current card
// exactly once, otherwise the order is left unchanged.
func (s *Store) Reorder(ids []string) error {
	if len(ids) != len(s.cards) {
		return fmt.Errorf("%w: got %d ids for %d cards", ErrNotPermutation, len(ids), len(s.cards))
	}
	byID := make(map[string]domain.ContentCard, len(s.cards))
	for _, c := range s.cards {
		byID[c.ID] = c
	}
	next := make([]domain.ContentCard, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: unknown or repeated id %q", ErrNotPermutation, id)
		}
		delete(byID, id)
		next = append(next, c)
	}
	s.cards = next
	return nil
}

// Move splices the source card into the target card's position: the source
// is removed first and then inserted at the index the target held.
func (s *Store) Move(sourceID, targetID string) error {
	from := s.indexOf(sourceID)
	if from < 0 {
		return fmt.Errorf("%w: %s", ErrCardNotFound, sourceID)
	}
	to := s.indexOf(targetID)
	if to < 0 {
		return fmt.Errorf("%w: %s", ErrCardNotFound, targetID)
	}
	if from == to {
		return nil
	}
	moved := s.cards[from]
	rest := append(s.cards[:from:from], s.cards[from+1:]...)
	out := make([]domain.ContentCard, 0, len(s.cards))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	s.cards = out
	return nil
}

// Cards returns a copy of the ordered collection.
func (s *Store) Cards() []domain.ContentCard {
	out := make([]domain.ContentCard, len(s.cards))
	copy(out, s.cards)
	return out
}

// IDs returns the card identities in order.
func (s *Store) IDs() []string {
	out := make([]string, len(s.cards))
	for i, c := range s.cards {
		out[i] = c.ID
	}
	return out
}

func (s *Store) Len() int { return len(s.cards) }

// Restore replaces the collection with loaded cards. Repeated content keeps
// the first occurrence.
func (s *Store) Restore(cards []domain.ContentCard) {
	s.cards = make([]domain.ContentCard, 0, len(cards))
	seen := make(map[string]struct{}, len(cards))
	for _, c := range cards {
		if _, dup := seen[c.Content]; dup {
			continue
		}
		seen[c.Content] = struct{}{}
		if c.Title == "" {
			c.Title = CardTitle(c.Content)
		}
		s.cards = append(s.cards, c)
	}
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.cards {
		if s.cards[i].ID == id {
			return i
		}
	}
	return -1
}
