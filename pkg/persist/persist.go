package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aiassistant/pkg/domain"
	"aiassistant/pkg/store"
)

// Keys under which workspace state is stored. Each is prefixed with the
// workspace id.
const (
	KeyConversations      = "ai-assistant-conversations"
	KeyActiveConversation = "ai-assistant-current-conversation"
	KeyCards              = "ai-assistant-cards"
	KeySidebar            = "ai-assistant-sidebar"
)

// ErrRead marks a key the store could not return. Unlike a corrupt value,
// the stored state may be intact, so callers must not save over it.
var ErrRead = errors.New("read workspace state")

// isoLayout matches what browsers produce for Date.prototype.toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Adapter reads and writes one workspace's state through a KV store.
type Adapter struct {
	kv        store.KV
	namespace string
}

func New(kv store.KV, workspaceID string) *Adapter {
	return &Adapter{kv: kv, namespace: workspaceID}
}

func (a *Adapter) key(name string) string {
	if a.namespace == "" {
		return name
	}
	return a.namespace + ":" + name
}

// Load reads all four keys. Each key decodes independently: a corrupt value
// is reported in the joined error while the other keys still load. Store
// failures wrap ErrRead. Missing keys yield defaults with the sidebar open.
func (a *Adapter) Load(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.Snapshot{
		Conversations: []domain.Conversation{},
		Cards:         []domain.ContentCard{},
		SidebarOpen:   true,
	}
	var errs []error

	if raw, ok, err := a.kv.Get(ctx, a.key(KeyConversations)); err != nil {
		errs = append(errs, fmt.Errorf("%w %s: %w", ErrRead, KeyConversations, err))
	} else if ok {
		convs, err := decodeConversations(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", KeyConversations, err))
		} else {
			snap.Conversations = convs
		}
	}

	if raw, ok, err := a.kv.Get(ctx, a.key(KeyActiveConversation)); err != nil {
		errs = append(errs, fmt.Errorf("%w %s: %w", ErrRead, KeyActiveConversation, err))
	} else if ok {
		snap.ActiveConversationID = strings.TrimSpace(raw)
	}

	if raw, ok, err := a.kv.Get(ctx, a.key(KeyCards)); err != nil {
		errs = append(errs, fmt.Errorf("%w %s: %w", ErrRead, KeyCards, err))
	} else if ok {
		cards, err := decodeCards(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", KeyCards, err))
		} else {
			snap.Cards = cards
		}
	}

	if raw, ok, err := a.kv.Get(ctx, a.key(KeySidebar)); err != nil {
		errs = append(errs, fmt.Errorf("%w %s: %w", ErrRead, KeySidebar, err))
	} else if ok {
		open, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", KeySidebar, err))
		} else {
			snap.SidebarOpen = open
		}
	}

	return snap, errors.Join(errs...)
}

// Save writes every key and joins the failures.
func (a *Adapter) Save(ctx context.Context, snap domain.Snapshot) error {
	return errors.Join(
		a.SaveConversations(ctx, snap.Conversations),
		a.SaveActive(ctx, snap.ActiveConversationID),
		a.SaveCards(ctx, snap.Cards),
		a.SaveSidebar(ctx, snap.SidebarOpen),
	)
}

func (a *Adapter) SaveConversations(ctx context.Context, convs []domain.Conversation) error {
	records := make([]conversationRecord, 0, len(convs))
	for _, c := range convs {
		records = append(records, conversationToRecord(c))
	}
	return a.setJSON(ctx, KeyConversations, records)
}

// SaveActive stores the active conversation id; an empty id removes the key.
func (a *Adapter) SaveActive(ctx context.Context, id string) error {
	if id == "" {
		if err := a.kv.Delete(ctx, a.key(KeyActiveConversation)); err != nil {
			return fmt.Errorf("delete %s: %w", KeyActiveConversation, err)
		}
		return nil
	}
	if err := a.kv.Set(ctx, a.key(KeyActiveConversation), id); err != nil {
		return fmt.Errorf("write %s: %w", KeyActiveConversation, err)
	}
	return nil
}

func (a *Adapter) SaveCards(ctx context.Context, cards []domain.ContentCard) error {
	records := make([]cardRecord, 0, len(cards))
	for _, c := range cards {
		records = append(records, cardRecord{
			ID:        c.ID,
			Content:   c.Content,
			Title:     c.Title,
			CreatedAt: formatInstant(c.CreatedAt),
		})
	}
	return a.setJSON(ctx, KeyCards, records)
}

func (a *Adapter) SaveSidebar(ctx context.Context, open bool) error {
	if err := a.kv.Set(ctx, a.key(KeySidebar), strconv.FormatBool(open)); err != nil {
		return fmt.Errorf("write %s: %w", KeySidebar, err)
	}
	return nil
}

func (a *Adapter) setJSON(ctx context.Context, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := a.kv.Set(ctx, a.key(name), string(raw)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

type messageRecord struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Role      domain.Role `json:"role"`
	Timestamp string      `json:"timestamp"`
}

type conversationRecord struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []messageRecord `json:"messages"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

type cardRecord struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
}

func conversationToRecord(c domain.Conversation) conversationRecord {
	msgs := make([]messageRecord, 0, len(c.Messages))
	for _, m := range c.Messages {
		msgs = append(msgs, messageRecord{
			ID:        m.ID,
			Content:   m.Content,
			Role:      m.Role,
			Timestamp: formatInstant(m.Timestamp),
		})
	}
	return conversationRecord{
		ID:        c.ID,
		Title:     c.Title,
		Messages:  msgs,
		CreatedAt: formatInstant(c.CreatedAt),
		UpdatedAt: formatInstant(c.UpdatedAt),
	}
}

func decodeConversations(raw string) ([]domain.Conversation, error) {
	var records []conversationRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		msgs := make([]domain.Message, 0, len(r.Messages))
		for _, m := range r.Messages {
			msgs = append(msgs, domain.Message{
				ID:        m.ID,
				Content:   m.Content,
				Role:      m.Role,
				Timestamp: parseInstant(m.Timestamp),
			})
		}
		out = append(out, domain.Conversation{
			ID:        r.ID,
			Title:     r.Title,
			Messages:  msgs,
			CreatedAt: parseInstant(r.CreatedAt),
			UpdatedAt: parseInstant(r.UpdatedAt),
		})
	}
	return out, nil
}

func decodeCards(raw string) ([]domain.ContentCard, error) {
	var records []cardRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, err
	}
	out := make([]domain.ContentCard, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		out = append(out, domain.ContentCard{
			ID:        r.ID,
			Content:   r.Content,
			Title:     r.Title,
			CreatedAt: parseInstant(r.CreatedAt),
		})
	}
	return out, nil
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(isoLayout)
}

// parseInstant accepts RFC 3339 with or without fractional seconds and a
// zone-less form read as UTC. Unparseable input yields the zero time.
func parseInstant(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
