package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"aiassistant/internal/util"
	"aiassistant/pkg/ai"
	"aiassistant/pkg/cards"
	"aiassistant/pkg/convo"
	"aiassistant/pkg/domain"
	"aiassistant/pkg/events"
	"aiassistant/pkg/persist"
	"aiassistant/pkg/storage"
	"aiassistant/pkg/store"
	"aiassistant/services/workspace/internal/chatclient"
)

const (
	defaultHistoryLimit    = 10
	defaultMaxExplanations = 8
	defaultMaxWorkspaces   = 1024
	persistTimeout         = 5 * time.Second
	publishTimeout         = 2 * time.Second
)

// Completer produces assistant replies. chatclient.Client implements it.
type Completer interface {
	Complete(ctx context.Context, turns []chatclient.Turn) (string, error)
}

// Exporter uploads a card collection. storage.CardExporter implements it.
type Exporter interface {
	Export(ctx context.Context, workspaceID string, cards []domain.ContentCard) (storage.Export, error)
}

// Config holds runtime dependencies for the workspace manager.
type Config struct {
	KV        store.KV
	Completer Completer
	Publisher events.Publisher
	// Exporter is optional; without it card export reports ErrExportDisabled.
	Exporter        Exporter
	HistoryLimit    int
	MaxExplanations int
	// MaxWorkspaces bounds how many workspaces stay resident. The least
	// recently used idle one is dropped first; its state is already stored.
	MaxWorkspaces int
	Fallbacks     map[string]string
	Backoff       ai.Backoff
	Now           func() time.Time
	NewID         func() string
}

// Manager loads workspaces on first use and keeps them resident.
type Manager struct {
	kv              store.KV
	completer       Completer
	publisher       events.Publisher
	exporter        Exporter
	historyLimit    int
	maxExplanations int
	maxWorkspaces   int
	fallbacks       map[string]string
	backoff         ai.Backoff
	now             func() time.Time
	newID           func() string

	mu         sync.Mutex
	workspaces map[string]*Workspace
	loads      singleflight.Group
}

// New constructs the manager.
func New(cfg Config) (*Manager, error) {
	if cfg.KV == nil {
		return nil, errors.New("kv store required")
	}
	if cfg.Completer == nil {
		return nil, errors.New("completer required")
	}
	m := &Manager{
		kv:              cfg.KV,
		completer:       cfg.Completer,
		publisher:       cfg.Publisher,
		exporter:        cfg.Exporter,
		historyLimit:    cfg.HistoryLimit,
		maxExplanations: cfg.MaxExplanations,
		maxWorkspaces:   cfg.MaxWorkspaces,
		fallbacks:       make(map[string]string, len(cfg.Fallbacks)),
		backoff:         cfg.Backoff,
		now:             cfg.Now,
		newID:           cfg.NewID,
		workspaces:      make(map[string]*Workspace),
	}
	if m.publisher == nil {
		m.publisher = events.Nop{}
	}
	if m.historyLimit <= 0 {
		m.historyLimit = defaultHistoryLimit
	}
	if m.maxExplanations <= 0 {
		m.maxExplanations = defaultMaxExplanations
	}
	if m.maxWorkspaces <= 0 {
		m.maxWorkspaces = defaultMaxWorkspaces
	}
	if m.backoff.Attempts <= 0 {
		m.backoff = ai.DefaultBackoff()
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.newID == nil {
		m.newID = util.NewID
	}
	for k, v := range cfg.Fallbacks {
		m.fallbacks[fallbackKey(k)] = v
	}
	return m, nil
}

// ExportEnabled reports whether an exporter is configured.
func (m *Manager) ExportEnabled() bool { return m.exporter != nil }

// Workspace returns the resident workspace for id, loading its persisted
// state on first use. Concurrent first requests share one load. A load that
// cannot read the store fails with ErrWorkspaceUnavailable and is not cached.
func (m *Manager) Workspace(ctx context.Context, id string) (*Workspace, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrWorkspaceRequired
	}
	if w := m.resident(id); w != nil {
		return w, nil
	}
	v, err, _ := m.loads.Do(id, func() (any, error) {
		if w := m.resident(id); w != nil {
			return w, nil
		}
		w, err := m.load(ctx, id)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		w.lastUsed = m.now()
		m.workspaces[id] = w
		m.evictLocked(id)
		m.mu.Unlock()
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workspace), nil
}

// Loaded counts resident workspaces.
func (m *Manager) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

func (m *Manager) resident(id string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.workspaces[id]
	if w != nil {
		w.lastUsed = m.now()
	}
	return w
}

// evictLocked drops least recently used idle workspaces until the resident
// set fits. keep is never dropped. Busy workspaces are skipped, so the set
// may stay over the bound until they finish.
func (m *Manager) evictLocked(keep string) {
	for len(m.workspaces) > m.maxWorkspaces {
		var victim *Workspace
		for id, w := range m.workspaces {
			if id == keep {
				continue
			}
			if victim == nil || w.lastUsed.Before(victim.lastUsed) {
				if w.idle() {
					victim = w
				}
			}
		}
		if victim == nil {
			return
		}
		delete(m.workspaces, victim.id)
	}
}

// load restores whatever decodes. Corrupt keys fall back to defaults and
// are logged; they are overwritten by the next change. A store that cannot
// be read fails the load, since saving defaults would destroy real state.
func (m *Manager) load(ctx context.Context, id string) (*Workspace, error) {
	adapter := persist.New(m.kv, id)
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	snap, err := adapter.Load(loadCtx)
	if errors.Is(err, persist.ErrRead) {
		return nil, fmt.Errorf("%w: %w", ErrWorkspaceUnavailable, err)
	}
	if err != nil {
		util.LoggerFromContext(ctx).Warn("workspace state partially loaded", "workspace_id", id, "err", err)
	}

	w := &Workspace{
		id:           id,
		m:            m,
		persist:      adapter,
		convos:       convo.New(convo.WithClock(m.now), convo.WithIDs(m.newID)),
		cards:        cards.New(cards.WithClock(m.now), cards.WithIDs(m.newID)),
		sidebarOpen:  snap.SidebarOpen,
		explanations: make(map[string]*explanation),
	}
	w.convos.Restore(snap.Conversations, snap.ActiveConversationID)
	w.cards.Restore(snap.Cards)
	util.LoggerFromContext(ctx).Info("workspace loaded",
		"workspace_id", id,
		"conversations", len(snap.Conversations),
		"cards", w.cards.Len(),
	)
	return w, nil
}

func fallbackKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
