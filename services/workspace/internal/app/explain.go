package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"aiassistant/internal/util"
	"aiassistant/pkg/ai"
	"aiassistant/pkg/domain"
	"aiassistant/services/workspace/internal/chatclient"
)

const (
	// ExplanationErrorReply is shown when no fallback text matches.
	ExplanationErrorReply = "Sorry, I encountered an error generating the explanation. Please try again."
	followUpHistory       = 10
	minSelectionRunes     = 2
)

// Explanation is a popup session for one selected fragment. Sessions live
// in memory only.
type Explanation struct {
	ID           string           `json:"id"`
	SelectedText string           `json:"selectedText"`
	Tone         ai.Tone          `json:"tone"`
	Content      string           `json:"content"`
	Fallback     bool             `json:"fallback"`
	ChatMode     bool             `json:"chatMode"`
	Pending      bool             `json:"pending"`
	Messages     []domain.Message `json:"messages"`
	CreatedAt    time.Time        `json:"createdAt"`
}

type explanation struct {
	Explanation
	// generation changes whenever the follow-up thread is reseeded or
	// cleared, so late replies for an older thread are dropped.
	generation int
}

func (e *explanation) view() Explanation {
	out := e.Explanation
	out.Messages = domain.CloneMessages(e.Messages)
	return out
}

// Explain asks for a short explanation of text. When the completion fails
// after retries the session still opens, showing configured fallback text
// for the term or a generic apology.
func (w *Workspace) Explain(ctx context.Context, text, tone string) (Explanation, error) {
	selected := strings.TrimSpace(text)
	if utf8.RuneCountInString(selected) < minSelectionRunes {
		return Explanation{}, ErrSelectionTooShort
	}
	t, ok := ai.ParseTone(tone)
	if !ok {
		return Explanation{}, fmt.Errorf("%w: %q", ErrInvalidTone, tone)
	}

	prompt := ai.ExplanationPrompt(selected, t)
	content, err := ai.Retry(ctx, w.m.backoff, func(ctx context.Context) (string, error) {
		return w.m.completer.Complete(ctx, []chatclient.Turn{{Role: string(domain.RoleUser), Content: prompt}})
	})
	fallback := err != nil
	if fallback {
		util.LoggerFromContext(ctx).Warn("explanation failed", "workspace_id", w.id, "err", err)
		content = w.m.fallbackFor(selected)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	e := &explanation{Explanation: Explanation{
		ID:           w.m.newID(),
		SelectedText: selected,
		Tone:         t,
		Content:      content,
		Fallback:     fallback,
		Messages:     []domain.Message{},
		CreatedAt:    w.m.now(),
	}}
	w.explanations[e.ID] = e
	w.explanationOrder = append(w.explanationOrder, e.ID)
	for len(w.explanationOrder) > w.m.maxExplanations {
		delete(w.explanations, w.explanationOrder[0])
		w.explanationOrder = w.explanationOrder[1:]
	}
	return e.view(), nil
}

// Explanation returns an open session.
func (w *Workspace) Explanation(id string) (Explanation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.explanationLocked(id)
	if err != nil {
		return Explanation{}, err
	}
	return e.view(), nil
}

// StartFollowUp switches the session to chat mode, seeding it with the
// explanation as context and a greeting. Starting again reseeds.
func (w *Workspace) StartFollowUp(id string) (Explanation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.explanationLocked(id)
	if err != nil {
		return Explanation{}, err
	}
	now := w.m.now()
	e.ChatMode = true
	e.Pending = false
	e.generation++
	e.Messages = []domain.Message{
		{
			ID:        w.m.newID(),
			Role:      domain.RoleAssistant,
			Content:   fmt.Sprintf("Context: User selected \"%s\" and received this explanation: %s", e.SelectedText, e.Content),
			Timestamp: now,
		},
		{
			ID:        w.m.newID(),
			Role:      domain.RoleAssistant,
			Content:   fmt.Sprintf("I'm here to help you understand \"%s\" better! Ask me anything about this topic - I'll provide detailed, personalized explanations.", e.SelectedText),
			Timestamp: now,
		},
	}
	return e.view(), nil
}

// AskFollowUp sends question with the last ten session messages as context.
// A failed call is answered with an assistant message starting "Error: ".
func (w *Workspace) AskFollowUp(ctx context.Context, id, question string) (Explanation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Explanation{}, ErrEmptyQuestion
	}

	w.mu.Lock()
	e, err := w.explanationLocked(id)
	if err != nil {
		w.mu.Unlock()
		return Explanation{}, err
	}
	if !e.ChatMode {
		w.mu.Unlock()
		return Explanation{}, ErrFollowUpNotStarted
	}
	if e.Pending {
		w.mu.Unlock()
		return Explanation{}, ErrSendInProgress
	}
	history := e.Messages
	if len(history) > followUpHistory {
		history = history[len(history)-followUpHistory:]
	}
	turns := append(chatclient.Turns(history), chatclient.Turn{Role: string(domain.RoleUser), Content: question})
	e.Messages = append(e.Messages, domain.Message{
		ID:        w.m.newID(),
		Role:      domain.RoleUser,
		Content:   question,
		Timestamp: w.m.now(),
	})
	e.Pending = true
	generation := e.generation
	w.mu.Unlock()

	reply, cerr := w.m.completer.Complete(context.WithoutCancel(ctx), turns)
	if cerr != nil {
		util.LoggerFromContext(ctx).Warn("follow-up failed", "workspace_id", w.id, "explanation_id", id, "err", cerr)
		reply = "Error: " + cerr.Error()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	current, ok := w.explanations[id]
	if !ok || current != e || e.generation != generation {
		return Explanation{}, fmt.Errorf("%w: %s", ErrExplanationNotFound, id)
	}
	e.Pending = false
	e.Messages = append(e.Messages, domain.Message{
		ID:        w.m.newID(),
		Role:      domain.RoleAssistant,
		Content:   reply,
		Timestamp: w.m.now(),
	})
	return e.view(), nil
}

// ResetExplanation leaves chat mode and clears the follow-up thread. The
// explanation itself is kept.
func (w *Workspace) ResetExplanation(id string) (Explanation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.explanationLocked(id)
	if err != nil {
		return Explanation{}, err
	}
	e.ChatMode = false
	e.Pending = false
	e.generation++
	e.Messages = []domain.Message{}
	return e.view(), nil
}

// CloseExplanation discards the session.
func (w *Workspace) CloseExplanation(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.explanationLocked(id); err != nil {
		return err
	}
	delete(w.explanations, id)
	for i, v := range w.explanationOrder {
		if v == id {
			w.explanationOrder = append(w.explanationOrder[:i], w.explanationOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (w *Workspace) explanationLocked(id string) (*explanation, error) {
	e, ok := w.explanations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExplanationNotFound, id)
	}
	return e, nil
}

func (m *Manager) fallbackFor(selected string) string {
	if text, ok := m.fallbacks[fallbackKey(selected)]; ok {
		return text
	}
	return ExplanationErrorReply
}
