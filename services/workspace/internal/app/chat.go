package app

import (
	"context"
	"errors"
	"strings"

	"aiassistant/internal/util"
	"aiassistant/pkg/ai"
	"aiassistant/pkg/domain"
	"aiassistant/pkg/events"
	"aiassistant/services/workspace/internal/chatclient"
)

// ChatErrorReply replaces the assistant reply when the completion fails for
// a reason the user cannot act on.
const ChatErrorReply = "Sorry, I encountered an error. Please try again."

// SendResult describes one send/receive cycle.
type SendResult struct {
	ConversationID string              `json:"conversationId"`
	Status         domain.ThreadStatus `json:"status"`
	UserMessage    domain.Message      `json:"userMessage"`
	Reply          *domain.Message     `json:"reply,omitempty"`
	// Failed marks a reply that is an error placeholder.
	Failed bool `json:"failed"`
	// Dropped is set when the target conversation disappeared before the
	// reply arrived.
	Dropped bool `json:"dropped"`
}

// Send appends text as a user message to the active thread, asks the
// completion service for a reply and appends it to the same thread. Only
// one send per workspace may be pending.
func (w *Workspace) Send(ctx context.Context, text string) (SendResult, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return SendResult{}, ErrEmptyMessage
	}

	w.mu.Lock()
	if w.sending {
		w.mu.Unlock()
		return SendResult{}, ErrSendInProgress
	}
	var history []domain.Message
	if active := w.convos.ActiveID(); active != "" {
		history = w.convos.History(active, w.m.historyLimit)
	}
	appended, err := w.convos.AppendMessage(content, domain.RoleUser, "")
	if err != nil {
		w.mu.Unlock()
		return SendResult{}, err
	}
	w.sending = true
	userMsg, _ := w.convos.FindMessage(appended.MessageID)
	w.saveConversationsLocked(ctx)
	w.publishLocked(ctx, events.Event{
		Type:           events.MessageAppended,
		ConversationID: appended.ConversationID,
		MessageID:      appended.MessageID,
	})
	w.mu.Unlock()

	turns := append(chatclient.Turns(history), chatclient.Turn{Role: string(domain.RoleUser), Content: content})
	// The reply belongs to the conversation even if the caller goes away.
	reply, cerr := w.m.completer.Complete(context.WithoutCancel(ctx), turns)
	failed := cerr != nil
	if failed {
		util.LoggerFromContext(ctx).Warn("completion failed", "workspace_id", w.id, "conversation_id", appended.ConversationID, "err", cerr)
		reply = replyForError(cerr)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.sending = false
	res := SendResult{
		ConversationID: appended.ConversationID,
		Status:         appended.Status,
		UserMessage:    userMsg,
		Failed:         failed,
	}
	landed, err := w.convos.AppendMessage(reply, domain.RoleAssistant, appended.ConversationID)
	if errors.Is(err, ErrConversationNotFound) {
		util.LoggerFromContext(ctx).Info("reply dropped, conversation gone", "workspace_id", w.id, "conversation_id", appended.ConversationID)
		res.Dropped = true
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if msg, ok := w.convos.FindMessage(landed.MessageID); ok {
		res.Reply = &msg
	}
	res.Status = landed.Status
	w.saveConversationsLocked(ctx)
	w.publishLocked(ctx, events.Event{
		Type:           events.MessageAppended,
		ConversationID: landed.ConversationID,
		MessageID:      landed.MessageID,
	})
	if landed.Promoted {
		w.publishLocked(ctx, events.Event{Type: events.ConversationCommitted, ConversationID: landed.ConversationID})
	}
	return res, nil
}

// replyForError picks the assistant text shown in place of a reply.
// Configuration problems are shown verbatim; rate limits suggest waiting.
func replyForError(err error) string {
	var apiErr *chatclient.APIError
	if errors.As(err, &apiErr) {
		switch ai.ErrorKind(apiErr.Type) {
		case ai.KindConfig:
			return apiErr.Message
		case ai.KindRate:
			return ai.RateLimitMessage
		}
	}
	return ChatErrorReply
}
