package app

import (
	"errors"

	"aiassistant/pkg/cards"
	"aiassistant/pkg/convo"
)

var (
	ErrWorkspaceRequired    = errors.New("workspace id required")
	// ErrWorkspaceUnavailable means stored state could not be read; the
	// workspace is not cached so a later request retries the load.
	ErrWorkspaceUnavailable = errors.New("workspace state unavailable")
	ErrEmptyMessage         = errors.New("message is empty")
	// ErrSendInProgress rejects a send while the previous reply is pending.
	ErrSendInProgress       = errors.New("a message is already being sent")
	ErrNotAssistantMessage  = errors.New("only assistant messages can become cards")
	ErrExportDisabled       = errors.New("card export is not configured")
	ErrSelectionTooShort    = errors.New("selection must be at least 2 characters")
	ErrInvalidTone          = errors.New("tone must be beginner, intermediate or advanced")
	ErrExplanationNotFound  = errors.New("explanation not found")
	ErrFollowUpNotStarted   = errors.New("follow-up chat not started")
	ErrEmptyQuestion        = errors.New("question is empty")
	ErrConversationNotFound = convo.ErrConversationNotFound
	ErrCardNotFound         = cards.ErrCardNotFound
	ErrMessageNotFound      = cards.ErrMessageNotFound
)
