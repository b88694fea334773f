package domain

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ThreadStatus tags the active thread as a draft or a committed conversation.
type ThreadStatus string

const (
	ThreadDraft     ThreadStatus = "draft"
	ThreadCommitted ThreadStatus = "committed"
)

// DefaultConversationTitle is used until a user message is available.
const DefaultConversationTitle = "New Conversation"

type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Draft is a conversation that has user input but no assistant reply yet.
// It is never listed or persisted.
type Draft struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

// Thread is the tagged view of whatever conversation is currently active.
type Thread struct {
	Status   ThreadStatus `json:"status"`
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Messages []Message    `json:"messages"`
}

type ContentCard struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is the persisted workspace state.
type Snapshot struct {
	Conversations        []Conversation `json:"conversations"`
	ActiveConversationID string         `json:"activeConversationId,omitempty"`
	Cards                []ContentCard  `json:"cards"`
	SidebarOpen          bool           `json:"sidebarOpen"`
}

// CloneMessages returns a copy of msgs safe to hand out of a store.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	c.Messages = CloneMessages(c.Messages)
	return c
}
