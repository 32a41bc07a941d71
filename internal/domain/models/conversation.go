package models

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a persisted chat session. Archived conversations are
// soft-deleted: excluded from active listings but never physically removed.
type Conversation struct {
	ID         string    `json:"id" db:"id"`
	OwnerID    string    `json:"owner_id" db:"owner_id"`
	Title      string    `json:"title" db:"title"`
	ContextRef *string   `json:"context_ref,omitempty" db:"context_ref"` // NULL = no linked domain object
	Archived   bool      `json:"archived" db:"archived"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Message is one persisted chat message. LocalID carries the
// client-generated identity used for duplicate suppression; it is stored
// in metadata so a message is persisted at most once no matter how many
// times the session manager observes it.
type Message struct {
	ID             string                 `json:"id" db:"id"`
	ConversationID string                 `json:"conversation_id" db:"conversation_id"`
	LocalID        string                 `json:"local_id,omitempty"`
	Role           string                 `json:"role" db:"role"`
	Content        string                 `json:"content" db:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
}
