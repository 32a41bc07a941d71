package services

import (
	"context"

	"inkwell/internal/domain/models"
)

// ConversationService handles conversation and message persistence.
type ConversationService interface {
	// Create validates and persists a new conversation.
	Create(ctx context.Context, req *CreateConversationRequest) (*models.Conversation, error)

	// List returns the owner's active (non-archived) conversations,
	// newest first.
	List(ctx context.Context, ownerID string) ([]models.Conversation, error)

	// Archive soft-deletes a conversation.
	Archive(ctx context.Context, conversationID, actorID string) error

	// Append validates and persists one message.
	Append(ctx context.Context, req *AppendMessageRequest) (*models.Message, error)

	// Messages returns a conversation's messages in creation order.
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// CreateConversationRequest represents a conversation creation request.
type CreateConversationRequest struct {
	OwnerID    string  `json:"-"` // Set from auth context
	Title      string  `json:"title"`
	ContextRef *string `json:"context_ref,omitempty"`
}

// AppendMessageRequest represents a message persistence request.
type AppendMessageRequest struct {
	ConversationID string                 `json:"conversation_id"`
	LocalID        string                 `json:"local_id,omitempty"`
	Role           string                 `json:"role"`
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}
