package repositories

import (
	"context"

	"inkwell/internal/domain/models"
)

// ConversationRepository is the store for conversations and their messages.
type ConversationRepository interface {
	// CreateConversation inserts a new conversation and fills in its ID
	// and timestamps.
	CreateConversation(ctx context.Context, conv *models.Conversation) error

	// GetConversation retrieves a conversation by ID, archived or not.
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)

	// ListConversations returns the owner's non-archived conversations,
	// newest first.
	ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error)

	// ArchiveConversation soft-deletes a conversation.
	ArchiveConversation(ctx context.Context, conversationID string) error

	// AppendMessage persists one message and fills in its ID and timestamp.
	// Also touches the parent conversation's updated_at.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// ListMessages returns all messages of a conversation in creation order.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}
