package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/repositories"
)

// PostgresConversationRepository implements the ConversationRepository
// interface using PostgreSQL
type PostgresConversationRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewConversationRepository creates a new PostgresConversationRepository
func NewConversationRepository(config *RepositoryConfig) repositories.ConversationRepository {
	return &PostgresConversationRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateConversation inserts a new conversation
func (r *PostgresConversationRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, title, context_ref, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, r.tables.Conversations)

	now := time.Now().UTC()
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		conv.OwnerID,
		conv.Title,
		conv.ContextRef,
		conv.Archived,
		now,
		now,
	).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID, archived or not
func (r *PostgresConversationRepository) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, title, context_ref, archived, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, r.tables.Conversations)

	var conv models.Conversation
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, conversationID).Scan(
		&conv.ID,
		&conv.OwnerID,
		&conv.Title,
		&conv.ContextRef,
		&conv.Archived,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return &conv, nil
}

// ListConversations returns the owner's non-archived conversations,
// newest first
func (r *PostgresConversationRepository) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, title, context_ref, archived, created_at, updated_at
		FROM %s
		WHERE owner_id = $1 AND archived = false
		ORDER BY updated_at DESC
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		err := rows.Scan(
			&conv.ID,
			&conv.OwnerID,
			&conv.Title,
			&conv.ContextRef,
			&conv.Archived,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	return convs, nil
}

// ArchiveConversation soft-deletes a conversation
func (r *PostgresConversationRepository) ArchiveConversation(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET archived = true, updated_at = $2
		WHERE id = $1
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, conversationID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}

	return nil
}

// messageMetadata builds the metadata column value, folding the client's
// local identity in without mutating the caller's map.
func messageMetadata(msg *models.Message) map[string]interface{} {
	if msg.LocalID == "" {
		return msg.Metadata
	}

	metadata := make(map[string]interface{}, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		metadata[k] = v
	}
	metadata["local_id"] = msg.LocalID
	return metadata
}

// AppendMessage persists one message and touches the parent conversation's
// updated_at so active listings keep their newest-first order
func (r *PostgresConversationRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (conversation_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, r.tables.Messages)

	metadata := messageMetadata(msg)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		metadata,
		time.Now().UTC(),
	).Scan(&msg.ID, &msg.CreatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, domain.ErrNotFound)
		}
		return fmt.Errorf("append message: %w", err)
	}

	touch := fmt.Sprintf(`UPDATE %s SET updated_at = $2 WHERE id = $1`, r.tables.Conversations)
	if _, err := executor.Exec(ctx, touch, msg.ConversationID, msg.CreatedAt); err != nil {
		r.logger.Warn("failed to touch conversation updated_at",
			"conversation_id", msg.ConversationID,
			"error", err,
		)
	}

	return nil
}

// ListMessages returns all messages of a conversation in creation order
func (r *PostgresConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	// Verify the conversation exists so callers get NotFound instead of
	// an empty transcript
	if _, err := r.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&msg.Metadata,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if localID, ok := msg.Metadata["local_id"].(string); ok {
			msg.LocalID = localID
		}
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return msgs, nil
}
