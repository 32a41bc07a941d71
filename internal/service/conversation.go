package service

import (
	"context"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"inkwell/internal/config"
	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/repositories"
	"inkwell/internal/domain/services"
	"inkwell/internal/service/audit"
)

// conversationService implements the ConversationService interface
type conversationService struct {
	convRepo  repositories.ConversationRepository
	txManager repositories.TransactionManager
	auditor   *audit.Emitter
	logger    *slog.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	convRepo repositories.ConversationRepository,
	txManager repositories.TransactionManager,
	auditor *audit.Emitter,
	logger *slog.Logger,
) services.ConversationService {
	return &conversationService{
		convRepo:  convRepo,
		txManager: txManager,
		auditor:   auditor,
		logger:    logger,
	}
}

// Create validates and persists a new conversation
func (s *conversationService) Create(ctx context.Context, req *services.CreateConversationRequest) (*models.Conversation, error) {
	err := validation.ValidateStruct(req,
		validation.Field(&req.OwnerID, validation.Required),
		validation.Field(&req.Title,
			validation.Required,
			validation.Length(1, config.MaxConversationTitleLength),
		),
	)
	if err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	conv := &models.Conversation{
		OwnerID:    req.OwnerID,
		Title:      req.Title,
		ContextRef: req.ContextRef,
	}
	if err := s.convRepo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	return conv, nil
}

// List returns the owner's active conversations, newest first
func (s *conversationService) List(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	if ownerID == "" {
		return nil, &domain.ValidationError{Message: "owner ID is required"}
	}
	return s.convRepo.ListConversations(ctx, ownerID)
}

// Archive soft-deletes a conversation. The ownership check and the archive
// run in one transaction so a concurrent owner change cannot slip between
// them.
func (s *conversationService) Archive(ctx context.Context, conversationID, actorID string) error {
	if conversationID == "" {
		return &domain.ValidationError{Message: "conversation ID is required"}
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		conv, err := s.convRepo.GetConversation(txCtx, conversationID)
		if err != nil {
			return err
		}
		if conv.OwnerID != actorID {
			return &domain.ForbiddenError{Message: "conversation belongs to another owner"}
		}
		return s.convRepo.ArchiveConversation(txCtx, conversationID)
	})
	if err != nil {
		return err
	}

	s.auditor.Emit(conversationID, actorID, models.AuditActionArchive, "conversation archived")
	return nil
}

// Append validates and persists one message
func (s *conversationService) Append(ctx context.Context, req *services.AppendMessageRequest) (*models.Message, error) {
	err := validation.ValidateStruct(req,
		validation.Field(&req.ConversationID, validation.Required),
		validation.Field(&req.Role,
			validation.Required,
			validation.In(models.RoleUser, models.RoleAssistant),
		),
		validation.Field(&req.Content,
			validation.Required,
			validation.Length(1, config.MaxMessageContentLength),
		),
	)
	if err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	msg := &models.Message{
		ConversationID: req.ConversationID,
		LocalID:        req.LocalID,
		Role:           req.Role,
		Content:        req.Content,
		Metadata:       req.Metadata,
	}
	if err := s.convRepo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// Messages returns a conversation's messages in creation order
func (s *conversationService) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if conversationID == "" {
		return nil, &domain.ValidationError{Message: "conversation ID is required"}
	}
	return s.convRepo.ListMessages(ctx, conversationID)
}
