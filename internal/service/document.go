package service

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/repositories"
	"inkwell/internal/domain/services"
	"inkwell/internal/service/audit"
	"inkwell/internal/tuning"
)

// documentService implements the DocumentService interface
type documentService struct {
	docRepo repositories.DocumentRepository
	auditor *audit.Emitter
	tuning  tuning.SyncTuning
	logger  *slog.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	docRepo repositories.DocumentRepository,
	auditor *audit.Emitter,
	tuning tuning.SyncTuning,
	logger *slog.Logger,
) services.DocumentService {
	return &documentService{
		docRepo: docRepo,
		auditor: auditor,
		tuning:  tuning,
		logger:  logger,
	}
}

// Load retrieves a document
func (s *documentService) Load(ctx context.Context, documentID string) (*models.Document, error) {
	if documentID == "" {
		return nil, &domain.ValidationError{Message: "document ID is required"}
	}
	return s.docRepo.Load(ctx, documentID)
}

// Save validates and applies a versioned save. The store is permissive
// (last-writer-wins), so the returned document carries the authoritative
// version the caller must adopt as its next baseline.
func (s *documentService) Save(ctx context.Context, req *services.SaveDocumentRequest) (*models.Document, error) {
	if err := s.validateSave(req); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	status := req.Status
	if status == models.StatusPublished {
		// Downstream consumers don't support "published" yet; normalize
		// rather than reject.
		s.logger.Warn("status published not supported downstream, remapping to final",
			"document_id", req.DocumentID,
		)
		status = models.StatusFinal
	}

	save := &repositories.DocumentSave{
		DocumentID:      req.DocumentID,
		Content:         req.Content,
		Status:          status,
		ExpectedVersion: req.ExpectedVersion,
		ActorID:         req.ActorID,
	}

	var (
		doc *models.Document
		err error
	)
	if req.Heartbeat {
		doc, err = s.docRepo.SaveHeartbeat(ctx, save)
	} else {
		doc, err = s.docRepo.Save(ctx, save)
	}
	if err != nil {
		return nil, err
	}

	if req.AdminActorID != "" {
		action := models.AuditActionAdminSave
		detail := fmt.Sprintf("admin %s edited document owned by %s (version %d)",
			req.AdminActorID, doc.OwnerID, doc.Version)
		if req.Heartbeat {
			detail = fmt.Sprintf("admin %s draft heartbeat on document owned by %s",
				req.AdminActorID, doc.OwnerID)
		}
		s.auditor.Emit(doc.ID, req.AdminActorID, action, detail)
	} else if !req.Heartbeat {
		s.auditor.Emit(doc.ID, req.ActorID, models.AuditActionSave,
			fmt.Sprintf("saved version %d", doc.Version))
	}

	return doc, nil
}

// Status returns the document's status projection
func (s *documentService) Status(ctx context.Context, documentID string) (*models.DocumentStatus, error) {
	if documentID == "" {
		return nil, &domain.ValidationError{Message: "document ID is required"}
	}
	return s.docRepo.Status(ctx, documentID)
}

// Reset clears content/version/status while preserving the record
func (s *documentService) Reset(ctx context.Context, documentID, actorID string) error {
	if documentID == "" {
		return &domain.ValidationError{Message: "document ID is required"}
	}

	if err := s.docRepo.Reset(ctx, documentID, actorID); err != nil {
		return err
	}

	s.auditor.Emit(documentID, actorID, models.AuditActionReset, "document reset to empty draft")
	return nil
}

func (s *documentService) validateSave(req *services.SaveDocumentRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.ActorID, validation.Required),
		validation.Field(&req.Content,
			validation.Length(0, s.tuning.MaxContentBytes),
		),
		validation.Field(&req.Status,
			validation.Required,
			validation.In(models.ValidStatuses...),
		),
		validation.Field(&req.ExpectedVersion, validation.Min(0)),
	)
}
