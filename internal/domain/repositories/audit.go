package repositories

import (
	"context"

	"inkwell/internal/domain/models"
)

// AuditRepository is the append-only audit log store.
type AuditRepository interface {
	// Append writes one audit record.
	Append(ctx context.Context, rec *models.AuditRecord) error

	// ListBySubject returns the audit trail for a subject, newest first.
	ListBySubject(ctx context.Context, subjectID string) ([]models.AuditRecord, error)
}
