package models

import (
	"time"
)

// Audit actions recorded by the emitter.
const (
	AuditActionSave      = "document.save"
	AuditActionAdminSave = "document.admin_save"
	AuditActionReset     = "document.reset"
	AuditActionArchive   = "conversation.archive"
)

// AuditRecord is one append-only entry of who changed what and when.
// Writes are best-effort side effects; they never fail the operation
// they describe.
type AuditRecord struct {
	ID        string    `json:"id" db:"id"`
	SubjectID string    `json:"subject_id" db:"subject_id"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	Action    string    `json:"action" db:"action"`
	Detail    string    `json:"detail" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
