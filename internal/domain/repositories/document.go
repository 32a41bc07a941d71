package repositories

import (
	"context"

	"inkwell/internal/domain/models"
)

// DocumentSave carries one outbound save. ExpectedVersion is the version
// the caller last read; the store applies the write regardless
// (last-writer-wins) and returns the authoritative new version, so a stale
// ExpectedVersion is a logged warning, never a rejection.
type DocumentSave struct {
	DocumentID      string
	Content         string
	Status          models.EditingStatus
	ExpectedVersion int
	ActorID         string
}

// DocumentRepository is the versioned store for documents.
type DocumentRepository interface {
	// Load retrieves a document by ID.
	Load(ctx context.Context, documentID string) (*models.Document, error)

	// Save applies a write and bumps the version by exactly 1, returning
	// the stored document with its authoritative version.
	Save(ctx context.Context, save *DocumentSave) (*models.Document, error)

	// SaveHeartbeat writes content and editor attribution without bumping
	// the version. Used for admin draft heartbeats.
	SaveHeartbeat(ctx context.Context, save *DocumentSave) (*models.Document, error)

	// Status returns the status projection without the content blob.
	Status(ctx context.Context, documentID string) (*models.DocumentStatus, error)

	// Reset clears content, zeroes the version and returns the status to
	// draft, preserving the row and its ownership attributes.
	Reset(ctx context.Context, documentID, actorID string) error

	// Create inserts a new empty document. Documents are normally created
	// by an external collaborator; this exists for seeding and tests.
	Create(ctx context.Context, doc *models.Document) error
}
