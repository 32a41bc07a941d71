package services

import (
	"context"

	"inkwell/internal/domain/models"
)

// DocumentService handles document persistence business logic: request
// validation, status normalization and audit attribution. It sits between
// the sync engine and the versioned store.
type DocumentService interface {
	// Load retrieves a document.
	Load(ctx context.Context, documentID string) (*models.Document, error)

	// Save validates and applies a versioned save, returning the stored
	// document with its authoritative version.
	Save(ctx context.Context, req *SaveDocumentRequest) (*models.Document, error)

	// Status returns the document's status projection.
	Status(ctx context.Context, documentID string) (*models.DocumentStatus, error)

	// Reset clears content/version/status while preserving the record.
	Reset(ctx context.Context, documentID, actorID string) error
}

// SaveDocumentRequest represents one outbound save from the sync engine.
type SaveDocumentRequest struct {
	DocumentID      string               `json:"document_id"`
	ActorID         string               `json:"-"` // Set from auth context, not from request body
	Content         string               `json:"content"`
	Status          models.EditingStatus `json:"status"`
	ExpectedVersion int                  `json:"expected_version"`

	// Heartbeat saves write content without bumping the version. Used by
	// admin-mode autosave so draft keepalives don't pollute the counter.
	Heartbeat bool `json:"-"`

	// AdminActorID, when non-empty, marks an admin-initiated save; every
	// committed admin save is audited against the document owner.
	AdminActorID string `json:"-"`
}
