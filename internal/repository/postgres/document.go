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

// PostgresDocumentRepository implements the DocumentRepository interface
// using PostgreSQL. Saves are last-writer-wins: the version is bumped
// server-side in one atomic UPDATE and the stored row is returned, so a
// caller with a stale expected version still commits and must adopt the
// returned version as its new baseline.
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDocumentRepository creates a new PostgresDocumentRepository
func NewDocumentRepository(config *RepositoryConfig) repositories.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const documentColumns = "id, owner_id, content, version, status, last_edited_by, last_edited_at, created_at"

// Load retrieves a document by ID
func (r *PostgresDocumentRepository) Load(ctx context.Context, documentID string) (*models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1
	`, documentColumns, r.tables.Documents)

	var doc models.Document
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, documentID).Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Content,
		&doc.Version,
		&doc.Status,
		&doc.LastEditedBy,
		&doc.LastEditedAt,
		&doc.CreatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load document: %w", err)
	}

	return &doc, nil
}

// Save applies a write and bumps the version by exactly 1 in a single
// atomic UPDATE, returning the stored document.
func (r *PostgresDocumentRepository) Save(ctx context.Context, save *repositories.DocumentSave) (*models.Document, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $2,
		    version = version + 1,
		    status = $3,
		    last_edited_by = $4,
		    last_edited_at = $5
		WHERE id = $1
		RETURNING %s
	`, r.tables.Documents, documentColumns)

	doc, err := r.scanSave(ctx, query, save)
	if err != nil {
		return nil, err
	}

	// Version pointer drift is expected under multi-writer access; the
	// caller must re-synchronize to the returned version.
	if save.ExpectedVersion != doc.Version-1 {
		r.logger.Warn("stale expected version on save",
			"document_id", save.DocumentID,
			"expected_version", save.ExpectedVersion,
			"stored_version", doc.Version,
		)
	}

	return doc, nil
}

// SaveHeartbeat writes content and attribution without bumping the version
func (r *PostgresDocumentRepository) SaveHeartbeat(ctx context.Context, save *repositories.DocumentSave) (*models.Document, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = $2,
		    status = $3,
		    last_edited_by = $4,
		    last_edited_at = $5
		WHERE id = $1
		RETURNING %s
	`, r.tables.Documents, documentColumns)

	return r.scanSave(ctx, query, save)
}

func (r *PostgresDocumentRepository) scanSave(ctx context.Context, query string, save *repositories.DocumentSave) (*models.Document, error) {
	var doc models.Document
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		save.DocumentID,
		save.Content,
		save.Status,
		save.ActorID,
		time.Now().UTC(),
	).Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Content,
		&doc.Version,
		&doc.Status,
		&doc.LastEditedBy,
		&doc.LastEditedAt,
		&doc.CreatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", save.DocumentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("save document: %w", err)
	}

	return &doc, nil
}

// Status returns the status projection without the content blob
func (r *PostgresDocumentRepository) Status(ctx context.Context, documentID string) (*models.DocumentStatus, error) {
	query := fmt.Sprintf(`
		SELECT id, status, version, last_edited_by, last_edited_at
		FROM %s
		WHERE id = $1
	`, r.tables.Documents)

	var status models.DocumentStatus
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, documentID).Scan(
		&status.ID,
		&status.Status,
		&status.Version,
		&status.LastEditedBy,
		&status.LastEditedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document status: %w", err)
	}

	return &status, nil
}

// Reset clears content, zeroes the version and returns the status to
// draft. Ownership and creation attributes are preserved.
func (r *PostgresDocumentRepository) Reset(ctx context.Context, documentID, actorID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = '',
		    version = 0,
		    status = $2,
		    last_edited_by = $3,
		    last_edited_at = $4
		WHERE id = $1
	`, r.tables.Documents)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, documentID, models.StatusDraft, actorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}

	return nil
}

// Create inserts a new empty document (seeding and tests only; documents
// are normally created by an external collaborator)
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, content, version, status, last_edited_by, last_edited_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, r.tables.Documents)

	now := time.Now().UTC()
	if doc.Status == "" {
		doc.Status = models.StatusDraft
	}
	if doc.LastEditedBy == "" {
		doc.LastEditedBy = doc.OwnerID
	}

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		doc.OwnerID,
		doc.Content,
		doc.Version,
		doc.Status,
		doc.LastEditedBy,
		now,
		now,
	).Scan(&doc.ID, &doc.CreatedAt)

	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	doc.LastEditedAt = now

	return nil
}
