package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/repositories"
)

// PostgresAuditRepository implements the AuditRepository interface using
// PostgreSQL. The table is append-only; records are never updated or
// deleted.
type PostgresAuditRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewAuditRepository creates a new PostgresAuditRepository
func NewAuditRepository(config *RepositoryConfig) repositories.AuditRepository {
	return &PostgresAuditRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Append writes one audit record
func (r *PostgresAuditRepository) Append(ctx context.Context, rec *models.AuditRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (subject_id, actor_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, r.tables.AuditLog)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		rec.SubjectID,
		rec.ActorID,
		rec.Action,
		rec.Detail,
		time.Now().UTC(),
	).Scan(&rec.ID, &rec.CreatedAt)

	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}

	return nil
}

// ListBySubject returns the audit trail for a subject, newest first
func (r *PostgresAuditRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.AuditRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, subject_id, actor_id, action, detail, created_at
		FROM %s
		WHERE subject_id = $1
		ORDER BY created_at DESC
	`, r.tables.AuditLog)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var recs []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		err := rows.Scan(
			&rec.ID,
			&rec.SubjectID,
			&rec.ActorID,
			&rec.Action,
			&rec.Detail,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}

	return recs, nil
}
