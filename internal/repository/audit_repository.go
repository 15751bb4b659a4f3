package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsi-platform/screening-service/internal/domain"
)

// AuditRepository stores append-only audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	ListByCase(ctx context.Context, caseID string, limit, offset int) ([]domain.AuditEntry, error)
	ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_log (case_id, actor_id, kind, message)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.CaseID,
		entry.ActorID,
		entry.Kind,
		entry.Message,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *auditRepository) ListByCase(ctx context.Context, caseID string, limit, offset int) ([]domain.AuditEntry, error) {
	limit, offset = normalizePage(limit, offset, 100)
	const query = `
        SELECT id, case_id, actor_id, kind, message, created_at
        FROM audit_log WHERE case_id=$1 ORDER BY created_at ASC, seq ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, caseID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAuditEntries(rows)
}

func (r *auditRepository) ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	limit, _ = normalizePage(limit, 0, 20)
	const query = `
        SELECT id, case_id, actor_id, kind, message, created_at
        FROM audit_log ORDER BY created_at DESC, seq DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows pgx.Rows) ([]domain.AuditEntry, error) {
	defer rows.Close()
	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.CaseID,
			&entry.ActorID,
			&entry.Kind,
			&entry.Message,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
