package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsi-platform/screening-service/internal/domain"
)

// ErrStatusConflict is returned when a conditional update finds the case in an unexpected status.
var ErrStatusConflict = errors.New("case status changed concurrently")

// CaseFilter captures case listing parameters.
type CaseFilter struct {
	Statuses      []domain.CaseStatus
	AssigneeID    *string
	CreatedBefore *time.Time
	OldestFirst   bool
	Limit         int
	Offset        int
}

// CaseRepository encapsulates case persistence.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	GetBySubmissionID(ctx context.Context, submissionID string) (*domain.Case, error)
	// ApplyUpdate writes update only while the case is in one of the expected statuses.
	ApplyUpdate(ctx context.Context, id string, expected []domain.CaseStatus, update domain.CaseUpdate) (*domain.Case, error)
	List(ctx context.Context, filter CaseFilter) ([]domain.Case, error)
	CountByStatus(ctx context.Context) (map[domain.CaseStatus]int, error)
}

type caseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{pool: pool}
}

const caseColumns = `id, submission_id, status, analysis_result, assigned_reviewer_id, reviewer_report,
               created_at, updated_at, flagged_at, completed_at`

func (r *caseRepository) Create(ctx context.Context, c *domain.Case) error {
	const query = `
        INSERT INTO cases (submission_id, status)
        VALUES ($1,$2)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, c.SubmissionID, c.Status).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	return r.fetchSingle(ctx, `SELECT `+caseColumns+` FROM cases WHERE id=$1`, id)
}

func (r *caseRepository) GetBySubmissionID(ctx context.Context, submissionID string) (*domain.Case, error) {
	return r.fetchSingle(ctx, `SELECT `+caseColumns+` FROM cases WHERE submission_id=$1`, submissionID)
}

func (r *caseRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Case, error) {
	c, err := scanCase(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, missingOnMalformedID(err)
	}
	return c, nil
}

func (r *caseRepository) ApplyUpdate(ctx context.Context, id string, expected []domain.CaseStatus, update domain.CaseUpdate) (*domain.Case, error) {
	const query = `
        UPDATE cases SET status=$1,
            analysis_result=COALESCE($2, analysis_result),
            assigned_reviewer_id=CASE WHEN $3 THEN $4::uuid ELSE assigned_reviewer_id END,
            reviewer_report=COALESCE($5, reviewer_report),
            flagged_at=COALESCE($6, flagged_at),
            completed_at=COALESCE($7, completed_at),
            updated_at=NOW()
        WHERE id=$8 AND status = ANY($9)
        RETURNING ` + caseColumns
	c, err := scanCase(r.pool.QueryRow(ctx, query,
		update.Status,
		update.AnalysisResult,
		update.SetAssignee,
		update.AssigneeID,
		update.ReviewerReport,
		update.FlaggedAt,
		update.CompletedAt,
		id,
		statusStrings(expected),
	))
	if err == nil {
		return c, nil
	}
	if err = missingOnMalformedID(err); !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cases WHERE id=$1)`, id).Scan(&exists); err != nil {
		return nil, missingOnMalformedID(err)
	}
	if !exists {
		return nil, pgx.ErrNoRows
	}
	return nil, ErrStatusConflict
}

func (r *caseRepository) List(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_reviewer_id=$%d", len(args)))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}

	order := "updated_at DESC"
	if filter.OldestFirst {
		order = "created_at ASC"
	}
	limit, offset := normalizePage(filter.Limit, filter.Offset, 50)

	query := fmt.Sprintf(`SELECT %s FROM cases WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		caseColumns, strings.Join(clauses, " AND "), order, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (r *caseRepository) CountByStatus(ctx context.Context) (map[domain.CaseStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM cases GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.CaseStatus]int, len(domain.AllCaseStatuses))
	for _, status := range domain.AllCaseStatuses {
		counts[status] = 0
	}
	for rows.Next() {
		var status domain.CaseStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	if err := row.Scan(
		&c.ID,
		&c.SubmissionID,
		&c.Status,
		&c.AnalysisResult,
		&c.AssignedReviewerID,
		&c.ReviewerReport,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.FlaggedAt,
		&c.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func statusStrings(statuses []domain.CaseStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// missingOnMalformedID reports an id Postgres cannot parse as a uuid (SQLSTATE
// 22P02) as a missing row, matching the memory store.
func missingOnMalformedID(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return pgx.ErrNoRows
	}
	return err
}

func normalizePage(limit, offset, fallback int) (int, int) {
	if limit <= 0 {
		limit = fallback
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
