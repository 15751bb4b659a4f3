package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsi-platform/screening-service/internal/domain"
)

// SubmissionRepository stores immutable drawing submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, s *domain.Submission) error
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	ListByUploader(ctx context.Context, uploaderID string, limit, offset int) ([]domain.Submission, error)
}

type submissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository builds repository.
func NewSubmissionRepository(pool *pgxpool.Pool) SubmissionRepository {
	return &submissionRepository{pool: pool}
}

func (r *submissionRepository) Create(ctx context.Context, s *domain.Submission) error {
	const query = `
        INSERT INTO submissions (uploader_id, subject_id, subject_name, subject_class, subject_age, notes, artifact_ref)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		s.UploaderID,
		s.SubjectID,
		s.SubjectName,
		s.SubjectClass,
		s.SubjectAge,
		s.Notes,
		s.ArtifactRef,
	).Scan(&s.ID, &s.CreatedAt)
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	const query = `
        SELECT id, uploader_id, subject_id, subject_name, subject_class, subject_age, notes, artifact_ref, created_at
        FROM submissions WHERE id=$1`
	sub, err := scanSubmission(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, missingOnMalformedID(err)
	}
	return sub, nil
}

func (r *submissionRepository) ListByUploader(ctx context.Context, uploaderID string, limit, offset int) ([]domain.Submission, error) {
	limit, offset = normalizePage(limit, offset, 50)
	const query = `
        SELECT id, uploader_id, subject_id, subject_name, subject_class, subject_age, notes, artifact_ref, created_at
        FROM submissions WHERE uploader_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, uploaderID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var s domain.Submission
	if err := row.Scan(
		&s.ID,
		&s.UploaderID,
		&s.SubjectID,
		&s.SubjectName,
		&s.SubjectClass,
		&s.SubjectAge,
		&s.Notes,
		&s.ArtifactRef,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
