package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsi-platform/screening-service/internal/domain"
)

// ErrDuplicateUsername is returned when an account with the same username exists.
var ErrDuplicateUsername = errors.New("username already exists")

// AssessorDirectory exposes account identities, roles and workload.
type AssessorDirectory interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	// ListActiveAssessors returns active accounts with role and their open case counts,
	// ordered by creation time then id.
	ListActiveAssessors(ctx context.Context, role domain.AccountRole) ([]domain.AssessorLoad, error)
	// ListAccounts pages through accounts oldest first, optionally limited to one role.
	ListAccounts(ctx context.Context, role *domain.AccountRole, limit, offset int) ([]domain.Account, error)
	SetStatus(ctx context.Context, id string, status domain.AccountStatus) (*domain.Account, error)
}

type assessorDirectory struct {
	pool *pgxpool.Pool
}

// NewAssessorDirectory instantiates the repository.
func NewAssessorDirectory(pool *pgxpool.Pool) AssessorDirectory {
	return &assessorDirectory{pool: pool}
}

func (r *assessorDirectory) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (username, password_hash, role, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		account.Username,
		account.PasswordHash,
		account.Role,
		account.Status,
	).Scan(&account.ID, &account.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateUsername
	}
	return err
}

func (r *assessorDirectory) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `
        SELECT id, username, password_hash, role, status, created_at
        FROM accounts WHERE id=$1`
	account, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, missingOnMalformedID(err)
	}
	return account, nil
}

func (r *assessorDirectory) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	const query = `
        SELECT id, username, password_hash, role, status, created_at
        FROM accounts WHERE username=$1`
	return scanAccount(r.pool.QueryRow(ctx, query, username))
}

func (r *assessorDirectory) ListActiveAssessors(ctx context.Context, role domain.AccountRole) ([]domain.AssessorLoad, error) {
	const query = `
        SELECT a.id, a.username, a.password_hash, a.role, a.status, a.created_at, COUNT(c.id)
        FROM accounts a
        LEFT JOIN cases c ON c.assigned_reviewer_id = a.id AND c.status = $2
        WHERE a.role=$1 AND a.status=$3
        GROUP BY a.id
        ORDER BY a.created_at ASC, a.id ASC`
	rows, err := r.pool.Query(ctx, query, role, domain.CaseStatusFlaggedForReview, domain.AccountStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AssessorLoad
	for rows.Next() {
		var load domain.AssessorLoad
		if err := rows.Scan(
			&load.Account.ID,
			&load.Account.Username,
			&load.Account.PasswordHash,
			&load.Account.Role,
			&load.Account.Status,
			&load.Account.CreatedAt,
			&load.OpenCases,
		); err != nil {
			return nil, err
		}
		result = append(result, load)
	}
	return result, rows.Err()
}

func (r *assessorDirectory) ListAccounts(ctx context.Context, role *domain.AccountRole, limit, offset int) ([]domain.Account, error) {
	limit, offset = normalizePage(limit, offset, 50)
	const query = `
        SELECT id, username, password_hash, role, status, created_at
        FROM accounts
        WHERE ($1::text IS NULL OR role=$1)
        ORDER BY created_at ASC, id ASC
        LIMIT $2 OFFSET $3`
	var roleArg *string
	if role != nil {
		v := string(*role)
		roleArg = &v
	}
	rows, err := r.pool.Query(ctx, query, roleArg, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *account)
	}
	return result, rows.Err()
}

func (r *assessorDirectory) SetStatus(ctx context.Context, id string, status domain.AccountStatus) (*domain.Account, error) {
	const query = `
        UPDATE accounts SET status=$2 WHERE id=$1
        RETURNING id, username, password_hash, role, status, created_at`
	account, err := scanAccount(r.pool.QueryRow(ctx, query, id, status))
	if err != nil {
		return nil, missingOnMalformedID(err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.Role,
		&account.Status,
		&account.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}
