package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/repository"
	apperrors "github.com/dsi-platform/screening-service/pkg/util/errorutil"
)

// AdminService exposes pipeline oversight for administrators.
type AdminService struct {
	cases     repository.CaseRepository
	audit     repository.AuditRepository
	directory repository.AssessorDirectory
	queue     JobQueue
}

// AdminDependencies bundles repositories for admin service.
type AdminDependencies struct {
	CaseRepo  repository.CaseRepository
	AuditRepo repository.AuditRepository
	Directory repository.AssessorDirectory
	Queue     JobQueue
}

// AdminCaseFilter describes admin listing filters.
type AdminCaseFilter struct {
	Statuses   []domain.CaseStatus
	AssigneeID *string
	Limit      int
	Offset     int
}

// Stats summarizes the pipeline.
type Stats struct {
	Total       int
	ByStatus    map[domain.CaseStatus]int
	QueueDepth  int
	WorkerState string
}

// NewAdminService builds the service.
func NewAdminService(deps AdminDependencies) *AdminService {
	return &AdminService{
		cases:     deps.CaseRepo,
		audit:     deps.AuditRepo,
		directory: deps.Directory,
		queue:     deps.Queue,
	}
}

// ListCases lists cases across all assessors.
func (s *AdminService) ListCases(ctx context.Context, actor *domain.Account, filter AdminCaseFilter) ([]domain.Case, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid status filter", map[string]any{"status": status})
		}
	}
	cases, err := s.cases.List(ctx, repository.CaseFilter{
		Statuses:   filter.Statuses,
		AssigneeID: filter.AssigneeID,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return cases, nil
}

// Stats returns case counts per status and the worker's state.
func (s *AdminService) Stats(ctx context.Context, actor *domain.Account) (*Stats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	counts, err := s.cases.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	stats := &Stats{ByStatus: counts}
	for _, count := range counts {
		stats.Total += count
	}
	if s.queue != nil {
		stats.QueueDepth = s.queue.Len()
		stats.WorkerState = s.queue.State().String()
	}
	return stats, nil
}

// RecentLogs returns the newest audit entries across all cases.
func (s *AdminService) RecentLogs(ctx context.Context, actor *domain.Account, limit int) ([]domain.AuditEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListRecent(ctx, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// CaseLogs returns the audit trail of one case in chronological order.
func (s *AdminService) CaseLogs(ctx context.Context, actor *domain.Account, caseID string, limit, offset int) ([]domain.AuditEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := loadCase(ctx, s.cases, caseID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByCase(ctx, caseID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// ListAccounts pages through the directory, optionally narrowed to one role.
func (s *AdminService) ListAccounts(ctx context.Context, actor *domain.Account, role *domain.AccountRole, limit, offset int) ([]domain.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if role != nil {
		switch *role {
		case domain.RoleUploader, domain.RoleAssessor, domain.RoleAdmin:
		default:
			return nil, apperrors.NewValidationError("invalid role filter", map[string]any{"role": *role})
		}
	}
	accounts, err := s.directory.ListAccounts(ctx, role, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return accounts, nil
}

// SetAccountStatus activates or deactivates an account. Inactive accounts can
// no longer authenticate and drop out of automatic assignment; cases they
// already hold stay with them until an admin reassigns.
func (s *AdminService) SetAccountStatus(ctx context.Context, actor *domain.Account, accountID string, status domain.AccountStatus) (*domain.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if status != domain.AccountStatusActive && status != domain.AccountStatusInactive {
		return nil, apperrors.NewValidationError("invalid account status", map[string]any{"status": status})
	}
	if accountID == actor.ID && status == domain.AccountStatusInactive {
		return nil, apperrors.NewConflict("admins cannot deactivate themselves", map[string]any{"account_id": accountID})
	}
	account, err := s.directory.SetStatus(ctx, accountID, status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("account", map[string]any{"account_id": accountID})
		}
		return nil, apperrors.MapError(err)
	}
	return account, nil
}
