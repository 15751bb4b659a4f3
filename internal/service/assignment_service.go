package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/events"
	"github.com/dsi-platform/screening-service/internal/persistence"
	"github.com/dsi-platform/screening-service/internal/repository"
	apperrors "github.com/dsi-platform/screening-service/pkg/util/errorutil"
)

// AssignmentService picks reviewers for flagged cases and handles manual reassignment.
type AssignmentService struct {
	directory  repository.AssessorDirectory
	cases      repository.CaseRepository
	locker     persistence.CaseLocker
	lockTTL    time.Duration
	dispatcher events.Dispatcher
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	Directory  repository.AssessorDirectory
	CaseRepo   repository.CaseRepository
	Locker     persistence.CaseLocker
	LockTTL    time.Duration
	Dispatcher events.Dispatcher
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	locker := deps.Locker
	if locker == nil {
		locker = persistence.NewLocalLocker()
	}
	return &AssignmentService{
		directory:  deps.Directory,
		cases:      deps.CaseRepo,
		locker:     locker,
		lockTTL:    deps.LockTTL,
		dispatcher: deps.Dispatcher,
	}
}

// SelectReviewer returns the active assessor with the fewest open cases, or nil
// when nobody is eligible.
func (s *AssignmentService) SelectReviewer(ctx context.Context) (*domain.AssessorLoad, error) {
	loads, err := s.directory.ListActiveAssessors(ctx, domain.RoleAssessor)
	if err != nil {
		return nil, err
	}
	return selectLeastLoaded(loads), nil
}

// selectLeastLoaded breaks ties on open cases by earliest account creation, then
// lowest id, so the choice never depends on directory ordering.
func selectLeastLoaded(loads []domain.AssessorLoad) *domain.AssessorLoad {
	var best *domain.AssessorLoad
	for i := range loads {
		candidate := &loads[i]
		if !candidate.Account.Active() || candidate.Account.Role != domain.RoleAssessor {
			continue
		}
		if best == nil || lessLoaded(candidate, best) {
			best = candidate
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func lessLoaded(a, b *domain.AssessorLoad) bool {
	if a.OpenCases != b.OpenCases {
		return a.OpenCases < b.OpenCases
	}
	if !a.Account.CreatedAt.Equal(b.Account.CreatedAt) {
		return a.Account.CreatedAt.Before(b.Account.CreatedAt)
	}
	return a.Account.ID < b.Account.ID
}

// ReassignCase moves a flagged case to another active assessor (ADMIN only).
func (s *AssignmentService) ReassignCase(ctx context.Context, actor *domain.Account, caseID, assessorID string) (*domain.Case, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	assessor, err := s.directory.GetByID(ctx, assessorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("assessor", map[string]any{"assessor_id": assessorID})
		}
		return nil, apperrors.MapError(err)
	}
	if assessor.Role != domain.RoleAssessor || !assessor.Active() {
		return nil, apperrors.NewConflict("assignee is not an active assessor", map[string]any{"assessor_id": assessorID})
	}

	token, ok, err := s.locker.Acquire(ctx, caseID, s.lockTTL)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ok {
		return nil, apperrors.NewConflict("case is being processed", map[string]any{"case_id": caseID})
	}
	defer func() { _ = s.locker.Release(context.WithoutCancel(ctx), caseID, token) }()

	current, err := loadCase(ctx, s.cases, caseID)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.CaseStatusFlaggedForReview {
		return nil, apperrors.NewConflict("only cases flagged for review can be reassigned", map[string]any{
			"case_id": caseID,
			"status":  current.Status,
		})
	}

	updated, err := s.cases.ApplyUpdate(ctx, caseID, []domain.CaseStatus{domain.CaseStatusFlaggedForReview}, domain.CaseUpdate{
		Status:      domain.CaseStatusFlaggedForReview,
		SetAssignee: true,
		AssigneeID:  ptrString(assessor.ID),
	})
	if err != nil {
		return nil, mapUpdateError(err, caseID)
	}

	publish(ctx, s.dispatcher, events.EventCaseReassigned, caseID, ptrString(actor.ID), events.CaseReassignedPayload{
		OldAssessorID: current.AssignedReviewerID,
		NewAssessorID: assessor.ID,
	})
	return updated, nil
}
