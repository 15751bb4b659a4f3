package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/events"
	"github.com/dsi-platform/screening-service/internal/repository"
	apperrors "github.com/dsi-platform/screening-service/pkg/util/errorutil"
)

// ReviewService covers the assessor side of a case.
type ReviewService struct {
	cases       repository.CaseRepository
	submissions repository.SubmissionRepository
	dispatcher  events.Dispatcher
}

// ReviewDependencies bundles repositories for review service.
type ReviewDependencies struct {
	CaseRepo       repository.CaseRepository
	SubmissionRepo repository.SubmissionRepository
	Dispatcher     events.Dispatcher
}

// ReviewInput is an assessor's verdict on a case.
type ReviewInput struct {
	Report      string
	FinalStatus domain.CaseStatus
}

// CaseDetails pairs a case with its submission.
type CaseDetails struct {
	Case       *domain.Case
	Submission *domain.Submission
}

// NewReviewService builds the service.
func NewReviewService(deps ReviewDependencies) *ReviewService {
	return &ReviewService{
		cases:       deps.CaseRepo,
		submissions: deps.SubmissionRepo,
		dispatcher:  deps.Dispatcher,
	}
}

// SubmitReview records the assessor report and final status. Only the assigned
// assessor or an admin may review; completed cases may be reviewed again.
func (s *ReviewService) SubmitReview(ctx context.Context, actor *domain.Account, caseID string, input ReviewInput) (*domain.Case, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("account required")
	}
	report := strings.TrimSpace(input.Report)
	if !input.FinalStatus.IsCompleted() {
		return nil, apperrors.NewValidationError("invalid final status", map[string]any{
			"final_status": input.FinalStatus,
			"allowed":      []domain.CaseStatus{domain.CaseStatusCompletedNoConcerns, domain.CaseStatusCompletedFollowUpNeeded},
		})
	}
	if input.FinalStatus == domain.CaseStatusCompletedFollowUpNeeded && report == "" {
		return nil, apperrors.NewValidationError("assessor report is required for follow-up", map[string]any{"report": "required"})
	}

	current, err := loadCase(ctx, s.cases, caseID)
	if err != nil {
		return nil, err
	}
	if !canActOnCase(actor, current) {
		return nil, apperrors.NewForbidden("case is not assigned to you")
	}
	if !canReview(current.Status, input.FinalStatus) {
		return nil, apperrors.NewInvalidTransition(string(current.Status), string(input.FinalStatus))
	}

	update := domain.CaseUpdate{
		Status:      input.FinalStatus,
		CompletedAt: ptrTime(nowUTC()),
	}
	if report != "" {
		update.ReviewerReport = ptrString(report)
	}
	updated, err := s.cases.ApplyUpdate(ctx, caseID, []domain.CaseStatus{current.Status}, update)
	if err != nil {
		return nil, mapUpdateError(err, caseID)
	}

	publish(ctx, s.dispatcher, events.EventCaseReviewed, caseID, ptrString(actor.ID), events.CaseReviewedPayload{
		OldStatus: current.Status,
		NewStatus: updated.Status,
	})
	return updated, nil
}

// ListAssigned returns cases assigned to the calling assessor.
func (s *ReviewService) ListAssigned(ctx context.Context, actor *domain.Account, statuses []domain.CaseStatus, limit, offset int) ([]domain.Case, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("account required")
	}
	cases, err := s.cases.List(ctx, repository.CaseFilter{
		Statuses:   statuses,
		AssigneeID: ptrString(actor.ID),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return cases, nil
}

// GetCase returns a case to its uploader, its assessor or an admin.
func (s *ReviewService) GetCase(ctx context.Context, actor *domain.Account, caseID string) (*CaseDetails, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("account required")
	}
	c, err := loadCase(ctx, s.cases, caseID)
	if err != nil {
		return nil, err
	}
	submission, err := s.submissions.GetByID(ctx, c.SubmissionID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	allowed := canActOnCase(actor, c) ||
		(actor.Role == domain.RoleUploader && submission != nil && submission.UploaderID == actor.ID)
	if !allowed {
		return nil, apperrors.NewForbidden("access denied")
	}
	return &CaseDetails{Case: c, Submission: submission}, nil
}

func canActOnCase(actor *domain.Account, c *domain.Case) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	return actor.Role == domain.RoleAssessor && c.AssignedReviewerID != nil && *c.AssignedReviewerID == actor.ID
}
