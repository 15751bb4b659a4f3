package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/events"
	"github.com/dsi-platform/screening-service/internal/repository"
)

// AuditService turns case events into human-readable audit entries. Write
// failures are logged and never reach the publisher.
type AuditService struct {
	dispatcher events.Dispatcher
	audit      repository.AuditRepository
	directory  repository.AssessorDirectory
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, audit repository.AuditRepository, directory repository.AssessorDirectory, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		audit:      audit,
		directory:  directory,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventCaseSubmitted, a.handleSubmitted)
	a.dispatcher.Subscribe(events.EventAnalysisFallback, a.handleAnalysisFallback)
	a.dispatcher.Subscribe(events.EventCaseFlagged, a.handleFlagged)
	a.dispatcher.Subscribe(events.EventCaseAssigned, a.handleAssigned)
	a.dispatcher.Subscribe(events.EventCaseAssignmentPending, a.handleAssignmentPending)
	a.dispatcher.Subscribe(events.EventCaseAutoCompleted, a.handleAutoCompleted)
	a.dispatcher.Subscribe(events.EventCaseProcessingFailed, a.handleProcessingFailed)
	a.dispatcher.Subscribe(events.EventCaseReviewed, a.handleReviewed)
	a.dispatcher.Subscribe(events.EventCaseReassigned, a.handleReassigned)
}

func (a *AuditService) handleSubmitted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.CaseSubmittedPayload)
	return a.record(ctx, event, domain.AuditKindSubmitted, fmt.Sprintf(
		"Drawing for child ID %s submitted by %s. Case created and queued for analysis.",
		payload.SubjectID, payload.UploaderUsername))
}

func (a *AuditService) handleAnalysisFallback(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.AnalysisFallbackPayload)
	return a.record(ctx, event, domain.AuditKindAnalysisFallback, fmt.Sprintf(
		"Analysis service failed for child ID %s; case will be flagged for manual review. Cause: %s",
		payload.SubjectID, payload.Cause))
}

func (a *AuditService) handleFlagged(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.CaseFlaggedPayload)
	return a.record(ctx, event, domain.AuditKindFlagged, fmt.Sprintf(
		"Case for child ID %s automatically flagged for review (confidence %.2f, model %s).",
		payload.SubjectID, payload.Confidence, payload.ModelVersion))
}

func (a *AuditService) handleAssigned(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.CaseAssignedPayload)
	return a.record(ctx, event, domain.AuditKindAutoAssigned, fmt.Sprintf(
		"Case automatically assigned to assessor %s (%d open cases).",
		a.username(ctx, &payload.AssessorID), payload.OpenCases))
}

func (a *AuditService) handleAssignmentPending(ctx context.Context, event events.Event) error {
	return a.record(ctx, event, domain.AuditKindManualRequired,
		"No active assessor available for automatic assignment. Manual assignment required.")
}

func (a *AuditService) handleAutoCompleted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.CaseAutoCompletedPayload)
	return a.record(ctx, event, domain.AuditKindAutoCompleted, fmt.Sprintf(
		"Analysis found no concerns for child ID %s (model %s). Case completed automatically.",
		payload.SubjectID, payload.ModelVersion))
}

func (a *AuditService) handleProcessingFailed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.CaseProcessingFailedPayload)
	return a.record(ctx, event, domain.AuditKindProcessingFailed, fmt.Sprintf(
		"Processing failed for child ID %s: %s",
		payload.SubjectID, payload.Error))
}

func (a *AuditService) handleReviewed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.CaseReviewedPayload)
	return a.record(ctx, event, domain.AuditKindReviewed, fmt.Sprintf(
		"Review submitted by %s. Status changed from %s to %s.",
		a.username(ctx, event.ActorID), payload.OldStatus, payload.NewStatus))
}

func (a *AuditService) handleReassigned(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.CaseReassignedPayload)
	previous := "nobody"
	if payload.OldAssessorID != nil {
		previous = a.username(ctx, payload.OldAssessorID)
	}
	return a.record(ctx, event, domain.AuditKindReassigned, fmt.Sprintf(
		"Case reassigned from %s to %s by %s.",
		previous, a.username(ctx, &payload.NewAssessorID), a.username(ctx, event.ActorID)))
}

func (a *AuditService) record(ctx context.Context, event events.Event, kind domain.AuditKind, message string) error {
	entry := &domain.AuditEntry{
		CaseID:    event.CaseID,
		ActorID:   event.ActorID,
		Kind:      kind,
		Message:   message,
		CreatedAt: event.Timestamp,
	}
	if err := a.audit.Create(ctx, entry); err != nil {
		a.logger.Error("failed to write audit entry",
			zap.String("case_id", event.CaseID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	return nil
}

func (a *AuditService) username(ctx context.Context, accountID *string) string {
	if accountID == nil {
		return "system"
	}
	if a.directory == nil {
		return *accountID
	}
	account, err := a.directory.GetByID(ctx, *accountID)
	if err != nil {
		a.logger.Debug("username lookup failed", zap.String("account_id", *accountID), zap.Error(err))
		return *accountID
	}
	return account.Username
}
