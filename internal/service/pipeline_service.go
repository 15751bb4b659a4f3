package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/dsi-platform/screening-service/internal/analysis"
	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/events"
	"github.com/dsi-platform/screening-service/internal/observability"
	"github.com/dsi-platform/screening-service/internal/persistence"
	"github.com/dsi-platform/screening-service/internal/repository"
)

// PipelineService drives a queued case from initial screening to its automatic
// outcome. It implements worker.Handler.
type PipelineService struct {
	cases      repository.CaseRepository
	analyzer   analysis.Analyzer
	assignment *AssignmentService
	locker     persistence.CaseLocker
	lockTTL    time.Duration
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// PipelineDependencies bundles collaborators of the pipeline.
type PipelineDependencies struct {
	CaseRepo   repository.CaseRepository
	Analyzer   analysis.Analyzer
	Assignment *AssignmentService
	Locker     persistence.CaseLocker
	LockTTL    time.Duration
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewPipelineService creates the service.
func NewPipelineService(deps PipelineDependencies) *PipelineService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = persistence.NewLocalLocker()
	}
	return &PipelineService{
		cases:      deps.CaseRepo,
		analyzer:   deps.Analyzer,
		assignment: deps.Assignment,
		locker:     locker,
		lockTTL:    deps.LockTTL,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("pipeline"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Process analyzes the case referenced by job and records the automatic outcome.
// Cases that already left initial screening are skipped.
func (p *PipelineService) Process(ctx context.Context, job domain.Job) error {
	logger := p.logger.With(zap.String("case_id", job.CaseID))

	token, locked, err := p.locker.Acquire(ctx, job.CaseID, p.lockTTL)
	switch {
	case err != nil:
		logger.Warn("case lock unavailable; relying on conditional update", zap.Error(err))
	case !locked:
		logger.Info("case locked by another worker; skipping")
		return nil
	default:
		defer func() { _ = p.locker.Release(context.WithoutCancel(ctx), job.CaseID, token) }()
	}

	current, err := p.cases.GetByID(ctx, job.CaseID)
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}
	if current.Status != domain.CaseStatusInitialScreening {
		logger.Info("case already processed; skipping", zap.String("status", string(current.Status)))
		return nil
	}

	outcome := p.analyzer.Analyze(ctx, job.ArtifactRef)
	if outcome.IsFallback() {
		publish(ctx, p.dispatcher, events.EventAnalysisFallback, job.CaseID, nil, events.AnalysisFallbackPayload{
			SubjectID: job.SubjectID,
			Cause:     errorString(outcome.Cause),
		})
	}

	verdict := outcome.Verdict
	if !verdict.FlaggedForReview {
		return p.complete(ctx, logger, job, verdict)
	}
	return p.flag(ctx, logger, job, verdict)
}

func (p *PipelineService) complete(ctx context.Context, logger *zap.Logger, job domain.Job, verdict domain.Verdict) error {
	_, err := p.cases.ApplyUpdate(ctx, job.CaseID, []domain.CaseStatus{domain.CaseStatusInitialScreening}, domain.CaseUpdate{
		Status:         domain.CaseStatusCompletedNoConcerns,
		AnalysisResult: &verdict,
		CompletedAt:    ptrTime(p.now()),
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		logger.Info("case moved on during analysis; discarding verdict")
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete case: %w", err)
	}

	logger.Info("case completed automatically", zap.String("model_version", verdict.ModelVersion))
	publish(ctx, p.dispatcher, events.EventCaseAutoCompleted, job.CaseID, nil, events.CaseAutoCompletedPayload{
		SubjectID:    job.SubjectID,
		ModelVersion: verdict.ModelVersion,
	})
	return nil
}

func (p *PipelineService) flag(ctx context.Context, logger *zap.Logger, job domain.Job, verdict domain.Verdict) error {
	selected, err := p.assignment.SelectReviewer(ctx)
	if err != nil {
		return fmt.Errorf("select reviewer: %w", err)
	}

	update := domain.CaseUpdate{
		Status:         domain.CaseStatusFlaggedForReview,
		AnalysisResult: &verdict,
		SetAssignee:    true,
		FlaggedAt:      ptrTime(p.now()),
	}
	if selected != nil {
		update.AssigneeID = ptrString(selected.Account.ID)
	}

	_, err = p.cases.ApplyUpdate(ctx, job.CaseID, []domain.CaseStatus{domain.CaseStatusInitialScreening}, update)
	if errors.Is(err, repository.ErrStatusConflict) {
		logger.Info("case moved on during analysis; discarding verdict")
		return nil
	}
	if err != nil {
		return fmt.Errorf("flag case: %w", err)
	}

	publish(ctx, p.dispatcher, events.EventCaseFlagged, job.CaseID, nil, events.CaseFlaggedPayload{
		SubjectID:    job.SubjectID,
		Confidence:   verdict.FlagConfidence,
		ModelVersion: verdict.ModelVersion,
	})

	p.metrics.RecordAssignment(selected != nil)
	if selected == nil {
		logger.Warn("no active assessor available; manual assignment required")
		publish(ctx, p.dispatcher, events.EventCaseAssignmentPending, job.CaseID, nil, nil)
		return nil
	}

	logger.Info("case flagged and assigned",
		zap.String("assessor_id", selected.Account.ID),
		zap.Int("open_cases", selected.OpenCases),
	)
	publish(ctx, p.dispatcher, events.EventCaseAssigned, job.CaseID, nil, events.CaseAssignedPayload{
		AssessorID: selected.Account.ID,
		OpenCases:  selected.OpenCases,
	})
	return nil
}

// Fail moves a case whose processing failed to the error state, unless it
// already left initial screening.
func (p *PipelineService) Fail(ctx context.Context, job domain.Job, cause error) {
	logger := p.logger.With(zap.String("case_id", job.CaseID), zap.Error(cause))

	_, err := p.cases.ApplyUpdate(ctx, job.CaseID, []domain.CaseStatus{domain.CaseStatusInitialScreening}, domain.CaseUpdate{
		Status: domain.CaseStatusErrorInProcessing,
	})
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		logger.Warn("processing failed after case moved on; status left unchanged")
		return
	case errors.Is(err, pgx.ErrNoRows):
		logger.Error("processing failed for unknown case")
		return
	case err != nil:
		logger.Error("unable to record processing failure", zap.NamedError("update_error", err))
		return
	}

	logger.Error("case moved to error state")
	publish(ctx, p.dispatcher, events.EventCaseProcessingFailed, job.CaseID, nil, events.CaseProcessingFailedPayload{
		SubjectID: job.SubjectID,
		Error:     errorString(cause),
		Status:    domain.CaseStatusErrorInProcessing,
	})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
