package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/events"
	"github.com/dsi-platform/screening-service/internal/repository"
	"github.com/dsi-platform/screening-service/internal/worker"
	apperrors "github.com/dsi-platform/screening-service/pkg/util/errorutil"
)

const reconcileBatchSize = 500

// JobQueue is the part of worker.Queue the services rely on.
type JobQueue interface {
	Enqueue(job domain.Job) error
	Has(caseID string) bool
	Len() int
	State() worker.State
}

// SubmissionService accepts drawings and hands their cases to the pipeline.
type SubmissionService struct {
	submissions repository.SubmissionRepository
	cases       repository.CaseRepository
	queue       JobQueue
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	batch       int
}

// SubmissionDependencies bundles repositories for submission service.
type SubmissionDependencies struct {
	SubmissionRepo repository.SubmissionRepository
	CaseRepo       repository.CaseRepository
	Queue          JobQueue
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	// ReconcileBatch is the page size Reconcile scans with. Defaults to 500.
	ReconcileBatch int
}

// SubmitInput describes an uploaded drawing.
type SubmitInput struct {
	SubjectID    string
	SubjectName  string
	SubjectClass string
	SubjectAge   int
	Notes        string
	ArtifactRef  string
}

// SubmissionView pairs a submission with its case.
type SubmissionView struct {
	Submission domain.Submission
	Case       *domain.Case
}

// NewSubmissionService builds the service.
func NewSubmissionService(deps SubmissionDependencies) *SubmissionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := deps.ReconcileBatch
	if batch <= 0 {
		batch = reconcileBatchSize
	}
	return &SubmissionService{
		submissions: deps.SubmissionRepo,
		cases:       deps.CaseRepo,
		queue:       deps.Queue,
		dispatcher:  deps.Dispatcher,
		logger:      logger.Named("submission"),
		batch:       batch,
	}
}

// Submit records the drawing, opens a case in initial screening and queues it.
// The caller is answered without waiting for analysis; a failed enqueue leaves
// the case for reconciliation.
func (s *SubmissionService) Submit(ctx context.Context, uploader *domain.Account, input SubmitInput) (*domain.Submission, *domain.Case, error) {
	if uploader == nil {
		return nil, nil, apperrors.NewUnauthorized("account required")
	}
	input.SubjectID = strings.TrimSpace(input.SubjectID)
	input.ArtifactRef = strings.TrimSpace(input.ArtifactRef)

	details := map[string]any{}
	if input.SubjectID == "" {
		details["subject_id"] = "required"
	}
	if input.ArtifactRef == "" {
		details["artifact_ref"] = "required"
	}
	if input.SubjectAge < 0 {
		details["subject_age"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, nil, apperrors.NewValidationError("invalid submission", details)
	}

	submission := &domain.Submission{
		UploaderID:   uploader.ID,
		SubjectID:    input.SubjectID,
		SubjectName:  strings.TrimSpace(input.SubjectName),
		SubjectClass: strings.TrimSpace(input.SubjectClass),
		SubjectAge:   input.SubjectAge,
		Notes:        strings.TrimSpace(input.Notes),
		ArtifactRef:  input.ArtifactRef,
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	c := &domain.Case{
		SubmissionID: submission.ID,
		Status:       domain.CaseStatusInitialScreening,
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	publish(ctx, s.dispatcher, events.EventCaseSubmitted, c.ID, ptrString(uploader.ID), events.CaseSubmittedPayload{
		SubmissionID:     submission.ID,
		SubjectID:        submission.SubjectID,
		UploaderUsername: uploader.Username,
	})

	if err := s.queue.Enqueue(jobFor(c, submission)); err != nil {
		s.logger.Error("enqueue failed; case left for reconciliation",
			zap.String("case_id", c.ID),
			zap.Error(err),
		)
	}
	return submission, c, nil
}

// ListMine returns the uploader's submissions, newest first, with case state.
func (s *SubmissionService) ListMine(ctx context.Context, uploader *domain.Account, limit, offset int) ([]SubmissionView, error) {
	if uploader == nil {
		return nil, apperrors.NewUnauthorized("account required")
	}
	submissions, err := s.submissions.ListByUploader(ctx, uploader.ID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	views := make([]SubmissionView, 0, len(submissions))
	for _, submission := range submissions {
		view := SubmissionView{Submission: submission}
		c, err := s.cases.GetBySubmissionID(ctx, submission.ID)
		switch {
		case err == nil:
			view.Case = c
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return nil, apperrors.MapError(err)
		}
		views = append(views, view)
	}
	return views, nil
}

// Reconcile re-enqueues cases created before cutoff that are still in initial
// screening and not known to the queue. It pages through the backlog oldest
// first and returns the number of jobs queued. Cases the worker finishes while
// the scan runs shift later pages, so a few may wait for the next pass.
func (s *SubmissionService) Reconcile(ctx context.Context, cutoff time.Time) (int, error) {
	queued := 0
	for offset := 0; ; {
		stale, err := s.cases.List(ctx, repository.CaseFilter{
			Statuses:      []domain.CaseStatus{domain.CaseStatusInitialScreening},
			CreatedBefore: &cutoff,
			OldestFirst:   true,
			Limit:         s.batch,
			Offset:        offset,
		})
		if err != nil {
			return queued, err
		}

		for i := range stale {
			c := &stale[i]
			if s.queue.Has(c.ID) {
				continue
			}
			submission, err := s.submissions.GetByID(ctx, c.SubmissionID)
			if err != nil {
				s.logger.Warn("skipping case without submission", zap.String("case_id", c.ID), zap.Error(err))
				continue
			}
			err = s.queue.Enqueue(jobFor(c, submission))
			switch {
			case err == nil:
				queued++
			case errors.Is(err, worker.ErrDuplicateJob):
			default:
				return queued, err
			}
		}

		if len(stale) < s.batch {
			break
		}
		offset += len(stale)
	}

	if queued > 0 {
		s.logger.Info("re-enqueued stale cases", zap.Int("count", queued), zap.Time("cutoff", cutoff))
	}
	return queued, nil
}

func jobFor(c *domain.Case, submission *domain.Submission) domain.Job {
	return domain.Job{
		CaseID:       c.ID,
		SubmissionID: submission.ID,
		ArtifactRef:  submission.ArtifactRef,
		SubjectID:    submission.SubjectID,
	}
}
