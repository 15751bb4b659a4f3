package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dsi-platform/screening-service/internal/analysis"
	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/events"
	"github.com/dsi-platform/screening-service/internal/persistence"
	"github.com/dsi-platform/screening-service/internal/repository"
	"github.com/dsi-platform/screening-service/internal/worker"
)

type stubAnalyzer struct {
	mu       sync.Mutex
	calls    []string
	outcomes map[string]analysis.Outcome
	panicOn  string
}

func newStubAnalyzer() *stubAnalyzer {
	return &stubAnalyzer{outcomes: make(map[string]analysis.Outcome)}
}

func (s *stubAnalyzer) Analyze(_ context.Context, ref string) analysis.Outcome {
	s.mu.Lock()
	s.calls = append(s.calls, ref)
	out, ok := s.outcomes[ref]
	panicOn := s.panicOn
	s.mu.Unlock()

	if ref == panicOn {
		panic("analyzer exploded")
	}
	if !ok {
		return cleanOutcome()
	}
	return out
}

func (s *stubAnalyzer) set(ref string, out analysis.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[ref] = out
}

func (s *stubAnalyzer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func cleanOutcome() analysis.Outcome {
	return analysis.Outcome{Kind: analysis.OutcomeOK, Verdict: domain.Verdict{
		FlaggedForReview: false,
		FlagConfidence:   0.1,
		ModelVersion:     "test-v1",
	}}
}

func flaggedOutcome() analysis.Outcome {
	return analysis.Outcome{Kind: analysis.OutcomeOK, Verdict: domain.Verdict{
		FlaggedForReview: true,
		FlagConfidence:   0.87,
		Indicators:       []domain.Indicator{{Indicator: "isolation", Evidence: []string{"small figure"}, Confidence: 0.8}},
		ModelVersion:     "test-v1",
	}}
}

// failingDirectory makes workload queries fail while everything else passes through.
type failingDirectory struct {
	repository.AssessorDirectory
	fail bool
}

func (f *failingDirectory) ListActiveAssessors(ctx context.Context, role domain.AccountRole) ([]domain.AssessorLoad, error) {
	if f.fail {
		return nil, errors.New("directory unavailable")
	}
	return f.AssessorDirectory.ListActiveAssessors(ctx, role)
}

type harness struct {
	t           *testing.T
	store       *repository.MemoryStore
	directory   *failingDirectory
	analyzer    *stubAnalyzer
	locker      *persistence.LocalLocker
	queue       *worker.Queue
	assignment  *AssignmentService
	pipeline    *PipelineService
	submissions *SubmissionService
	reviews     *ReviewService
	admin       *AdminService
	auth        *AuthService
	uploader    *domain.Account
	adminUser   *domain.Account
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := repository.NewMemoryStore()
	directory := &failingDirectory{AssessorDirectory: store.Assessors()}
	dispatcher := events.NewInMemoryDispatcher(nil)
	NewAuditService(dispatcher, store.Audit(), directory, nil).RegisterHandlers()

	h := &harness{
		t:         t,
		store:     store,
		directory: directory,
		analyzer:  newStubAnalyzer(),
		locker:    persistence.NewLocalLocker(),
	}
	h.assignment = NewAssignmentService(AssignmentDependencies{
		Directory:  directory,
		CaseRepo:   store.Cases(),
		Locker:     h.locker,
		LockTTL:    time.Minute,
		Dispatcher: dispatcher,
	})
	h.pipeline = NewPipelineService(PipelineDependencies{
		CaseRepo:   store.Cases(),
		Analyzer:   h.analyzer,
		Assignment: h.assignment,
		Locker:     h.locker,
		LockTTL:    time.Minute,
		Dispatcher: dispatcher,
	})
	h.queue = worker.NewQueue(h.pipeline, nil, nil)
	h.submissions = NewSubmissionService(SubmissionDependencies{
		SubmissionRepo: store.Submissions(),
		CaseRepo:       store.Cases(),
		Queue:          h.queue,
		Dispatcher:     dispatcher,
	})
	h.reviews = NewReviewService(ReviewDependencies{
		CaseRepo:       store.Cases(),
		SubmissionRepo: store.Submissions(),
		Dispatcher:     dispatcher,
	})
	h.admin = NewAdminService(AdminDependencies{
		CaseRepo:  store.Cases(),
		AuditRepo: store.Audit(),
		Directory: directory,
		Queue:     h.queue,
	})
	h.auth = NewAuthService(testAuthConfig(), directory)

	h.uploader = h.account("uploader", domain.RoleUploader, time.Time{})
	h.adminUser = h.account("admin", domain.RoleAdmin, time.Time{})
	return h
}

func (h *harness) account(username string, role domain.AccountRole, createdAt time.Time) *domain.Account {
	h.t.Helper()
	account := &domain.Account{
		Username:  username,
		Role:      role,
		Status:    domain.AccountStatusActive,
		CreatedAt: createdAt,
	}
	if err := h.store.Assessors().Create(context.Background(), account); err != nil {
		h.t.Fatalf("create account %s: %v", username, err)
	}
	return account
}

// openCases gives assessor n flagged cases assigned to them.
func (h *harness) openCases(assessor *domain.Account, n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		c := &domain.Case{
			SubmissionID:       "seed",
			Status:             domain.CaseStatusFlaggedForReview,
			AssignedReviewerID: ptrString(assessor.ID),
		}
		if err := h.store.Cases().Create(context.Background(), c); err != nil {
			h.t.Fatalf("seed case: %v", err)
		}
	}
}

func (h *harness) submit(ref string) *domain.Case {
	h.t.Helper()
	_, c, err := h.submissions.Submit(context.Background(), h.uploader, SubmitInput{
		SubjectID:   "child-" + ref,
		SubjectName: "Sam",
		SubjectAge:  7,
		ArtifactRef: ref,
	})
	if err != nil {
		h.t.Fatalf("submit %s: %v", ref, err)
	}
	return c
}

func (h *harness) drain() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.queue.WaitIdle(ctx); err != nil {
		h.t.Fatalf("queue did not drain: %v", err)
	}
}

func (h *harness) caseByID(id string) *domain.Case {
	h.t.Helper()
	c, err := h.store.Cases().GetByID(context.Background(), id)
	if err != nil {
		h.t.Fatalf("get case %s: %v", id, err)
	}
	return c
}

func (h *harness) auditKinds(caseID string) []domain.AuditKind {
	h.t.Helper()
	entries, err := h.store.Audit().ListByCase(context.Background(), caseID, 0, 0)
	if err != nil {
		h.t.Fatalf("list audit: %v", err)
	}
	kinds := make([]domain.AuditKind, 0, len(entries))
	for _, entry := range entries {
		kinds = append(kinds, entry.Kind)
	}
	return kinds
}

func assertKinds(t *testing.T, got []domain.AuditKind, want ...domain.AuditKind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("audit kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit kinds = %v, want %v", got, want)
		}
	}
}
