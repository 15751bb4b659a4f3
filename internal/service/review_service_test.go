package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dsi-platform/screening-service/internal/domain"
	apperrors "github.com/dsi-platform/screening-service/pkg/util/errorutil"
)

func assertDomainError(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error %s, got %v", code, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, domainErr.Code, domainErr.Message)
	}
}

func flaggedCaseFor(t *testing.T, h *harness, assessor *domain.Account) *domain.Case {
	t.Helper()
	h.analyzer.set("uploads/flag.png", flaggedOutcome())
	created := h.submit("uploads/flag.png")
	h.drain()
	got := h.caseByID(created.ID)
	if got.AssignedReviewerID == nil || *got.AssignedReviewerID != assessor.ID {
		t.Fatalf("expected case assigned to %s", assessor.Username)
	}
	return got
}

func TestSubmitReviewByAssignedAssessor(t *testing.T) {
	h := newHarness(t)
	assessor := h.account("assessor", domain.RoleAssessor, time.Time{})
	c := flaggedCaseFor(t, h, assessor)

	updated, err := h.reviews.SubmitReview(context.Background(), assessor, c.ID, ReviewInput{
		Report:      "Discussed with class tutor; follow up with parents.",
		FinalStatus: domain.CaseStatusCompletedFollowUpNeeded,
	})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if updated.Status != domain.CaseStatusCompletedFollowUpNeeded || updated.ReviewerReport == nil {
		t.Fatalf("unexpected case after review %+v", updated)
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected completion time")
	}
	kinds := h.auditKinds(c.ID)
	if kinds[len(kinds)-1] != domain.AuditKindReviewed {
		t.Fatalf("expected review audit entry, got %v", kinds)
	}

	// a completed verdict may be corrected
	corrected, err := h.reviews.SubmitReview(context.Background(), assessor, c.ID, ReviewInput{
		FinalStatus: domain.CaseStatusCompletedNoConcerns,
	})
	if err != nil {
		t.Fatalf("re-review: %v", err)
	}
	if corrected.Status != domain.CaseStatusCompletedNoConcerns || *corrected.ReviewerReport == "" {
		t.Fatalf("re-review must keep the earlier report, got %+v", corrected)
	}
}

func TestSubmitReviewValidation(t *testing.T) {
	h := newHarness(t)
	assessor := h.account("assessor", domain.RoleAssessor, time.Time{})
	other := h.account("other", domain.RoleAssessor, time.Now().Add(time.Hour))
	c := flaggedCaseFor(t, h, assessor)
	ctx := context.Background()

	_, err := h.reviews.SubmitReview(ctx, assessor, c.ID, ReviewInput{FinalStatus: domain.CaseStatusCompletedFollowUpNeeded, Report: "  "})
	assertDomainError(t, err, "VALIDATION_FAILED")

	_, err = h.reviews.SubmitReview(ctx, assessor, c.ID, ReviewInput{FinalStatus: domain.CaseStatusFlaggedForReview})
	assertDomainError(t, err, "VALIDATION_FAILED")

	_, err = h.reviews.SubmitReview(ctx, other, c.ID, ReviewInput{FinalStatus: domain.CaseStatusCompletedNoConcerns})
	assertDomainError(t, err, "FORBIDDEN")

	_, err = h.reviews.SubmitReview(ctx, assessor, "missing", ReviewInput{FinalStatus: domain.CaseStatusCompletedNoConcerns})
	assertDomainError(t, err, "NOT_FOUND")

	if _, err := h.reviews.SubmitReview(ctx, h.adminUser, c.ID, ReviewInput{FinalStatus: domain.CaseStatusCompletedNoConcerns}); err != nil {
		t.Fatalf("admin review: %v", err)
	}
}

func TestSubmitReviewRejectsUnprocessedCases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, status := range []domain.CaseStatus{domain.CaseStatusInitialScreening, domain.CaseStatusErrorInProcessing} {
		c := &domain.Case{SubmissionID: "s", Status: status}
		if err := h.store.Cases().Create(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
		_, err := h.reviews.SubmitReview(ctx, h.adminUser, c.ID, ReviewInput{FinalStatus: domain.CaseStatusCompletedNoConcerns})
		assertDomainError(t, err, "INVALID_TRANSITION")
		if apperrors.ToDomainError(err).HTTPStatus != http.StatusConflict {
			t.Fatalf("expected 409 for invalid transition")
		}
	}
}

func TestGetCaseAccess(t *testing.T) {
	h := newHarness(t)
	assessor := h.account("assessor", domain.RoleAssessor, time.Time{})
	stranger := h.account("stranger", domain.RoleUploader, time.Time{})
	c := flaggedCaseFor(t, h, assessor)
	ctx := context.Background()

	for _, actor := range []*domain.Account{h.uploader, assessor, h.adminUser} {
		details, err := h.reviews.GetCase(ctx, actor, c.ID)
		if err != nil {
			t.Fatalf("%s: %v", actor.Username, err)
		}
		if details.Submission == nil || details.Submission.UploaderID != h.uploader.ID {
			t.Fatalf("expected submission details for %s", actor.Username)
		}
	}
	_, err := h.reviews.GetCase(ctx, stranger, c.ID)
	assertDomainError(t, err, "FORBIDDEN")

	assigned, err := h.reviews.ListAssigned(ctx, assessor, nil, 0, 0)
	if err != nil {
		t.Fatalf("list assigned: %v", err)
	}
	if len(assigned) != 1 || assigned[0].ID != c.ID {
		t.Fatalf("unexpected assigned cases %+v", assigned)
	}
}

func TestReassignCase(t *testing.T) {
	h := newHarness(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := h.account("first", domain.RoleAssessor, base)
	second := h.account("second", domain.RoleAssessor, base.Add(time.Minute))
	c := flaggedCaseFor(t, h, first)
	ctx := context.Background()

	_, err := h.assignment.ReassignCase(ctx, first, c.ID, second.ID)
	assertDomainError(t, err, "FORBIDDEN")

	_, err = h.assignment.ReassignCase(ctx, h.adminUser, c.ID, h.uploader.ID)
	assertDomainError(t, err, "CONFLICT")

	token, _, _ := h.locker.Acquire(ctx, c.ID, time.Minute)
	_, err = h.assignment.ReassignCase(ctx, h.adminUser, c.ID, second.ID)
	assertDomainError(t, err, "CONFLICT")
	_ = h.locker.Release(ctx, c.ID, token)

	updated, err := h.assignment.ReassignCase(ctx, h.adminUser, c.ID, second.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if *updated.AssignedReviewerID != second.ID || updated.Status != domain.CaseStatusFlaggedForReview {
		t.Fatalf("unexpected case after reassign %+v", updated)
	}

	entries, _ := h.store.Audit().ListByCase(ctx, c.ID, 0, 0)
	last := entries[len(entries)-1]
	if last.Kind != domain.AuditKindReassigned || last.ActorID == nil || *last.ActorID != h.adminUser.ID {
		t.Fatalf("unexpected reassignment audit %+v", last)
	}
	if want := "Case reassigned from first to second by admin."; last.Message != want {
		t.Fatalf("unexpected message %q", last.Message)
	}

	if _, err := h.reviews.SubmitReview(ctx, second, c.ID, ReviewInput{FinalStatus: domain.CaseStatusCompletedNoConcerns}); err != nil {
		t.Fatalf("review by new assessor: %v", err)
	}
	_, err = h.assignment.ReassignCase(ctx, h.adminUser, c.ID, first.ID)
	assertDomainError(t, err, "CONFLICT")
}
