package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	"unsafe"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dsi-platform/screening-service/internal/domain"
)

func seedAccount(t *testing.T, dir AssessorDirectory, username string, role domain.AccountRole, createdAt time.Time) *domain.Account {
	t.Helper()
	account := &domain.Account{
		Username:  username,
		Role:      role,
		Status:    domain.AccountStatusActive,
		CreatedAt: createdAt,
	}
	if err := dir.Create(context.Background(), account); err != nil {
		t.Fatalf("create account %s: %v", username, err)
	}
	return account
}

func TestMemoryCaseApplyUpdateIsConditional(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cases := store.Cases()

	c := &domain.Case{SubmissionID: "sub-1", Status: domain.CaseStatusInitialScreening}
	if err := cases.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC()
	updated, err := cases.ApplyUpdate(ctx, c.ID, []domain.CaseStatus{domain.CaseStatusInitialScreening}, domain.CaseUpdate{
		Status:         domain.CaseStatusCompletedNoConcerns,
		AnalysisResult: &domain.Verdict{ModelVersion: "v1"},
		CompletedAt:    &now,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if updated.Status != domain.CaseStatusCompletedNoConcerns || updated.AnalysisResult.ModelVersion != "v1" {
		t.Fatalf("unexpected case after update: %+v", updated)
	}

	_, err = cases.ApplyUpdate(ctx, c.ID, []domain.CaseStatus{domain.CaseStatusInitialScreening}, domain.CaseUpdate{
		Status: domain.CaseStatusErrorInProcessing,
	})
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected status conflict, got %v", err)
	}

	_, err = cases.ApplyUpdate(ctx, "missing", []domain.CaseStatus{domain.CaseStatusInitialScreening}, domain.CaseUpdate{})
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected no rows, got %v", err)
	}
}

func TestMemoryCaseReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cases := store.Cases()

	reviewer := "assessor-1"
	c := &domain.Case{SubmissionID: "sub-1", Status: domain.CaseStatusFlaggedForReview, AssignedReviewerID: &reviewer}
	if err := cases.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	reviewer = "mutated"

	got, err := cases.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got.AssignedReviewerID != "assessor-1" {
		t.Fatalf("stored case aliased caller memory: %s", *got.AssignedReviewerID)
	}
	*got.AssignedReviewerID = "changed"

	again, _ := cases.GetByID(ctx, c.ID)
	if *again.AssignedReviewerID != "assessor-1" {
		t.Fatalf("returned case aliased store memory")
	}
}

func TestMemoryListActiveAssessorsCountsOpenCases(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	dir := store.Assessors()
	cases := store.Cases()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := seedAccount(t, dir, "alice", domain.RoleAssessor, base)
	b := seedAccount(t, dir, "bob", domain.RoleAssessor, base.Add(time.Minute))
	inactive := seedAccount(t, dir, "carol", domain.RoleAssessor, base.Add(2*time.Minute))
	seedAccount(t, dir, "admin", domain.RoleAdmin, base)
	if _, err := dir.SetStatus(ctx, inactive.ID, domain.AccountStatusInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	for i, status := range []domain.CaseStatus{
		domain.CaseStatusFlaggedForReview,
		domain.CaseStatusFlaggedForReview,
		domain.CaseStatusCompletedFollowUpNeeded,
	} {
		assignee := a.ID
		if i == 2 {
			assignee = b.ID
		}
		if err := cases.Create(ctx, &domain.Case{SubmissionID: "s", Status: status, AssignedReviewerID: &assignee}); err != nil {
			t.Fatalf("create case: %v", err)
		}
	}

	loads, err := dir.ListActiveAssessors(ctx, domain.RoleAssessor)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(loads) != 2 {
		t.Fatalf("expected 2 active assessors, got %d", len(loads))
	}
	if loads[0].Account.ID != a.ID || loads[0].OpenCases != 2 {
		t.Fatalf("unexpected first load: %+v", loads[0])
	}
	if loads[1].Account.ID != b.ID || loads[1].OpenCases != 0 {
		t.Fatalf("completed cases must not count as open: %+v", loads[1])
	}
}

func TestMemoryDuplicateUsername(t *testing.T) {
	store := NewMemoryStore()
	dir := store.Assessors()
	seedAccount(t, dir, "alice", domain.RoleAssessor, time.Time{})

	err := dir.Create(context.Background(), &domain.Account{Username: "alice", Role: domain.RoleAdmin})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}
}

func TestMemoryListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cases := store.Cases()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		c := &domain.Case{
			SubmissionID: "s",
			Status:       domain.CaseStatusInitialScreening,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		}
		if err := cases.Create(ctx, c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := cases.Create(ctx, &domain.Case{SubmissionID: "s", Status: domain.CaseStatusFlaggedForReview, CreatedAt: base}); err != nil {
		t.Fatalf("create: %v", err)
	}

	cutoff := base.Add(90 * time.Minute)
	stale, err := cases.List(ctx, CaseFilter{
		Statuses:      []domain.CaseStatus{domain.CaseStatusInitialScreening},
		CreatedBefore: &cutoff,
		OldestFirst:   true,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale cases, got %d", len(stale))
	}
	if !stale[0].CreatedAt.Before(stale[1].CreatedAt) {
		t.Fatalf("expected oldest first ordering")
	}

	counts, err := cases.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[domain.CaseStatusInitialScreening] != 3 || counts[domain.CaseStatusFlaggedForReview] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if _, ok := counts[domain.CaseStatusErrorInProcessing]; !ok {
		t.Fatalf("expected zero entries for every status")
	}
}

func TestMemoryAuditOrdering(t *testing.T) {
	ctx := context.Background()
	audit := NewMemoryStore().Audit()

	for _, msg := range []string{"first", "second", "third"} {
		if err := audit.Create(ctx, &domain.AuditEntry{CaseID: "c1", Kind: domain.AuditKindSubmitted, Message: msg}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := audit.Create(ctx, &domain.AuditEntry{CaseID: "c2", Kind: domain.AuditKindFlagged, Message: "other"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	byCase, _ := audit.ListByCase(ctx, "c1", 0, 0)
	if len(byCase) != 3 || byCase[0].Message != "first" || byCase[2].Message != "third" {
		t.Fatalf("unexpected case history: %+v", byCase)
	}
	recent, _ := audit.ListRecent(ctx, 2)
	if len(recent) != 2 || recent[0].Message != "other" || recent[1].Message != "third" {
		t.Fatalf("unexpected recent entries: %+v", recent)
	}
}

func TestMemoryCaseApplyUpdateKeepsOwnKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cases := store.Cases()

	c := &domain.Case{SubmissionID: "sub-1", Status: domain.CaseStatusFlaggedForReview}
	if err := cases.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Request routers hand out ids that share a buffer reused by the next request.
	buf := []byte(c.ID)
	borrowed := unsafe.String(&buf[0], len(buf))
	reviewer := "assessor-2"
	if _, err := cases.ApplyUpdate(ctx, borrowed, []domain.CaseStatus{domain.CaseStatusFlaggedForReview}, domain.CaseUpdate{
		Status:      domain.CaseStatusFlaggedForReview,
		SetAssignee: true,
		AssigneeID:  &reviewer,
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for i := range buf {
		buf[i] = 'x'
	}

	got, err := cases.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("case lost after update through a borrowed id: %v", err)
	}
	if got.AssignedReviewerID == nil || *got.AssignedReviewerID != reviewer {
		t.Fatalf("unexpected assignee %+v", got.AssignedReviewerID)
	}
}

func TestMemoryAccountStatusAndListing(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryStore().Assessors()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	admin := seedAccount(t, dir, "admin", domain.RoleAdmin, base)
	alice := seedAccount(t, dir, "alice", domain.RoleAssessor, base.Add(time.Minute))
	seedAccount(t, dir, "bob", domain.RoleAssessor, base.Add(2*time.Minute))

	updated, err := dir.SetStatus(ctx, alice.ID, domain.AccountStatusInactive)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if updated.Status != domain.AccountStatusInactive || updated.Username != "alice" {
		t.Fatalf("unexpected account %+v", updated)
	}
	if _, err := dir.SetStatus(ctx, "missing", domain.AccountStatusInactive); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected no rows, got %v", err)
	}

	loads, err := dir.ListActiveAssessors(ctx, domain.RoleAssessor)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(loads) != 1 || loads[0].Account.Username != "bob" {
		t.Fatalf("inactive assessor must leave the active list, got %+v", loads)
	}

	all, err := dir.ListAccounts(ctx, nil, 0, 0)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(all) != 3 || all[0].ID != admin.ID || all[1].Status != domain.AccountStatusInactive {
		t.Fatalf("unexpected accounts %+v", all)
	}

	role := domain.RoleAssessor
	assessors, err := dir.ListAccounts(ctx, &role, 1, 1)
	if err != nil {
		t.Fatalf("list assessors: %v", err)
	}
	if len(assessors) != 1 || assessors[0].Username != "bob" {
		t.Fatalf("unexpected page %+v", assessors)
	}
}

func TestMalformedIDReadsAsMissing(t *testing.T) {
	err := missingOnMalformedID(fmt.Errorf("get case: %w", &pgconn.PgError{Code: "22P02"}))
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected no rows, got %v", err)
	}
	other := &pgconn.PgError{Code: "23505"}
	if err := missingOnMalformedID(other); err != other {
		t.Fatalf("unrelated errors must pass through, got %v", err)
	}
}
