package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/observability"
)

type countingDirectory struct {
	AssessorDirectory
	getByID int
}

func (c *countingDirectory) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	c.getByID++
	return c.AssessorDirectory.GetByID(ctx, id)
}

func TestCachedAssessorDirectoryServesRepeatLookups(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	inner := &countingDirectory{AssessorDirectory: store.Assessors()}
	metrics := observability.NewMetrics("test")
	cached := NewCachedAssessorDirectory(inner, 8, time.Minute, metrics)

	account := seedAccount(t, cached, "alice", domain.RoleAssessor, time.Time{})

	for i := 0; i < 3; i++ {
		got, err := cached.GetByID(ctx, account.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Username != "alice" {
			t.Fatalf("unexpected account %+v", got)
		}
	}
	if inner.getByID != 1 {
		t.Fatalf("expected one backend lookup, got %d", inner.getByID)
	}

	cached.Invalidate(account.ID)
	if _, err := cached.GetByID(ctx, account.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if inner.getByID != 2 {
		t.Fatalf("expected lookup after invalidate, got %d", inner.getByID)
	}

	expected := `
# HELP test_assessor_cache_lookups_total Assessor directory cache lookups by result (hit, miss).
# TYPE test_assessor_cache_lookups_total counter
test_assessor_cache_lookups_total{result="hit"} 2
test_assessor_cache_lookups_total{result="miss"} 2
`
	if err := testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "test_assessor_cache_lookups_total"); err != nil {
		t.Fatalf("unexpected cache metrics: %v", err)
	}
}

func TestCachedAssessorDirectoryDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{AssessorDirectory: NewMemoryStore().Assessors()}
	cached := NewCachedAssessorDirectory(inner, 8, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := cached.GetByID(ctx, "missing"); err == nil {
			t.Fatal("expected error for unknown account")
		}
	}
	if inner.getByID != 2 {
		t.Fatalf("misses must reach the backend, got %d lookups", inner.getByID)
	}
}

func TestCachedAssessorDirectorySetStatusEvicts(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{AssessorDirectory: NewMemoryStore().Assessors()}
	cached := NewCachedAssessorDirectory(inner, 8, time.Hour, nil)

	account := seedAccount(t, cached, "alice", domain.RoleAssessor, time.Time{})
	if got, err := cached.GetByID(ctx, account.ID); err != nil || !got.Active() {
		t.Fatalf("warm cache: %+v %v", got, err)
	}

	if _, err := cached.SetStatus(ctx, account.ID, domain.AccountStatusInactive); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := cached.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Active() {
		t.Fatal("cached entry survived a status change")
	}
	if inner.getByID != 2 {
		t.Fatalf("expected a backend lookup after the status change, got %d", inner.getByID)
	}
}
