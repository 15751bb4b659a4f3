package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/observability"
)

// CachedAssessorDirectory memoizes account lookups by id. Workload queries always
// reach the underlying directory so assignment never sees stale open-case counts.
type CachedAssessorDirectory struct {
	next    AssessorDirectory
	cache   *expirable.LRU[string, domain.Account]
	metrics *observability.Metrics
}

// NewCachedAssessorDirectory wraps next with an LRU of the given size and TTL.
func NewCachedAssessorDirectory(next AssessorDirectory, size int, ttl time.Duration, metrics *observability.Metrics) *CachedAssessorDirectory {
	if size <= 0 {
		size = 256
	}
	return &CachedAssessorDirectory{
		next:    next,
		cache:   expirable.NewLRU[string, domain.Account](size, nil, ttl),
		metrics: metrics,
	}
}

func (d *CachedAssessorDirectory) Create(ctx context.Context, account *domain.Account) error {
	if err := d.next.Create(ctx, account); err != nil {
		return err
	}
	d.cache.Remove(account.ID)
	return nil
}

func (d *CachedAssessorDirectory) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if account, ok := d.cache.Get(id); ok {
		d.metrics.RecordCacheLookup(true)
		return &account, nil
	}
	d.metrics.RecordCacheLookup(false)

	account, err := d.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.Add(id, *account)
	return account, nil
}

func (d *CachedAssessorDirectory) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return d.next.GetByUsername(ctx, username)
}

func (d *CachedAssessorDirectory) ListActiveAssessors(ctx context.Context, role domain.AccountRole) ([]domain.AssessorLoad, error) {
	return d.next.ListActiveAssessors(ctx, role)
}

func (d *CachedAssessorDirectory) ListAccounts(ctx context.Context, role *domain.AccountRole, limit, offset int) ([]domain.Account, error) {
	return d.next.ListAccounts(ctx, role, limit, offset)
}

// SetStatus writes through and evicts the cached entry so the auth middleware
// and reassignment see the new status on their next lookup.
func (d *CachedAssessorDirectory) SetStatus(ctx context.Context, id string, status domain.AccountStatus) (*domain.Account, error) {
	account, err := d.next.SetStatus(ctx, id, status)
	d.cache.Remove(id)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Invalidate drops a cached account, e.g. after its status changed.
func (d *CachedAssessorDirectory) Invalidate(id string) {
	d.cache.Remove(id)
}
