package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dsi-platform/screening-service/internal/domain"
)

// MemoryStore keeps every record in process memory. It backs local runs without
// POSTGRES_DSN and the service tests. Lookups that miss return pgx.ErrNoRows so
// callers handle both backends the same way.
type MemoryStore struct {
	mu          sync.RWMutex
	cases       map[string]*domain.Case
	submissions map[string]*domain.Submission
	accounts    map[string]*domain.Account
	audit       []domain.AuditEntry
	seq         map[string]int64
	nextSeq     int64
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:       make(map[string]*domain.Case),
		submissions: make(map[string]*domain.Submission),
		accounts:    make(map[string]*domain.Account),
		seq:         make(map[string]int64),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Cases exposes the store as a CaseRepository.
func (s *MemoryStore) Cases() CaseRepository { return memoryCases{s} }

// Submissions exposes the store as a SubmissionRepository.
func (s *MemoryStore) Submissions() SubmissionRepository { return memorySubmissions{s} }

// Assessors exposes the store as an AssessorDirectory.
func (s *MemoryStore) Assessors() AssessorDirectory { return memoryDirectory{s} }

// Audit exposes the store as an AuditRepository.
func (s *MemoryStore) Audit() AuditRepository { return memoryAudit{s} }

func (s *MemoryStore) stamp(id string) {
	s.nextSeq++
	s.seq[id] = s.nextSeq
}

type memoryCases struct{ s *MemoryStore }

func (m memoryCases) Create(_ context.Context, c *domain.Case) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := m.s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	stored := cloneCase(c)
	m.s.cases[c.ID] = &stored
	m.s.stamp(c.ID)
	return nil
}

func (m memoryCases) GetByID(_ context.Context, id string) (*domain.Case, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	c, ok := m.s.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := cloneCase(c)
	return &out, nil
}

func (m memoryCases) GetBySubmissionID(_ context.Context, submissionID string) (*domain.Case, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	for _, c := range m.s.cases {
		if c.SubmissionID == submissionID {
			out := cloneCase(c)
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m memoryCases) ApplyUpdate(_ context.Context, id string, expected []domain.CaseStatus, update domain.CaseUpdate) (*domain.Case, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	c, ok := m.s.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if !containsStatus(expected, c.Status) {
		return nil, ErrStatusConflict
	}
	update.Apply(c)
	c.UpdatedAt = m.s.now()
	stored := cloneCase(c)
	// Key by the stored ID; map assignment would otherwise adopt the caller's
	// string, which may alias a reused request buffer.
	m.s.cases[stored.ID] = &stored
	out := cloneCase(c)
	return &out, nil
}

func (m memoryCases) List(_ context.Context, filter CaseFilter) ([]domain.Case, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var result []domain.Case
	for _, c := range m.s.cases {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, c.Status) {
			continue
		}
		if filter.AssigneeID != nil && (c.AssignedReviewerID == nil || *c.AssignedReviewerID != *filter.AssigneeID) {
			continue
		}
		if filter.CreatedBefore != nil && !c.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		result = append(result, cloneCase(c))
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if filter.OldestFirst {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return m.s.seq[a.ID] < m.s.seq[b.ID]
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return m.s.seq[a.ID] > m.s.seq[b.ID]
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset, 50)
	return page(result, limit, offset), nil
}

func (m memoryCases) CountByStatus(_ context.Context) (map[domain.CaseStatus]int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	counts := make(map[domain.CaseStatus]int, len(domain.AllCaseStatuses))
	for _, status := range domain.AllCaseStatuses {
		counts[status] = 0
	}
	for _, c := range m.s.cases {
		counts[c.Status]++
	}
	return counts, nil
}

type memorySubmissions struct{ s *MemoryStore }

func (m memorySubmissions) Create(_ context.Context, sub *domain.Submission) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = m.s.now()
	}
	stored := *sub
	m.s.submissions[sub.ID] = &stored
	m.s.stamp(sub.ID)
	return nil
}

func (m memorySubmissions) GetByID(_ context.Context, id string) (*domain.Submission, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	sub, ok := m.s.submissions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *sub
	return &out, nil
}

func (m memorySubmissions) ListByUploader(_ context.Context, uploaderID string, limit, offset int) ([]domain.Submission, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var result []domain.Submission
	for _, sub := range m.s.submissions {
		if sub.UploaderID == uploaderID {
			result = append(result, *sub)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return m.s.seq[result[i].ID] > m.s.seq[result[j].ID]
	})
	limit, offset = normalizePage(limit, offset, 50)
	return page(result, limit, offset), nil
}

type memoryDirectory struct{ s *MemoryStore }

func (m memoryDirectory) Create(_ context.Context, account *domain.Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for _, existing := range m.s.accounts {
		if existing.Username == account.Username {
			return ErrDuplicateUsername
		}
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = m.s.now()
	}
	stored := *account
	m.s.accounts[account.ID] = &stored
	return nil
}

func (m memoryDirectory) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	account, ok := m.s.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *account
	return &out, nil
}

func (m memoryDirectory) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	for _, account := range m.s.accounts {
		if account.Username == username {
			out := *account
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m memoryDirectory) ListActiveAssessors(_ context.Context, role domain.AccountRole) ([]domain.AssessorLoad, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	open := make(map[string]int)
	for _, c := range m.s.cases {
		if c.Status.IsOpen() && c.AssignedReviewerID != nil {
			open[*c.AssignedReviewerID]++
		}
	}

	var result []domain.AssessorLoad
	for _, account := range m.s.accounts {
		if account.Role != role || !account.Active() {
			continue
		}
		result = append(result, domain.AssessorLoad{Account: *account, OpenCases: open[account.ID]})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Account, result[j].Account
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return result, nil
}

func (m memoryDirectory) ListAccounts(_ context.Context, role *domain.AccountRole, limit, offset int) ([]domain.Account, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var result []domain.Account
	for _, account := range m.s.accounts {
		if role != nil && account.Role != *role {
			continue
		}
		result = append(result, *account)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	limit, offset = normalizePage(limit, offset, 50)
	return page(result, limit, offset), nil
}

func (m memoryDirectory) SetStatus(_ context.Context, id string, status domain.AccountStatus) (*domain.Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	account, ok := m.s.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	account.Status = status
	out := *account
	return &out, nil
}

type memoryAudit struct{ s *MemoryStore }

func (m memoryAudit) Create(_ context.Context, entry *domain.AuditEntry) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.s.now()
	}
	m.s.audit = append(m.s.audit, cloneAudit(*entry))
	return nil
}

func (m memoryAudit) ListByCase(_ context.Context, caseID string, limit, offset int) ([]domain.AuditEntry, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var result []domain.AuditEntry
	for _, entry := range m.s.audit {
		if entry.CaseID == caseID {
			result = append(result, cloneAudit(entry))
		}
	}
	limit, offset = normalizePage(limit, offset, 100)
	return page(result, limit, offset), nil
}

func (m memoryAudit) ListRecent(_ context.Context, limit int) ([]domain.AuditEntry, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	limit, _ = normalizePage(limit, 0, 20)
	result := make([]domain.AuditEntry, 0, limit)
	for i := len(m.s.audit) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, cloneAudit(m.s.audit[i]))
	}
	return result, nil
}

func containsStatus(statuses []domain.CaseStatus, status domain.CaseStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneCase(c *domain.Case) domain.Case {
	out := *c
	out.AssignedReviewerID = cloneString(c.AssignedReviewerID)
	out.ReviewerReport = cloneString(c.ReviewerReport)
	out.FlaggedAt = cloneTime(c.FlaggedAt)
	out.CompletedAt = cloneTime(c.CompletedAt)
	return out
}

func cloneAudit(entry domain.AuditEntry) domain.AuditEntry {
	entry.ActorID = cloneString(entry.ActorID)
	return entry
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
