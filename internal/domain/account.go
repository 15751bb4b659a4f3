package domain

import "time"

// AccountRole enumerates directory roles.
type AccountRole string

const (
	RoleUploader AccountRole = "UPLOADER"
	RoleAssessor AccountRole = "ASSESSOR"
	RoleAdmin    AccountRole = "ADMIN"
)

// AccountStatus marks whether an account may act or receive work.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
)

// Account is an entry in the assessor directory.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Role         AccountRole
	Status       AccountStatus
	CreatedAt    time.Time
}

// Active reports whether the account is enabled.
func (a *Account) Active() bool {
	return a != nil && a.Status == AccountStatusActive
}

// AssessorLoad pairs an eligible assessor with the number of open cases they hold.
type AssessorLoad struct {
	Account   Account
	OpenCases int
}
