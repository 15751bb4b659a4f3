package dto

import (
	"time"

	"github.com/dsi-platform/screening-service/internal/domain"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateAccountRequest payload for admin-created accounts.
type CreateAccountRequest struct {
	Username string             `json:"username"`
	Password string             `json:"password"`
	Role     domain.AccountRole `json:"role"`
}

// AccountResponse is the public view of a directory account.
type AccountResponse struct {
	ID        string               `json:"id"`
	Username  string               `json:"username"`
	Role      domain.AccountRole   `json:"role"`
	Status    domain.AccountStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}

// SetAccountStatusRequest payload for activating or deactivating an account.
type SetAccountStatusRequest struct {
	Status domain.AccountStatus `json:"status"`
}
