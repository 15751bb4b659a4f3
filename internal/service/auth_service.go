package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dsi-platform/screening-service/internal/auth"
	"github.com/dsi-platform/screening-service/internal/config"
	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/repository"
	apperrors "github.com/dsi-platform/screening-service/pkg/util/errorutil"
)

// AuthService coordinates account creation and login flows.
type AuthService struct {
	accounts   repository.AssessorDirectory
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, accounts repository.AssessorDirectory) *AuthService {
	return &AuthService{
		accounts:   accounts,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
	}
}

// Login authenticates an account and returns a role-bearing token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Account, string, time.Time, error) {
	account, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if !account.Active() {
		return nil, "", time.Time{}, apperrors.NewForbidden("account inactive")
	}
	token, exp, err := s.tokenMgr.GenerateToken(account.ID, account.Role)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return account, token, exp, nil
}

// CreateAccount adds an account to the directory (ADMIN only).
func (s *AuthService) CreateAccount(ctx context.Context, actor *domain.Account, username, password string, role domain.AccountRole) (*domain.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.createAccount(ctx, username, password, role)
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) (*domain.Account, bool, error) {
	existing, err := s.accounts.GetByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	account, err := s.createAccount(ctx, username, password, domain.RoleAdmin)
	if err != nil {
		return nil, false, err
	}
	return account, true, nil
}

func (s *AuthService) createAccount(ctx context.Context, username, password string, role domain.AccountRole) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	details := map[string]any{}
	if username == "" {
		details["username"] = "required"
	}
	if len(password) < 8 {
		details["password"] = "must be at least 8 characters"
	}
	switch role {
	case domain.RoleUploader, domain.RoleAssessor, domain.RoleAdmin:
	default:
		details["role"] = "must be UPLOADER, ASSESSOR or ADMIN"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid account", details)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	account := &domain.Account{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.AccountStatusActive,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, apperrors.NewConflict("username already exists", map[string]any{"username": username})
		}
		return nil, apperrors.MapError(err)
	}
	return account, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
