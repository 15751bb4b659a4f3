package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/events"
	"github.com/dsi-platform/screening-service/internal/repository"
	apperrors "github.com/dsi-platform/screening-service/pkg/util/errorutil"
)

func publish(ctx context.Context, dispatcher events.Dispatcher, eventType events.EventType, caseID string, actorID *string, payload interface{}) {
	if dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		CaseID:    caseID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	_ = dispatcher.Publish(ctx, event)
}

func loadCase(ctx context.Context, cases repository.CaseRepository, caseID string) (*domain.Case, error) {
	c, err := cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
		}
		return nil, apperrors.MapError(err)
	}
	return c, nil
}

func mapUpdateError(err error, caseID string) error {
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		return apperrors.NewConflict("case status changed concurrently", map[string]any{"case_id": caseID})
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
	default:
		return apperrors.MapError(err)
	}
}

func requireAdmin(actor *domain.Account) error {
	if actor == nil {
		return apperrors.NewUnauthorized("account required")
	}
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

func ptrString(v string) *string {
	return &v
}

func ptrTime(v time.Time) *time.Time {
	return &v
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
