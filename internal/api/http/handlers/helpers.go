package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dsi-platform/screening-service/internal/api/dto"
	"github.com/dsi-platform/screening-service/internal/auth"
	"github.com/dsi-platform/screening-service/internal/domain"
)

func principalAccount(c *fiber.Ctx) (*domain.Account, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Account == nil {
		return nil, fiber.NewError(http.StatusUnauthorized, "authentication required")
	}
	return principal.Account, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

// parsePage turns page/page_size query values into limit and offset.
func parsePage(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}
	return pageSize, (page - 1) * pageSize
}

func parseStatuses(val string) []domain.CaseStatus {
	if val == "" {
		return nil
	}
	var statuses []domain.CaseStatus
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			statuses = append(statuses, domain.CaseStatus(strings.ToUpper(part)))
		}
	}
	return statuses
}

func submissionResponse(sub *domain.Submission) dto.SubmissionResponse {
	return dto.SubmissionResponse{
		ID:           sub.ID,
		UploaderID:   sub.UploaderID,
		SubjectID:    sub.SubjectID,
		SubjectName:  sub.SubjectName,
		SubjectClass: sub.SubjectClass,
		SubjectAge:   sub.SubjectAge,
		Notes:        sub.Notes,
		ArtifactRef:  sub.ArtifactRef,
		CreatedAt:    sub.CreatedAt,
	}
}

func caseResponse(c *domain.Case) dto.CaseResponse {
	return dto.CaseResponse{
		ID:                 c.ID,
		SubmissionID:       c.SubmissionID,
		Status:             c.Status,
		AnalysisResult:     c.AnalysisResult,
		AssignedReviewerID: c.AssignedReviewerID,
		ReviewerReport:     c.ReviewerReport,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
		FlaggedAt:          c.FlaggedAt,
		CompletedAt:        c.CompletedAt,
	}
}

func caseResponses(cases []domain.Case) []dto.CaseResponse {
	items := make([]dto.CaseResponse, 0, len(cases))
	for i := range cases {
		items = append(items, caseResponse(&cases[i]))
	}
	return items
}

func auditResponses(entries []domain.AuditEntry) []dto.AuditEntryResponse {
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.AuditEntryResponse{
			ID:        entry.ID,
			CaseID:    entry.CaseID,
			ActorID:   entry.ActorID,
			Kind:      entry.Kind,
			Message:   entry.Message,
			CreatedAt: entry.CreatedAt,
		})
	}
	return items
}

func accountResponse(account *domain.Account) dto.AccountResponse {
	return dto.AccountResponse{
		ID:        account.ID,
		Username:  account.Username,
		Role:      account.Role,
		Status:    account.Status,
		CreatedAt: account.CreatedAt,
	}
}
