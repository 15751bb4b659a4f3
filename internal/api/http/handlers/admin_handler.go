package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dsi-platform/screening-service/internal/api/dto"
	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/service"
)

// AdminHandler serves pipeline administration endpoints.
type AdminHandler struct {
	admin      *service.AdminService
	assignment *service.AssignmentService
	auth       *service.AuthService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(admin *service.AdminService, assignment *service.AssignmentService, authService *service.AuthService) *AdminHandler {
	return &AdminHandler{admin: admin, assignment: assignment, auth: authService}
}

// ListCases GET /api/admin/cases.
func (h *AdminHandler) ListCases(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	filter := service.AdminCaseFilter{Statuses: parseStatuses(c.Query("status"))}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	filter.Limit, filter.Offset = parsePage(c)

	cases, err := h.admin.ListCases(c.UserContext(), account, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseResponses(cases)})
}

// Assign PUT /api/admin/cases/:id/assign.
func (h *AdminHandler) Assign(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.AssessorID) == "" {
		return fiber.NewError(http.StatusBadRequest, "assessor_id required")
	}
	updated, err := h.assignment.ReassignCase(c.UserContext(), account, c.Params("id"), req.AssessorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseResponse(updated)})
}

// Stats GET /api/admin/stats.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	stats, err := h.admin.Stats(c.UserContext(), account)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StatsResponse{
		Total:       stats.Total,
		ByStatus:    stats.ByStatus,
		QueueDepth:  stats.QueueDepth,
		WorkerState: stats.WorkerState,
	}})
}

// RecentLogs GET /api/admin/logs.
func (h *AdminHandler) RecentLogs(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	entries, err := h.admin.RecentLogs(c.UserContext(), account, parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": auditResponses(entries)})
}

// CaseLogs GET /api/admin/cases/:id/logs.
func (h *AdminHandler) CaseLogs(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	limit, offset := parsePage(c)
	entries, err := h.admin.CaseLogs(c.UserContext(), account, c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": auditResponses(entries)})
}

// CreateAccount POST /api/admin/accounts.
func (h *AdminHandler) CreateAccount(c *fiber.Ctx) error {
	actor, err := principalAccount(c)
	if err != nil {
		return err
	}
	var req dto.CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	req.Role = domain.AccountRole(strings.ToUpper(strings.TrimSpace(string(req.Role))))
	account, err := h.auth.CreateAccount(c.UserContext(), actor, req.Username, req.Password, req.Role)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": accountResponse(account)})
}

// ListAccounts GET /api/admin/accounts.
func (h *AdminHandler) ListAccounts(c *fiber.Ctx) error {
	actor, err := principalAccount(c)
	if err != nil {
		return err
	}
	var role *domain.AccountRole
	if raw := strings.TrimSpace(c.Query("role")); raw != "" {
		r := domain.AccountRole(strings.ToUpper(raw))
		role = &r
	}
	limit, offset := parsePage(c)
	accounts, err := h.admin.ListAccounts(c.UserContext(), actor, role, limit, offset)
	if err != nil {
		return err
	}
	out := make([]dto.AccountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, accountResponse(&accounts[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// SetAccountStatus PUT /api/admin/accounts/:id/status.
func (h *AdminHandler) SetAccountStatus(c *fiber.Ctx) error {
	actor, err := principalAccount(c)
	if err != nil {
		return err
	}
	var req dto.SetAccountStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	status := domain.AccountStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	account, err := h.admin.SetAccountStatus(c.UserContext(), actor, c.Params("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": accountResponse(account)})
}
