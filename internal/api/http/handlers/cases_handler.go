package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dsi-platform/screening-service/internal/api/dto"
	"github.com/dsi-platform/screening-service/internal/service"
)

// CasesHandler serves assessor endpoints.
type CasesHandler struct {
	reviews *service.ReviewService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(reviews *service.ReviewService) *CasesHandler {
	return &CasesHandler{reviews: reviews}
}

// ListAssigned GET /api/cases/assigned.
func (h *CasesHandler) ListAssigned(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	limit, offset := parsePage(c)
	cases, err := h.reviews.ListAssigned(c.UserContext(), account, parseStatuses(c.Query("status")), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseResponses(cases)})
}

// GetCase GET /api/cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	details, err := h.reviews.GetCase(c.UserContext(), account, c.Params("id"))
	if err != nil {
		return err
	}
	resp := dto.CaseDetailResponse{CaseResponse: caseResponse(details.Case)}
	if details.Submission != nil {
		sub := submissionResponse(details.Submission)
		resp.Submission = &sub
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Review PUT /api/cases/:id/review.
func (h *CasesHandler) Review(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	var req dto.ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	updated, err := h.reviews.SubmitReview(c.UserContext(), account, c.Params("id"), service.ReviewInput{
		Report:      req.Report,
		FinalStatus: req.FinalStatus,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": caseResponse(updated)})
}
