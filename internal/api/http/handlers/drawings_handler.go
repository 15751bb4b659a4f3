package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dsi-platform/screening-service/internal/api/dto"
	"github.com/dsi-platform/screening-service/internal/service"
)

// DrawingsHandler serves uploader endpoints.
type DrawingsHandler struct {
	submissions *service.SubmissionService
}

// NewDrawingsHandler constructs handler.
func NewDrawingsHandler(submissions *service.SubmissionService) *DrawingsHandler {
	return &DrawingsHandler{submissions: submissions}
}

// Submit POST /api/drawings. Answers 202 before the case is analysed.
func (h *DrawingsHandler) Submit(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	var req dto.SubmitDrawingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	sub, created, err := h.submissions.Submit(c.UserContext(), account, service.SubmitInput{
		SubjectID:    req.SubjectID,
		SubjectName:  req.SubjectName,
		SubjectClass: req.SubjectClass,
		SubjectAge:   req.SubjectAge,
		Notes:        req.Notes,
		ArtifactRef:  req.ArtifactRef,
	})
	if err != nil {
		return err
	}
	caseView := caseResponse(created)
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"data": dto.SubmissionWithCase{Submission: submissionResponse(sub), Case: &caseView},
	})
}

// ListMine GET /api/drawings.
func (h *DrawingsHandler) ListMine(c *fiber.Ctx) error {
	account, err := principalAccount(c)
	if err != nil {
		return err
	}
	limit, offset := parsePage(c)
	views, err := h.submissions.ListMine(c.UserContext(), account, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.SubmissionWithCase, 0, len(views))
	for i := range views {
		item := dto.SubmissionWithCase{Submission: submissionResponse(&views[i].Submission)}
		if views[i].Case != nil {
			caseView := caseResponse(views[i].Case)
			item.Case = &caseView
		}
		items = append(items, item)
	}
	return c.JSON(fiber.Map{"data": items})
}
