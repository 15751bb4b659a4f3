package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/dsi-platform/screening-service/internal/api/dto"
	"github.com/dsi-platform/screening-service/internal/service"
)

// AuthHandler exposes login.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "username and password required")
	}

	account, token, exp, err := h.auth.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"account": accountResponse(account),
			"auth":    dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}
