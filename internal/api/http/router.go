package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/dsi-platform/screening-service/internal/api/http/handlers"
	"github.com/dsi-platform/screening-service/internal/auth"
	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Drawings       *handlers.DrawingsHandler
	Cases          *handlers.CasesHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	app.Post("/auth/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)

	drawings := api.Group("/drawings", auth.RequireRole(domain.RoleUploader))
	drawings.Post("/", cfg.Drawings.Submit)
	drawings.Get("/", cfg.Drawings.ListMine)

	cases := api.Group("/cases")
	cases.Get("/assigned", auth.RequireRole(domain.RoleAssessor), cfg.Cases.ListAssigned)
	cases.Get("/:id", auth.RequireRole(domain.RoleUploader, domain.RoleAssessor, domain.RoleAdmin), cfg.Cases.GetCase)
	cases.Put("/:id/review", auth.RequireRole(domain.RoleAssessor, domain.RoleAdmin), cfg.Cases.Review)

	admin := api.Group("/admin", auth.RequireRole(domain.RoleAdmin))
	admin.Get("/cases", cfg.Admin.ListCases)
	admin.Put("/cases/:id/assign", cfg.Admin.Assign)
	admin.Get("/cases/:id/logs", cfg.Admin.CaseLogs)
	admin.Get("/stats", cfg.Admin.Stats)
	admin.Get("/logs", cfg.Admin.RecentLogs)
	admin.Get("/accounts", cfg.Admin.ListAccounts)
	admin.Post("/accounts", cfg.Admin.CreateAccount)
	admin.Put("/accounts/:id/status", cfg.Admin.SetAccountStatus)
}
