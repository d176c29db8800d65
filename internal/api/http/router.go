package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/consult-case-service/internal/api/http/handlers"
	"github.com/spec-kit/consult-case-service/internal/auth"
	"github.com/spec-kit/consult-case-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Cases          *handlers.CasesHandler
	Chat           *handlers.ChatHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	authProtected := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	authProtected.Post("/password/change", cfg.Auth.ChangePassword)
	authProtected.Get("/me", cfg.Auth.Me)

	cases := app.Group("/cases", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	cases.Post("", auth.RequireRole(domain.RoleCustomer), cfg.Cases.CreateCase)
	cases.Get("", cfg.Cases.ListCases)
	cases.Get("/:id", cfg.Cases.GetCase)

	cases.Post("/:id/review", auth.RequireRole(domain.RoleAdmin), cfg.Cases.Review)
	cases.Post("/:id/assign", auth.RequireRole(domain.RoleAdmin), cfg.Cases.AssignExpert)
	cases.Post("/:id/meeting", auth.RequireRole(domain.RoleCustomer), cfg.Cases.BookMeeting)
	cases.Post("/:id/meeting/complete", auth.RequireRole(domain.RoleExpert, domain.RoleAdmin), cfg.Cases.CompleteMeeting)
	cases.Post("/:id/meeting/no-show", auth.RequireRole(domain.RoleExpert, domain.RoleAdmin), cfg.Cases.MarkNoShow)
	cases.Put("/:id/advice", auth.RequireRole(domain.RoleExpert, domain.RoleAdmin), cfg.Cases.UpdateAdvice)
	cases.Post("/:id/recommendations/send", auth.RequireRole(domain.RoleExpert, domain.RoleAdmin), cfg.Cases.SendRecommendations)
	cases.Post("/:id/close", auth.RequireRole(domain.RoleAdmin), cfg.Cases.CloseCase)
	cases.Post("/:id/cancel", auth.RequireRole(domain.RoleAdmin), cfg.Cases.CancelCase)
	cases.Post("/:id/order", auth.RequireRole(domain.RoleAdmin), cfg.Cases.OrderCreated)
	cases.Get("/:id/history", auth.RequireRole(domain.RoleExpert, domain.RoleAdmin), cfg.Cases.ListHistory)

	cases.Post("/:id/chat/open", cfg.Chat.Open)
	cases.Get("/:id/chat", cfg.Chat.Transcript)
	cases.Post("/:id/chat/messages", cfg.Chat.Send)
	cases.Get("/:id/chat/failures", cfg.Chat.Failures)
	cases.Post("/:id/chat/close", cfg.Chat.Close)

	app.Get("/attachments/:bucket/:id", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Chat.Download)
}
