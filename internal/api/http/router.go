package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/grievance-portal/internal/api/http/handlers"
	"github.com/spec-kit/grievance-portal/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Grievances     *handlers.GrievancesHandler
	Inbox          *handlers.InboxHandler
	Attachments    *handlers.AttachmentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/register/verify", cfg.Auth.Verify)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/password/reset/request", cfg.Auth.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Auth.ConfirmPasswordReset)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, cfg.Auth.ChangePassword)

	grievances := api.Group("/grievances", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	grievances.Post("", cfg.Grievances.Submit)
	grievances.Get("", cfg.Grievances.List)
	grievances.Get("/:id", cfg.Grievances.Get)
	grievances.Delete("/:id", cfg.Grievances.Delete)
	grievances.Post("/:id/reminder", cfg.Grievances.Remind)
	grievances.Post("/:id/feedback", cfg.Grievances.SetFeedback)
	grievances.Patch("/:id/status", auth.RequireStaff(), cfg.Grievances.SetStatus)
	grievances.Post("/:id/assign", auth.RequireStaff(), cfg.Grievances.Assign)
	grievances.Post("/:id/responses", auth.RequireStaff(), cfg.Grievances.AddResponse)

	attachments := api.Group("/attachments", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	attachments.Post("", cfg.Attachments.Upload)

	inbox := api.Group("/inbox/messages", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	inbox.Get("", cfg.Inbox.List)
	inbox.Post("", cfg.Inbox.CreateInbound)
	inbox.Post("/:id/read", cfg.Inbox.MarkRead)
	inbox.Post("/:id/star", cfg.Inbox.ToggleStar)
	inbox.Delete("/:id", cfg.Inbox.Delete)
	inbox.Post("/:id/reply", cfg.Inbox.Reply)
	inbox.Post("/:id/reply-all", cfg.Inbox.ReplyAll)
	inbox.Post("/:id/forward", cfg.Inbox.Forward)
	inbox.Post("/:id/resolve", cfg.Inbox.ResolveLinked)
	inbox.Post("/:id/assign", cfg.Inbox.AssignLinked)
}
