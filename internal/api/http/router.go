package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opsdesk/helpdesk/internal/api/http/handlers"
	"github.com/opsdesk/helpdesk/internal/auth"
	"github.com/opsdesk/helpdesk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Departments    *handlers.DepartmentsHandler
	Users          *handlers.UsersHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	tickets := protected.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/comments", cfg.Tickets.ListComments)
	tickets.Get("/:id/activity", cfg.Tickets.ListActivity)

	protected.Delete("/comments/:id", cfg.Tickets.DeleteComment)

	departments := protected.Group("/departments")
	departments.Get("", cfg.Departments.ListDepartments)
	departments.Get("/:id", cfg.Departments.GetDepartment)
	departments.Post("", auth.RequireRole(domain.RoleAdmin), cfg.Departments.CreateDepartment)
	departments.Patch("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Departments.UpdateDepartment)
	departments.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Departments.DeleteDepartment)

	users := protected.Group("/users")
	users.Get("/me", cfg.Users.Me)
	users.Get("/:id", cfg.Users.GetUser)
	users.Post("", auth.RequireRole(domain.RoleAdmin), cfg.Users.CreateUser)
	users.Patch("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Users.UpdateUser)
	users.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Users.DeleteUser)

	notifications := protected.Group("/notifications")
	notifications.Get("", cfg.Notifications.ListNotifications)
	notifications.Get("/unread-count", cfg.Notifications.UnreadCount)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)
}
