package routes

import (
	"time"

	"propdesk/internal/adapters/http/handlers"
	"propdesk/internal/adapters/http/middleware"
	"propdesk/internal/adapters/realtime"
	"propdesk/internal/config"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup configures all routes for the application
func Setup(app *fiber.App, cfg *config.Config, svc *Services, hub *realtime.Hub, gatherer prometheus.Gatherer) {
	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.AppMode, config.HealthCheck, hub.Count)
	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Users, cfg)
	userHandler := handlers.NewUserHandler(svc.Users)
	roleHandler := handlers.NewRoleHandler(svc.Roles)
	workflowHandler := handlers.NewWorkflowHandler(svc.Workflows)
	approvalHandler := handlers.NewApprovalHandler(svc.Engine)
	propertyHandler := handlers.NewPropertyHandler(svc.Properties)
	movementHandler := handlers.NewMovementHandler(svc.Movements)
	dashboardHandler := handlers.NewDashboardHandler(svc.Dashboard)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// Swagger documentation
	app.Get("/swagger/*", middleware.PublicCache(time.Hour), swagger.HandlerDefault)

	// Prometheus scrape endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Revalidation events for the UI
	app.Use("/ws", middleware.AuthMiddleware(cfg), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(hub.Serve))

	// API v1 group
	apiV1 := app.Group("/api/v1", middleware.NoStore())
	apiV1.Get("/", healthHandler.APIInfo)

	// Auth routes
	setupAuthRoutes(apiV1.Group("/auth"), authHandler, cfg)

	// Everything below requires a valid access token and at least one assignment
	protected := func(prefix string) fiber.Router {
		return apiV1.Group(prefix, middleware.AuthMiddleware(cfg), middleware.RequireAssignment())
	}

	setupUserRoutes(protected("/users"), userHandler, roleHandler)
	setupRoleRoutes(protected("/roles"), protected("/assignments"), roleHandler)
	setupWorkflowRoutes(protected("/workflows"), workflowHandler)
	setupApprovalRoutes(protected("/approvals"), approvalHandler)
	setupPropertyRoutes(protected("/properties"), propertyHandler)
	setupMovementRoutes(protected("/movements/:kind"), movementHandler)

	protected("/dashboard").Get("/", dashboardHandler.Get)
}

// setupAuthRoutes configures authentication routes
func setupAuthRoutes(router fiber.Router, handler *handlers.AuthHandler, cfg *config.Config) {
	// Public routes
	router.Post("/login", middleware.AuthRateLimiter(), handler.Login)
	router.Post("/refresh", middleware.AuthRateLimiter(), handler.RefreshToken)
	router.Post("/logout", handler.Logout)

	// Protected routes
	router.Get("/me", middleware.AuthMiddleware(cfg), handler.Me)
	router.Post("/logout-all", middleware.AuthMiddleware(cfg), handler.LogoutAll)
	router.Put("/password", middleware.StrictRateLimiter(), middleware.AuthMiddleware(cfg), handler.ChangePassword)
}

// setupUserRoutes configures user management routes
func setupUserRoutes(router fiber.Router, handler *handlers.UserHandler, roles *handlers.RoleHandler) {
	router.Get("/", handler.ListUsers)
	router.Post("/", handler.CreateUser)
	router.Get("/:id", handler.GetUser)
	router.Put("/:id", handler.UpdateUser)
	router.Delete("/:id", handler.DeleteUser)
	router.Get("/:id/assignments", roles.ListAssignments)
}

// setupRoleRoutes configures roles, permissions and assignments
func setupRoleRoutes(roles, assignments fiber.Router, handler *handlers.RoleHandler) {
	roles.Get("/", handler.List)
	roles.Post("/", handler.Create)
	roles.Get("/:id", handler.Get)
	roles.Put("/:id", handler.Update)
	roles.Put("/:id/permissions", handler.SetPermissions)
	roles.Delete("/:id", handler.Delete)

	assignments.Post("/", handler.Assign)
	assignments.Delete("/:id", handler.Unassign)
}

// setupWorkflowRoutes configures workflow definition routes
func setupWorkflowRoutes(router fiber.Router, handler *handlers.WorkflowHandler) {
	router.Get("/", handler.List)
	router.Post("/", handler.Create)
	router.Get("/:id", handler.Get)
	router.Put("/:id", handler.Update)
	router.Put("/:id/steps", handler.UpdateSteps)
	router.Patch("/:id/toggle", handler.Toggle)
	router.Post("/:id/duplicate", handler.Duplicate)
	router.Delete("/:id", handler.Delete)
}

// setupApprovalRoutes configures approval request routes
func setupApprovalRoutes(router fiber.Router, handler *handlers.ApprovalHandler) {
	router.Post("/", handler.Create)
	router.Get("/", handler.List)
	router.Get("/pending", handler.Pending)
	router.Get("/stats", handler.Stats)
	router.Get("/:id", handler.Get)
	router.Get("/:id/history", handler.History)
	router.Post("/:id/respond", handler.Respond)
	router.Post("/:id/cancel", handler.Cancel)
}

// setupPropertyRoutes configures property registry routes
func setupPropertyRoutes(router fiber.Router, handler *handlers.PropertyHandler) {
	router.Post("/", handler.Create)
	router.Get("/", handler.List)
	router.Get("/:id", handler.Get)
	router.Get("/:id/history", handler.History)
}

// setupMovementRoutes configures return, release and turnover routes
func setupMovementRoutes(router fiber.Router, handler *handlers.MovementHandler) {
	router.Post("/", handler.Create)
	router.Get("/", handler.List)
	router.Get("/:id", handler.Get)
	router.Post("/:id/complete", handler.Complete)
	router.Post("/:id/cancel", handler.Cancel)
}
