package routes

import (
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/services"

	"gorm.io/gorm"
)

// Services holds the application services shared by the HTTP layer and the
// background jobs
type Services struct {
	Auth       *services.AuthService
	Users      *services.UserService
	Roles      *services.RoleService
	Workflows  *services.WorkflowService
	Engine     *services.ApprovalEngine
	Movements  *services.MovementService
	Properties *services.PropertyService
	Dashboard  *services.DashboardService
	Notifier   *services.NotificationService
	Jobs       *services.JobService
}

// NewServices wires repositories into services. observers receive every
// approval request event after commit, the notifier is always subscribed.
func NewServices(db *gorm.DB, cfg *config.Config, observers ...domain.RequestObserver) *Services {
	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	roleRepo := repositories.NewRoleRepository(db)
	assignmentRepo := repositories.NewAssignmentRepository(db)
	unitRepo := repositories.NewBusinessUnitRepository(db)
	workflowRepo := repositories.NewWorkflowRepository(db)
	requestRepo := repositories.NewApprovalRequestRepository(db)
	propertyRepo := repositories.NewPropertyRepository(db)
	movementRepo := repositories.NewMovementRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Initialize services
	engine := services.NewApprovalEngine(db, workflowRepo, requestRepo, auditRepo)
	notifier := services.NewNotificationService(assignmentRepo, cfg.Jobs.NotifyWebhookURL)
	engine.Subscribe(append(observers, notifier)...)

	return &Services{
		Auth:       services.NewAuthService(userRepo, refreshTokenRepo, cfg.JWT),
		Users:      services.NewUserService(db, userRepo, assignmentRepo, roleRepo, auditRepo),
		Roles:      services.NewRoleService(db, roleRepo, assignmentRepo, unitRepo, userRepo, auditRepo),
		Workflows:  services.NewWorkflowService(db, workflowRepo, roleRepo, auditRepo),
		Engine:     engine,
		Movements:  services.NewMovementService(db, engine, workflowRepo, propertyRepo, movementRepo, auditRepo),
		Properties: services.NewPropertyService(db, propertyRepo, auditRepo),
		Dashboard:  services.NewDashboardService(db, engine),
		Notifier:   notifier,
		Jobs:       services.NewJobService(cfg.Jobs, requestRepo, refreshTokenRepo, notifier),
	}
}
