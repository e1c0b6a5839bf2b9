package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/password"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	password.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

// newTestDB opens a private in-memory database with the full schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig(gormlogger.Discard))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// eventRecorder collects engine events
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.RequestEvent
}

func (r *eventRecorder) OnRequestEvent(ev domain.RequestEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) last() domain.RequestEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// fixture wires every service against one test database with a business
// unit, a second unit and a role ladder
type fixture struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB

	unit  *models.BusinessUnit
	other *models.BusinessUnit
	roles map[string]*models.Role

	userRepo       repositories.UserRepository
	tokenRepo      repositories.RefreshTokenRepository
	roleRepo       *repositories.RoleRepository
	assignmentRepo *repositories.AssignmentRepository
	unitRepo       *repositories.BusinessUnitRepository
	workflowRepo   *repositories.WorkflowRepository
	requestRepo    *repositories.ApprovalRequestRepository
	propertyRepo   *repositories.PropertyRepository
	movementRepo   *repositories.MovementRepository
	auditRepo      *repositories.AuditRepository

	engine     *ApprovalEngine
	workflows  *WorkflowService
	movements  *MovementService
	properties *PropertyService
	roleSvc    *RoleService
	users      *UserService
	events     *eventRecorder
}

func fullPermissions() []models.Permission {
	perms := make([]models.Permission, 0, len(domain.Modules))
	for _, m := range domain.Modules {
		perms = append(perms, models.Permission{
			Module: string(m), CanCreate: true, CanRead: true, CanUpdate: true, CanDelete: true, CanApprove: true,
		})
	}
	return perms
}

func approverPermissions() []models.Permission {
	return []models.Permission{
		{Module: string(domain.ModuleApproval), CanRead: true, CanApprove: true},
		{Module: string(domain.ModuleProperty), CanRead: true, CanUpdate: true},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{
		t:              t,
		ctx:            context.Background(),
		db:             db,
		roles:          make(map[string]*models.Role),
		userRepo:       repositories.NewUserRepository(db),
		tokenRepo:      repositories.NewRefreshTokenRepository(db),
		roleRepo:       repositories.NewRoleRepository(db),
		assignmentRepo: repositories.NewAssignmentRepository(db),
		unitRepo:       repositories.NewBusinessUnitRepository(db),
		workflowRepo:   repositories.NewWorkflowRepository(db),
		requestRepo:    repositories.NewApprovalRequestRepository(db),
		propertyRepo:   repositories.NewPropertyRepository(db),
		movementRepo:   repositories.NewMovementRepository(db),
		auditRepo:      repositories.NewAuditRepository(db),
		events:         &eventRecorder{},
	}

	f.unit = &models.BusinessUnit{Code: "HQ", Name: "Head Office", IsActive: true}
	f.other = &models.BusinessUnit{Code: "BR1", Name: "Branch One", IsActive: true}
	require.NoError(t, f.unitRepo.Create(f.ctx, f.unit))
	require.NoError(t, f.unitRepo.Create(f.ctx, f.other))

	for _, r := range []struct {
		name  string
		level int
		perms []models.Permission
	}{
		{"admin", domain.LevelManagingDirector, fullPermissions()},
		{"staff", domain.LevelStaff, approverPermissions()},
		{"supervisor", domain.LevelSupervisor, approverPermissions()},
		{"manager", domain.LevelManager, approverPermissions()},
		{"director", domain.LevelDirector, approverPermissions()},
	} {
		role := &models.Role{Name: r.name, Level: r.level, Permissions: r.perms}
		require.NoError(t, f.roleRepo.Create(f.ctx, role))
		f.roles[r.name] = role
	}

	f.engine = NewApprovalEngine(db, f.workflowRepo, f.requestRepo, f.auditRepo)
	f.engine.Subscribe(f.events)
	f.workflows = NewWorkflowService(db, f.workflowRepo, f.roleRepo, f.auditRepo)
	f.movements = NewMovementService(db, f.engine, f.workflowRepo, f.propertyRepo, f.movementRepo, f.auditRepo)
	f.properties = NewPropertyService(db, f.propertyRepo, f.auditRepo)
	f.roleSvc = NewRoleService(db, f.roleRepo, f.assignmentRepo, f.unitRepo, f.userRepo, f.auditRepo)
	f.users = NewUserService(db, f.userRepo, f.assignmentRepo, f.roleRepo, f.auditRepo)

	return f
}

// user creates a user holding the named roles in the main unit and returns
// its access context as a login would project it
func (f *fixture) user(username string, roles ...string) *domain.AccessContext {
	return f.userIn(f.unit, username, roles...)
}

func (f *fixture) userIn(unit *models.BusinessUnit, username string, roles ...string) *domain.AccessContext {
	f.t.Helper()

	hashed, err := password.Hash("secret123")
	require.NoError(f.t, err)

	u := &models.User{
		Username: username,
		Email:    username + "@propdesk.test",
		FullName: strings.ToUpper(username[:1]) + username[1:],
		Password: hashed,
		IsActive: true,
	}
	require.NoError(f.t, f.userRepo.Create(f.ctx, u))

	for _, r := range roles {
		role, ok := f.roles[r]
		require.True(f.t, ok, "unknown role %s", r)
		require.NoError(f.t, f.assignmentRepo.Create(f.ctx, &models.UserAssignment{
			UserID: u.ID, BusinessUnitID: unit.ID, RoleID: role.ID,
		}))
	}

	loaded, err := f.userRepo.GetByID(f.ctx, u.ID)
	require.NoError(f.t, err)
	return AccessContextFor(loaded)
}

// step is shorthand for a step input bound to a fixture role
func (f *fixture) step(order int, role string) StepInput {
	return StepInput{
		StepOrder:  order,
		StepName:   fmt.Sprintf("%s review", role),
		RoleID:     f.roles[role].ID,
		IsRequired: true,
	}
}

// workflow creates an active workflow for entityType with the given steps
func (f *fixture) workflow(admin *domain.AccessContext, name string, entityType domain.EntityType, steps ...StepInput) *models.ApprovalWorkflow {
	f.t.Helper()
	w, err := f.workflows.Create(f.ctx, admin, &CreateWorkflowInput{
		Name:           name,
		EntityType:     string(entityType),
		BusinessUnitID: f.unit.ID,
		Steps:          steps,
	})
	require.NoError(f.t, err)
	return w
}

// property registers a property with a starting status
func (f *fixture) property(admin *domain.AccessContext, code string, status domain.PropertyStatus, location string) *models.Property {
	f.t.Helper()
	p, err := f.properties.Create(f.ctx, admin, &CreatePropertyInput{
		BusinessUnitID:  f.unit.ID,
		Code:            code,
		Name:            "Property " + code,
		Status:          string(status),
		CurrentLocation: location,
	})
	require.NoError(f.t, err)
	return p
}

// reload reads a request straight from the store
func (f *fixture) reload(id uint) *models.ApprovalRequest {
	f.t.Helper()
	req, err := f.requestRepo.GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return req
}

func (f *fixture) responseCount(requestID uint) int {
	f.t.Helper()
	list, err := f.requestRepo.ListResponses(f.ctx, requestID)
	require.NoError(f.t, err)
	return len(list)
}
