package config

import (
	"fmt"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/password"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Seeder handles database seeding
type Seeder struct {
	db  *gorm.DB
	cfg SeedConfig
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, cfg SeedConfig) *Seeder {
	return &Seeder{db: db, cfg: cfg}
}

type seedRole struct {
	name        string
	description string
	level       int
	permissions []models.Permission
}

// seedRoles mirrors the default role ladder. Only admin manages roles, users
// and workflows.
func seedRoles() []seedRole {
	full := make([]models.Permission, 0, len(domain.Modules))
	for _, m := range domain.Modules {
		full = append(full, models.Permission{
			Module: string(m), CanCreate: true, CanRead: true, CanUpdate: true, CanDelete: true, CanApprove: true,
		})
	}

	approver := func(reports bool) []models.Permission {
		return []models.Permission{
			{Module: string(domain.ModuleProperty), CanCreate: true, CanRead: true, CanUpdate: true},
			{Module: string(domain.ModuleApproval), CanCreate: true, CanRead: true, CanApprove: true},
			{Module: string(domain.ModuleDocuments), CanCreate: true, CanRead: true},
			{Module: string(domain.ModuleReports), CanRead: reports},
		}
	}

	return []seedRole{
		{"admin", "System administrator", domain.LevelManagingDirector, full},
		{"staff", "Back-office staff", domain.LevelStaff, approver(false)},
		{"supervisor", "Supervisor", domain.LevelSupervisor, approver(false)},
		{"manager", "Branch manager", domain.LevelManager, approver(true)},
		{"director", "Director", domain.LevelDirector, approver(true)},
	}
}

// Run executes all seeders. It is idempotent: existing rows are left alone.
func (s *Seeder) Run() error {
	if !s.cfg.Enabled {
		return nil
	}
	log.Info().Msg("running database seeders")

	return s.db.Transaction(func(tx *gorm.DB) error {
		unit := models.BusinessUnit{Code: "HQ", Name: "Head Office", IsActive: true}
		if err := tx.Where(models.BusinessUnit{Code: unit.Code}).FirstOrCreate(&unit).Error; err != nil {
			return fmt.Errorf("seed business unit: %w", err)
		}

		roles := make(map[string]*models.Role)
		for _, r := range seedRoles() {
			role := models.Role{Name: r.name, Description: r.description, Level: r.level, Permissions: r.permissions}
			if err := tx.Where(models.Role{Name: r.name}).FirstOrCreate(&role).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", r.name, err)
			}
			roles[r.name] = &role
		}

		if err := s.seedAdminUser(tx, unit.ID, roles["admin"].ID); err != nil {
			return err
		}
		return s.seedWorkflows(tx, unit.ID, roles)
	})
}

// seedAdminUser seeds the default admin. For development only; production
// admins are created through user management.
func (s *Seeder) seedAdminUser(tx *gorm.DB, unitID, roleID uint) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("username = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := password.Hash(s.cfg.AdminPassword)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username: "admin",
		Email:    "admin@propdesk.local",
		FullName: "Administrator",
		Password: hashed,
		IsActive: true,
		Assignments: []models.UserAssignment{
			{BusinessUnitID: unitID, RoleID: roleID},
		},
	}
	if err := tx.Create(admin).Error; err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	log.Info().Str("username", admin.Username).Msg("admin user created")
	return nil
}

// seedWorkflows creates one active workflow per movement kind so movements
// work out of the box
func (s *Seeder) seedWorkflows(tx *gorm.DB, unitID uint, roles map[string]*models.Role) error {
	defaults := []struct {
		name       string
		entityType domain.EntityType
		steps      []models.ApprovalStep
	}{
		{"Property return", domain.EntityPropertyReturn, []models.ApprovalStep{
			{StepOrder: 1, StepName: "Supervisor review", RoleID: roles["supervisor"].ID, IsRequired: true},
			{StepOrder: 2, StepName: "Manager approval", RoleID: roles["manager"].ID, IsRequired: true,
				CanOverride: true, OverrideMinLevel: domain.LevelDirector},
		}},
		{"Property release", domain.EntityPropertyRelease, []models.ApprovalStep{
			{StepOrder: 1, StepName: "Manager review", RoleID: roles["manager"].ID, IsRequired: true},
			{StepOrder: 2, StepName: "Director approval", RoleID: roles["director"].ID, IsRequired: true,
				CanOverride: true, OverrideMinLevel: domain.LevelManagingDirector},
		}},
		{"Property turnover", domain.EntityPropertyTurnover, []models.ApprovalStep{
			{StepOrder: 1, StepName: "Manager review", RoleID: roles["manager"].ID, IsRequired: true},
			{StepOrder: 2, StepName: "Director approval", RoleID: roles["director"].ID, IsRequired: true},
		}},
	}

	var admin models.User
	if err := tx.Where("username = ?", "admin").First(&admin).Error; err != nil {
		return err
	}

	for _, d := range defaults {
		var count int64
		if err := tx.Model(&models.ApprovalWorkflow{}).Where("entity_type = ?", string(d.entityType)).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		w := &models.ApprovalWorkflow{
			Name:           d.name,
			EntityType:     string(d.entityType),
			BusinessUnitID: unitID,
			IsActive:       true,
			CreatedByID:    admin.ID,
			Steps:          d.steps,
		}
		if err := tx.Create(w).Error; err != nil {
			return fmt.Errorf("seed workflow %s: %w", d.name, err)
		}
		log.Info().Str("workflow", w.Name).Int("steps", len(w.Steps)).Msg("default workflow created")
	}
	return nil
}
