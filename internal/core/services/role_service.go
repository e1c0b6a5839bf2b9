package services

import (
	"context"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/logger"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// RoleService manages roles, their module permissions and user assignments.
// Roles are shared across business units; every mutation is authorized
// against the ROLES module of the business unit named in the input.
type RoleService struct {
	db             *gorm.DB
	roleRepo       *repositories.RoleRepository
	assignmentRepo *repositories.AssignmentRepository
	unitRepo       *repositories.BusinessUnitRepository
	userRepo       repositories.UserRepository
	auditRepo      *repositories.AuditRepository
	log            zerolog.Logger
}

// NewRoleService creates a new role service
func NewRoleService(
	db *gorm.DB,
	roleRepo *repositories.RoleRepository,
	assignmentRepo *repositories.AssignmentRepository,
	unitRepo *repositories.BusinessUnitRepository,
	userRepo repositories.UserRepository,
	auditRepo *repositories.AuditRepository,
) *RoleService {
	return &RoleService{
		db:             db,
		roleRepo:       roleRepo,
		assignmentRepo: assignmentRepo,
		unitRepo:       unitRepo,
		userRepo:       userRepo,
		auditRepo:      auditRepo,
		log:            logger.New("role"),
	}
}

// PermissionInput holds the flags of one module
type PermissionInput struct {
	Module     string `json:"module" validate:"required,module"`
	CanCreate  bool   `json:"can_create"`
	CanRead    bool   `json:"can_read"`
	CanUpdate  bool   `json:"can_update"`
	CanDelete  bool   `json:"can_delete"`
	CanApprove bool   `json:"can_approve"`
}

// CreateRoleInput represents create role input
type CreateRoleInput struct {
	BusinessUnitID uint              `json:"business_unit_id" validate:"required"`
	Name           string            `json:"name" validate:"required,max=100"`
	Description    string            `json:"description"`
	Level          int               `json:"level" validate:"role_level"`
	Permissions    []PermissionInput `json:"permissions" validate:"dive"`
}

// UpdateRoleInput represents update role input
type UpdateRoleInput struct {
	BusinessUnitID uint    `json:"business_unit_id" validate:"required"`
	Name           *string `json:"name" validate:"omitempty,max=100"`
	Description    *string `json:"description"`
	Level          *int    `json:"level" validate:"omitempty,role_level"`
}

// SetPermissionsInput represents replace permissions input
type SetPermissionsInput struct {
	BusinessUnitID uint              `json:"business_unit_id" validate:"required"`
	Permissions    []PermissionInput `json:"permissions" validate:"dive"`
}

// AssignRoleInput represents assign role input
type AssignRoleInput struct {
	UserID         uint `json:"user_id" validate:"required"`
	BusinessUnitID uint `json:"business_unit_id" validate:"required"`
	RoleID         uint `json:"role_id" validate:"required"`
}

type roleSnapshot struct {
	Name        string   `json:"name"`
	Level       int      `json:"level"`
	Permissions []string `json:"permissions,omitempty"`
}

func snapshotRole(r *models.Role) roleSnapshot {
	snap := roleSnapshot{Name: r.Name, Level: r.Level}
	for _, p := range r.Permissions {
		flags := ""
		for _, f := range []struct {
			on bool
			c  string
		}{{p.CanCreate, "C"}, {p.CanRead, "R"}, {p.CanUpdate, "U"}, {p.CanDelete, "D"}, {p.CanApprove, "A"}} {
			if f.on {
				flags += f.c
			}
		}
		snap.Permissions = append(snap.Permissions, p.Module+":"+flags)
	}
	return snap
}

// buildPermissions validates modules and rejects duplicates
func buildPermissions(in []PermissionInput) ([]models.Permission, error) {
	seen := make(map[string]bool, len(in))
	perms := make([]models.Permission, 0, len(in))
	for _, p := range in {
		if !domain.Module(p.Module).Valid() {
			return nil, domain.ErrUnknownModule
		}
		if seen[p.Module] {
			return nil, domain.ErrDuplicateModule
		}
		seen[p.Module] = true
		perms = append(perms, models.Permission{
			Module:     p.Module,
			CanCreate:  p.CanCreate,
			CanRead:    p.CanRead,
			CanUpdate:  p.CanUpdate,
			CanDelete:  p.CanDelete,
			CanApprove: p.CanApprove,
		})
	}
	return perms, nil
}

// List lists every role with its permissions
func (s *RoleService) List(ctx context.Context, ac *domain.AccessContext, businessUnitID uint) ([]*models.Role, error) {
	if err := ac.Authorize(businessUnitID, domain.ModuleRoles, domain.ActionRead); err != nil {
		return nil, err
	}
	roles, err := s.roleRepo.List(ctx)
	if err != nil {
		return nil, internalError(s.log, "list roles", err)
	}
	return roles, nil
}

// Get returns a role with its permissions
func (s *RoleService) Get(ctx context.Context, ac *domain.AccessContext, businessUnitID, id uint) (*models.Role, error) {
	if err := ac.Authorize(businessUnitID, domain.ModuleRoles, domain.ActionRead); err != nil {
		return nil, err
	}
	role, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "get role", notFoundOr(err, domain.ErrRoleNotFound))
	}
	return role, nil
}

// Create creates a role and its permissions
func (s *RoleService) Create(ctx context.Context, ac *domain.AccessContext, input *CreateRoleInput) (*models.Role, error) {
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleRoles, domain.ActionCreate); err != nil {
		return nil, err
	}
	if !domain.ValidLevel(input.Level) {
		return nil, domain.ErrInvalidRoleLevel
	}
	perms, err := buildPermissions(input.Permissions)
	if err != nil {
		return nil, err
	}

	taken, err := s.roleRepo.ExistsByName(ctx, input.Name, 0)
	if err != nil {
		return nil, internalError(s.log, "check role name", err)
	}
	if taken {
		return nil, domain.ErrRoleNameTaken
	}

	role := &models.Role{
		Name:        input.Name,
		Description: input.Description,
		Level:       input.Level,
		Permissions: perms,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.roleRepo.WithTx(tx).Create(ctx, role); err != nil {
			if isDuplicate(err) {
				return domain.ErrRoleNameTaken
			}
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(input.BusinessUnitID),
			domain.AuditCreate, domain.AuditEntityRole, idString(role.ID), nil, snapshotRole(role))
	})
	if err != nil {
		return nil, internalError(s.log, "create role", err)
	}

	s.log.Info().Uint("role_id", role.ID).Str("name", role.Name).Int("level", role.Level).Msg("role created")
	return s.roleRepo.GetByID(ctx, role.ID)
}

// Update updates name, description or level of a role
func (s *RoleService) Update(ctx context.Context, ac *domain.AccessContext, id uint, input *UpdateRoleInput) (*models.Role, error) {
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleRoles, domain.ActionUpdate); err != nil {
		return nil, err
	}

	role, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "get role", notFoundOr(err, domain.ErrRoleNotFound))
	}
	before := snapshotRole(role)

	if input.Name != nil && *input.Name != role.Name {
		taken, err := s.roleRepo.ExistsByName(ctx, *input.Name, role.ID)
		if err != nil {
			return nil, internalError(s.log, "check role name", err)
		}
		if taken {
			return nil, domain.ErrRoleNameTaken
		}
		role.Name = *input.Name
	}
	if input.Description != nil {
		role.Description = *input.Description
	}
	if input.Level != nil {
		if !domain.ValidLevel(*input.Level) {
			return nil, domain.ErrInvalidRoleLevel
		}
		role.Level = *input.Level
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.roleRepo.WithTx(tx).Update(ctx, role); err != nil {
			if isDuplicate(err) {
				return domain.ErrRoleNameTaken
			}
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(input.BusinessUnitID),
			domain.AuditUpdate, domain.AuditEntityRole, idString(role.ID), before, snapshotRole(role))
	})
	if err != nil {
		return nil, internalError(s.log, "update role", err)
	}

	return s.roleRepo.GetByID(ctx, role.ID)
}

// SetPermissions replaces every permission row of a role in one transaction
func (s *RoleService) SetPermissions(ctx context.Context, ac *domain.AccessContext, id uint, input *SetPermissionsInput) (*models.Role, error) {
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleRoles, domain.ActionUpdate); err != nil {
		return nil, err
	}
	perms, err := buildPermissions(input.Permissions)
	if err != nil {
		return nil, err
	}

	role, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "get role", notFoundOr(err, domain.ErrRoleNotFound))
	}
	before := snapshotRole(role)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.roleRepo.WithTx(tx).ReplacePermissions(ctx, role.ID, perms); err != nil {
			return err
		}
		role.Permissions = perms
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(input.BusinessUnitID),
			domain.AuditUpdate, domain.AuditEntityRole, idString(role.ID), before, snapshotRole(role))
	})
	if err != nil {
		return nil, internalError(s.log, "set role permissions", err)
	}

	s.log.Info().Uint("role_id", role.ID).Int("modules", len(perms)).Msg("role permissions replaced")
	return s.roleRepo.GetByID(ctx, role.ID)
}

// Delete deletes a role that has no members and no workflow steps
func (s *RoleService) Delete(ctx context.Context, ac *domain.AccessContext, businessUnitID, id uint) error {
	if err := ac.Authorize(businessUnitID, domain.ModuleRoles, domain.ActionDelete); err != nil {
		return err
	}

	role, err := s.roleRepo.GetByID(ctx, id)
	if err != nil {
		return internalError(s.log, "get role", notFoundOr(err, domain.ErrRoleNotFound))
	}

	members, err := s.roleRepo.CountMembers(ctx, id)
	if err != nil {
		return internalError(s.log, "count role members", err)
	}
	if members > 0 {
		return domain.ErrRoleHasMembers
	}
	steps, err := s.roleRepo.CountSteps(ctx, id)
	if err != nil {
		return internalError(s.log, "count role steps", err)
	}
	if steps > 0 {
		return domain.ErrRoleInUse
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.roleRepo.WithTx(tx).Delete(ctx, id); err != nil {
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(businessUnitID),
			domain.AuditDelete, domain.AuditEntityRole, idString(id), snapshotRole(role), nil)
	})
	if err != nil {
		return internalError(s.log, "delete role", err)
	}

	s.log.Info().Uint("role_id", id).Msg("role deleted")
	return nil
}

// Assign grants a role to a user in a business unit
func (s *RoleService) Assign(ctx context.Context, ac *domain.AccessContext, input *AssignRoleInput) (*models.UserAssignment, error) {
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleRoles, domain.ActionUpdate); err != nil {
		return nil, err
	}

	if _, err := s.unitRepo.GetByID(ctx, input.BusinessUnitID); err != nil {
		return nil, internalError(s.log, "get business unit", notFoundOr(err, domain.ErrBusinessUnitNotFound))
	}
	if _, err := s.roleRepo.GetByID(ctx, input.RoleID); err != nil {
		return nil, internalError(s.log, "get role", notFoundOr(err, domain.ErrRoleNotFound))
	}
	if _, err := s.userRepo.GetByID(ctx, input.UserID); err != nil {
		return nil, internalError(s.log, "get user", notFoundOr(err, domain.ErrUserNotFound))
	}

	exists, err := s.assignmentRepo.Exists(ctx, input.UserID, input.BusinessUnitID, input.RoleID)
	if err != nil {
		return nil, internalError(s.log, "check assignment", err)
	}
	if exists {
		return nil, domain.ErrAssignmentExists
	}

	a := &models.UserAssignment{
		UserID:         input.UserID,
		BusinessUnitID: input.BusinessUnitID,
		RoleID:         input.RoleID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.assignmentRepo.WithTx(tx).Create(ctx, a); err != nil {
			if isDuplicate(err) {
				return domain.ErrAssignmentExists
			}
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(input.BusinessUnitID),
			domain.AuditCreate, domain.AuditEntityAssignment, idString(a.ID), nil, input)
	})
	if err != nil {
		return nil, internalError(s.log, "assign role", err)
	}

	s.log.Info().
		Uint("user_id", a.UserID).
		Uint("business_unit_id", a.BusinessUnitID).
		Uint("role_id", a.RoleID).
		Msg("role assigned")

	return s.assignmentRepo.GetByID(ctx, a.ID)
}

// Unassign removes an assignment
func (s *RoleService) Unassign(ctx context.Context, ac *domain.AccessContext, assignmentID uint) error {
	a, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		return internalError(s.log, "get assignment", notFoundOr(err, domain.ErrAssignmentNotFound))
	}
	if err := ac.Authorize(a.BusinessUnitID, domain.ModuleRoles, domain.ActionUpdate); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.assignmentRepo.WithTx(tx).Delete(ctx, a.ID); err != nil {
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(a.BusinessUnitID),
			domain.AuditDelete, domain.AuditEntityAssignment, idString(a.ID),
			AssignRoleInput{UserID: a.UserID, BusinessUnitID: a.BusinessUnitID, RoleID: a.RoleID}, nil)
	})
	if err != nil {
		return internalError(s.log, "unassign role", err)
	}
	return nil
}

// ListAssignments lists a user's assignments
func (s *RoleService) ListAssignments(ctx context.Context, ac *domain.AccessContext, businessUnitID, userID uint) ([]*models.UserAssignment, error) {
	if err := ac.Authorize(businessUnitID, domain.ModuleRoles, domain.ActionRead); err != nil {
		return nil, err
	}
	list, err := s.assignmentRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalError(s.log, "list assignments", err)
	}
	return list, nil
}
