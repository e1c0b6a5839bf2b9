package repositories

import (
	"context"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// RoleRepository handles role and permission data access
type RoleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *gorm.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// WithTx returns a copy bound to a transaction
func (r *RoleRepository) WithTx(tx *gorm.DB) *RoleRepository {
	return &RoleRepository{db: tx}
}

// Create creates a role together with its permissions
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

// GetByID gets a role with permissions
func (r *RoleRepository) GetByID(ctx context.Context, id uint) (*models.Role, error) {
	var role models.Role
	err := r.db.WithContext(ctx).
		Preload("Permissions", func(db *gorm.DB) *gorm.DB {
			return db.Order("module ASC")
		}).
		First(&role, id).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ExistsByName checks if a role name is taken by another role
func (r *RoleRepository) ExistsByName(ctx context.Context, name string, excludeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Role{}).
		Where("name = ? AND id <> ?", name, excludeID).
		Count(&count).Error
	return count > 0, err
}

// List lists all roles ordered by level
func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	var roles []*models.Role
	err := r.db.WithContext(ctx).
		Preload("Permissions").
		Order("level DESC, name ASC").
		Find(&roles).Error
	return roles, err
}

// CountByIDs counts how many of the given role ids exist
func (r *RoleRepository) CountByIDs(ctx context.Context, ids []uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Role{}).Where("id IN ?", ids).Count(&count).Error
	return count, err
}

// Update updates role columns, never its permissions
func (r *RoleRepository) Update(ctx context.Context, role *models.Role) error {
	return r.db.WithContext(ctx).Omit("Permissions").Save(role).Error
}

// Delete deletes a role and its permissions
func (r *RoleRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Where("role_id = ?", id).Delete(&models.Permission{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&models.Role{}, id).Error
}

// ReplacePermissions deletes all permissions of a role and inserts the given set
func (r *RoleRepository) ReplacePermissions(ctx context.Context, roleID uint, perms []models.Permission) error {
	if err := r.db.WithContext(ctx).Where("role_id = ?", roleID).Delete(&models.Permission{}).Error; err != nil {
		return err
	}
	if len(perms) == 0 {
		return nil
	}
	for i := range perms {
		perms[i].ID = 0
		perms[i].RoleID = roleID
	}
	return r.db.WithContext(ctx).Create(&perms).Error
}

// CountMembers counts assignments that reference a role
func (r *RoleRepository) CountMembers(ctx context.Context, roleID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAssignment{}).Where("role_id = ?", roleID).Count(&count).Error
	return count, err
}

// CountSteps counts workflow steps bound to a role, replaced steps included
func (r *RoleRepository) CountSteps(ctx context.Context, roleID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.ApprovalStep{}).Where("role_id = ?", roleID).Count(&count).Error
	return count, err
}

// AssignmentRepository handles user assignment data access
type AssignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// WithTx returns a copy bound to a transaction
func (r *AssignmentRepository) WithTx(tx *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: tx}
}

// Create creates an assignment
func (r *AssignmentRepository) Create(ctx context.Context, a *models.UserAssignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// Exists checks whether a user already holds a role in a business unit
func (r *AssignmentRepository) Exists(ctx context.Context, userID, businessUnitID, roleID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAssignment{}).
		Where("user_id = ? AND business_unit_id = ? AND role_id = ?", userID, businessUnitID, roleID).
		Count(&count).Error
	return count > 0, err
}

// GetByID gets an assignment with its role and unit
func (r *AssignmentRepository) GetByID(ctx context.Context, id uint) (*models.UserAssignment, error) {
	var a models.UserAssignment
	err := r.db.WithContext(ctx).Preload("Role").Preload("BusinessUnit").First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Delete removes an assignment
func (r *AssignmentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.UserAssignment{}, id).Error
}

// ListByUser lists a user's assignments
func (r *AssignmentRepository) ListByUser(ctx context.Context, userID uint) ([]*models.UserAssignment, error) {
	var list []*models.UserAssignment
	err := r.db.WithContext(ctx).
		Preload("BusinessUnit").
		Preload("Role.Permissions").
		Where("user_id = ?", userID).
		Find(&list).Error
	return list, err
}

// ListUserIDsByRole returns the users holding a role in a business unit
func (r *AssignmentRepository) ListUserIDsByRole(ctx context.Context, businessUnitID, roleID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.UserAssignment{}).
		Where("business_unit_id = ? AND role_id = ?", businessUnitID, roleID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// BusinessUnitRepository handles business unit data access
type BusinessUnitRepository struct {
	db *gorm.DB
}

// NewBusinessUnitRepository creates a new business unit repository
func NewBusinessUnitRepository(db *gorm.DB) *BusinessUnitRepository {
	return &BusinessUnitRepository{db: db}
}

// Create creates a business unit
func (r *BusinessUnitRepository) Create(ctx context.Context, bu *models.BusinessUnit) error {
	return r.db.WithContext(ctx).Create(bu).Error
}

// GetByID gets a business unit
func (r *BusinessUnitRepository) GetByID(ctx context.Context, id uint) (*models.BusinessUnit, error) {
	var bu models.BusinessUnit
	if err := r.db.WithContext(ctx).First(&bu, id).Error; err != nil {
		return nil, err
	}
	return &bu, nil
}

// GetByCode gets a business unit by its code
func (r *BusinessUnitRepository) GetByCode(ctx context.Context, code string) (*models.BusinessUnit, error) {
	var bu models.BusinessUnit
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&bu).Error; err != nil {
		return nil, err
	}
	return &bu, nil
}

// ListByIDs lists the business units with the given ids
func (r *BusinessUnitRepository) ListByIDs(ctx context.Context, ids []uint) ([]*models.BusinessUnit, error) {
	var list []*models.BusinessUnit
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("code ASC").Find(&list).Error
	return list, err
}
