package repositories

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkflowFilter narrows a workflow listing
type WorkflowFilter struct {
	BusinessUnitIDs []uint
	EntityType      string
	IsActive        *bool
	Search          string
}

// WorkflowRepository handles approval workflow data access
type WorkflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// WithTx returns a copy bound to a transaction
func (r *WorkflowRepository) WithTx(tx *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: tx}
}

// withSteps preloads the steps at path ascending by order, with their roles
func withSteps(path string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Preload(path, func(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") }).
			Preload(path + ".Role")
	}
}

// Create creates a workflow with its steps
func (r *WorkflowRepository) Create(ctx context.Context, w *models.ApprovalWorkflow) error {
	return r.db.WithContext(ctx).Create(w).Error
}

// GetByID gets a workflow with ordered steps and their roles
func (r *WorkflowRepository) GetByID(ctx context.Context, id uint) (*models.ApprovalWorkflow, error) {
	var w models.ApprovalWorkflow
	err := r.db.WithContext(ctx).
		Scopes(withSteps("Steps")).
		First(&w, id).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetForUpdate gets a workflow row locked for the rest of the transaction
func (r *WorkflowRepository) GetForUpdate(ctx context.Context, id uint) (*models.ApprovalWorkflow, error) {
	var w models.ApprovalWorkflow
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(withSteps("Steps")).
		First(&w, id).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ExistsByName checks if a workflow name is taken by another workflow
func (r *WorkflowRepository) ExistsByName(ctx context.Context, name string, excludeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ApprovalWorkflow{}).
		Where("name = ? AND id <> ?", name, excludeID).
		Count(&count).Error
	return count > 0, err
}

// FindActiveByEntityType finds the active workflow of a business unit governing an entity type
func (r *WorkflowRepository) FindActiveByEntityType(ctx context.Context, businessUnitID uint, entityType string) (*models.ApprovalWorkflow, error) {
	var w models.ApprovalWorkflow
	err := r.db.WithContext(ctx).
		Scopes(withSteps("Steps")).
		Where("business_unit_id = ? AND entity_type = ? AND is_active = ?", businessUnitID, entityType, true).
		Order("updated_at DESC").
		First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// List lists workflows matching a filter with pagination
func (r *WorkflowRepository) List(ctx context.Context, f WorkflowFilter, offset, limit int) ([]*models.ApprovalWorkflow, int64, error) {
	var list []*models.ApprovalWorkflow
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("business_unit_id IN ?", f.BusinessUnitIDs)
		if f.EntityType != "" {
			db = db.Where("entity_type = ?", f.EntityType)
		}
		if f.IsActive != nil {
			db = db.Where("is_active = ?", *f.IsActive)
		}
		if f.Search != "" {
			db = db.Where("name LIKE ?", "%"+f.Search+"%")
		}
		return db
	}

	if err := r.db.WithContext(ctx).Model(&models.ApprovalWorkflow{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Scopes(scope).
		Scopes(withSteps("Steps")).
		Order("name ASC").
		Offset(offset).
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

// Update updates workflow columns, never its steps
func (r *WorkflowRepository) Update(ctx context.Context, w *models.ApprovalWorkflow) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(w).Error
}

// Touch bumps updated_at
func (r *WorkflowRepository) Touch(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.ApprovalWorkflow{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

// Delete hard deletes a workflow and its steps
func (r *WorkflowRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("workflow_id = ?", id).Delete(&models.ApprovalStep{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&models.ApprovalWorkflow{}, id).Error
}

// ReplaceSteps soft deletes the current steps and inserts the new set
func (r *WorkflowRepository) ReplaceSteps(ctx context.Context, workflowID uint, steps []models.ApprovalStep) error {
	if err := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).Delete(&models.ApprovalStep{}).Error; err != nil {
		return err
	}
	for i := range steps {
		steps[i].ID = 0
		steps[i].WorkflowID = workflowID
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&steps).Error
}

// CountRequests counts requests against a workflow, optionally limited to statuses
func (r *WorkflowRepository) CountRequests(ctx context.Context, workflowID uint, statuses ...string) (int64, error) {
	var count int64
	db := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).Where("workflow_id = ?", workflowID)
	if len(statuses) > 0 {
		db = db.Where("status IN ?", statuses)
	}
	err := db.Count(&count).Error
	return count, err
}
