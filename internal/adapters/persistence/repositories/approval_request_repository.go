package repositories

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestFilter narrows a request listing
type RequestFilter struct {
	BusinessUnitIDs []uint
	Statuses        []string
	EntityType      string
	EntityID        string
	WorkflowID      uint
	RequestedByID   uint
}

// StatusCount is one row of a per-status aggregate
type StatusCount struct {
	Status string
	Count  int64
}

// ApprovalRequestRepository handles approval request data access
type ApprovalRequestRepository struct {
	db *gorm.DB
}

// NewApprovalRequestRepository creates a new approval request repository
func NewApprovalRequestRepository(db *gorm.DB) *ApprovalRequestRepository {
	return &ApprovalRequestRepository{db: db}
}

// WithTx returns a copy bound to a transaction
func (r *ApprovalRequestRepository) WithTx(tx *gorm.DB) *ApprovalRequestRepository {
	return &ApprovalRequestRepository{db: tx}
}

// withDetails preloads the workflow steps, requester and response trail.
// Steps are loaded unscoped so responses to replaced steps still resolve.
func withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Scopes(withSteps("Workflow.Steps")).
		Preload("RequestedBy").
		Preload("Responses", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Responses.Step", func(db *gorm.DB) *gorm.DB {
			return db.Unscoped()
		}).
		Preload("Responses.RespondedBy")
}

// Create creates a request
func (r *ApprovalRequestRepository) Create(ctx context.Context, req *models.ApprovalRequest) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(req).Error
}

// GetByID gets a request with its details
func (r *ApprovalRequestRepository) GetByID(ctx context.Context, id uint) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	if err := withDetails(r.db.WithContext(ctx)).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// GetForUpdate gets a request locked for the rest of the transaction, with its workflow steps
func (r *ApprovalRequestRepository) GetForUpdate(ctx context.Context, id uint) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(withSteps("Workflow.Steps")).
		First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ExistsActive checks for a non-terminal request on an entity
func (r *ApprovalRequestRepository) ExistsActive(ctx context.Context, entityType, entityID string, statuses []string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Where("entity_type = ? AND entity_id = ? AND status IN ?", entityType, entityID, statuses).
		Count(&count).Error
	return count > 0, err
}

// Save persists the request columns
func (r *ApprovalRequestRepository) Save(ctx context.Context, req *models.ApprovalRequest) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(req).Error
}

// CreateResponse appends a step response
func (r *ApprovalRequestRepository) CreateResponse(ctx context.Context, resp *models.ApprovalStepResponse) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(resp).Error
}

// ListResponses lists the response trail of a request in order
func (r *ApprovalRequestRepository) ListResponses(ctx context.Context, requestID uint) ([]*models.ApprovalStepResponse, error) {
	var list []*models.ApprovalStepResponse
	err := r.db.WithContext(ctx).
		Preload("Step", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("RespondedBy").
		Where("approval_request_id = ?", requestID).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (f RequestFilter) apply(db *gorm.DB) *gorm.DB {
	db = db.Where("business_unit_id IN ?", f.BusinessUnitIDs)
	if len(f.Statuses) > 0 {
		db = db.Where("status IN ?", f.Statuses)
	}
	if f.EntityType != "" {
		db = db.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		db = db.Where("entity_id = ?", f.EntityID)
	}
	if f.WorkflowID != 0 {
		db = db.Where("workflow_id = ?", f.WorkflowID)
	}
	if f.RequestedByID != 0 {
		db = db.Where("requested_by_id = ?", f.RequestedByID)
	}
	return db
}

// List lists requests matching a filter, newest first
func (r *ApprovalRequestRepository) List(ctx context.Context, f RequestFilter, offset, limit int) ([]*models.ApprovalRequest, int64, error) {
	var list []*models.ApprovalRequest
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).Scopes(f.apply).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Scopes(f.apply).
		Scopes(withSteps("Workflow.Steps")).
		Preload("RequestedBy").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

// ListAwaitingRoles lists non-terminal requests in a business unit whose current step
// is bound to one of the given roles
func (r *ApprovalRequestRepository) ListAwaitingRoles(ctx context.Context, businessUnitID uint, roleIDs []uint, statuses []string) ([]*models.ApprovalRequest, error) {
	var list []*models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Joins("JOIN approval_steps ON approval_steps.workflow_id = approval_requests.workflow_id"+
			" AND approval_steps.step_order = approval_requests.current_step_order"+
			" AND approval_steps.deleted_at IS NULL").
		Where("approval_requests.business_unit_id = ?", businessUnitID).
		Where("approval_requests.status IN ?", statuses).
		Where("approval_steps.role_id IN ?", roleIDs).
		Scopes(withSteps("Workflow.Steps")).
		Preload("RequestedBy").
		Order("approval_requests.created_at ASC").
		Find(&list).Error
	return list, err
}

// ListStale lists non-terminal requests not touched since before
func (r *ApprovalRequestRepository) ListStale(ctx context.Context, statuses []string, before time.Time) ([]*models.ApprovalRequest, error) {
	var list []*models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Scopes(withSteps("Workflow.Steps")).
		Where("status IN ? AND updated_at < ?", statuses, before).
		Order("updated_at ASC").
		Find(&list).Error
	return list, err
}

// CountByStatus aggregates requests of a business unit per status
func (r *ApprovalRequestRepository) CountByStatus(ctx context.Context, businessUnitID uint) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.WithContext(ctx).Model(&models.ApprovalRequest{}).
		Select("status, COUNT(*) AS count").
		Where("business_unit_id = ?", businessUnitID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}
