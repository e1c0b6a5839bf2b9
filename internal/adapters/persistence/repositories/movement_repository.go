package repositories

import (
	"context"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MovementRepository handles return, release and turnover records.
// The concrete table is picked from the model passed in.
type MovementRepository struct {
	db *gorm.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *gorm.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// WithTx returns a copy bound to a transaction
func (r *MovementRepository) WithTx(tx *gorm.DB) *MovementRepository {
	return &MovementRepository{db: tx}
}

// Create creates a movement record
func (r *MovementRepository) Create(ctx context.Context, m models.Movement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// GetByID loads a movement into dest
func (r *MovementRepository) GetByID(ctx context.Context, dest models.Movement, id uint) error {
	return r.db.WithContext(ctx).First(dest, id).Error
}

// GetForUpdate loads and locks a movement into dest
func (r *MovementRepository) GetForUpdate(ctx context.Context, dest models.Movement, id uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(dest, id).Error
}

// GetByApprovalRequest loads the movement bound to an approval request into dest
func (r *MovementRepository) GetByApprovalRequest(ctx context.Context, dest models.Movement, requestID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("approval_request_id = ?", requestID).
		First(dest).Error
}

// ExistsActive checks for a non-terminal movement of the same table on a property
func (r *MovementRepository) ExistsActive(ctx context.Context, model models.Movement, propertyID uint, statuses []string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(model).
		Where("property_id = ? AND status IN ?", propertyID, statuses).
		Count(&count).Error
	return count > 0, err
}

// Save persists a movement record
func (r *MovementRepository) Save(ctx context.Context, m models.Movement) error {
	return r.db.WithContext(ctx).Save(m).Error
}

// List lists movements of one table into dest, a pointer to a slice of that model
func (r *MovementRepository) List(ctx context.Context, model models.Movement, dest interface{}, businessUnitID uint, status string, offset, limit int) (int64, error) {
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("business_unit_id = ?", businessUnitID)
		if status != "" {
			db = db.Where("status = ?", status)
		}
		return db
	}

	if err := r.db.WithContext(ctx).Model(model).Scopes(scope).Count(&total).Error; err != nil {
		return 0, err
	}

	err := r.db.WithContext(ctx).
		Model(model).
		Scopes(scope).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(dest).Error
	return total, err
}
