package repositories

import (
	"context"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PropertyRepository handles property data access
type PropertyRepository struct {
	db *gorm.DB
}

// NewPropertyRepository creates a new property repository
func NewPropertyRepository(db *gorm.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// WithTx returns a copy bound to a transaction
func (r *PropertyRepository) WithTx(tx *gorm.DB) *PropertyRepository {
	return &PropertyRepository{db: tx}
}

// Create creates a property
func (r *PropertyRepository) Create(ctx context.Context, p *models.Property) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID gets a property
func (r *PropertyRepository) GetByID(ctx context.Context, id uint) (*models.Property, error) {
	var p models.Property
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetForUpdate gets a property locked for the rest of the transaction
func (r *PropertyRepository) GetForUpdate(ctx context.Context, id uint) (*models.Property, error) {
	var p models.Property
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ExistsByCode checks if a property code is taken
func (r *PropertyRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Property{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// List lists properties of a business unit, optionally by status
func (r *PropertyRepository) List(ctx context.Context, businessUnitID uint, status string, offset, limit int) ([]*models.Property, int64, error) {
	var list []*models.Property
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("business_unit_id = ?", businessUnitID)
		if status != "" {
			db = db.Where("status = ?", status)
		}
		return db
	}

	if err := r.db.WithContext(ctx).Model(&models.Property{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Scopes(scope).
		Order("code ASC").
		Offset(offset).
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

// UpdateState sets the status and location of a property
func (r *PropertyRepository) UpdateState(ctx context.Context, id uint, status, location string) error {
	return r.db.WithContext(ctx).Model(&models.Property{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"current_location": location,
		}).Error
}

// CreateHistory appends a movement history entry
func (r *PropertyRepository) CreateHistory(ctx context.Context, h *models.PropertyMovementHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

// ListHistory lists the movement history of a property, newest first
func (r *PropertyRepository) ListHistory(ctx context.Context, propertyID uint) ([]*models.PropertyMovementHistory, error) {
	var list []*models.PropertyMovementHistory
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("created_at DESC, id DESC").
		Find(&list).Error
	return list, err
}
