package repositories

import (
	"context"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// AuditRepository handles audit log data access
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// WithTx returns a copy bound to a transaction
func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

// Create appends an audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByEntity lists the audit trail of one entity, oldest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditLog, error) {
	var list []*models.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}
