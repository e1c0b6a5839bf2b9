package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AuditLog records who did what, when, with before/after snapshots
type AuditLog struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	BusinessUnitID *uint          `gorm:"index" json:"business_unit_id"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	Action         string         `gorm:"size:20;not null;index" json:"action"`
	EntityType     string         `gorm:"size:50;not null;index:idx_audit_entity" json:"entity_type"`
	EntityID       string         `gorm:"size:64;not null;index:idx_audit_entity" json:"entity_id"`
	OldValue       datatypes.JSON `json:"old_value,omitempty"`
	NewValue       datatypes.JSON `json:"new_value,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// Snapshot marshals v into a JSON column value, nil when v is nil
func Snapshot(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
