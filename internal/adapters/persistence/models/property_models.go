package models

import (
	"time"

	"gorm.io/gorm"
)

// ============================================================
// Property Tables
// ============================================================

// Property is an asset tracked by a business unit
type Property struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Code            string         `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name            string         `gorm:"size:200;not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	BusinessUnitID  uint           `gorm:"not null;index" json:"business_unit_id"`
	Status          string         `gorm:"size:20;not null;index" json:"status"`
	CurrentLocation string         `gorm:"size:200" json:"current_location"`
	CreatedByID     uint           `gorm:"not null" json:"created_by_id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Property) TableName() string {
	return "properties"
}

// ============================================================
// Movement Tables
// ============================================================

// MovementBase holds the columns shared by returns, releases and turnovers
type MovementBase struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ReferenceNo       string     `gorm:"size:40;uniqueIndex;not null" json:"reference_no"`
	PropertyID        uint       `gorm:"not null;index" json:"property_id"`
	BusinessUnitID    uint       `gorm:"not null;index" json:"business_unit_id"`
	RequestedByID     uint       `gorm:"not null;index" json:"requested_by_id"`
	Status            string     `gorm:"size:20;not null;index" json:"status"`
	PreviousStatus    string     `gorm:"size:20;not null" json:"previous_status"`
	PreviousLocation  string     `gorm:"size:200" json:"previous_location"`
	TargetLocation    string     `gorm:"size:200" json:"target_location"`
	ApprovalRequestID *uint      `gorm:"index" json:"approval_request_id"`
	Remarks           string     `gorm:"type:text" json:"remarks"`
	CompletedByID     *uint      `json:"completed_by_id"`
	CompletedAt       *time.Time `json:"completed_at"`
	ActiveKey         *string    `gorm:"size:40;uniqueIndex" json:"-"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Movement is implemented by every movement record type
type Movement interface {
	Base() *MovementBase
	TableName() string
}

// PropertyReturn brings a released or bank-held property back
type PropertyReturn struct {
	MovementBase
	ReturnedBy   string `gorm:"size:150" json:"returned_by"`
	ReturnReason string `gorm:"type:text" json:"return_reason"`
}

func (PropertyReturn) TableName() string {
	return "property_returns"
}

func (m *PropertyReturn) Base() *MovementBase {
	return &m.MovementBase
}

// PropertyRelease hands a property out of custody
type PropertyRelease struct {
	MovementBase
	ReleasedTo       string     `gorm:"size:150" json:"released_to"`
	Purpose          string     `gorm:"type:text" json:"purpose"`
	ExpectedReturnAt *time.Time `json:"expected_return_at"`
}

func (PropertyRelease) TableName() string {
	return "property_releases"
}

func (m *PropertyRelease) Base() *MovementBase {
	return &m.MovementBase
}

// PropertyTurnover transfers a property to a new holder
type PropertyTurnover struct {
	MovementBase
	TurnedOverTo string     `gorm:"size:150" json:"turned_over_to"`
	TurnoverDate *time.Time `json:"turnover_date"`
}

func (PropertyTurnover) TableName() string {
	return "property_turnovers"
}

func (m *PropertyTurnover) Base() *MovementBase {
	return &m.MovementBase
}

// PropertyMovementHistory records every status/location change of a property
type PropertyMovementHistory struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PropertyID    uint      `gorm:"not null;index" json:"property_id"`
	MovementKind  string    `gorm:"size:20;not null" json:"movement_kind"`
	MovementID    uint      `gorm:"not null" json:"movement_id"`
	Action        string    `gorm:"size:20;not null" json:"action"`
	FromStatus    string    `gorm:"size:20" json:"from_status"`
	ToStatus      string    `gorm:"size:20" json:"to_status"`
	FromLocation  string    `gorm:"size:200" json:"from_location"`
	ToLocation    string    `gorm:"size:200" json:"to_location"`
	PerformedByID uint      `gorm:"not null" json:"performed_by_id"`
	Note          string    `gorm:"type:text" json:"note"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (PropertyMovementHistory) TableName() string {
	return "property_movement_histories"
}
