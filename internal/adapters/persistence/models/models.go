package models

import (
	"time"

	"gorm.io/gorm"
)

// ============================================================
// Identity & Access Tables
// ============================================================

// User represents users table
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email     string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	FullName  string         `gorm:"size:150" json:"full_name"`
	Password  string         `gorm:"size:255;not null" json:"-"`
	IsActive  bool           `gorm:"not null" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Assignments []UserAssignment `gorm:"foreignKey:UserID" json:"assignments,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// UserResponse DTO
type UserResponse struct {
	ID          uint                  `json:"id"`
	Username    string                `json:"username"`
	Email       string                `json:"email"`
	FullName    string                `json:"full_name"`
	IsActive    bool                  `json:"is_active"`
	Assignments []*AssignmentResponse `json:"assignments,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

func (u *User) ToResponse() *UserResponse {
	resp := &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
	for i := range u.Assignments {
		resp.Assignments = append(resp.Assignments, u.Assignments[i].ToResponse())
	}
	return resp
}

// RefreshToken represents refresh_tokens table
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:255;not null;index" json:"-"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// BusinessUnit is a tenant scope
type BusinessUnit struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BusinessUnit) TableName() string {
	return "business_units"
}

// Role represents roles table
type Role struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	Level       int          `gorm:"not null" json:"level"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
	Permissions []Permission `gorm:"foreignKey:RoleID" json:"permissions,omitempty"`
}

func (Role) TableName() string {
	return "roles"
}

// Permission holds the CRUD/approve flags of a role on one module
type Permission struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoleID     uint      `gorm:"not null;uniqueIndex:idx_role_module" json:"role_id"`
	Module     string    `gorm:"size:30;not null;uniqueIndex:idx_role_module" json:"module"`
	CanCreate  bool      `gorm:"not null" json:"can_create"`
	CanRead    bool      `gorm:"not null" json:"can_read"`
	CanUpdate  bool      `gorm:"not null" json:"can_update"`
	CanDelete  bool      `gorm:"not null" json:"can_delete"`
	CanApprove bool      `gorm:"not null" json:"can_approve"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Permission) TableName() string {
	return "permissions"
}

// UserAssignment grants a role to a user inside one business unit
type UserAssignment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_user_unit_role" json:"user_id"`
	BusinessUnitID uint      `gorm:"not null;uniqueIndex:idx_user_unit_role;index" json:"business_unit_id"`
	RoleID         uint      `gorm:"not null;uniqueIndex:idx_user_unit_role;index" json:"role_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	BusinessUnit *BusinessUnit `gorm:"foreignKey:BusinessUnitID" json:"business_unit,omitempty"`
	Role         *Role         `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func (UserAssignment) TableName() string {
	return "user_assignments"
}

// AssignmentResponse DTO
type AssignmentResponse struct {
	ID               uint   `json:"id"`
	BusinessUnitID   uint   `json:"business_unit_id"`
	BusinessUnitName string `json:"business_unit_name,omitempty"`
	RoleID           uint   `json:"role_id"`
	RoleName         string `json:"role_name,omitempty"`
	RoleLevel        int    `json:"role_level"`
}

func (a *UserAssignment) ToResponse() *AssignmentResponse {
	resp := &AssignmentResponse{
		ID:             a.ID,
		BusinessUnitID: a.BusinessUnitID,
		RoleID:         a.RoleID,
	}
	if a.BusinessUnit != nil {
		resp.BusinessUnitName = a.BusinessUnit.Name
	}
	if a.Role != nil {
		resp.RoleName = a.Role.Name
		resp.RoleLevel = a.Role.Level
	}
	return resp
}

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate runs auto migration for all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// Identity & Access
		&User{},
		&RefreshToken{},
		&BusinessUnit{},
		&Role{},
		&Permission{},
		&UserAssignment{},
		// Approval
		&ApprovalWorkflow{},
		&ApprovalStep{},
		&ApprovalRequest{},
		&ApprovalStepResponse{},
		// Property & Movements
		&Property{},
		&PropertyReturn{},
		&PropertyRelease{},
		&PropertyTurnover{},
		&PropertyMovementHistory{},
		// Audit
		&AuditLog{},
	)
}
