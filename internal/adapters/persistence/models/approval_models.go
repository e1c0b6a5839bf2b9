package models

import (
	"fmt"
	"time"

	"propdesk/internal/core/domain"

	"gorm.io/gorm"
)

// ============================================================
// Approval Workflow Tables
// ============================================================

// ApprovalWorkflow is a named, ordered sequence of role-gated steps
type ApprovalWorkflow struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:150;uniqueIndex;not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	EntityType     string    `gorm:"size:30;not null;index" json:"entity_type"`
	BusinessUnitID uint      `gorm:"not null;index" json:"business_unit_id"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	CreatedByID    uint      `gorm:"not null" json:"created_by_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Steps        []ApprovalStep `gorm:"foreignKey:WorkflowID" json:"steps,omitempty"`
	BusinessUnit *BusinessUnit  `gorm:"foreignKey:BusinessUnitID" json:"business_unit,omitempty"`
}

func (ApprovalWorkflow) TableName() string {
	return "approval_workflows"
}

// StepAt returns the step with the given order, nil when absent
func (w *ApprovalWorkflow) StepAt(order int) *ApprovalStep {
	for i := range w.Steps {
		if w.Steps[i].StepOrder == order {
			return &w.Steps[i]
		}
	}
	return nil
}

// ApprovalStep is one stage of a workflow. Replaced steps are soft deleted so
// historical responses keep their reference.
type ApprovalStep struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	WorkflowID       uint           `gorm:"not null;index" json:"workflow_id"`
	StepOrder        int            `gorm:"not null" json:"step_order"`
	StepName         string         `gorm:"size:150;not null" json:"step_name"`
	RoleID           uint           `gorm:"not null;index" json:"role_id"`
	IsRequired       bool           `gorm:"not null" json:"is_required"`
	CanOverride      bool           `gorm:"not null" json:"can_override"`
	OverrideMinLevel int            `gorm:"not null" json:"override_min_level"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func (ApprovalStep) TableName() string {
	return "approval_steps"
}

// ApprovalRequest is one entity's journey through a workflow
type ApprovalRequest struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	WorkflowID       uint       `gorm:"not null;index" json:"workflow_id"`
	EntityType       string     `gorm:"size:30;not null;index:idx_request_entity" json:"entity_type"`
	EntityID         string     `gorm:"size:64;not null;index:idx_request_entity" json:"entity_id"`
	PropertyID       *uint      `gorm:"index" json:"property_id"`
	BusinessUnitID   uint       `gorm:"not null;index" json:"business_unit_id"`
	RequestedByID    uint       `gorm:"not null;index" json:"requested_by_id"`
	Status           string     `gorm:"size:20;not null;index" json:"status"`
	CurrentStepOrder int        `gorm:"not null" json:"current_step_order"`
	IsOverridden     bool       `gorm:"not null" json:"is_overridden"`
	OverriddenByID   *uint      `json:"overridden_by_id"`
	OverriddenAt     *time.Time `json:"overridden_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	Remarks          string     `gorm:"type:text" json:"remarks"`

	// ActiveKey is set while the request is non-terminal and cleared afterwards.
	// The unique index allows one open request per entity; NULLs never collide.
	ActiveKey *string   `gorm:"size:100;uniqueIndex" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Workflow    *ApprovalWorkflow      `gorm:"foreignKey:WorkflowID" json:"workflow,omitempty"`
	RequestedBy *User                  `gorm:"foreignKey:RequestedByID" json:"requested_by,omitempty"`
	Responses   []ApprovalStepResponse `gorm:"foreignKey:ApprovalRequestID" json:"responses,omitempty"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// ActiveKeyFor builds the open-request lock value for an entity
func ActiveKeyFor(entityType, entityID string) *string {
	key := fmt.Sprintf("%s:%s", entityType, entityID)
	return &key
}

// ApprovalStepResponse is an append-only decision record
type ApprovalStepResponse struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ApprovalRequestID uint      `gorm:"not null;index" json:"approval_request_id"`
	StepID            uint      `gorm:"not null;index" json:"step_id"`
	StepOrder         int       `gorm:"not null" json:"step_order"`
	RespondedByID     uint      `gorm:"not null;index" json:"responded_by_id"`
	Status            string    `gorm:"size:20;not null" json:"status"`
	Comments          string    `gorm:"type:text" json:"comments"`
	IsOverride        bool      `gorm:"not null" json:"is_override"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Step        *ApprovalStep `gorm:"foreignKey:StepID" json:"step,omitempty"`
	RespondedBy *User         `gorm:"foreignKey:RespondedByID" json:"responded_by,omitempty"`
}

func (ApprovalStepResponse) TableName() string {
	return "approval_step_responses"
}

// ============================================================
// DTOs
// ============================================================

// StepResponse DTO
type StepResponse struct {
	ID               uint   `json:"id"`
	StepOrder        int    `json:"step_order"`
	StepName         string `json:"step_name"`
	RoleID           uint   `json:"role_id"`
	RoleName         string `json:"role_name,omitempty"`
	RoleLevel        int    `json:"role_level"`
	IsRequired       bool   `json:"is_required"`
	CanOverride      bool   `json:"can_override"`
	OverrideMinLevel int    `json:"override_min_level"`
}

func (s *ApprovalStep) ToResponse() *StepResponse {
	resp := &StepResponse{
		ID:               s.ID,
		StepOrder:        s.StepOrder,
		StepName:         s.StepName,
		RoleID:           s.RoleID,
		IsRequired:       s.IsRequired,
		CanOverride:      s.CanOverride,
		OverrideMinLevel: s.OverrideMinLevel,
	}
	if s.Role != nil {
		resp.RoleName = s.Role.Name
		resp.RoleLevel = s.Role.Level
	}
	return resp
}

// WorkflowResponse DTO
type WorkflowResponse struct {
	ID             uint            `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	EntityType     string          `json:"entity_type"`
	BusinessUnitID uint            `json:"business_unit_id"`
	IsActive       bool            `json:"is_active"`
	StepCount      int             `json:"step_count"`
	Steps          []*StepResponse `json:"steps"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (w *ApprovalWorkflow) ToResponse() *WorkflowResponse {
	resp := &WorkflowResponse{
		ID:             w.ID,
		Name:           w.Name,
		Description:    w.Description,
		EntityType:     w.EntityType,
		BusinessUnitID: w.BusinessUnitID,
		IsActive:       w.IsActive,
		StepCount:      len(w.Steps),
		Steps:          make([]*StepResponse, 0, len(w.Steps)),
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
	for i := range w.Steps {
		resp.Steps = append(resp.Steps, w.Steps[i].ToResponse())
	}
	return resp
}

// RequestResponse DTO
type RequestResponse struct {
	ID               uint                     `json:"id"`
	WorkflowID       uint                     `json:"workflow_id"`
	WorkflowName     string                   `json:"workflow_name,omitempty"`
	EntityType       string                   `json:"entity_type"`
	EntityID         string                   `json:"entity_id"`
	PropertyID       *uint                    `json:"property_id"`
	BusinessUnitID   uint                     `json:"business_unit_id"`
	RequestedByID    uint                     `json:"requested_by_id"`
	RequestedByName  string                   `json:"requested_by_name,omitempty"`
	Status           string                   `json:"status"`
	CurrentStepOrder int                      `json:"current_step_order"`
	CurrentStep      *StepResponse            `json:"current_step,omitempty"`
	TotalSteps       int                      `json:"total_steps"`
	IsOverridden     bool                     `json:"is_overridden"`
	OverriddenByID   *uint                    `json:"overridden_by_id"`
	OverriddenAt     *time.Time               `json:"overridden_at"`
	CompletedAt      *time.Time               `json:"completed_at"`
	Remarks          string                   `json:"remarks"`
	Responses        []*ResponseEntryResponse `json:"responses,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func (r *ApprovalRequest) ToResponse() *RequestResponse {
	resp := &RequestResponse{
		ID:               r.ID,
		WorkflowID:       r.WorkflowID,
		EntityType:       r.EntityType,
		EntityID:         r.EntityID,
		PropertyID:       r.PropertyID,
		BusinessUnitID:   r.BusinessUnitID,
		RequestedByID:    r.RequestedByID,
		Status:           r.Status,
		CurrentStepOrder: r.CurrentStepOrder,
		IsOverridden:     r.IsOverridden,
		OverriddenByID:   r.OverriddenByID,
		OverriddenAt:     r.OverriddenAt,
		CompletedAt:      r.CompletedAt,
		Remarks:          r.Remarks,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}

	if r.Workflow != nil {
		resp.WorkflowName = r.Workflow.Name
		resp.TotalSteps = len(r.Workflow.Steps)
		// a finished request has no step awaiting action
		if step := r.Workflow.StepAt(r.CurrentStepOrder); step != nil && !domain.RequestStatus(r.Status).IsTerminal() {
			resp.CurrentStep = step.ToResponse()
		}
	}
	if r.RequestedBy != nil {
		resp.RequestedByName = r.RequestedBy.FullName
	}
	for i := range r.Responses {
		resp.Responses = append(resp.Responses, r.Responses[i].ToResponse())
	}

	return resp
}

// ResponseEntryResponse DTO
type ResponseEntryResponse struct {
	ID              uint      `json:"id"`
	StepID          uint      `json:"step_id"`
	StepOrder       int       `json:"step_order"`
	StepName        string    `json:"step_name,omitempty"`
	RespondedByID   uint      `json:"responded_by_id"`
	RespondedByName string    `json:"responded_by_name,omitempty"`
	Status          string    `json:"status"`
	Comments        string    `json:"comments"`
	IsOverride      bool      `json:"is_override"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r *ApprovalStepResponse) ToResponse() *ResponseEntryResponse {
	resp := &ResponseEntryResponse{
		ID:            r.ID,
		StepID:        r.StepID,
		StepOrder:     r.StepOrder,
		RespondedByID: r.RespondedByID,
		Status:        r.Status,
		Comments:      r.Comments,
		IsOverride:    r.IsOverride,
		CreatedAt:     r.CreatedAt,
	}
	if r.Step != nil {
		resp.StepName = r.Step.StepName
	}
	if r.RespondedBy != nil {
		resp.RespondedByName = r.RespondedBy.FullName
	}
	return resp
}
