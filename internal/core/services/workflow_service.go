package services

import (
	"context"
	"sort"
	"strings"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/logger"
	"propdesk/internal/pkg/pagination"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// WorkflowService manages approval workflow definitions
type WorkflowService struct {
	db           *gorm.DB
	workflowRepo *repositories.WorkflowRepository
	roleRepo     *repositories.RoleRepository
	auditRepo    *repositories.AuditRepository
	log          zerolog.Logger
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(
	db *gorm.DB,
	workflowRepo *repositories.WorkflowRepository,
	roleRepo *repositories.RoleRepository,
	auditRepo *repositories.AuditRepository,
) *WorkflowService {
	return &WorkflowService{
		db:           db,
		workflowRepo: workflowRepo,
		roleRepo:     roleRepo,
		auditRepo:    auditRepo,
		log:          logger.New("workflow"),
	}
}

// StepInput describes one step of a workflow
type StepInput struct {
	StepOrder        int    `json:"step_order" validate:"required,min=1"`
	StepName         string `json:"step_name" validate:"required,max=150"`
	RoleID           uint   `json:"role_id" validate:"required"`
	IsRequired       bool   `json:"is_required"`
	CanOverride      bool   `json:"can_override"`
	OverrideMinLevel int    `json:"override_min_level" validate:"min=0,max=4"`
}

// CreateWorkflowInput represents create workflow input
type CreateWorkflowInput struct {
	Name           string      `json:"name" validate:"required,max=150"`
	Description    string      `json:"description"`
	EntityType     string      `json:"entity_type" validate:"required,entity_type"`
	BusinessUnitID uint        `json:"business_unit_id" validate:"required"`
	IsActive       *bool       `json:"is_active"`
	Steps          []StepInput `json:"steps" validate:"dive"`
}

// UpdateWorkflowInput represents update workflow input
type UpdateWorkflowInput struct {
	Name        *string `json:"name" validate:"omitempty,max=150"`
	Description *string `json:"description"`
}

// ListWorkflowsInput represents list workflows input
type ListWorkflowsInput struct {
	BusinessUnitID uint
	EntityType     string
	IsActive       *bool
	Search         string
	Page           int
	Limit          int
}

// DuplicateWorkflowInput represents duplicate workflow input
type DuplicateWorkflowInput struct {
	Name string `json:"name" validate:"required,max=150"`
}

// UpdateStepsInput represents update steps input
type UpdateStepsInput struct {
	Steps []StepInput `json:"steps" validate:"dive"`
}

// workflowSnapshot is the audit view of a workflow
type workflowSnapshot struct {
	Name       string         `json:"name"`
	EntityType string         `json:"entity_type"`
	IsActive   bool           `json:"is_active"`
	Steps      []stepSnapshot `json:"steps,omitempty"`
}

type stepSnapshot struct {
	StepOrder        int    `json:"step_order"`
	StepName         string `json:"step_name"`
	RoleID           uint   `json:"role_id"`
	CanOverride      bool   `json:"can_override"`
	OverrideMinLevel int    `json:"override_min_level"`
}

func snapshotWorkflow(w *models.ApprovalWorkflow) workflowSnapshot {
	snap := workflowSnapshot{Name: w.Name, EntityType: w.EntityType, IsActive: w.IsActive}
	for _, st := range w.Steps {
		snap.Steps = append(snap.Steps, stepSnapshot{
			StepOrder:        st.StepOrder,
			StepName:         st.StepName,
			RoleID:           st.RoleID,
			CanOverride:      st.CanOverride,
			OverrideMinLevel: st.OverrideMinLevel,
		})
	}
	return snap
}

// validateSteps checks the structural rules of a step list and returns the
// steps sorted by order
func validateSteps(steps []StepInput) ([]StepInput, error) {
	if len(steps) == 0 {
		return nil, domain.ErrWorkflowNoSteps
	}

	sorted := make([]StepInput, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StepOrder < sorted[j].StepOrder })

	for i, st := range sorted {
		if st.StepOrder != i+1 {
			return nil, domain.ErrStepOrderInvalid
		}
		if !domain.ValidLevel(st.OverrideMinLevel) {
			return nil, domain.ErrOverrideLevelInvalid
		}
		if strings.TrimSpace(st.StepName) == "" || st.RoleID == 0 {
			return nil, domain.ErrInvalidInput
		}
	}
	return sorted, nil
}

// checkRolesExist fails unless every referenced role exists
func (s *WorkflowService) checkRolesExist(ctx context.Context, steps []StepInput) error {
	seen := make(map[uint]bool)
	var ids []uint
	for _, st := range steps {
		if !seen[st.RoleID] {
			seen[st.RoleID] = true
			ids = append(ids, st.RoleID)
		}
	}
	count, err := s.roleRepo.CountByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if count != int64(len(ids)) {
		return domain.ErrStepRoleNotFound
	}
	return nil
}

func toStepModels(steps []StepInput) []models.ApprovalStep {
	out := make([]models.ApprovalStep, 0, len(steps))
	for _, st := range steps {
		out = append(out, models.ApprovalStep{
			StepOrder:        st.StepOrder,
			StepName:         strings.TrimSpace(st.StepName),
			RoleID:           st.RoleID,
			IsRequired:       st.IsRequired,
			CanOverride:      st.CanOverride,
			OverrideMinLevel: st.OverrideMinLevel,
		})
	}
	return out
}

// checkNameFree fails when another workflow already uses name
func (s *WorkflowService) checkNameFree(ctx context.Context, name string, excludeID uint) error {
	taken, err := s.workflowRepo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return domain.ErrWorkflowNameTaken
	}
	return nil
}

// load gets a workflow or ErrWorkflowNotFound
func (s *WorkflowService) load(ctx context.Context, id uint) (*models.ApprovalWorkflow, error) {
	w, err := s.workflowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, domain.ErrWorkflowNotFound)
	}
	return w, nil
}

// Create creates a workflow and its steps in one transaction
func (s *WorkflowService) Create(ctx context.Context, ac *domain.AccessContext, input *CreateWorkflowInput) (*models.ApprovalWorkflow, error) {
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleApproval, domain.ActionCreate); err != nil {
		return nil, err
	}
	if !domain.EntityType(input.EntityType).Valid() {
		return nil, domain.ErrInvalidInput
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.ErrInvalidInput
	}

	steps, err := validateSteps(input.Steps)
	if err != nil {
		return nil, err
	}
	if err := s.checkNameFree(ctx, name, 0); err != nil {
		return nil, internalError(s.log, "create workflow", err)
	}
	if err := s.checkRolesExist(ctx, steps); err != nil {
		return nil, internalError(s.log, "create workflow", err)
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	workflow := &models.ApprovalWorkflow{
		Name:           name,
		Description:    input.Description,
		EntityType:     input.EntityType,
		BusinessUnitID: input.BusinessUnitID,
		IsActive:       active,
		CreatedByID:    ac.UserID,
		Steps:          toStepModels(steps),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.workflowRepo.WithTx(tx).Create(ctx, workflow); err != nil {
			if isDuplicate(err) {
				return domain.ErrWorkflowNameTaken
			}
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, &workflow.BusinessUnitID,
			domain.AuditCreate, domain.AuditEntityWorkflow, idString(workflow.ID), nil, snapshotWorkflow(workflow))
	})
	if err != nil {
		return nil, internalError(s.log, "create workflow", err)
	}

	s.log.Info().Uint("workflow_id", workflow.ID).Str("entity_type", workflow.EntityType).
		Int("steps", len(workflow.Steps)).Msg("workflow created")

	return s.GetByID(ctx, ac, workflow.ID)
}

// GetByID gets a workflow with its ordered steps and role details
func (s *WorkflowService) GetByID(ctx context.Context, ac *domain.AccessContext, id uint) (*models.ApprovalWorkflow, error) {
	w, err := s.load(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "get workflow", err)
	}
	if err := ac.RequireAssignment(w.BusinessUnitID); err != nil {
		return nil, err
	}
	return w, nil
}

// List lists workflows visible to the caller
func (s *WorkflowService) List(ctx context.Context, ac *domain.AccessContext, input *ListWorkflowsInput) ([]*models.ApprovalWorkflow, int64, *pagination.Params, error) {
	params := pagination.New(input.Page, input.Limit)

	units := ac.BusinessUnitIDs()
	if input.BusinessUnitID != 0 {
		if err := ac.RequireAssignment(input.BusinessUnitID); err != nil {
			return nil, 0, params, err
		}
		units = []uint{input.BusinessUnitID}
	}
	if len(units) == 0 {
		return nil, 0, params, domain.ErrNoAssignment
	}

	filter := repositories.WorkflowFilter{
		BusinessUnitIDs: units,
		EntityType:      input.EntityType,
		IsActive:        input.IsActive,
		Search:          strings.TrimSpace(input.Search),
	}
	list, total, err := s.workflowRepo.List(ctx, filter, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, params, internalError(s.log, "list workflows", err)
	}
	return list, total, params, nil
}

// Update updates the name and description of a workflow
func (s *WorkflowService) Update(ctx context.Context, ac *domain.AccessContext, id uint, input *UpdateWorkflowInput) (*models.ApprovalWorkflow, error) {
	w, err := s.load(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "update workflow", err)
	}
	if err := ac.Authorize(w.BusinessUnitID, domain.ModuleApproval, domain.ActionUpdate); err != nil {
		return nil, err
	}

	before := snapshotWorkflow(w)

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.ErrInvalidInput
		}
		if err := s.checkNameFree(ctx, name, w.ID); err != nil {
			return nil, internalError(s.log, "update workflow", err)
		}
		w.Name = name
	}
	if input.Description != nil {
		w.Description = *input.Description
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.workflowRepo.WithTx(tx).Update(ctx, w); err != nil {
			if isDuplicate(err) {
				return domain.ErrWorkflowNameTaken
			}
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, &w.BusinessUnitID,
			domain.AuditUpdate, domain.AuditEntityWorkflow, idString(w.ID), before, snapshotWorkflow(w))
	})
	if err != nil {
		return nil, internalError(s.log, "update workflow", err)
	}

	return s.GetByID(ctx, ac, id)
}

// ToggleActive flips the active flag. A workflow without steps cannot be activated.
func (s *WorkflowService) ToggleActive(ctx context.Context, ac *domain.AccessContext, id uint) (*models.ApprovalWorkflow, error) {
	w, err := s.load(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "toggle workflow", err)
	}
	if err := ac.Authorize(w.BusinessUnitID, domain.ModuleApproval, domain.ActionUpdate); err != nil {
		return nil, err
	}
	if !w.IsActive && len(w.Steps) == 0 {
		return nil, domain.ErrWorkflowNoSteps
	}

	before := snapshotWorkflow(w)
	w.IsActive = !w.IsActive

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.workflowRepo.WithTx(tx).Update(ctx, w); err != nil {
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, &w.BusinessUnitID,
			domain.AuditUpdate, domain.AuditEntityWorkflow, idString(w.ID), before, snapshotWorkflow(w))
	})
	if err != nil {
		return nil, internalError(s.log, "toggle workflow", err)
	}

	s.log.Info().Uint("workflow_id", w.ID).Bool("is_active", w.IsActive).Msg("workflow toggled")
	return w, nil
}

// Delete deletes a workflow that has never been used
func (s *WorkflowService) Delete(ctx context.Context, ac *domain.AccessContext, id uint) error {
	w, err := s.load(ctx, id)
	if err != nil {
		return internalError(s.log, "delete workflow", err)
	}
	if err := ac.Authorize(w.BusinessUnitID, domain.ModuleApproval, domain.ActionDelete); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.workflowRepo.WithTx(tx)
		if _, err := repo.GetForUpdate(ctx, id); err != nil {
			return notFoundOr(err, domain.ErrWorkflowNotFound)
		}
		used, err := repo.CountRequests(ctx, id)
		if err != nil {
			return err
		}
		if used > 0 {
			return domain.ErrWorkflowInUse
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, &w.BusinessUnitID,
			domain.AuditDelete, domain.AuditEntityWorkflow, idString(w.ID), snapshotWorkflow(w), nil)
	})
	if err != nil {
		return internalError(s.log, "delete workflow", err)
	}

	s.log.Info().Uint("workflow_id", id).Msg("workflow deleted")
	return nil
}

// Duplicate copies a workflow and its steps under a new name. The copy starts inactive.
func (s *WorkflowService) Duplicate(ctx context.Context, ac *domain.AccessContext, id uint, input *DuplicateWorkflowInput) (*models.ApprovalWorkflow, error) {
	src, err := s.load(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "duplicate workflow", err)
	}
	if err := ac.Authorize(src.BusinessUnitID, domain.ModuleApproval, domain.ActionCreate); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.ErrInvalidInput
	}
	if err := s.checkNameFree(ctx, name, 0); err != nil {
		return nil, internalError(s.log, "duplicate workflow", err)
	}

	copied := &models.ApprovalWorkflow{
		Name:           name,
		Description:    src.Description,
		EntityType:     src.EntityType,
		BusinessUnitID: src.BusinessUnitID,
		IsActive:       false,
		CreatedByID:    ac.UserID,
	}
	for _, st := range src.Steps {
		copied.Steps = append(copied.Steps, models.ApprovalStep{
			StepOrder:        st.StepOrder,
			StepName:         st.StepName,
			RoleID:           st.RoleID,
			IsRequired:       st.IsRequired,
			CanOverride:      st.CanOverride,
			OverrideMinLevel: st.OverrideMinLevel,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.workflowRepo.WithTx(tx).Create(ctx, copied); err != nil {
			if isDuplicate(err) {
				return domain.ErrWorkflowNameTaken
			}
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, &copied.BusinessUnitID,
			domain.AuditCreate, domain.AuditEntityWorkflow, idString(copied.ID),
			map[string]uint{"duplicated_from": src.ID}, snapshotWorkflow(copied))
	})
	if err != nil {
		return nil, internalError(s.log, "duplicate workflow", err)
	}

	s.log.Info().Uint("workflow_id", copied.ID).Uint("source_id", src.ID).Msg("workflow duplicated")
	return s.GetByID(ctx, ac, copied.ID)
}

// UpdateSteps replaces every step of a workflow. It is refused while any
// request on the workflow is still pending or in progress.
func (s *WorkflowService) UpdateSteps(ctx context.Context, ac *domain.AccessContext, id uint, input *UpdateStepsInput) (*models.ApprovalWorkflow, error) {
	w, err := s.load(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "update workflow steps", err)
	}
	if err := ac.Authorize(w.BusinessUnitID, domain.ModuleApproval, domain.ActionUpdate); err != nil {
		return nil, err
	}

	steps, err := validateSteps(input.Steps)
	if err != nil {
		return nil, err
	}
	if err := s.checkRolesExist(ctx, steps); err != nil {
		return nil, internalError(s.log, "update workflow steps", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.workflowRepo.WithTx(tx)

		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, domain.ErrWorkflowNotFound)
		}
		active, err := repo.CountRequests(ctx, id, string(domain.RequestPending), string(domain.RequestInProgress))
		if err != nil {
			return err
		}
		if active > 0 {
			return domain.ErrWorkflowHasActive
		}

		before := snapshotWorkflow(current)
		replaced := toStepModels(steps)
		if err := repo.ReplaceSteps(ctx, id, replaced); err != nil {
			return err
		}
		if err := repo.Touch(ctx, id); err != nil {
			return err
		}

		current.Steps = replaced
		return audit(ctx, s.auditRepo.WithTx(tx), ac, &w.BusinessUnitID,
			domain.AuditUpdate, domain.AuditEntityWorkflow, idString(id), before, snapshotWorkflow(current))
	})
	if err != nil {
		return nil, internalError(s.log, "update workflow steps", err)
	}

	s.log.Info().Uint("workflow_id", id).Int("steps", len(steps)).Msg("workflow steps replaced")
	return s.GetByID(ctx, ac, id)
}
