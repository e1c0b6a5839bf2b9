package services

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/logger"
	"propdesk/internal/pkg/pagination"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// TransitionHook runs inside the transaction of every request transition for
// one entity type, after the request row has been updated
type TransitionHook func(ctx context.Context, tx *gorm.DB, ac *domain.AccessContext, req *models.ApprovalRequest) error

// ApprovalEngine drives approval requests through their workflow steps
type ApprovalEngine struct {
	db           *gorm.DB
	workflowRepo *repositories.WorkflowRepository
	requestRepo  *repositories.ApprovalRequestRepository
	auditRepo    *repositories.AuditRepository
	hooks        map[domain.EntityType]TransitionHook
	observers    []domain.RequestObserver
	now          func() time.Time
	log          zerolog.Logger
}

// NewApprovalEngine creates a new approval engine
func NewApprovalEngine(
	db *gorm.DB,
	workflowRepo *repositories.WorkflowRepository,
	requestRepo *repositories.ApprovalRequestRepository,
	auditRepo *repositories.AuditRepository,
) *ApprovalEngine {
	return &ApprovalEngine{
		db:           db,
		workflowRepo: workflowRepo,
		requestRepo:  requestRepo,
		auditRepo:    auditRepo,
		hooks:        make(map[domain.EntityType]TransitionHook),
		now:          time.Now,
		log:          logger.New("approval"),
	}
}

// RegisterHook binds a transition hook to an entity type. Call during wiring only.
func (e *ApprovalEngine) RegisterHook(entityType domain.EntityType, hook TransitionHook) {
	e.hooks[entityType] = hook
}

// Subscribe adds observers notified after each committed transition. Call during wiring only.
func (e *ApprovalEngine) Subscribe(observers ...domain.RequestObserver) {
	e.observers = append(e.observers, observers...)
}

// Notify delivers events to every observer
func (e *ApprovalEngine) Notify(events ...domain.RequestEvent) {
	for _, ev := range events {
		for _, o := range e.observers {
			o.OnRequestEvent(ev)
		}
	}
}

// CreateRequestInput represents create approval request input
type CreateRequestInput struct {
	WorkflowID uint   `json:"workflow_id" validate:"required"`
	EntityType string `json:"entity_type" validate:"required,entity_type"`
	EntityID   string `json:"entity_id" validate:"required,max=64"`
	PropertyID *uint  `json:"property_id"`
	Remarks    string `json:"remarks"`
}

// RespondInput represents a step response
type RespondInput struct {
	StepID     uint   `json:"step_id" validate:"required"`
	Status     string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Comments   string `json:"comments"`
	IsOverride bool   `json:"is_override"`
}

// RespondResult is the outcome of a step response
type RespondResult struct {
	Request  *models.ApprovalRequest `json:"-"`
	Status   domain.RequestStatus    `json:"status"`
	NextStep *models.ApprovalStep    `json:"-"`
}

// NextRoleID returns the role awaited next, nil when the request is terminal
func (r *RespondResult) NextRoleID() *uint {
	if r.NextStep == nil {
		return nil
	}
	return uintPtr(r.NextStep.RoleID)
}

// ListRequestsInput represents list approval requests input
type ListRequestsInput struct {
	BusinessUnitID uint
	Status         string
	EntityType     string
	EntityID       string
	WorkflowID     uint
	RequestedByID  uint
	Page           int
	Limit          int
}

// RequestStats counts the requests of a business unit per status
type RequestStats struct {
	BusinessUnitID uint  `json:"business_unit_id"`
	Total          int64 `json:"total"`
	Pending        int64 `json:"pending"`
	InProgress     int64 `json:"in_progress"`
	Approved       int64 `json:"approved"`
	Rejected       int64 `json:"rejected"`
	Cancelled      int64 `json:"cancelled"`
	Overridden     int64 `json:"overridden"`
	AwaitingMe     int64 `json:"awaiting_me"`
}

// requestSnapshot is the audit view of a request
type requestSnapshot struct {
	Status           string `json:"status"`
	CurrentStepOrder int    `json:"current_step_order"`
	IsOverridden     bool   `json:"is_overridden"`
	StepID           uint   `json:"step_id,omitempty"`
	Decision         string `json:"decision,omitempty"`
	Comments         string `json:"comments,omitempty"`
}

func activeStatuses() []string {
	return []string{string(domain.RequestPending), string(domain.RequestInProgress)}
}

func eventFor(action string, req *models.ApprovalRequest, prev domain.RequestStatus, actorID uint) domain.RequestEvent {
	ev := domain.RequestEvent{
		Action:           action,
		RequestID:        req.ID,
		WorkflowID:       req.WorkflowID,
		BusinessUnitID:   req.BusinessUnitID,
		EntityType:       domain.EntityType(req.EntityType),
		EntityID:         req.EntityID,
		PreviousStatus:   prev,
		Status:           domain.RequestStatus(req.Status),
		CurrentStepOrder: req.CurrentStepOrder,
		ActorID:          actorID,
		IsOverride:       req.IsOverridden,
	}
	if !ev.Status.IsTerminal() && req.Workflow != nil {
		if step := req.Workflow.StepAt(req.CurrentStepOrder); step != nil {
			ev.NextRoleID = uintPtr(step.RoleID)
		}
	}
	return ev
}

// Create opens an approval request in its own transaction
func (e *ApprovalEngine) Create(ctx context.Context, ac *domain.AccessContext, input *CreateRequestInput) (*models.ApprovalRequest, error) {
	var req *models.ApprovalRequest
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = e.createInTx(ctx, tx, ac, input, false)
		return err
	})
	if err != nil {
		return nil, internalError(e.log, "create approval request", err)
	}

	e.Notify(eventFor(domain.AuditCreate, req, "", ac.UserID))
	return e.reload(ctx, req.ID)
}

// CreateInTx opens an approval request inside a caller-owned transaction.
// The caller publishes the creation event after commit.
func (e *ApprovalEngine) CreateInTx(ctx context.Context, tx *gorm.DB, ac *domain.AccessContext, input *CreateRequestInput) (*models.ApprovalRequest, error) {
	return e.createInTx(ctx, tx, ac, input, true)
}

// createInTx opens the request. Entity types with a registered hook are
// owned by a coordinator and may only be opened through it (owned=true).
func (e *ApprovalEngine) createInTx(ctx context.Context, tx *gorm.DB, ac *domain.AccessContext, input *CreateRequestInput, owned bool) (*models.ApprovalRequest, error) {
	workflow, err := e.workflowRepo.WithTx(tx).GetForUpdate(ctx, input.WorkflowID)
	if err != nil {
		return nil, notFoundOr(err, domain.ErrWorkflowNotFound)
	}
	if err := ac.RequireAssignment(workflow.BusinessUnitID); err != nil {
		return nil, err
	}
	if input.EntityID == "" || input.EntityType != workflow.EntityType {
		return nil, domain.ErrEntityTypeMismatch
	}
	if _, hooked := e.hooks[domain.EntityType(input.EntityType)]; hooked && !owned {
		return nil, domain.ErrEntityTypeManaged
	}
	if !workflow.IsActive {
		return nil, domain.ErrWorkflowInactive
	}
	if len(workflow.Steps) == 0 {
		return nil, domain.ErrWorkflowNoSteps
	}

	requestRepo := e.requestRepo.WithTx(tx)
	exists, err := requestRepo.ExistsActive(ctx, input.EntityType, input.EntityID, activeStatuses())
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrRequestExists
	}

	req := &models.ApprovalRequest{
		WorkflowID:       workflow.ID,
		EntityType:       input.EntityType,
		EntityID:         input.EntityID,
		PropertyID:       input.PropertyID,
		BusinessUnitID:   workflow.BusinessUnitID,
		RequestedByID:    ac.UserID,
		Status:           string(domain.RequestPending),
		CurrentStepOrder: 1,
		Remarks:          input.Remarks,
		ActiveKey:        models.ActiveKeyFor(input.EntityType, input.EntityID),
	}
	if err := requestRepo.Create(ctx, req); err != nil {
		if isDuplicate(err) {
			return nil, domain.ErrRequestExists
		}
		return nil, err
	}
	req.Workflow = workflow

	err = audit(ctx, e.auditRepo.WithTx(tx), ac, &req.BusinessUnitID,
		domain.AuditCreate, domain.AuditEntityRequest, idString(req.ID), nil,
		requestSnapshot{Status: req.Status, CurrentStepOrder: req.CurrentStepOrder})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Uint("request_id", req.ID).
		Uint("workflow_id", workflow.ID).
		Str("entity_type", req.EntityType).
		Str("entity_id", req.EntityID).
		Msg("approval request created")

	return req, nil
}

// Respond records a decision on the current step and advances the request
func (e *ApprovalEngine) Respond(ctx context.Context, ac *domain.AccessContext, requestID uint, input *RespondInput) (*RespondResult, error) {
	var (
		result *RespondResult
		prev   domain.RequestStatus
		action string
	)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requestRepo := e.requestRepo.WithTx(tx)

		req, err := requestRepo.GetForUpdate(ctx, requestID)
		if err != nil {
			return notFoundOr(err, domain.ErrRequestNotFound)
		}
		if err := ac.RequireAssignment(req.BusinessUnitID); err != nil {
			return err
		}

		prev = domain.RequestStatus(req.Status)
		if prev.IsTerminal() {
			return domain.ErrRequestNotPending
		}

		decision := domain.ResponseStatus(input.Status)
		if !decision.Valid() {
			return domain.ErrInvalidResponse
		}

		step := req.Workflow.StepAt(req.CurrentStepOrder)
		if step == nil || step.ID != input.StepID {
			return domain.ErrWrongStep
		}

		if input.IsOverride {
			if !step.CanOverride {
				return domain.ErrOverrideNotAllowed
			}
			if ac.MaxLevel(req.BusinessUnitID) < step.OverrideMinLevel {
				return domain.ErrOverrideLevelTooLow
			}
		} else if !ac.HasRole(req.BusinessUnitID, step.RoleID) {
			return domain.ErrNotStepApprover
		}

		response := &models.ApprovalStepResponse{
			ApprovalRequestID: req.ID,
			StepID:            step.ID,
			StepOrder:         step.StepOrder,
			RespondedByID:     ac.UserID,
			Status:            string(decision),
			Comments:          input.Comments,
			IsOverride:        input.IsOverride,
		}
		if err := requestRepo.CreateResponse(ctx, response); err != nil {
			return err
		}

		before := requestSnapshot{Status: req.Status, CurrentStepOrder: req.CurrentStepOrder, IsOverridden: req.IsOverridden}
		now := e.now()
		result = &RespondResult{Request: req}

		switch {
		case input.IsOverride:
			req.Status = string(domain.RequestOverridden)
			req.IsOverridden = true
			req.OverriddenByID = uintPtr(ac.UserID)
			req.OverriddenAt = &now
			req.CompletedAt = &now
			action = domain.AuditOverride
		case decision == domain.ResponseRejected:
			req.Status = string(domain.RequestRejected)
			req.CompletedAt = &now
			action = domain.AuditReject
		default:
			action = domain.AuditApprove
			if next := req.Workflow.StepAt(req.CurrentStepOrder + 1); next != nil {
				req.CurrentStepOrder = next.StepOrder
				req.Status = string(domain.RequestInProgress)
				result.NextStep = next
			} else {
				req.Status = string(domain.RequestApproved)
				req.CompletedAt = &now
			}
		}

		result.Status = domain.RequestStatus(req.Status)
		if result.Status.IsTerminal() {
			req.ActiveKey = nil
		}
		if err := requestRepo.Save(ctx, req); err != nil {
			return err
		}

		after := requestSnapshot{
			Status:           req.Status,
			CurrentStepOrder: req.CurrentStepOrder,
			IsOverridden:     req.IsOverridden,
			StepID:           step.ID,
			Decision:         string(decision),
			Comments:         input.Comments,
		}
		if err := audit(ctx, e.auditRepo.WithTx(tx), ac, &req.BusinessUnitID,
			action, domain.AuditEntityRequest, idString(req.ID), before, after); err != nil {
			return err
		}

		return e.runHook(ctx, tx, ac, req)
	})
	if err != nil {
		return nil, internalError(e.log, "respond to approval request", err)
	}

	req := result.Request
	e.log.Info().
		Uint("request_id", req.ID).
		Str("action", action).
		Str("from", string(prev)).
		Str("to", req.Status).
		Int("step", req.CurrentStepOrder).
		Uint("actor_id", ac.UserID).
		Msg("approval request transition")

	e.Notify(eventFor(action, req, prev, ac.UserID))
	return result, nil
}

// Cancel withdraws a request. Only its requester may cancel, and only while it is open.
func (e *ApprovalEngine) Cancel(ctx context.Context, ac *domain.AccessContext, requestID uint, reason string) (*models.ApprovalRequest, error) {
	var (
		req  *models.ApprovalRequest
		prev domain.RequestStatus
	)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requestRepo := e.requestRepo.WithTx(tx)

		var err error
		req, err = requestRepo.GetForUpdate(ctx, requestID)
		if err != nil {
			return notFoundOr(err, domain.ErrRequestNotFound)
		}
		if err := ac.RequireAssignment(req.BusinessUnitID); err != nil {
			return err
		}

		prev = domain.RequestStatus(req.Status)
		if prev.IsTerminal() {
			return domain.ErrRequestNotPending
		}
		if req.RequestedByID != ac.UserID {
			return domain.ErrNotRequester
		}

		now := e.now()
		req.Status = string(domain.RequestCancelled)
		req.CompletedAt = &now
		req.ActiveKey = nil
		if err := requestRepo.Save(ctx, req); err != nil {
			return err
		}

		if err := audit(ctx, e.auditRepo.WithTx(tx), ac, &req.BusinessUnitID,
			domain.AuditCancel, domain.AuditEntityRequest, idString(req.ID),
			requestSnapshot{Status: string(prev), CurrentStepOrder: req.CurrentStepOrder},
			requestSnapshot{Status: req.Status, CurrentStepOrder: req.CurrentStepOrder, Comments: reason}); err != nil {
			return err
		}

		return e.runHook(ctx, tx, ac, req)
	})
	if err != nil {
		return nil, internalError(e.log, "cancel approval request", err)
	}

	e.log.Info().Uint("request_id", req.ID).Str("from", string(prev)).Msg("approval request cancelled")
	e.Notify(eventFor(domain.AuditCancel, req, prev, ac.UserID))
	return req, nil
}

func (e *ApprovalEngine) runHook(ctx context.Context, tx *gorm.DB, ac *domain.AccessContext, req *models.ApprovalRequest) error {
	if hook, ok := e.hooks[domain.EntityType(req.EntityType)]; ok {
		return hook(ctx, tx, ac, req)
	}
	return nil
}

func (e *ApprovalEngine) reload(ctx context.Context, id uint) (*models.ApprovalRequest, error) {
	req, err := e.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, internalError(e.log, "load approval request", notFoundOr(err, domain.ErrRequestNotFound))
	}
	return req, nil
}

// GetByID returns a request with its workflow steps, role details and responses
func (e *ApprovalEngine) GetByID(ctx context.Context, ac *domain.AccessContext, id uint) (*models.ApprovalRequest, error) {
	req, err := e.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ac.RequireAssignment(req.BusinessUnitID); err != nil {
		return nil, err
	}
	return req, nil
}

// History returns the response trail of a request in order
func (e *ApprovalEngine) History(ctx context.Context, ac *domain.AccessContext, id uint) ([]*models.ApprovalStepResponse, error) {
	if _, err := e.GetByID(ctx, ac, id); err != nil {
		return nil, err
	}
	list, err := e.requestRepo.ListResponses(ctx, id)
	if err != nil {
		return nil, internalError(e.log, "list approval responses", err)
	}
	return list, nil
}

// List lists requests visible to the caller
func (e *ApprovalEngine) List(ctx context.Context, ac *domain.AccessContext, input *ListRequestsInput) ([]*models.ApprovalRequest, int64, *pagination.Params, error) {
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

	filter := repositories.RequestFilter{
		BusinessUnitIDs: units,
		EntityType:      input.EntityType,
		EntityID:        input.EntityID,
		WorkflowID:      input.WorkflowID,
		RequestedByID:   input.RequestedByID,
	}
	if input.Status != "" {
		filter.Statuses = []string{input.Status}
	}

	list, total, err := e.requestRepo.List(ctx, filter, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, params, internalError(e.log, "list approval requests", err)
	}
	return list, total, params, nil
}

// PendingForMe lists open requests of a business unit whose current step is
// bound to one of the caller's roles there
func (e *ApprovalEngine) PendingForMe(ctx context.Context, ac *domain.AccessContext, businessUnitID uint) ([]*models.ApprovalRequest, error) {
	if err := ac.RequireAssignment(businessUnitID); err != nil {
		return nil, err
	}
	list, err := e.requestRepo.ListAwaitingRoles(ctx, businessUnitID, ac.RoleIDs(businessUnitID), activeStatuses())
	if err != nil {
		return nil, internalError(e.log, "list pending approvals", err)
	}
	return list, nil
}

// Stats counts requests per status for a business unit
func (e *ApprovalEngine) Stats(ctx context.Context, ac *domain.AccessContext, businessUnitID uint) (*RequestStats, error) {
	if err := ac.RequireAssignment(businessUnitID); err != nil {
		return nil, err
	}

	rows, err := e.requestRepo.CountByStatus(ctx, businessUnitID)
	if err != nil {
		return nil, internalError(e.log, "approval stats", err)
	}

	stats := &RequestStats{BusinessUnitID: businessUnitID}
	for _, row := range rows {
		stats.Total += row.Count
		switch domain.RequestStatus(row.Status) {
		case domain.RequestPending:
			stats.Pending = row.Count
		case domain.RequestInProgress:
			stats.InProgress = row.Count
		case domain.RequestApproved:
			stats.Approved = row.Count
		case domain.RequestRejected:
			stats.Rejected = row.Count
		case domain.RequestCancelled:
			stats.Cancelled = row.Count
		case domain.RequestOverridden:
			stats.Overridden = row.Count
		}
	}

	mine, err := e.requestRepo.ListAwaitingRoles(ctx, businessUnitID, ac.RoleIDs(businessUnitID), activeStatuses())
	if err != nil {
		return nil, internalError(e.log, "approval stats", err)
	}
	stats.AwaitingMe = int64(len(mine))

	return stats, nil
}
