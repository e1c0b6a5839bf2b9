package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/logger"
	"propdesk/internal/pkg/pagination"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// History actions
const (
	HistoryRequest  = "REQUEST"
	HistoryRevert   = "REVERT"
	HistoryComplete = "COMPLETE"
)

// movementKind describes one movement coordinator
type movementKind struct {
	kind       domain.MovementKind
	entityType domain.EntityType
	eligible   []domain.PropertyStatus
	final      domain.PropertyStatus
	newModel   func() models.Movement
	newSlice   func() interface{}
	fill       func(m models.Movement, input *CreateMovementInput)
}

func (k *movementKind) isEligible(status string) bool {
	for _, s := range k.eligible {
		if string(s) == status {
			return true
		}
	}
	return false
}

var movementKinds = map[domain.MovementKind]*movementKind{
	domain.MovementReturn: {
		kind:       domain.MovementReturn,
		entityType: domain.EntityPropertyReturn,
		eligible:   []domain.PropertyStatus{domain.PropertyReleased, domain.PropertyBankCustody},
		final:      domain.PropertyAvailable,
		newModel:   func() models.Movement { return &models.PropertyReturn{} },
		newSlice:   func() interface{} { return &[]*models.PropertyReturn{} },
		fill: func(m models.Movement, input *CreateMovementInput) {
			r := m.(*models.PropertyReturn)
			r.ReturnedBy = input.ReturnedBy
			r.ReturnReason = input.ReturnReason
		},
	},
	domain.MovementRelease: {
		kind:       domain.MovementRelease,
		entityType: domain.EntityPropertyRelease,
		eligible:   []domain.PropertyStatus{domain.PropertyAvailable, domain.PropertyBankCustody},
		final:      domain.PropertyReleased,
		newModel:   func() models.Movement { return &models.PropertyRelease{} },
		newSlice:   func() interface{} { return &[]*models.PropertyRelease{} },
		fill: func(m models.Movement, input *CreateMovementInput) {
			r := m.(*models.PropertyRelease)
			r.ReleasedTo = input.ReleasedTo
			r.Purpose = input.Purpose
			r.ExpectedReturnAt = input.ExpectedReturnAt
		},
	},
	domain.MovementTurnover: {
		kind:       domain.MovementTurnover,
		entityType: domain.EntityPropertyTurnover,
		eligible:   []domain.PropertyStatus{domain.PropertyAvailable, domain.PropertyReleased},
		final:      domain.PropertyTurnedOver,
		newModel:   func() models.Movement { return &models.PropertyTurnover{} },
		newSlice:   func() interface{} { return &[]*models.PropertyTurnover{} },
		fill: func(m models.Movement, input *CreateMovementInput) {
			t := m.(*models.PropertyTurnover)
			t.TurnedOverTo = input.TurnedOverTo
			t.TurnoverDate = input.TurnoverDate
		},
	},
}

func lookupKind(kind domain.MovementKind) (*movementKind, error) {
	k, ok := movementKinds[domain.MovementKind(strings.ToUpper(string(kind)))]
	if !ok {
		return nil, domain.ErrUnknownMovementKind
	}
	return k, nil
}

func activeMovementStatuses() []string {
	return []string{string(domain.MovementPending), string(domain.MovementInProgress), string(domain.MovementApproved)}
}

func movementActiveKey(kind domain.MovementKind, propertyID uint) *string {
	key := fmt.Sprintf("%s:%d", kind, propertyID)
	return &key
}

// CreateMovementInput represents a return, release or turnover request.
// Kind-specific fields are ignored by the other kinds.
type CreateMovementInput struct {
	PropertyID     uint   `json:"property_id" validate:"required"`
	TargetLocation string `json:"target_location" validate:"max=200"`
	Remarks        string `json:"remarks"`

	ReturnedBy   string `json:"returned_by" validate:"max=150"`
	ReturnReason string `json:"return_reason"`

	ReleasedTo       string     `json:"released_to" validate:"max=150"`
	Purpose          string     `json:"purpose"`
	ExpectedReturnAt *time.Time `json:"expected_return_at"`

	TurnedOverTo string     `json:"turned_over_to" validate:"max=150"`
	TurnoverDate *time.Time `json:"turnover_date"`
}

// MovementResult is a movement record plus its approval request
type MovementResult struct {
	Kind     domain.MovementKind     `json:"kind"`
	Movement models.Movement         `json:"movement"`
	Request  *models.ApprovalRequest `json:"-"`
}

type movementSnapshot struct {
	Kind           string `json:"kind"`
	Status         string `json:"status"`
	PropertyID     uint   `json:"property_id"`
	PropertyStatus string `json:"property_status,omitempty"`
	Location       string `json:"location,omitempty"`
}

// MovementService coordinates property returns, releases and turnovers with the approval engine
type MovementService struct {
	db           *gorm.DB
	engine       *ApprovalEngine
	workflowRepo *repositories.WorkflowRepository
	propertyRepo *repositories.PropertyRepository
	movementRepo *repositories.MovementRepository
	auditRepo    *repositories.AuditRepository
	log          zerolog.Logger
}

// NewMovementService creates a new movement service and registers its
// transition hooks on the engine
func NewMovementService(
	db *gorm.DB,
	engine *ApprovalEngine,
	workflowRepo *repositories.WorkflowRepository,
	propertyRepo *repositories.PropertyRepository,
	movementRepo *repositories.MovementRepository,
	auditRepo *repositories.AuditRepository,
) *MovementService {
	s := &MovementService{
		db:           db,
		engine:       engine,
		workflowRepo: workflowRepo,
		propertyRepo: propertyRepo,
		movementRepo: movementRepo,
		auditRepo:    auditRepo,
		log:          logger.New("movement"),
	}
	for _, k := range movementKinds {
		engine.RegisterHook(k.entityType, s.syncHook(k))
	}
	return s
}

// Create opens a movement of the given kind and its approval request
func (s *MovementService) Create(ctx context.Context, ac *domain.AccessContext, kind domain.MovementKind, input *CreateMovementInput) (*MovementResult, error) {
	k, err := lookupKind(kind)
	if err != nil {
		return nil, err
	}

	property, err := s.propertyRepo.GetByID(ctx, input.PropertyID)
	if err != nil {
		return nil, internalError(s.log, "load property", notFoundOr(err, domain.ErrPropertyNotFound))
	}
	if err := ac.Authorize(property.BusinessUnitID, domain.ModuleProperty, domain.ActionUpdate); err != nil {
		return nil, err
	}
	if !k.isEligible(property.Status) {
		return nil, domain.ErrPropertyNotEligible
	}

	exists, err := s.movementRepo.ExistsActive(ctx, k.newModel(), property.ID, activeMovementStatuses())
	if err != nil {
		return nil, internalError(s.log, "check active movement", err)
	}
	if exists {
		return nil, domain.ErrMovementExists
	}

	workflow, err := s.workflowRepo.FindActiveByEntityType(ctx, property.BusinessUnitID, string(k.entityType))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrWorkflowNotConfigured
		}
		return nil, internalError(s.log, "resolve workflow", err)
	}
	if len(workflow.Steps) == 0 {
		return nil, domain.ErrWorkflowNotConfigured
	}

	movement := k.newModel()
	var req *models.ApprovalRequest

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		propertyRepo := s.propertyRepo.WithTx(tx)

		locked, err := propertyRepo.GetForUpdate(ctx, property.ID)
		if err != nil {
			return notFoundOr(err, domain.ErrPropertyNotFound)
		}
		if !k.isEligible(locked.Status) {
			return domain.ErrPropertyNotEligible
		}

		base := movement.Base()
		base.ReferenceNo = fmt.Sprintf("%s-%s", k.kind, strings.ToUpper(uuid.NewString()[:8]))
		base.PropertyID = locked.ID
		base.BusinessUnitID = locked.BusinessUnitID
		base.RequestedByID = ac.UserID
		base.Status = string(domain.MovementPending)
		base.PreviousStatus = locked.Status
		base.PreviousLocation = locked.CurrentLocation
		base.TargetLocation = input.TargetLocation
		base.Remarks = input.Remarks
		base.ActiveKey = movementActiveKey(k.kind, locked.ID)
		k.fill(movement, input)

		movementRepo := s.movementRepo.WithTx(tx)
		if err := movementRepo.Create(ctx, movement); err != nil {
			if isDuplicate(err) {
				return domain.ErrMovementExists
			}
			return err
		}

		req, err = s.engine.CreateInTx(ctx, tx, ac, &CreateRequestInput{
			WorkflowID: workflow.ID,
			EntityType: string(k.entityType),
			EntityID:   idString(base.ID),
			PropertyID: uintPtr(locked.ID),
			Remarks:    input.Remarks,
		})
		if err != nil {
			return err
		}

		base.ApprovalRequestID = uintPtr(req.ID)
		if err := movementRepo.Save(ctx, movement); err != nil {
			return err
		}

		if err := propertyRepo.UpdateState(ctx, locked.ID, string(domain.PropertyUnderReview), locked.CurrentLocation); err != nil {
			return err
		}

		if err := propertyRepo.CreateHistory(ctx, &models.PropertyMovementHistory{
			PropertyID:    locked.ID,
			MovementKind:  string(k.kind),
			MovementID:    base.ID,
			Action:        HistoryRequest,
			FromStatus:    locked.Status,
			ToStatus:      string(domain.PropertyUnderReview),
			FromLocation:  locked.CurrentLocation,
			ToLocation:    locked.CurrentLocation,
			PerformedByID: ac.UserID,
			Note:          input.Remarks,
		}); err != nil {
			return err
		}

		return audit(ctx, s.auditRepo.WithTx(tx), ac, &locked.BusinessUnitID,
			domain.AuditCreate, domain.AuditEntityMovement, base.ReferenceNo, nil,
			movementSnapshot{
				Kind:           string(k.kind),
				Status:         base.Status,
				PropertyID:     locked.ID,
				PropertyStatus: string(domain.PropertyUnderReview),
				Location:       locked.CurrentLocation,
			})
	})
	if err != nil {
		return nil, internalError(s.log, "create movement", err)
	}

	s.log.Info().
		Str("kind", string(k.kind)).
		Str("reference_no", movement.Base().ReferenceNo).
		Uint("property_id", property.ID).
		Uint("request_id", req.ID).
		Msg("movement requested")

	s.engine.Notify(eventFor(domain.AuditCreate, req, "", ac.UserID))
	return &MovementResult{Kind: k.kind, Movement: movement, Request: req}, nil
}

// syncHook keeps a movement and its property in step with the approval request
func (s *MovementService) syncHook(k *movementKind) TransitionHook {
	return func(ctx context.Context, tx *gorm.DB, ac *domain.AccessContext, req *models.ApprovalRequest) error {
		movement := k.newModel()
		if err := s.movementRepo.WithTx(tx).GetByApprovalRequest(ctx, movement, req.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.log.Warn().Uint("request_id", req.ID).Str("kind", string(k.kind)).Msg("no movement bound to approval request")
				return nil
			}
			return err
		}
		base := movement.Base()

		switch domain.RequestStatus(req.Status) {
		case domain.RequestInProgress:
			base.Status = string(domain.MovementInProgress)
		case domain.RequestApproved, domain.RequestOverridden:
			base.Status = string(domain.MovementApproved)
		case domain.RequestRejected, domain.RequestCancelled:
			return s.revert(ctx, tx, ac, k, movement, req)
		default:
			return nil
		}

		return s.movementRepo.WithTx(tx).Save(ctx, movement)
	}
}

// revert cancels a movement and restores its property to the state it had before the request
func (s *MovementService) revert(ctx context.Context, tx *gorm.DB, ac *domain.AccessContext, k *movementKind, movement models.Movement, req *models.ApprovalRequest) error {
	base := movement.Base()
	propertyRepo := s.propertyRepo.WithTx(tx)

	property, err := propertyRepo.GetForUpdate(ctx, base.PropertyID)
	if err != nil {
		return notFoundOr(err, domain.ErrPropertyNotFound)
	}

	base.Status = string(domain.MovementCancelled)
	base.ActiveKey = nil
	if err := s.movementRepo.WithTx(tx).Save(ctx, movement); err != nil {
		return err
	}

	if err := propertyRepo.UpdateState(ctx, property.ID, base.PreviousStatus, base.PreviousLocation); err != nil {
		return err
	}

	s.log.Info().
		Str("kind", string(k.kind)).
		Str("reference_no", base.ReferenceNo).
		Str("request_status", req.Status).
		Str("restored_status", base.PreviousStatus).
		Msg("movement reverted")

	return propertyRepo.CreateHistory(ctx, &models.PropertyMovementHistory{
		PropertyID:    property.ID,
		MovementKind:  string(k.kind),
		MovementID:    base.ID,
		Action:        HistoryRevert,
		FromStatus:    property.Status,
		ToStatus:      base.PreviousStatus,
		FromLocation:  property.CurrentLocation,
		ToLocation:    base.PreviousLocation,
		PerformedByID: ac.UserID,
		Note:          "approval " + strings.ToLower(req.Status),
	})
}

// Complete applies an approved movement to its property
func (s *MovementService) Complete(ctx context.Context, ac *domain.AccessContext, kind domain.MovementKind, id uint) (*MovementResult, error) {
	k, err := lookupKind(kind)
	if err != nil {
		return nil, err
	}

	movement := k.newModel()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		movementRepo := s.movementRepo.WithTx(tx)
		if err := movementRepo.GetForUpdate(ctx, movement, id); err != nil {
			return notFoundOr(err, domain.ErrMovementNotFound)
		}
		base := movement.Base()

		if err := ac.Authorize(base.BusinessUnitID, domain.ModuleProperty, domain.ActionUpdate); err != nil {
			return err
		}
		if base.Status != string(domain.MovementApproved) {
			return domain.ErrMovementNotApproved
		}

		propertyRepo := s.propertyRepo.WithTx(tx)
		property, err := propertyRepo.GetForUpdate(ctx, base.PropertyID)
		if err != nil {
			return notFoundOr(err, domain.ErrPropertyNotFound)
		}

		location := base.TargetLocation
		if location == "" {
			location = base.PreviousLocation
		}
		if err := propertyRepo.UpdateState(ctx, property.ID, string(k.final), location); err != nil {
			return err
		}

		now := time.Now()
		base.Status = string(domain.MovementCompleted)
		base.CompletedAt = &now
		base.CompletedByID = uintPtr(ac.UserID)
		base.ActiveKey = nil
		if err := movementRepo.Save(ctx, movement); err != nil {
			return err
		}

		if err := propertyRepo.CreateHistory(ctx, &models.PropertyMovementHistory{
			PropertyID:    property.ID,
			MovementKind:  string(k.kind),
			MovementID:    base.ID,
			Action:        HistoryComplete,
			FromStatus:    property.Status,
			ToStatus:      string(k.final),
			FromLocation:  property.CurrentLocation,
			ToLocation:    location,
			PerformedByID: ac.UserID,
		}); err != nil {
			return err
		}

		return audit(ctx, s.auditRepo.WithTx(tx), ac, &base.BusinessUnitID,
			domain.AuditComplete, domain.AuditEntityMovement, base.ReferenceNo,
			movementSnapshot{Kind: string(k.kind), Status: string(domain.MovementApproved), PropertyID: property.ID,
				PropertyStatus: property.Status, Location: property.CurrentLocation},
			movementSnapshot{Kind: string(k.kind), Status: base.Status, PropertyID: property.ID,
				PropertyStatus: string(k.final), Location: location})
	})
	if err != nil {
		return nil, internalError(s.log, "complete movement", err)
	}

	s.log.Info().
		Str("kind", string(k.kind)).
		Str("reference_no", movement.Base().ReferenceNo).
		Uint("actor_id", ac.UserID).
		Msg("movement completed")

	return &MovementResult{Kind: k.kind, Movement: movement}, nil
}

// Cancel withdraws a movement through its approval request
func (s *MovementService) Cancel(ctx context.Context, ac *domain.AccessContext, kind domain.MovementKind, id uint, reason string) (*MovementResult, error) {
	result, err := s.Get(ctx, ac, kind, id)
	if err != nil {
		return nil, err
	}
	base := result.Movement.Base()
	if base.ApprovalRequestID == nil {
		return nil, domain.ErrRequestNotFound
	}
	if domain.MovementStatus(base.Status) == domain.MovementApproved || domain.MovementStatus(base.Status).IsTerminal() {
		return nil, domain.ErrRequestNotPending
	}

	if _, err := s.engine.Cancel(ctx, ac, *base.ApprovalRequestID, reason); err != nil {
		return nil, err
	}
	return s.Get(ctx, ac, kind, id)
}

// Get returns a movement with its approval request
func (s *MovementService) Get(ctx context.Context, ac *domain.AccessContext, kind domain.MovementKind, id uint) (*MovementResult, error) {
	k, err := lookupKind(kind)
	if err != nil {
		return nil, err
	}

	movement := k.newModel()
	if err := s.movementRepo.GetByID(ctx, movement, id); err != nil {
		return nil, internalError(s.log, "load movement", notFoundOr(err, domain.ErrMovementNotFound))
	}
	base := movement.Base()
	if err := ac.Authorize(base.BusinessUnitID, domain.ModuleProperty, domain.ActionRead); err != nil {
		return nil, err
	}

	result := &MovementResult{Kind: k.kind, Movement: movement}
	if base.ApprovalRequestID != nil {
		req, err := s.engine.GetByID(ctx, ac, *base.ApprovalRequestID)
		if err != nil {
			return nil, err
		}
		result.Request = req
	}
	return result, nil
}

// ListMovementsInput represents list movements input
type ListMovementsInput struct {
	BusinessUnitID uint
	Status         string
	Page           int
	Limit          int
}

// List lists movements of one kind in a business unit. The returned value is
// a pointer to a slice of the kind's model.
func (s *MovementService) List(ctx context.Context, ac *domain.AccessContext, kind domain.MovementKind, input *ListMovementsInput) (interface{}, int64, *pagination.Params, error) {
	params := pagination.New(input.Page, input.Limit)

	k, err := lookupKind(kind)
	if err != nil {
		return nil, 0, params, err
	}
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleProperty, domain.ActionRead); err != nil {
		return nil, 0, params, err
	}

	dest := k.newSlice()
	total, err := s.movementRepo.List(ctx, k.newModel(), dest, input.BusinessUnitID, input.Status, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, params, internalError(s.log, "list movements", err)
	}
	return dest, total, params, nil
}
