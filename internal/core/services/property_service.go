package services

import (
	"context"
	"strings"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/logger"
	"propdesk/internal/pkg/pagination"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PropertyService is the property registry used by the movement coordinators
type PropertyService struct {
	db           *gorm.DB
	propertyRepo *repositories.PropertyRepository
	auditRepo    *repositories.AuditRepository
	log          zerolog.Logger
}

// NewPropertyService creates a new property service
func NewPropertyService(db *gorm.DB, propertyRepo *repositories.PropertyRepository, auditRepo *repositories.AuditRepository) *PropertyService {
	return &PropertyService{
		db:           db,
		propertyRepo: propertyRepo,
		auditRepo:    auditRepo,
		log:          logger.New("property"),
	}
}

// CreatePropertyInput represents create property input
type CreatePropertyInput struct {
	BusinessUnitID  uint   `json:"business_unit_id" validate:"required"`
	Code            string `json:"code" validate:"required,max=50"`
	Name            string `json:"name" validate:"required,max=200"`
	Description     string `json:"description"`
	Status          string `json:"status" validate:"omitempty,oneof=AVAILABLE RELEASED BANK_CUSTODY"`
	CurrentLocation string `json:"current_location" validate:"max=200"`
}

// ListPropertiesInput represents list properties input
type ListPropertiesInput struct {
	BusinessUnitID uint
	Status         string
	Page           int
	Limit          int
}

// Create registers a property. New properties start AVAILABLE unless the
// input names another starting status.
func (s *PropertyService) Create(ctx context.Context, ac *domain.AccessContext, input *CreatePropertyInput) (*models.Property, error) {
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleProperty, domain.ActionCreate); err != nil {
		return nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(input.Code))
	taken, err := s.propertyRepo.ExistsByCode(ctx, code)
	if err != nil {
		return nil, internalError(s.log, "check property code", err)
	}
	if taken {
		return nil, domain.ErrPropertyCodeTaken
	}

	status := input.Status
	if status == "" {
		status = string(domain.PropertyAvailable)
	}

	property := &models.Property{
		Code:            code,
		Name:            input.Name,
		Description:     input.Description,
		BusinessUnitID:  input.BusinessUnitID,
		Status:          status,
		CurrentLocation: input.CurrentLocation,
		CreatedByID:     ac.UserID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.propertyRepo.WithTx(tx).Create(ctx, property); err != nil {
			if isDuplicate(err) {
				return domain.ErrPropertyCodeTaken
			}
			return err
		}
		return audit(ctx, s.auditRepo.WithTx(tx), ac, uintPtr(property.BusinessUnitID),
			domain.AuditCreate, domain.AuditEntityProperty, idString(property.ID), nil, property)
	})
	if err != nil {
		return nil, internalError(s.log, "create property", err)
	}

	s.log.Info().Uint("property_id", property.ID).Str("code", property.Code).Msg("property registered")
	return property, nil
}

// Get returns a property
func (s *PropertyService) Get(ctx context.Context, ac *domain.AccessContext, id uint) (*models.Property, error) {
	property, err := s.propertyRepo.GetByID(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "get property", notFoundOr(err, domain.ErrPropertyNotFound))
	}
	if err := ac.Authorize(property.BusinessUnitID, domain.ModuleProperty, domain.ActionRead); err != nil {
		return nil, err
	}
	return property, nil
}

// List lists the properties of a business unit
func (s *PropertyService) List(ctx context.Context, ac *domain.AccessContext, input *ListPropertiesInput) ([]*models.Property, int64, *pagination.Params, error) {
	params := pagination.New(input.Page, input.Limit)
	if err := ac.Authorize(input.BusinessUnitID, domain.ModuleProperty, domain.ActionRead); err != nil {
		return nil, 0, params, err
	}

	list, total, err := s.propertyRepo.List(ctx, input.BusinessUnitID, input.Status, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, params, internalError(s.log, "list properties", err)
	}
	return list, total, params, nil
}

// History returns the movement history of a property, newest first
func (s *PropertyService) History(ctx context.Context, ac *domain.AccessContext, id uint) ([]*models.PropertyMovementHistory, error) {
	if _, err := s.Get(ctx, ac, id); err != nil {
		return nil, err
	}
	list, err := s.propertyRepo.ListHistory(ctx, id)
	if err != nil {
		return nil, internalError(s.log, "list property history", err)
	}
	return list, nil
}
