package handlers

import (
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/pagination"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// PropertyHandler handles the property registry
type PropertyHandler struct {
	propertyService *services.PropertyService
}

// NewPropertyHandler creates a new property handler
func NewPropertyHandler(propertyService *services.PropertyService) *PropertyHandler {
	return &PropertyHandler{propertyService: propertyService}
}

// Create registers a property
// @Summary Create property
// @Tags Properties
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreatePropertyInput true "Property"
// @Success 201 {object} response.Response{data=models.Property}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /properties [post]
func (h *PropertyHandler) Create(c *fiber.Ctx) error {
	var input services.CreatePropertyInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	property, err := h.propertyService.Create(c.Context(), access(c), &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Property created successfully", property)
}

// List lists the properties of a business unit
// @Summary List properties
// @Tags Properties
// @Produce json
// @Security BearerAuth
// @Param business_unit_id query int false "Business unit ID"
// @Param status query string false "Property status"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} response.Response{data=pagination.Response}
// @Failure 403 {object} response.Response
// @Router /properties [get]
func (h *PropertyHandler) List(c *fiber.Ctx) error {
	ac := access(c)
	params := pagination.GetParams(c)

	list, total, params, err := h.propertyService.List(c.Context(), ac, &services.ListPropertiesInput{
		BusinessUnitID: businessUnit(c, ac),
		Status:         c.Query("status"),
		Page:           params.Page,
		Limit:          params.Limit,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Properties retrieved successfully", pagination.NewResponse(list, params, total))
}

// Get gets a property
// @Summary Get property
// @Tags Properties
// @Produce json
// @Security BearerAuth
// @Param id path int true "Property ID"
// @Success 200 {object} response.Response{data=models.Property}
// @Failure 404 {object} response.Response
// @Router /properties/{id} [get]
func (h *PropertyHandler) Get(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid property ID")
	}

	property, err := h.propertyService.Get(c.Context(), access(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Property retrieved successfully", property)
}

// History lists the movement history of a property, newest first
// @Summary Property movement history
// @Tags Properties
// @Produce json
// @Security BearerAuth
// @Param id path int true "Property ID"
// @Success 200 {object} response.Response{data=[]models.PropertyMovementHistory}
// @Failure 404 {object} response.Response
// @Router /properties/{id}/history [get]
func (h *PropertyHandler) History(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid property ID")
	}

	list, err := h.propertyService.History(c.Context(), access(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Property history retrieved successfully", list)
}
