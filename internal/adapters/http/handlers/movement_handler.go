package handlers

import (
	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/pagination"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// MovementHandler handles property returns, releases and turnovers. The
// movement kind is taken from the route.
type MovementHandler struct {
	movementService *services.MovementService
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(movementService *services.MovementService) *MovementHandler {
	return &MovementHandler{movementService: movementService}
}

// MovementResponse pairs a movement with its approval request
type MovementResponse struct {
	Kind     domain.MovementKind     `json:"kind"`
	Movement models.Movement         `json:"movement"`
	Request  *models.RequestResponse `json:"approval_request,omitempty"`
}

func toMovementResponse(r *services.MovementResult) *MovementResponse {
	resp := &MovementResponse{Kind: r.Kind, Movement: r.Movement}
	if r.Request != nil {
		resp.Request = r.Request.ToResponse()
	}
	return resp
}

var movementPaths = map[string]domain.MovementKind{
	"returns":   domain.MovementReturn,
	"releases":  domain.MovementRelease,
	"turnovers": domain.MovementTurnover,
}

// kind resolves the :kind route segment
func (h *MovementHandler) kind(c *fiber.Ctx) (domain.MovementKind, bool) {
	k, ok := movementPaths[c.Params("kind")]
	return k, ok
}

// Create opens a movement and its approval request
// @Summary Create movement
// @Description Puts the property UNDER_REVIEW until the approval request ends
// @Tags Movements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param kind path string true "returns, releases or turnovers"
// @Param body body services.CreateMovementInput true "Movement"
// @Success 201 {object} response.Response{data=MovementResponse}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /movements/{kind} [post]
func (h *MovementHandler) Create(c *fiber.Ctx) error {
	kind, ok := h.kind(c)
	if !ok {
		return response.NotFound(c, "Unknown movement kind")
	}

	var input services.CreateMovementInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	result, err := h.movementService.Create(c.Context(), access(c), kind, &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Movement created successfully", toMovementResponse(result))
}

// List lists movements of one kind
// @Summary List movements
// @Tags Movements
// @Produce json
// @Security BearerAuth
// @Param kind path string true "returns, releases or turnovers"
// @Param business_unit_id query int false "Business unit ID"
// @Param status query string false "Movement status"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} response.Response{data=pagination.Response}
// @Failure 403 {object} response.Response
// @Router /movements/{kind} [get]
func (h *MovementHandler) List(c *fiber.Ctx) error {
	kind, ok := h.kind(c)
	if !ok {
		return response.NotFound(c, "Unknown movement kind")
	}

	ac := access(c)
	params := pagination.GetParams(c)

	list, total, params, err := h.movementService.List(c.Context(), ac, kind, &services.ListMovementsInput{
		BusinessUnitID: businessUnit(c, ac),
		Status:         c.Query("status"),
		Page:           params.Page,
		Limit:          params.Limit,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Movements retrieved successfully", pagination.NewResponse(list, params, total))
}

// Get gets a movement with its approval request
// @Summary Get movement
// @Tags Movements
// @Produce json
// @Security BearerAuth
// @Param kind path string true "returns, releases or turnovers"
// @Param id path int true "Movement ID"
// @Success 200 {object} response.Response{data=MovementResponse}
// @Failure 404 {object} response.Response
// @Router /movements/{kind}/{id} [get]
func (h *MovementHandler) Get(c *fiber.Ctx) error {
	kind, ok := h.kind(c)
	if !ok {
		return response.NotFound(c, "Unknown movement kind")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid movement ID")
	}

	result, err := h.movementService.Get(c.Context(), access(c), kind, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Movement retrieved successfully", toMovementResponse(result))
}

// Complete applies an approved movement to its property
// @Summary Complete movement
// @Tags Movements
// @Produce json
// @Security BearerAuth
// @Param kind path string true "returns, releases or turnovers"
// @Param id path int true "Movement ID"
// @Success 200 {object} response.Response{data=MovementResponse}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /movements/{kind}/{id}/complete [post]
func (h *MovementHandler) Complete(c *fiber.Ctx) error {
	kind, ok := h.kind(c)
	if !ok {
		return response.NotFound(c, "Unknown movement kind")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid movement ID")
	}

	result, err := h.movementService.Complete(c.Context(), access(c), kind, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Movement completed successfully", toMovementResponse(result))
}

// Cancel withdraws a movement that is still under review
// @Summary Cancel movement
// @Tags Movements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param kind path string true "returns, releases or turnovers"
// @Param id path int true "Movement ID"
// @Param body body CancelRequest false "Reason"
// @Success 200 {object} response.Response{data=MovementResponse}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /movements/{kind}/{id}/cancel [post]
func (h *MovementHandler) Cancel(c *fiber.Ctx) error {
	kind, ok := h.kind(c)
	if !ok {
		return response.NotFound(c, "Unknown movement kind")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid movement ID")
	}

	var input CancelRequest
	if len(c.Body()) > 0 {
		if ok, err := bind(c, &input); !ok {
			return err
		}
	}

	result, err := h.movementService.Cancel(c.Context(), access(c), kind, id, input.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Movement cancelled successfully", toMovementResponse(result))
}
