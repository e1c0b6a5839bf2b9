package handlers

import (
	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/pagination"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ApprovalHandler handles approval requests
type ApprovalHandler struct {
	engine *services.ApprovalEngine
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(engine *services.ApprovalEngine) *ApprovalHandler {
	return &ApprovalHandler{engine: engine}
}

// CancelRequest represents cancel request body
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RespondResponse is returned after a step response. NextRoleID names the role
// awaited next and is omitted once the request is terminal.
type RespondResponse struct {
	Status     string                  `json:"status"`
	NextRoleID *uint                   `json:"next_role_id,omitempty"`
	Request    *models.RequestResponse `json:"request"`
}

func toRespondResponse(result *services.RespondResult) RespondResponse {
	return RespondResponse{
		Status:     string(result.Status),
		NextRoleID: result.NextRoleID(),
		Request:    result.Request.ToResponse(),
	}
}

func requestList(list []*models.ApprovalRequest) []*models.RequestResponse {
	out := make([]*models.RequestResponse, 0, len(list))
	for _, r := range list {
		out = append(out, r.ToResponse())
	}
	return out
}

// Create opens an approval request for an entity
// @Summary Create approval request
// @Description The request starts PENDING at step 1. An entity may have only one open request.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreateRequestInput true "Request"
// @Success 201 {object} response.Response{data=models.RequestResponse}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /approvals [post]
func (h *ApprovalHandler) Create(c *fiber.Ctx) error {
	var input services.CreateRequestInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	req, err := h.engine.Create(c.Context(), access(c), &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Approval request created successfully", req.ToResponse())
}

// List lists approval requests visible to the caller
// @Summary List approval requests
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param business_unit_id query int false "Business unit ID, all of the caller's units when omitted"
// @Param status query string false "Status"
// @Param entity_type query string false "Entity type"
// @Param entity_id query string false "Entity ID"
// @Param workflow_id query int false "Workflow ID"
// @Param requested_by query int false "Requester user ID"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} response.Response{data=pagination.Response}
// @Failure 403 {object} response.Response
// @Router /approvals [get]
func (h *ApprovalHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)

	list, total, params, err := h.engine.List(c.Context(), access(c), &services.ListRequestsInput{
		BusinessUnitID: queryUint(c, "business_unit_id"),
		Status:         c.Query("status"),
		EntityType:     c.Query("entity_type"),
		EntityID:       c.Query("entity_id"),
		WorkflowID:     queryUint(c, "workflow_id"),
		RequestedByID:  queryUint(c, "requested_by"),
		Page:           params.Page,
		Limit:          params.Limit,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Approval requests retrieved successfully", pagination.NewResponse(requestList(list), params, total))
}

// Pending lists open requests awaiting one of the caller's roles
// @Summary Requests awaiting me
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param business_unit_id query int false "Business unit ID"
// @Success 200 {object} response.Response{data=[]models.RequestResponse}
// @Failure 403 {object} response.Response
// @Router /approvals/pending [get]
func (h *ApprovalHandler) Pending(c *fiber.Ctx) error {
	ac := access(c)
	list, err := h.engine.PendingForMe(c.Context(), ac, businessUnit(c, ac))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Pending approvals retrieved successfully", requestList(list))
}

// Stats counts requests per status
// @Summary Approval statistics
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param business_unit_id query int false "Business unit ID"
// @Success 200 {object} response.Response{data=services.RequestStats}
// @Failure 403 {object} response.Response
// @Router /approvals/stats [get]
func (h *ApprovalHandler) Stats(c *fiber.Ctx) error {
	ac := access(c)
	stats, err := h.engine.Stats(c.Context(), ac, businessUnit(c, ac))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Approval stats retrieved successfully", stats)
}

// Get gets a request with its workflow steps and responses
// @Summary Get approval request
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} response.Response{data=models.RequestResponse}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /approvals/{id} [get]
func (h *ApprovalHandler) Get(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request ID")
	}

	req, err := h.engine.GetByID(c.Context(), access(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Approval request retrieved successfully", req.ToResponse())
}

// History lists the responses recorded on a request, oldest first
// @Summary Approval request history
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} response.Response{data=[]models.ResponseEntryResponse}
// @Failure 404 {object} response.Response
// @Router /approvals/{id}/history [get]
func (h *ApprovalHandler) History(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request ID")
	}

	list, err := h.engine.History(c.Context(), access(c), id)
	if err != nil {
		return response.FromError(c, err)
	}

	out := make([]*models.ResponseEntryResponse, 0, len(list))
	for _, r := range list {
		out = append(out, r.ToResponse())
	}
	return response.Success(c, "Approval history retrieved successfully", out)
}

// Respond records an approve, reject or override decision on the current step
// @Summary Respond to approval request
// @Description Re-fetch the request first: responses to a step that is no longer current are rejected.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param body body services.RespondInput true "Decision"
// @Success 200 {object} response.Response{data=RespondResponse}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /approvals/{id}/respond [post]
func (h *ApprovalHandler) Respond(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request ID")
	}

	var input services.RespondInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	result, err := h.engine.Respond(c.Context(), access(c), id, &input)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Response recorded successfully", toRespondResponse(result))
}

// Cancel withdraws an open request. Only the requester may cancel.
// @Summary Cancel approval request
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param body body CancelRequest false "Reason"
// @Success 200 {object} response.Response{data=models.RequestResponse}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /approvals/{id}/cancel [post]
func (h *ApprovalHandler) Cancel(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid request ID")
	}

	var input CancelRequest
	if len(c.Body()) > 0 {
		if ok, err := bind(c, &input); !ok {
			return err
		}
	}

	req, err := h.engine.Cancel(c.Context(), access(c), id, input.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Approval request cancelled successfully", req.ToResponse())
}
