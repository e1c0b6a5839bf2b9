package handlers

import (
	"strconv"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/pagination"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// WorkflowHandler handles approval workflow definitions
type WorkflowHandler struct {
	workflowService *services.WorkflowService
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflowService *services.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflowService: workflowService}
}

// List lists workflows of a business unit
// @Summary List workflows
// @Tags Workflows
// @Produce json
// @Security BearerAuth
// @Param business_unit_id query int false "Business unit ID"
// @Param entity_type query string false "Entity type"
// @Param is_active query bool false "Active flag"
// @Param search query string false "Name contains"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} response.Response{data=pagination.Response}
// @Failure 403 {object} response.Response
// @Router /workflows [get]
func (h *WorkflowHandler) List(c *fiber.Ctx) error {
	ac := access(c)
	params := pagination.GetParams(c)

	input := &services.ListWorkflowsInput{
		BusinessUnitID: businessUnit(c, ac),
		EntityType:     c.Query("entity_type"),
		Search:         c.Query("search"),
		Page:           params.Page,
		Limit:          params.Limit,
	}
	if v, err := strconv.ParseBool(c.Query("is_active")); err == nil {
		input.IsActive = &v
	}

	workflows, total, params, err := h.workflowService.List(c.Context(), ac, input)
	if err != nil {
		return response.FromError(c, err)
	}

	list := make([]*models.WorkflowResponse, 0, len(workflows))
	for _, w := range workflows {
		list = append(list, w.ToResponse())
	}

	return response.Success(c, "Workflows retrieved successfully", pagination.NewResponse(list, params, total))
}

// Get gets a workflow with its ordered steps
// @Summary Get workflow
// @Tags Workflows
// @Produce json
// @Security BearerAuth
// @Param id path int true "Workflow ID"
// @Success 200 {object} response.Response{data=models.WorkflowResponse}
// @Failure 404 {object} response.Response
// @Router /workflows/{id} [get]
func (h *WorkflowHandler) Get(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid workflow ID")
	}

	w, err := h.workflowService.GetByID(c.Context(), access(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Workflow retrieved successfully", w.ToResponse())
}

// Create creates a workflow and its steps
// @Summary Create workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreateWorkflowInput true "Workflow definition"
// @Success 201 {object} response.Response{data=models.WorkflowResponse}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /workflows [post]
func (h *WorkflowHandler) Create(c *fiber.Ctx) error {
	var input services.CreateWorkflowInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	w, err := h.workflowService.Create(c.Context(), access(c), &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Workflow created successfully", w.ToResponse())
}

// Update updates a workflow's name or description
// @Summary Update workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Workflow ID"
// @Param body body services.UpdateWorkflowInput true "Update data"
// @Success 200 {object} response.Response{data=models.WorkflowResponse}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /workflows/{id} [put]
func (h *WorkflowHandler) Update(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid workflow ID")
	}

	var input services.UpdateWorkflowInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	w, err := h.workflowService.Update(c.Context(), access(c), id, &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Workflow updated successfully", w.ToResponse())
}

// UpdateSteps replaces the steps of a workflow with no active requests
// @Summary Replace workflow steps
// @Tags Workflows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Workflow ID"
// @Param body body services.UpdateStepsInput true "Steps"
// @Success 200 {object} response.Response{data=models.WorkflowResponse}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /workflows/{id}/steps [put]
func (h *WorkflowHandler) UpdateSteps(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid workflow ID")
	}

	var input services.UpdateStepsInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	w, err := h.workflowService.UpdateSteps(c.Context(), access(c), id, &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Workflow steps updated successfully", w.ToResponse())
}

// Toggle flips the active flag of a workflow
// @Summary Toggle workflow
// @Tags Workflows
// @Produce json
// @Security BearerAuth
// @Param id path int true "Workflow ID"
// @Success 200 {object} response.Response{data=models.WorkflowResponse}
// @Failure 404 {object} response.Response
// @Router /workflows/{id}/toggle [patch]
func (h *WorkflowHandler) Toggle(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid workflow ID")
	}

	w, err := h.workflowService.ToggleActive(c.Context(), access(c), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Workflow updated successfully", w.ToResponse())
}

// Duplicate copies a workflow and its steps under a new name
// @Summary Duplicate workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Workflow ID"
// @Param body body services.DuplicateWorkflowInput true "New name"
// @Success 201 {object} response.Response{data=models.WorkflowResponse}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /workflows/{id}/duplicate [post]
func (h *WorkflowHandler) Duplicate(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid workflow ID")
	}

	var input services.DuplicateWorkflowInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	w, err := h.workflowService.Duplicate(c.Context(), access(c), id, &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Workflow duplicated successfully", w.ToResponse())
}

// Delete deletes a workflow no request has used
// @Summary Delete workflow
// @Tags Workflows
// @Produce json
// @Security BearerAuth
// @Param id path int true "Workflow ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /workflows/{id} [delete]
func (h *WorkflowHandler) Delete(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid workflow ID")
	}

	if err := h.workflowService.Delete(c.Context(), access(c), id); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Workflow deleted successfully", nil)
}
