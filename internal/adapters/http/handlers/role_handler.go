package handlers

import (
	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// RoleHandler handles roles, permissions and assignments
type RoleHandler struct {
	roleService *services.RoleService
}

// NewRoleHandler creates a new role handler
func NewRoleHandler(roleService *services.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

// List lists every role with its permissions
// @Summary List roles
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param business_unit_id query int false "Business unit ID"
// @Success 200 {object} response.Response{data=[]models.Role}
// @Failure 403 {object} response.Response
// @Router /roles [get]
func (h *RoleHandler) List(c *fiber.Ctx) error {
	ac := access(c)
	roles, err := h.roleService.List(c.Context(), ac, businessUnit(c, ac))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Roles retrieved successfully", roles)
}

// Get gets a role by ID
// @Summary Get role
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param id path int true "Role ID"
// @Param business_unit_id query int false "Business unit ID"
// @Success 200 {object} response.Response{data=models.Role}
// @Failure 404 {object} response.Response
// @Router /roles/{id} [get]
func (h *RoleHandler) Get(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid role ID")
	}

	ac := access(c)
	role, err := h.roleService.Get(c.Context(), ac, businessUnit(c, ac), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Role retrieved successfully", role)
}

// Create creates a role with its permissions
// @Summary Create role
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreateRoleInput true "Role data"
// @Success 201 {object} response.Response{data=models.Role}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /roles [post]
func (h *RoleHandler) Create(c *fiber.Ctx) error {
	var input services.CreateRoleInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	role, err := h.roleService.Create(c.Context(), access(c), &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Role created successfully", role)
}

// Update updates a role's name, description or level
// @Summary Update role
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Role ID"
// @Param body body services.UpdateRoleInput true "Update data"
// @Success 200 {object} response.Response{data=models.Role}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /roles/{id} [put]
func (h *RoleHandler) Update(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid role ID")
	}

	var input services.UpdateRoleInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	role, err := h.roleService.Update(c.Context(), access(c), id, &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Role updated successfully", role)
}

// SetPermissions replaces every permission row of a role
// @Summary Replace role permissions
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Role ID"
// @Param body body services.SetPermissionsInput true "Permissions"
// @Success 200 {object} response.Response{data=models.Role}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /roles/{id}/permissions [put]
func (h *RoleHandler) SetPermissions(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid role ID")
	}

	var input services.SetPermissionsInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	role, err := h.roleService.SetPermissions(c.Context(), access(c), id, &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Permissions updated successfully", role)
}

// Delete deletes a role no user or workflow step references
// @Summary Delete role
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param id path int true "Role ID"
// @Param business_unit_id query int false "Business unit ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /roles/{id} [delete]
func (h *RoleHandler) Delete(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid role ID")
	}

	ac := access(c)
	if err := h.roleService.Delete(c.Context(), ac, businessUnit(c, ac), id); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Role deleted successfully", nil)
}

// ListAssignments lists a user's assignments
// @Summary List user assignments
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param business_unit_id query int false "Business unit ID"
// @Success 200 {object} response.Response{data=[]models.AssignmentResponse}
// @Failure 403 {object} response.Response
// @Router /users/{id}/assignments [get]
func (h *RoleHandler) ListAssignments(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}

	ac := access(c)
	list, err := h.roleService.ListAssignments(c.Context(), ac, businessUnit(c, ac), userID)
	if err != nil {
		return response.FromError(c, err)
	}

	out := make([]*models.AssignmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, a.ToResponse())
	}
	return response.Success(c, "Assignments retrieved successfully", out)
}

// Assign grants a role to a user inside a business unit
// @Summary Assign role
// @Tags Roles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.AssignRoleInput true "Assignment"
// @Success 201 {object} response.Response{data=models.AssignmentResponse}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /assignments [post]
func (h *RoleHandler) Assign(c *fiber.Ctx) error {
	var input services.AssignRoleInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	a, err := h.roleService.Assign(c.Context(), access(c), &input)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "Role assigned successfully", a.ToResponse())
}

// Unassign removes an assignment
// @Summary Remove assignment
// @Tags Roles
// @Produce json
// @Security BearerAuth
// @Param id path int true "Assignment ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /assignments/{id} [delete]
func (h *RoleHandler) Unassign(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid assignment ID")
	}

	if err := h.roleService.Unassign(c.Context(), access(c), id); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Assignment removed successfully", nil)
}
