package handlers

import (
	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/pagination"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// UserHandler handles user management endpoints
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// ListUsers lists the users assigned to a business unit
// @Summary List users
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param business_unit_id query int false "Business unit ID"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} response.Response{data=pagination.Response}
// @Failure 403 {object} response.Response
// @Router /users [get]
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	ac := access(c)
	params := pagination.GetParams(c)

	users, total, params, err := h.userService.List(c.Context(), ac, &services.ListUsersInput{
		BusinessUnitID: businessUnit(c, ac),
		Page:           params.Page,
		Limit:          params.Limit,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	list := make([]*models.UserResponse, 0, len(users))
	for _, u := range users {
		list = append(list, u.ToResponse())
	}

	return response.Success(c, "Users retrieved successfully", pagination.NewResponse(list, params, total))
}

// GetUser gets a user by ID
// @Summary Get user by ID
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param business_unit_id query int false "Business unit ID"
// @Success 200 {object} response.Response{data=models.UserResponse}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}

	ac := access(c)
	user, err := h.userService.Get(c.Context(), ac, businessUnit(c, ac), id)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "User retrieved successfully", user.ToResponse())
}

// CreateUser creates a user and assigns its first role
// @Summary Create user
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreateUserInput true "User data"
// @Success 201 {object} response.Response{data=models.UserResponse}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /users [post]
func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var input services.CreateUserInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	user, err := h.userService.Create(c.Context(), access(c), &input)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "User created successfully", user.ToResponse())
}

// UpdateUser updates a user's profile or active flag
// @Summary Update user
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param body body services.UpdateUserInput true "Update data"
// @Success 200 {object} response.Response{data=models.UserResponse}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /users/{id} [put]
func (h *UserHandler) UpdateUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}

	var input services.UpdateUserInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	user, err := h.userService.Update(c.Context(), access(c), id, &input)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "User updated successfully", user.ToResponse())
}

// DeleteUser deletes a user
// @Summary Delete user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param business_unit_id query int false "Business unit ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}

	ac := access(c)
	if err := h.userService.Delete(c.Context(), ac, businessUnit(c, ac), id); err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "User deleted successfully", nil)
}
