package handlers

import (
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	dashboardService *services.DashboardService
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
	}
}

// Get returns the back-office overview of a business unit
// @Summary Dashboard
// @Description Property counts, open movements and approval statistics (REPORTS read permission)
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param business_unit_id query int false "Business unit ID"
// @Success 200 {object} response.Response{data=services.DashboardData}
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /dashboard [get]
func (h *DashboardHandler) Get(c *fiber.Ctx) error {
	ac := access(c)
	data, err := h.dashboardService.Get(c.Context(), ac, businessUnit(c, ac))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "Dashboard retrieved successfully", data)
}
