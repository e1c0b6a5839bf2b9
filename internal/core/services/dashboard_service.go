package services

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/logger"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DashboardService aggregates the back-office overview of a business unit
type DashboardService struct {
	db     *gorm.DB
	engine *ApprovalEngine
	log    zerolog.Logger
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(db *gorm.DB, engine *ApprovalEngine) *DashboardService {
	return &DashboardService{db: db, engine: engine, log: logger.New("dashboard")}
}

// DashboardData represents the dashboard of one business unit
type DashboardData struct {
	BusinessUnitID uint `json:"business_unit_id"`

	// Property Statistics
	TotalProperties    int64            `json:"total_properties"`
	PropertiesByStatus map[string]int64 `json:"properties_by_status"`

	// Movement Statistics
	OpenMovements map[string]int64 `json:"open_movements"`

	// Approval Statistics
	Requests          *RequestStats `json:"requests"`
	RequestsThisMonth int64         `json:"requests_this_month"`

	// Recent Activity
	RecentRequests []RequestSummary `json:"recent_requests"`
}

// RequestSummary represents a recent approval request
type RequestSummary struct {
	ID               uint      `json:"id"`
	EntityType       string    `json:"entity_type"`
	EntityID         string    `json:"entity_id"`
	Status           string    `json:"status"`
	CurrentStepOrder int       `json:"current_step_order"`
	CreatedAt        time.Time `json:"created_at"`
}

// Get returns the dashboard of a business unit
func (s *DashboardService) Get(ctx context.Context, ac *domain.AccessContext, businessUnitID uint) (*DashboardData, error) {
	if err := ac.Authorize(businessUnitID, domain.ModuleReports, domain.ActionRead); err != nil {
		return nil, err
	}

	data := &DashboardData{
		BusinessUnitID:     businessUnitID,
		PropertiesByStatus: make(map[string]int64),
		OpenMovements:      make(map[string]int64),
	}
	db := s.db.WithContext(ctx)

	// Property counts by status
	var byStatus []repositories.StatusCount
	err := db.Model(&models.Property{}).
		Select("status, COUNT(*) AS count").
		Where("business_unit_id = ?", businessUnitID).
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, internalError(s.log, "dashboard properties", err)
	}
	for _, row := range byStatus {
		data.PropertiesByStatus[row.Status] = row.Count
		data.TotalProperties += row.Count
	}

	// Open movements per kind
	for kind, k := range movementKinds {
		var count int64
		err := db.Model(k.newModel()).
			Where("business_unit_id = ? AND status IN ?", businessUnitID, activeMovementStatuses()).
			Count(&count).Error
		if err != nil {
			return nil, internalError(s.log, "dashboard movements", err)
		}
		data.OpenMovements[string(kind)] = count
	}

	// Approval counts
	data.Requests, err = s.engine.Stats(ctx, ac, businessUnitID)
	if err != nil {
		return nil, err
	}

	// This month
	now := time.Now()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	err = db.Model(&models.ApprovalRequest{}).
		Where("business_unit_id = ? AND created_at >= ?", businessUnitID, startOfMonth).
		Count(&data.RequestsThisMonth).Error
	if err != nil {
		return nil, internalError(s.log, "dashboard month", err)
	}

	// Recent requests
	data.RecentRequests = make([]RequestSummary, 0, 10)
	err = db.Model(&models.ApprovalRequest{}).
		Select("id, entity_type, entity_id, status, current_step_order, created_at").
		Where("business_unit_id = ?", businessUnitID).
		Order("created_at DESC, id DESC").
		Limit(10).
		Scan(&data.RecentRequests).Error
	if err != nil {
		return nil, internalError(s.log, "dashboard recent", err)
	}

	return data, nil
}
