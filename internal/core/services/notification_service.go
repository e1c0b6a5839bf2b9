package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/logger"

	"github.com/rs/zerolog"
)

// Notification kinds
const (
	NotifyAwaiting = "AWAITING_APPROVAL"
	NotifyDecided  = "REQUEST_DECIDED"
	NotifyReminder = "APPROVAL_REMINDER"
)

// Notification is what approvers and requesters are told about a request
type Notification struct {
	Kind           string               `json:"kind"`
	RequestID      uint                 `json:"request_id"`
	BusinessUnitID uint                 `json:"business_unit_id"`
	EntityType     domain.EntityType    `json:"entity_type"`
	EntityID       string               `json:"entity_id"`
	Status         domain.RequestStatus `json:"status"`
	StepOrder      int                  `json:"step_order"`
	RoleID         *uint                `json:"role_id,omitempty"`
	Recipients     []uint               `json:"recipients"`
	Message        string               `json:"message"`
}

// NotificationService routes request events to the users who must act on
// them. Delivery goes to an optional webhook; without one it only logs.
type NotificationService struct {
	assignmentRepo *repositories.AssignmentRepository
	webhookURL     string
	client         *http.Client
	log            zerolog.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(assignmentRepo *repositories.AssignmentRepository, webhookURL string) *NotificationService {
	return &NotificationService{
		assignmentRepo: assignmentRepo,
		webhookURL:     webhookURL,
		client:         &http.Client{Timeout: 10 * time.Second},
		log:            logger.New("notify"),
	}
}

// IsEnabled checks if webhook delivery is enabled
func (s *NotificationService) IsEnabled() bool {
	return s.webhookURL != ""
}

// OnRequestEvent notifies the next approvers of an open request, or the
// requester-facing channel once a request is decided
func (s *NotificationService) OnRequestEvent(ev domain.RequestEvent) {
	n := Notification{
		RequestID:      ev.RequestID,
		BusinessUnitID: ev.BusinessUnitID,
		EntityType:     ev.EntityType,
		EntityID:       ev.EntityID,
		Status:         ev.Status,
		StepOrder:      ev.CurrentStepOrder,
		RoleID:         ev.NextRoleID,
	}

	if ev.Status.IsTerminal() {
		n.Kind = NotifyDecided
		n.Message = fmt.Sprintf("Approval request #%d for %s %s is %s", ev.RequestID, ev.EntityType, ev.EntityID, ev.Status)
	} else {
		if ev.NextRoleID == nil {
			return
		}
		n.Kind = NotifyAwaiting
		n.Message = fmt.Sprintf("Approval request #%d for %s %s awaits your decision at step %d",
			ev.RequestID, ev.EntityType, ev.EntityID, ev.CurrentStepOrder)
	}

	s.route(context.Background(), &n)
}

// Remind notifies the current approvers of a stale request
func (s *NotificationService) Remind(ctx context.Context, req *models.ApprovalRequest) {
	if req.Workflow == nil {
		return
	}
	step := req.Workflow.StepAt(req.CurrentStepOrder)
	if step == nil {
		return
	}

	n := Notification{
		Kind:           NotifyReminder,
		RequestID:      req.ID,
		BusinessUnitID: req.BusinessUnitID,
		EntityType:     domain.EntityType(req.EntityType),
		EntityID:       req.EntityID,
		Status:         domain.RequestStatus(req.Status),
		StepOrder:      req.CurrentStepOrder,
		RoleID:         uintPtr(step.RoleID),
		Message: fmt.Sprintf("Reminder: approval request #%d (%s) has waited at step %q since %s",
			req.ID, req.EntityType, step.StepName, req.UpdatedAt.Format(time.RFC3339)),
	}
	s.route(ctx, &n)
}

// route resolves recipients for the notification's role and delivers it
func (s *NotificationService) route(ctx context.Context, n *Notification) {
	if n.RoleID != nil {
		ids, err := s.assignmentRepo.ListUserIDsByRole(ctx, n.BusinessUnitID, *n.RoleID)
		if err != nil {
			s.log.Error().Err(err).Uint("request_id", n.RequestID).Msg("resolve approvers failed")
			return
		}
		n.Recipients = ids
	}

	s.log.Info().
		Str("kind", n.Kind).
		Uint("request_id", n.RequestID).
		Str("status", string(n.Status)).
		Interface("recipients", n.Recipients).
		Msg(n.Message)

	if !s.IsEnabled() {
		return
	}
	go func(n Notification) {
		if err := s.send(n); err != nil {
			s.log.Warn().Err(err).Uint("request_id", n.RequestID).Msg("webhook delivery failed")
		}
	}(*n)
}

// send posts a notification to the webhook
func (s *NotificationService) send(n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
