package handlers

import (
	"encoding/json"
	"testing"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRespondResponse(t *testing.T) {
	workflow := &models.ApprovalWorkflow{Steps: []models.ApprovalStep{
		{ID: 1, StepOrder: 1, RoleID: 3},
		{ID: 2, StepOrder: 2, RoleID: 4},
	}}

	t.Run("advanced", func(t *testing.T) {
		result := &services.RespondResult{
			Status:   domain.RequestInProgress,
			NextStep: &workflow.Steps[1],
			Request:  &models.ApprovalRequest{ID: 9, Status: "IN_PROGRESS", CurrentStepOrder: 2, Workflow: workflow},
		}

		resp := toRespondResponse(result)
		assert.Equal(t, "IN_PROGRESS", resp.Status)
		require.NotNil(t, resp.NextRoleID)
		assert.Equal(t, uint(4), *resp.NextRoleID)
		assert.Equal(t, uint(9), resp.Request.ID)

		raw, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"next_role_id":4`)
	})

	t.Run("terminal", func(t *testing.T) {
		result := &services.RespondResult{
			Status:  domain.RequestApproved,
			Request: &models.ApprovalRequest{ID: 9, Status: "APPROVED", CurrentStepOrder: 2, Workflow: workflow},
		}

		resp := toRespondResponse(result)
		assert.Nil(t, resp.NextRoleID)
		assert.Nil(t, resp.Request.CurrentStep)

		raw, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "next_role_id")
	})
}
