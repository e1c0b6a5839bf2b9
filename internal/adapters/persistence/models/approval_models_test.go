package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestToResponse_CurrentStep(t *testing.T) {
	workflow := &ApprovalWorkflow{Name: "Release", Steps: []ApprovalStep{
		{ID: 1, StepOrder: 1, StepName: "Manager", RoleID: 4},
		{ID: 2, StepOrder: 2, StepName: "Director", RoleID: 5},
	}}

	tests := []struct {
		status   string
		wantStep bool
	}{
		{"PENDING", true},
		{"IN_PROGRESS", true},
		{"APPROVED", false},
		{"REJECTED", false},
		{"CANCELLED", false},
		{"OVERRIDDEN", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			req := &ApprovalRequest{Status: tt.status, CurrentStepOrder: 2, Workflow: workflow}
			resp := req.ToResponse()

			assert.Equal(t, 2, resp.TotalSteps)
			assert.Equal(t, "Release", resp.WorkflowName)
			if !tt.wantStep {
				assert.Nil(t, resp.CurrentStep)
				return
			}
			require.NotNil(t, resp.CurrentStep)
			assert.Equal(t, uint(5), resp.CurrentStep.RoleID)
		})
	}
}
