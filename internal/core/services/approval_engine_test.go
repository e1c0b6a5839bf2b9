package services

import (
	"context"
	"errors"
	"testing"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// engineCase is a 3-step workflow (supervisor, manager, director) on
// PROPERTY_UPDATE with one user per role
type engineCase struct {
	*fixture
	admin      *domain.AccessContext
	requester  *domain.AccessContext
	supervisor *domain.AccessContext
	manager    *domain.AccessContext
	director   *domain.AccessContext
	wf         *models.ApprovalWorkflow
}

func newEngineCase(t *testing.T) *engineCase {
	f := newFixture(t)
	c := &engineCase{fixture: f}
	c.admin = f.user("admin", "admin")
	c.requester = f.user("requester", "staff")
	c.supervisor = f.user("sup", "supervisor")
	c.manager = f.user("mgr", "manager")
	c.director = f.user("dir", "director")

	third := f.step(3, "director")
	third.CanOverride = true
	third.OverrideMinLevel = domain.LevelManagingDirector
	first := f.step(1, "supervisor")
	first.CanOverride = true
	first.OverrideMinLevel = domain.LevelDirector

	c.wf = f.workflow(c.admin, "Property update", domain.EntityPropertyUpdate,
		first, f.step(2, "manager"), third)
	return c
}

func (c *engineCase) open(entityID string) *models.ApprovalRequest {
	c.t.Helper()
	req, err := c.engine.Create(c.ctx, c.requester, &CreateRequestInput{
		WorkflowID: c.wf.ID,
		EntityType: string(domain.EntityPropertyUpdate),
		EntityID:   entityID,
	})
	require.NoError(c.t, err)
	return req
}

func (c *engineCase) stepID(order int) uint {
	return c.wf.StepAt(order).ID
}

func TestCreateRequest_StartsPendingAtFirstStep(t *testing.T) {
	c := newEngineCase(t)

	req := c.open("P-1")

	assert.Equal(t, string(domain.RequestPending), req.Status)
	assert.Equal(t, 1, req.CurrentStepOrder)
	assert.Equal(t, c.unit.ID, req.BusinessUnitID)
	assert.Equal(t, c.requester.UserID, req.RequestedByID)
	require.NotNil(t, req.Workflow)
	assert.Len(t, req.Workflow.Steps, 3)

	ev := c.events.last()
	assert.Equal(t, domain.AuditCreate, ev.Action)
	require.NotNil(t, ev.NextRoleID)
	assert.Equal(t, c.roles["supervisor"].ID, *ev.NextRoleID)

	entries, err := c.auditRepo.ListByEntity(c.ctx, domain.AuditEntityRequest, idString(req.ID))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditCreate, entries[0].Action)
}

func TestCreateRequest_Rejections(t *testing.T) {
	c := newEngineCase(t)

	t.Run("workflow not found", func(t *testing.T) {
		_, err := c.engine.Create(c.ctx, c.requester, &CreateRequestInput{
			WorkflowID: 999, EntityType: string(domain.EntityPropertyUpdate), EntityID: "X",
		})
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("no assignment in the workflow unit", func(t *testing.T) {
		outsider := c.userIn(c.other, "outsider", "admin")
		_, err := c.engine.Create(c.ctx, outsider, &CreateRequestInput{
			WorkflowID: c.wf.ID, EntityType: string(domain.EntityPropertyUpdate), EntityID: "X",
		})
		assert.ErrorIs(t, err, domain.ErrNoAssignment)
	})

	t.Run("entity type mismatch", func(t *testing.T) {
		_, err := c.engine.Create(c.ctx, c.requester, &CreateRequestInput{
			WorkflowID: c.wf.ID, EntityType: string(domain.EntityPropertyReturn), EntityID: "X",
		})
		assert.ErrorIs(t, err, domain.ErrEntityTypeMismatch)
	})

	t.Run("inactive workflow", func(t *testing.T) {
		w := c.workflow(c.admin, "Dormant", domain.EntityPropertyUpdate, c.step(1, "manager"))
		_, err := c.workflows.ToggleActive(c.ctx, c.admin, w.ID)
		require.NoError(t, err)

		_, err = c.engine.Create(c.ctx, c.requester, &CreateRequestInput{
			WorkflowID: w.ID, EntityType: string(domain.EntityPropertyUpdate), EntityID: "X",
		})
		assert.ErrorIs(t, err, domain.ErrWorkflowInactive)
	})
}

func TestCreateRequest_OneOpenRequestPerEntity(t *testing.T) {
	c := newEngineCase(t)

	first := c.open("P-1")

	_, err := c.engine.Create(c.ctx, c.requester, &CreateRequestInput{
		WorkflowID: c.wf.ID, EntityType: string(domain.EntityPropertyUpdate), EntityID: "P-1",
	})
	require.ErrorIs(t, err, domain.ErrRequestExists)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	// Another entity is unaffected
	c.open("P-2")

	_, err = c.engine.Cancel(c.ctx, c.requester, first.ID, "changed my mind")
	require.NoError(t, err)

	second := c.open("P-1")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, string(domain.RequestPending), second.Status)
}

func TestCreateRequest_ActiveKeyRejectsRacingInsert(t *testing.T) {
	c := newEngineCase(t)
	c.open("P-1")

	dup := &models.ApprovalRequest{
		WorkflowID:       c.wf.ID,
		EntityType:       string(domain.EntityPropertyUpdate),
		EntityID:         "P-1",
		BusinessUnitID:   c.unit.ID,
		RequestedByID:    c.requester.UserID,
		Status:           string(domain.RequestPending),
		CurrentStepOrder: 1,
		ActiveKey:        models.ActiveKeyFor(string(domain.EntityPropertyUpdate), "P-1"),
	}
	err := c.requestRepo.Create(c.ctx, dup)
	require.Error(t, err)
	assert.True(t, isDuplicate(err))
}

func TestRespond_ApproveAdvancesThenRejectTerminates(t *testing.T) {
	c := newEngineCase(t)
	req := c.open("P-1")

	res, err := c.engine.Respond(c.ctx, c.supervisor, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseApproved), Comments: "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestInProgress, res.Status)
	require.NotNil(t, res.NextStep)
	assert.Equal(t, 2, res.NextStep.StepOrder)
	require.NotNil(t, res.NextRoleID())
	assert.Equal(t, c.roles["manager"].ID, *res.NextRoleID())

	got := c.reload(req.ID)
	assert.Equal(t, 2, got.CurrentStepOrder)
	assert.Equal(t, string(domain.RequestInProgress), got.Status)
	assert.Nil(t, got.CompletedAt)

	res, err = c.engine.Respond(c.ctx, c.manager, req.ID, &RespondInput{
		StepID: c.stepID(2), Status: string(domain.ResponseRejected), Comments: "missing papers",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, res.Status)
	assert.Nil(t, res.NextStep)

	got = c.reload(req.ID)
	assert.Equal(t, string(domain.RequestRejected), got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.ActiveKey)
	require.Len(t, got.Responses, 2)
	assert.Equal(t, "missing papers", got.Responses[1].Comments)

	_, err = c.engine.Respond(c.ctx, c.director, req.ID, &RespondInput{
		StepID: c.stepID(3), Status: string(domain.ResponseApproved),
	})
	assert.ErrorIs(t, err, domain.ErrRequestNotPending)
	assert.Equal(t, 2, c.responseCount(req.ID))
}

func TestRespond_AllStepsApproved(t *testing.T) {
	c := newEngineCase(t)
	req := c.open("P-1")

	for i, ac := range []*domain.AccessContext{c.supervisor, c.manager, c.director} {
		_, err := c.engine.Respond(c.ctx, ac, req.ID, &RespondInput{
			StepID: c.stepID(i + 1), Status: string(domain.ResponseApproved),
		})
		require.NoError(t, err)
	}

	got := c.reload(req.ID)
	assert.Equal(t, string(domain.RequestApproved), got.Status)
	assert.Equal(t, 3, got.CurrentStepOrder)
	assert.NotNil(t, got.CompletedAt)
	assert.False(t, got.IsOverridden)
	assert.Nil(t, got.ActiveKey)

	ev := c.events.last()
	assert.Equal(t, domain.AuditApprove, ev.Action)
	assert.Equal(t, domain.RequestInProgress, ev.PreviousStatus)
	assert.Equal(t, domain.RequestApproved, ev.Status)
	assert.Nil(t, ev.NextRoleID)
}

func TestRespond_WrongStepLeavesStateUntouched(t *testing.T) {
	c := newEngineCase(t)
	req := c.open("P-1")

	for _, stepID := range []uint{c.stepID(2), c.stepID(3), 0, 12345} {
		_, err := c.engine.Respond(c.ctx, c.supervisor, req.ID, &RespondInput{
			StepID: stepID, Status: string(domain.ResponseApproved),
		})
		assert.ErrorIs(t, err, domain.ErrWrongStep)
	}

	got := c.reload(req.ID)
	assert.Equal(t, string(domain.RequestPending), got.Status)
	assert.Equal(t, 1, got.CurrentStepOrder)
	assert.Zero(t, c.responseCount(req.ID))

	// Responding to an already approved step is also out of order
	_, err := c.engine.Respond(c.ctx, c.supervisor, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseApproved),
	})
	require.NoError(t, err)
	_, err = c.engine.Respond(c.ctx, c.supervisor, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseApproved),
	})
	assert.ErrorIs(t, err, domain.ErrWrongStep)
	assert.Equal(t, 1, c.responseCount(req.ID))
}

func TestRespond_RoleGated(t *testing.T) {
	c := newEngineCase(t)
	req := c.open("P-1")

	// A more senior role is still not the step's approver
	_, err := c.engine.Respond(c.ctx, c.director, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseApproved),
	})
	assert.ErrorIs(t, err, domain.ErrNotStepApprover)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	outsider := c.userIn(c.other, "outsider", "supervisor")
	_, err = c.engine.Respond(c.ctx, outsider, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseApproved),
	})
	assert.ErrorIs(t, err, domain.ErrNoAssignment)

	_, err = c.engine.Respond(c.ctx, c.supervisor, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: "MAYBE",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidResponse)

	assert.Zero(t, c.responseCount(req.ID))
}

func TestRespond_OverrideTerminatesImmediately(t *testing.T) {
	c := newEngineCase(t)
	req := c.open("P-1")

	res, err := c.engine.Respond(c.ctx, c.director, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseApproved), IsOverride: true, Comments: "urgent",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestOverridden, res.Status)
	assert.Nil(t, res.NextStep)

	got := c.reload(req.ID)
	assert.Equal(t, string(domain.RequestOverridden), got.Status)
	assert.True(t, got.IsOverridden)
	require.NotNil(t, got.OverriddenByID)
	assert.Equal(t, c.director.UserID, *got.OverriddenByID)
	assert.NotNil(t, got.OverriddenAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 1, got.CurrentStepOrder)
	require.Len(t, got.Responses, 1)
	assert.True(t, got.Responses[0].IsOverride)

	entries, err := c.auditRepo.ListByEntity(c.ctx, domain.AuditEntityRequest, idString(req.ID))
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, domain.AuditOverride)

	_, err = c.engine.Respond(c.ctx, c.manager, req.ID, &RespondInput{
		StepID: c.stepID(2), Status: string(domain.ResponseApproved),
	})
	assert.ErrorIs(t, err, domain.ErrRequestNotPending)
}

func TestRespond_OverrideWithRejectedStatusStillOverrides(t *testing.T) {
	c := newEngineCase(t)
	req := c.open("P-1")

	res, err := c.engine.Respond(c.ctx, c.director, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseRejected), IsOverride: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RequestOverridden, res.Status)
}

func TestRespond_OverrideGuards(t *testing.T) {
	c := newEngineCase(t)
	req := c.open("P-1")

	// Level too low: manager (2) against a minimum of director (3)
	_, err := c.engine.Respond(c.ctx, c.manager, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseApproved), IsOverride: true,
	})
	assert.ErrorIs(t, err, domain.ErrOverrideLevelTooLow)

	// Step 2 does not allow overrides at all
	_, err = c.engine.Respond(c.ctx, c.supervisor, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseApproved),
	})
	require.NoError(t, err)
	_, err = c.engine.Respond(c.ctx, c.admin, req.ID, &RespondInput{
		StepID: c.stepID(2), Status: string(domain.ResponseApproved), IsOverride: true,
	})
	assert.ErrorIs(t, err, domain.ErrOverrideNotAllowed)

	// the step's own role holder is refused too rather than recorded as a plain approval
	_, err = c.engine.Respond(c.ctx, c.manager, req.ID, &RespondInput{
		StepID: c.stepID(2), Status: string(domain.ResponseApproved), IsOverride: true,
	})
	assert.ErrorIs(t, err, domain.ErrOverrideNotAllowed)

	got := c.reload(req.ID)
	assert.Equal(t, string(domain.RequestInProgress), got.Status)
	assert.Equal(t, 1, c.responseCount(req.ID))
}

func TestCancel(t *testing.T) {
	c := newEngineCase(t)
	req := c.open("P-1")

	_, err := c.engine.Cancel(c.ctx, c.supervisor, req.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotRequester)

	_, err = c.engine.Respond(c.ctx, c.supervisor, req.ID, &RespondInput{
		StepID: c.stepID(1), Status: string(domain.ResponseApproved),
	})
	require.NoError(t, err)

	cancelled, err := c.engine.Cancel(c.ctx, c.requester, req.ID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, string(domain.RequestCancelled), cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	_, err = c.engine.Cancel(c.ctx, c.requester, req.ID, "again")
	assert.ErrorIs(t, err, domain.ErrRequestNotPending)

	_, err = c.engine.Respond(c.ctx, c.manager, req.ID, &RespondInput{
		StepID: c.stepID(2), Status: string(domain.ResponseApproved),
	})
	assert.ErrorIs(t, err, domain.ErrRequestNotPending)
}

func TestTerminalRequestsRefuseEveryTransition(t *testing.T) {
	c := newEngineCase(t)

	finish := map[domain.RequestStatus]func(req *models.ApprovalRequest){
		domain.RequestApproved: func(req *models.ApprovalRequest) {
			for i, ac := range []*domain.AccessContext{c.supervisor, c.manager, c.director} {
				_, err := c.engine.Respond(c.ctx, ac, req.ID, &RespondInput{StepID: c.stepID(i + 1), Status: string(domain.ResponseApproved)})
				require.NoError(t, err)
			}
		},
		domain.RequestRejected: func(req *models.ApprovalRequest) {
			_, err := c.engine.Respond(c.ctx, c.supervisor, req.ID, &RespondInput{StepID: c.stepID(1), Status: string(domain.ResponseRejected)})
			require.NoError(t, err)
		},
		domain.RequestCancelled: func(req *models.ApprovalRequest) {
			_, err := c.engine.Cancel(c.ctx, c.requester, req.ID, "")
			require.NoError(t, err)
		},
		domain.RequestOverridden: func(req *models.ApprovalRequest) {
			_, err := c.engine.Respond(c.ctx, c.admin, req.ID, &RespondInput{StepID: c.stepID(1), Status: string(domain.ResponseApproved), IsOverride: true})
			require.NoError(t, err)
		},
	}

	for status, fn := range finish {
		t.Run(string(status), func(t *testing.T) {
			req := c.open("T-" + string(status))
			fn(req)

			before := c.reload(req.ID)
			require.Equal(t, string(status), before.Status)
			responses := len(before.Responses)

			order := before.CurrentStepOrder
			_, err := c.engine.Respond(c.ctx, c.admin, req.ID, &RespondInput{StepID: c.stepID(order), Status: string(domain.ResponseApproved)})
			assert.ErrorIs(t, err, domain.ErrRequestNotPending)
			_, err = c.engine.Respond(c.ctx, c.admin, req.ID, &RespondInput{StepID: c.stepID(order), Status: string(domain.ResponseApproved), IsOverride: true})
			assert.ErrorIs(t, err, domain.ErrRequestNotPending)
			_, err = c.engine.Cancel(c.ctx, c.requester, req.ID, "")
			assert.ErrorIs(t, err, domain.ErrRequestNotPending)

			after := c.reload(req.ID)
			assert.Equal(t, before.Status, after.Status)
			assert.Len(t, after.Responses, responses)
		})
	}
}

func TestReadOperations(t *testing.T) {
	c := newEngineCase(t)
	a := c.open("P-1")
	b := c.open("P-2")
	_, err := c.engine.Respond(c.ctx, c.supervisor, b.ID, &RespondInput{StepID: c.stepID(1), Status: string(domain.ResponseApproved)})
	require.NoError(t, err)

	t.Run("get by id carries steps and responses", func(t *testing.T) {
		got, err := c.engine.GetByID(c.ctx, c.manager, b.ID)
		require.NoError(t, err)
		resp := got.ToResponse()
		assert.Equal(t, 3, resp.TotalSteps)
		require.NotNil(t, resp.CurrentStep)
		assert.Equal(t, "manager", resp.CurrentStep.RoleName)
		require.Len(t, resp.Responses, 1)
		assert.Equal(t, "supervisor review", resp.Responses[0].StepName)
		assert.Equal(t, "Sup", resp.Responses[0].RespondedByName)
	})

	t.Run("get by id requires assignment", func(t *testing.T) {
		outsider := c.userIn(c.other, "outsider", "admin")
		_, err := c.engine.GetByID(c.ctx, outsider, a.ID)
		assert.ErrorIs(t, err, domain.ErrNoAssignment)
	})

	t.Run("pending for me follows the current step role", func(t *testing.T) {
		mine, err := c.engine.PendingForMe(c.ctx, c.supervisor, c.unit.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, a.ID, mine[0].ID)

		mine, err = c.engine.PendingForMe(c.ctx, c.manager, c.unit.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, b.ID, mine[0].ID)

		mine, err = c.engine.PendingForMe(c.ctx, c.director, c.unit.ID)
		require.NoError(t, err)
		assert.Empty(t, mine)
	})

	t.Run("list filters by status", func(t *testing.T) {
		list, total, params, err := c.engine.List(c.ctx, c.admin, &ListRequestsInput{Status: string(domain.RequestInProgress)})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, 1, params.Page)
		require.Len(t, list, 1)
		assert.Equal(t, b.ID, list[0].ID)

		_, total, _, err = c.engine.List(c.ctx, c.admin, &ListRequestsInput{BusinessUnitID: c.unit.ID})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := c.engine.Stats(c.ctx, c.manager, c.unit.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 2, stats.Total)
		assert.EqualValues(t, 1, stats.Pending)
		assert.EqualValues(t, 1, stats.InProgress)
		assert.EqualValues(t, 1, stats.AwaitingMe)
	})

	t.Run("history", func(t *testing.T) {
		history, err := c.engine.History(c.ctx, c.admin, b.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, string(domain.ResponseApproved), history[0].Status)
	})
}

type hookCall struct {
	status string
	actor  uint
}

func TestTransitionHookRunsInsideTransaction(t *testing.T) {
	c := newEngineCase(t)

	var calls []hookCall
	c.engine.RegisterHook(domain.EntityPropertyUpdate, func(_ context.Context, _ *gorm.DB, ac *domain.AccessContext, req *models.ApprovalRequest) error {
		calls = append(calls, hookCall{status: req.Status, actor: ac.UserID})
		if req.Status == string(domain.RequestRejected) {
			return errors.New("downstream refused")
		}
		return nil
	})

	// A hooked entity type is opened by its coordinator inside the coordinator's transaction
	var req *models.ApprovalRequest
	err := c.db.Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = c.engine.CreateInTx(c.ctx, tx, c.requester, &CreateRequestInput{
			WorkflowID: c.wf.ID, EntityType: string(domain.EntityPropertyUpdate), EntityID: "P-1",
		})
		return err
	})
	require.NoError(t, err)

	_, err = c.engine.Respond(c.ctx, c.supervisor, req.ID, &RespondInput{StepID: c.stepID(1), Status: string(domain.ResponseApproved)})
	require.NoError(t, err)

	_, err = c.engine.Respond(c.ctx, c.manager, req.ID, &RespondInput{StepID: c.stepID(2), Status: string(domain.ResponseRejected)})
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	require.Len(t, calls, 2)
	assert.Equal(t, string(domain.RequestInProgress), calls[0].status)
	assert.Equal(t, c.supervisor.UserID, calls[0].actor)

	// The failed hook rolled back the rejection and its response row
	got := c.reload(req.ID)
	assert.Equal(t, string(domain.RequestInProgress), got.Status)
	assert.Equal(t, 1, c.responseCount(req.ID))
}

func TestCreateRequest_MovementTypesBelongToCoordinator(t *testing.T) {
	c := newMovementCase(t)
	p := c.property(c.admin, "lot-1", domain.PropertyAvailable, "Vault A")

	wf, err := c.workflowRepo.FindActiveByEntityType(c.ctx, c.unit.ID, string(domain.EntityPropertyRelease))
	require.NoError(t, err)

	// a bare request would take the active slot of the next movement id
	_, err = c.engine.Create(c.ctx, c.requester, &CreateRequestInput{
		WorkflowID: wf.ID, EntityType: string(domain.EntityPropertyRelease), EntityID: "1",
	})
	assert.ErrorIs(t, err, domain.ErrEntityTypeManaged)

	var open int64
	require.NoError(t, c.db.Model(&models.ApprovalRequest{}).Count(&open).Error)
	assert.Zero(t, open)

	res, err := c.movements.Create(c.ctx, c.requester, domain.MovementRelease, &CreateMovementInput{PropertyID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, string(domain.EntityPropertyRelease), res.Request.EntityType)
}
