package services

import (
	"testing"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type movementCase struct {
	*fixture
	admin     *domain.AccessContext
	requester *domain.AccessContext
	manager   *domain.AccessContext
	director  *domain.AccessContext
}

// newMovementCase configures a two-step (manager, director) workflow for every movement kind
func newMovementCase(t *testing.T) *movementCase {
	f := newFixture(t)
	c := &movementCase{fixture: f}
	c.admin = f.user("admin", "admin")
	c.requester = f.user("clerk", "staff")
	c.manager = f.user("mgr", "manager")
	c.director = f.user("dir", "director")

	for name, et := range map[string]domain.EntityType{
		"Returns":   domain.EntityPropertyReturn,
		"Releases":  domain.EntityPropertyRelease,
		"Turnovers": domain.EntityPropertyTurnover,
	} {
		f.workflow(c.admin, name, et, f.step(1, "manager"), f.step(2, "director"))
	}
	return c
}

func (c *movementCase) propertyState(id uint) *models.Property {
	c.t.Helper()
	p, err := c.propertyRepo.GetByID(c.ctx, id)
	require.NoError(c.t, err)
	return p
}

func (c *movementCase) approveAll(res *MovementResult) {
	c.t.Helper()
	req := res.Request
	for i, ac := range []*domain.AccessContext{c.manager, c.director} {
		_, err := c.engine.Respond(c.ctx, ac, req.ID, &RespondInput{
			StepID: req.Workflow.StepAt(i + 1).ID, Status: string(domain.ResponseApproved),
		})
		require.NoError(c.t, err)
	}
}

func TestMovementCreate_PutsPropertyUnderReview(t *testing.T) {
	c := newMovementCase(t)
	p := c.property(c.admin, "lot-1", domain.PropertyAvailable, "Vault A")

	res, err := c.movements.Create(c.ctx, c.requester, domain.MovementRelease, &CreateMovementInput{
		PropertyID: p.ID, TargetLocation: "Client site", ReleasedTo: "ACME", Remarks: "lease",
	})
	require.NoError(t, err)

	release := res.Movement.(*models.PropertyRelease)
	assert.Equal(t, domain.MovementRelease, res.Kind)
	assert.Regexp(t, `^RELEASE-[0-9A-F]{8}$`, release.ReferenceNo)
	assert.Equal(t, string(domain.MovementPending), release.Status)
	assert.Equal(t, string(domain.PropertyAvailable), release.PreviousStatus)
	assert.Equal(t, "Vault A", release.PreviousLocation)
	assert.Equal(t, "ACME", release.ReleasedTo)
	require.NotNil(t, release.ApprovalRequestID)

	require.NotNil(t, res.Request)
	assert.Equal(t, *release.ApprovalRequestID, res.Request.ID)
	assert.Equal(t, string(domain.EntityPropertyRelease), res.Request.EntityType)
	assert.Equal(t, idString(release.ID), res.Request.EntityID)
	require.NotNil(t, res.Request.PropertyID)
	assert.Equal(t, p.ID, *res.Request.PropertyID)

	assert.Equal(t, string(domain.PropertyUnderReview), c.propertyState(p.ID).Status)

	history, err := c.properties.History(c.ctx, c.admin, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, HistoryRequest, history[0].Action)
	assert.Equal(t, string(domain.PropertyAvailable), history[0].FromStatus)

	// The property is locked for other movements while under review
	_, err = c.movements.Create(c.ctx, c.requester, domain.MovementTurnover, &CreateMovementInput{PropertyID: p.ID})
	assert.ErrorIs(t, err, domain.ErrPropertyNotEligible)

	ev := c.events.last()
	assert.Equal(t, domain.AuditCreate, ev.Action)
	assert.Equal(t, domain.EntityPropertyRelease, ev.EntityType)
}

func TestMovementCreate_Rejections(t *testing.T) {
	c := newMovementCase(t)
	available := c.property(c.admin, "lot-1", domain.PropertyAvailable, "Vault A")

	_, err := c.movements.Create(c.ctx, c.requester, "LEASE", &CreateMovementInput{PropertyID: available.ID})
	assert.ErrorIs(t, err, domain.ErrUnknownMovementKind)

	_, err = c.movements.Create(c.ctx, c.requester, domain.MovementReturn, &CreateMovementInput{PropertyID: available.ID})
	assert.ErrorIs(t, err, domain.ErrPropertyNotEligible)

	_, err = c.movements.Create(c.ctx, c.requester, domain.MovementRelease, &CreateMovementInput{PropertyID: 4242})
	assert.ErrorIs(t, err, domain.ErrPropertyNotFound)

	outsider := c.userIn(c.other, "outsider", "admin")
	_, err = c.movements.Create(c.ctx, outsider, domain.MovementRelease, &CreateMovementInput{PropertyID: available.ID})
	assert.ErrorIs(t, err, domain.ErrNoAssignment)

	// No active workflow for the kind
	list, _, _, err := c.workflows.List(c.ctx, c.admin, &ListWorkflowsInput{EntityType: string(domain.EntityPropertyTurnover)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = c.workflows.ToggleActive(c.ctx, c.admin, list[0].ID)
	require.NoError(t, err)

	_, err = c.movements.Create(c.ctx, c.requester, "turnover", &CreateMovementInput{PropertyID: available.ID})
	assert.ErrorIs(t, err, domain.ErrWorkflowNotConfigured)
	assert.Equal(t, string(domain.PropertyAvailable), c.propertyState(available.ID).Status)
}

func TestMovementApproveThenComplete(t *testing.T) {
	c := newMovementCase(t)
	p := c.property(c.admin, "lot-1", domain.PropertyBankCustody, "Bank")

	res, err := c.movements.Create(c.ctx, c.requester, domain.MovementReturn, &CreateMovementInput{
		PropertyID: p.ID, TargetLocation: "Vault B", ReturnedBy: "Bank officer",
	})
	require.NoError(t, err)
	id := res.Movement.Base().ID

	_, err = c.movements.Complete(c.ctx, c.admin, domain.MovementReturn, id)
	assert.ErrorIs(t, err, domain.ErrMovementNotApproved)

	_, err = c.engine.Respond(c.ctx, c.manager, res.Request.ID, &RespondInput{
		StepID: res.Request.Workflow.StepAt(1).ID, Status: string(domain.ResponseApproved),
	})
	require.NoError(t, err)

	got, err := c.movements.Get(c.ctx, c.admin, domain.MovementReturn, id)
	require.NoError(t, err)
	assert.Equal(t, string(domain.MovementInProgress), got.Movement.Base().Status)
	assert.Equal(t, string(domain.RequestInProgress), got.Request.Status)

	_, err = c.engine.Respond(c.ctx, c.director, res.Request.ID, &RespondInput{
		StepID: res.Request.Workflow.StepAt(2).ID, Status: string(domain.ResponseApproved),
	})
	require.NoError(t, err)

	got, err = c.movements.Get(c.ctx, c.admin, domain.MovementReturn, id)
	require.NoError(t, err)
	assert.Equal(t, string(domain.MovementApproved), got.Movement.Base().Status)
	assert.Equal(t, string(domain.PropertyUnderReview), c.propertyState(p.ID).Status)

	_, err = c.movements.Cancel(c.ctx, c.requester, domain.MovementReturn, id, "")
	assert.ErrorIs(t, err, domain.ErrRequestNotPending)

	done, err := c.movements.Complete(c.ctx, c.admin, domain.MovementReturn, id)
	require.NoError(t, err)
	base := done.Movement.Base()
	assert.Equal(t, string(domain.MovementCompleted), base.Status)
	assert.NotNil(t, base.CompletedAt)
	require.NotNil(t, base.CompletedByID)
	assert.Equal(t, c.admin.UserID, *base.CompletedByID)

	state := c.propertyState(p.ID)
	assert.Equal(t, string(domain.PropertyAvailable), state.Status)
	assert.Equal(t, "Vault B", state.CurrentLocation)

	_, err = c.movements.Complete(c.ctx, c.admin, domain.MovementReturn, id)
	assert.ErrorIs(t, err, domain.ErrMovementNotApproved)

	history, err := c.properties.History(c.ctx, c.admin, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, HistoryComplete, history[0].Action)
	assert.Equal(t, "Bank", history[0].FromLocation)
	assert.Equal(t, "Vault B", history[0].ToLocation)
	assert.Equal(t, HistoryRequest, history[1].Action)

	// Completed movements free the property for the next one
	_, err = c.movements.Create(c.ctx, c.requester, domain.MovementRelease, &CreateMovementInput{PropertyID: p.ID})
	assert.NoError(t, err)
}

func TestMovementOverrideApproves(t *testing.T) {
	c := newMovementCase(t)
	p := c.property(c.admin, "lot-1", domain.PropertyAvailable, "Vault A")

	res, err := c.movements.Create(c.ctx, c.requester, domain.MovementTurnover, &CreateMovementInput{
		PropertyID: p.ID, TurnedOverTo: "Buyer",
	})
	require.NoError(t, err)

	step := res.Request.Workflow.StepAt(1)
	require.NoError(t, c.db.Model(step).Updates(map[string]interface{}{"can_override": true, "override_min_level": domain.LevelManagingDirector}).Error)

	_, err = c.engine.Respond(c.ctx, c.admin, res.Request.ID, &RespondInput{
		StepID: step.ID, Status: string(domain.ResponseApproved), IsOverride: true,
	})
	require.NoError(t, err)

	done, err := c.movements.Complete(c.ctx, c.admin, domain.MovementTurnover, res.Movement.Base().ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.MovementCompleted), done.Movement.Base().Status)

	state := c.propertyState(p.ID)
	assert.Equal(t, string(domain.PropertyTurnedOver), state.Status)
	assert.Equal(t, "Vault A", state.CurrentLocation)
}

func TestMovementRevertsOnRejectAndCancel(t *testing.T) {
	c := newMovementCase(t)

	t.Run("rejected", func(t *testing.T) {
		p := c.property(c.admin, "lot-r", domain.PropertyReleased, "Client site")
		res, err := c.movements.Create(c.ctx, c.requester, domain.MovementReturn, &CreateMovementInput{
			PropertyID: p.ID, TargetLocation: "Vault A",
		})
		require.NoError(t, err)

		_, err = c.engine.Respond(c.ctx, c.manager, res.Request.ID, &RespondInput{
			StepID: res.Request.Workflow.StepAt(1).ID, Status: string(domain.ResponseRejected),
		})
		require.NoError(t, err)

		got, err := c.movements.Get(c.ctx, c.admin, domain.MovementReturn, res.Movement.Base().ID)
		require.NoError(t, err)
		assert.Equal(t, string(domain.MovementCancelled), got.Movement.Base().Status)
		assert.Equal(t, string(domain.RequestRejected), got.Request.Status)

		state := c.propertyState(p.ID)
		assert.Equal(t, string(domain.PropertyReleased), state.Status)
		assert.Equal(t, "Client site", state.CurrentLocation)

		history, err := c.properties.History(c.ctx, c.admin, p.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, HistoryRevert, history[0].Action)
		assert.Equal(t, "approval rejected", history[0].Note)
	})

	t.Run("cancelled by requester", func(t *testing.T) {
		p := c.property(c.admin, "lot-c", domain.PropertyAvailable, "Vault A")
		res, err := c.movements.Create(c.ctx, c.requester, domain.MovementRelease, &CreateMovementInput{PropertyID: p.ID})
		require.NoError(t, err)
		id := res.Movement.Base().ID

		_, err = c.movements.Cancel(c.ctx, c.manager, domain.MovementRelease, id, "")
		assert.ErrorIs(t, err, domain.ErrNotRequester)

		cancelled, err := c.movements.Cancel(c.ctx, c.requester, domain.MovementRelease, id, "not needed")
		require.NoError(t, err)
		assert.Equal(t, string(domain.MovementCancelled), cancelled.Movement.Base().Status)
		assert.Equal(t, string(domain.RequestCancelled), cancelled.Request.Status)
		assert.Equal(t, string(domain.PropertyAvailable), c.propertyState(p.ID).Status)

		// A fresh release can be requested once the old one is gone
		again, err := c.movements.Create(c.ctx, c.requester, domain.MovementRelease, &CreateMovementInput{PropertyID: p.ID})
		require.NoError(t, err)
		assert.NotEqual(t, id, again.Movement.Base().ID)
	})
}

func TestMovementList(t *testing.T) {
	c := newMovementCase(t)
	a := c.property(c.admin, "lot-1", domain.PropertyAvailable, "")
	b := c.property(c.admin, "lot-2", domain.PropertyAvailable, "")

	first, err := c.movements.Create(c.ctx, c.requester, domain.MovementRelease, &CreateMovementInput{PropertyID: a.ID})
	require.NoError(t, err)
	_, err = c.movements.Create(c.ctx, c.requester, domain.MovementRelease, &CreateMovementInput{PropertyID: b.ID})
	require.NoError(t, err)
	c.approveAll(first)

	dest, total, _, err := c.movements.List(c.ctx, c.admin, domain.MovementRelease, &ListMovementsInput{BusinessUnitID: c.unit.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, *dest.(*[]*models.PropertyRelease), 2)

	dest, total, _, err = c.movements.List(c.ctx, c.admin, domain.MovementRelease, &ListMovementsInput{
		BusinessUnitID: c.unit.ID, Status: string(domain.MovementApproved),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, first.Movement.Base().ID, (*dest.(*[]*models.PropertyRelease))[0].ID)

	_, total, _, err = c.movements.List(c.ctx, c.admin, domain.MovementReturn, &ListMovementsInput{BusinessUnitID: c.unit.ID})
	require.NoError(t, err)
	assert.Zero(t, total)
}
