package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func caller() *AccessContext {
	return &AccessContext{
		UserID: 1,
		Assignments: []Assignment{
			{BusinessUnitID: 10, Role: RoleGrant{ID: 1, Level: LevelStaff, Permissions: []PermissionSet{
				{Module: ModuleProperty, CanRead: true, CanCreate: true},
			}}},
			{BusinessUnitID: 10, Role: RoleGrant{ID: 3, Level: LevelManager, Permissions: []PermissionSet{
				{Module: ModuleApproval, CanApprove: true},
			}}},
			{BusinessUnitID: 20, Role: RoleGrant{ID: 4, Level: LevelDirector}},
		},
	}
}

func TestAccessContext_UnitScoping(t *testing.T) {
	ac := caller()

	assert.True(t, ac.HasAssignment(10))
	assert.False(t, ac.HasAssignment(30))
	assert.Equal(t, LevelManager, ac.MaxLevel(10))
	assert.Equal(t, LevelDirector, ac.MaxLevel(20))
	assert.Equal(t, -1, ac.MaxLevel(30))
	assert.Equal(t, []uint{1, 3}, ac.RoleIDs(10))
	assert.True(t, ac.HasRole(10, 3))
	assert.False(t, ac.HasRole(20, 3))
	assert.Equal(t, []uint{10, 20}, ac.BusinessUnitIDs())
}

func TestAccessContext_Authorize(t *testing.T) {
	ac := caller()

	tests := []struct {
		name   string
		unit   uint
		module Module
		action Action
		want   error
	}{
		{"granted by first role", 10, ModuleProperty, ActionCreate, nil},
		{"granted by second role", 10, ModuleApproval, ActionApprove, nil},
		{"action not granted", 10, ModuleProperty, ActionDelete, ErrForbidden},
		{"module not granted", 20, ModuleProperty, ActionRead, ErrForbidden},
		{"not assigned", 30, ModuleProperty, ActionRead, ErrNoAssignment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ac.Authorize(tt.unit, tt.module, tt.action)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAccessContext_Nil(t *testing.T) {
	var ac *AccessContext

	assert.False(t, ac.HasAssignment(1))
	assert.Nil(t, ac.BusinessUnitIDs())
	assert.ErrorIs(t, ac.RequireAssignment(1), ErrNoAssignment)
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(ErrNoAssignment))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
	assert.Equal(t, "internal server error", PublicMessage(Internal(assert.AnError)))
	assert.Equal(t, ErrWorkflowNotFound.Message, PublicMessage(ErrWorkflowNotFound))
}
