package services

import (
	"testing"

	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/password"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCreate(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", "admin")

	user, err := f.users.Create(f.ctx, admin, &CreateUserInput{
		BusinessUnitID: f.unit.ID,
		RoleID:         f.roles["manager"].ID,
		Username:       "  carol ",
		Email:          "carol@propdesk.test",
		FullName:       "Carol",
		Password:       "passw0rd!",
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", user.Username)
	assert.True(t, user.IsActive)
	require.Len(t, user.Assignments, 1)
	assert.Equal(t, f.roles["manager"].ID, user.Assignments[0].RoleID)
	assert.True(t, password.Verify("passw0rd!", user.Password))

	tests := []struct {
		name  string
		input CreateUserInput
		err   error
	}{
		{"weak password", CreateUserInput{Username: "dave", Email: "dave@x.test", Password: "password"}, ErrWeakPassword},
		{"username taken", CreateUserInput{Username: "carol", Email: "c2@x.test", Password: "passw0rd!"}, domain.ErrUserAlreadyExists},
		{"email taken", CreateUserInput{Username: "carol2", Email: "carol@propdesk.test", Password: "passw0rd!"}, domain.ErrUserAlreadyExists},
		{"unknown role", CreateUserInput{Username: "erin", Email: "erin@x.test", Password: "passw0rd!", RoleID: 9999}, domain.ErrRoleNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			in.BusinessUnitID = f.unit.ID
			if in.RoleID == 0 {
				in.RoleID = f.roles["staff"].ID
			}
			_, err := f.users.Create(f.ctx, admin, &in)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	manager := f.user("mgr", "manager")
	_, err = f.users.Create(f.ctx, manager, &CreateUserInput{
		BusinessUnitID: f.unit.ID, RoleID: f.roles["staff"].ID, Username: "frank", Email: "frank@x.test", Password: "passw0rd!",
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUserListUpdateDelete(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", "admin")
	bob := f.user("bob", "staff")
	f.userIn(f.other, "remote", "staff")

	list, total, _, err := f.users.List(f.ctx, admin, &ListUsersInput{BusinessUnitID: f.unit.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)

	email := "robert@propdesk.test"
	name := "Robert"
	updated, err := f.users.Update(f.ctx, admin, bob.UserID, &UpdateUserInput{BusinessUnitID: f.unit.ID, Email: &email, FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)
	assert.Equal(t, name, updated.FullName)

	taken := "admin@propdesk.test"
	_, err = f.users.Update(f.ctx, admin, bob.UserID, &UpdateUserInput{BusinessUnitID: f.unit.ID, Email: &taken})
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	err = f.users.Delete(f.ctx, admin, f.unit.ID, admin.UserID)
	assert.ErrorIs(t, err, ErrCannotDeleteSelf)

	require.NoError(t, f.users.Delete(f.ctx, admin, f.unit.ID, bob.UserID))
	_, err = f.users.Get(f.ctx, admin, f.unit.ID, bob.UserID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	bob := f.user("bob", "staff")

	err := f.users.ChangePassword(f.ctx, bob.UserID, &ChangePasswordInput{OldPassword: "nope", NewPassword: "n3wpassword"})
	assert.ErrorIs(t, err, ErrOldPasswordWrong)

	err = f.users.ChangePassword(f.ctx, bob.UserID, &ChangePasswordInput{OldPassword: "secret123", NewPassword: "short1"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	require.NoError(t, f.users.ChangePassword(f.ctx, bob.UserID, &ChangePasswordInput{OldPassword: "secret123", NewPassword: "n3wpassword"}))

	auth := NewAuthService(f.userRepo, f.tokenRepo, testJWT)
	_, err = auth.Login(f.ctx, &LoginInput{Username: "bob", Password: "n3wpassword"})
	assert.NoError(t, err)
}
