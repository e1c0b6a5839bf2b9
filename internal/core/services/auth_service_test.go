package services

import (
	"testing"
	"time"

	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWT = config.JWTConfig{
	Secret:           "test-access-secret",
	RefreshSecret:    "test-refresh-secret",
	AccessTokenMins:  15,
	RefreshTokenDays: 7,
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "manager", "supervisor")
	auth := NewAuthService(f.userRepo, f.tokenRepo, testJWT)

	resp, err := auth.Login(f.ctx, &LoginInput{Username: "alice", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Len(t, resp.User.Assignments, 2)

	claims, err := auth.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	ac := claims.AccessContext()
	assert.Equal(t, resp.User.ID, ac.UserID)
	assert.True(t, ac.HasRole(f.unit.ID, f.roles["manager"].ID))
	assert.Equal(t, domain.LevelManager, ac.MaxLevel(f.unit.ID))
	assert.True(t, ac.Can(f.unit.ID, domain.ModuleApproval, domain.ActionApprove))
	assert.False(t, ac.HasAssignment(f.other.ID))

	_, err = auth.Login(f.ctx, &LoginInput{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = auth.Login(f.ctx, &LoginInput{Username: "nobody", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_InactiveUser(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", "admin")
	bob := f.user("bob", "staff")
	auth := NewAuthService(f.userRepo, f.tokenRepo, testJWT)

	inactive := false
	_, err := f.users.Update(f.ctx, admin, bob.UserID, &UpdateUserInput{BusinessUnitID: f.unit.ID, IsActive: &inactive})
	require.NoError(t, err)

	_, err = auth.Login(f.ctx, &LoginInput{Username: "bob", Password: "secret123"})
	assert.ErrorIs(t, err, domain.ErrUserInactive)
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "staff")
	auth := NewAuthService(f.userRepo, f.tokenRepo, testJWT)

	login, err := auth.Login(f.ctx, &LoginInput{Username: "alice", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := auth.RefreshToken(f.ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The rotated token is dead
	_, err = auth.RefreshToken(f.ctx, login.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)

	_, err = auth.RefreshToken(f.ctx, "not-a-token")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	// Signed with the access secret instead of the refresh secret
	_, err = auth.RefreshToken(f.ctx, refreshed.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	require.NoError(t, auth.Logout(f.ctx, refreshed.RefreshToken))
	_, err = auth.RefreshToken(f.ctx, refreshed.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
}

func TestRefreshCarriesCurrentAssignments(t *testing.T) {
	f := newFixture(t)
	admin := f.user("admin", "admin")
	alice := f.user("alice", "staff")
	auth := NewAuthService(f.userRepo, f.tokenRepo, testJWT)

	login, err := auth.Login(f.ctx, &LoginInput{Username: "alice", Password: "secret123"})
	require.NoError(t, err)

	_, err = f.roleSvc.Assign(f.ctx, admin, &AssignRoleInput{UserID: alice.UserID, BusinessUnitID: f.unit.ID, RoleID: f.roles["director"].ID})
	require.NoError(t, err)

	refreshed, err := auth.RefreshToken(f.ctx, login.RefreshToken)
	require.NoError(t, err)

	claims, err := jwt.ValidateAccessToken(refreshed.AccessToken, testJWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelDirector, claims.AccessContext().MaxLevel(f.unit.ID))
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice", "staff")
	auth := NewAuthService(f.userRepo, f.tokenRepo, testJWT)

	first, err := auth.Login(f.ctx, &LoginInput{Username: "alice", Password: "secret123"})
	require.NoError(t, err)
	second, err := auth.Login(f.ctx, &LoginInput{Username: "alice", Password: "secret123"})
	require.NoError(t, err)

	active, err := f.tokenRepo.CountActive(f.ctx, alice.UserID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, active)

	require.NoError(t, auth.LogoutAll(f.ctx, alice.UserID))

	for _, tok := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := auth.RefreshToken(f.ctx, tok)
		assert.ErrorIs(t, err, domain.ErrTokenRevoked)
	}

	me, err := auth.Me(f.ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice@propdesk.test", me.Email)
}
