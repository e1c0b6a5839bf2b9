package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/jwt"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{AppMode: "dev", JWT: config.JWTConfig{Secret: "mw-secret", AccessTokenMins: 15}}
}

func newApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: CustomErrorHandler})
	app.Get("/me", AuthMiddleware(cfg), RequireAssignment(), func(c *fiber.Ctx) error {
		return response.Success(c, "", Access(c))
	})
	return app
}

func token(t *testing.T, cfg *config.Config, ac *domain.AccessContext) string {
	t.Helper()
	tok, err := jwt.GenerateAccessToken(ac, cfg.JWT.Secret, cfg.JWT.AccessTokenMins)
	require.NoError(t, err)
	return tok
}

func decode(t *testing.T, resp *http.Response) response.Response {
	t.Helper()
	var body response.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	app := newApp(cfg)

	assigned := &domain.AccessContext{UserID: 5, Username: "nok", Assignments: []domain.Assignment{
		{BusinessUnitID: 1, Role: domain.RoleGrant{ID: 2, Level: domain.LevelStaff}},
	}}

	t.Run("missing token", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Access token required", decode(t, resp).Error)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer nope")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid access token", decode(t, resp).Error)
	})

	t.Run("query token ignored outside websocket upgrade", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me?access_token="+token(t, cfg, assigned), nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token(t, cfg, assigned))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		data, ok := decode(t, resp).Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "nok", data["username"])
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: token(t, cfg, assigned)})
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("no assignment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token(t, cfg, &domain.AccessContext{UserID: 6, Username: "new"}))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Equal(t, domain.ErrNoAssignment.Message, decode(t, resp).Error)
	})
}

func TestCustomErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: CustomErrorHandler})
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })
	app.Get("/boom", func(c *fiber.Ctx) error { return assert.AnError })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "short and stout", decode(t, resp).Error)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, decode(t, resp).Error, assert.AnError.Error())
}

func TestNoStore(t *testing.T) {
	app := fiber.New()
	app.Get("/x", NoStore(), func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NoError(t, err)
	assert.Contains(t, resp.Header.Get(fiber.HeaderCacheControl), "no-store")
}
