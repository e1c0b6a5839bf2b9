package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"propdesk/internal/adapters/http/middleware"
	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/realtime"
	"propdesk/internal/config"
	"propdesk/internal/pkg/password"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	password.Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t     *testing.T
	app   *fiber.App
	token string
}

// newTestServer builds the full route tree over a seeded in-memory database
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig(gormlogger.Discard))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	require.NoError(t, config.NewSeeder(db, config.SeedConfig{Enabled: true, AdminPassword: "admin-pass"}).Run())

	cfg := &config.Config{
		AppMode: "dev",
		JWT:     config.JWTConfig{Secret: "s1", RefreshSecret: "s2", AccessTokenMins: 15, RefreshTokenDays: 7},
		Jobs:    config.JobsConfig{ReminderCron: "@hourly", ReminderStaleHours: 24, TokenCleanupCron: "@daily"},
	}

	hub := realtime.NewHub()
	svc := NewServices(db, cfg, hub)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.CustomErrorHandler})
	Setup(app, cfg, svc, hub, prometheus.NewRegistry())

	return &testServer{t: t, app: app}
}

func (s *testServer) do(method, path string, body interface{}) (int, envelope) {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if s.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env envelope
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

func (s *testServer) login(username, pass string) {
	s.t.Helper()

	code, env := s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": username, "password": pass})
	require.Equal(s.t, fiber.StatusOK, code, env.Error)

	var auth struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &auth))
	require.NotEmpty(s.t, auth.AccessToken)
	s.token = auth.AccessToken
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/workflows", "/api/v1/approvals/pending", "/api/v1/movements/returns", "/api/v1/dashboard"} {
		code, _ := s.do(http.MethodGet, path, nil)
		assert.Equal(t, fiber.StatusUnauthorized, code, path)
	}

	// public routes stay reachable
	code, _ := s.do(http.MethodGet, "/api/v1", nil)
	assert.Equal(t, fiber.StatusOK, code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, _ = s.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "admin"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)

	s.login("admin", "admin-pass")
	code, env = s.do(http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(env.Data), `"username":"admin"`)
}

func TestSeededWorkflowsListed(t *testing.T) {
	s := newTestServer(t)
	s.login("admin", "admin-pass")

	code, env := s.do(http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, fiber.StatusOK, code, env.Error)

	var page struct {
		Data []struct {
			EntityType string `json:"entity_type"`
		} `json:"data"`
		Meta struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(3), page.Meta.Total)

	code, env = s.do(http.MethodGet, "/api/v1/workflows?entity_type=PROPERTY_RETURN", nil)
	require.Equal(t, fiber.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "PROPERTY_RETURN", page.Data[0].EntityType)
}

func TestMovementFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.login("admin", "admin-pass")

	code, env := s.do(http.MethodPost, "/api/v1/properties", map[string]interface{}{
		"business_unit_id": 1, "code": "ph-001", "name": "Title deed 001", "status": "RELEASED",
	})
	require.Equal(t, fiber.StatusCreated, code, env.Error)

	var property struct {
		ID   uint   `json:"id"`
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &property))
	assert.Equal(t, "PH-001", property.Code)

	code, _ = s.do(http.MethodPost, "/api/v1/movements/transfers", map[string]interface{}{"property_id": property.ID})
	assert.Equal(t, fiber.StatusNotFound, code)

	code, env = s.do(http.MethodPost, "/api/v1/movements/returns", map[string]interface{}{
		"property_id": property.ID, "returned_by": "Branch 4", "return_reason": "loan closed",
	})
	require.Equal(t, fiber.StatusCreated, code, env.Error)

	var movement struct {
		Kind string `json:"kind"`
		Request struct {
			ID     uint   `json:"id"`
			Status string `json:"status"`
		} `json:"approval_request"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &movement))
	assert.Equal(t, "RETURN", movement.Kind)
	assert.Equal(t, "PENDING", movement.Request.Status)

	// the property is under review until the request ends
	code, _ = s.do(http.MethodPost, "/api/v1/movements/returns", map[string]interface{}{"property_id": property.ID})
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/v1/properties/%d", property.ID), nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"UNDER_REVIEW"`)

	code, env = s.do(http.MethodPost, fmt.Sprintf("/api/v1/approvals/%d/cancel", movement.Request.ID), map[string]string{"reason": "entered twice"})
	require.Equal(t, fiber.StatusOK, code, env.Error)

	code, env = s.do(http.MethodGet, fmt.Sprintf("/api/v1/properties/%d", property.ID), nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"RELEASED"`)
}

func TestBadPathParam(t *testing.T) {
	s := newTestServer(t)
	s.login("admin", "admin-pass")

	code, _ := s.do(http.MethodGet, "/api/v1/approvals/abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestGenericCreateRefusesMovementTypes(t *testing.T) {
	s := newTestServer(t)
	s.login("admin", "admin-pass")

	// seeded workflow 1 handles PROPERTY_RETURN
	code, env := s.do(http.MethodPost, "/api/v1/approvals", map[string]interface{}{
		"workflow_id": 1, "entity_type": "PROPERTY_RETURN", "entity_id": "1",
	})
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Contains(t, env.Error, "movement endpoints")

	code, env = s.do(http.MethodGet, "/api/v1/approvals", nil)
	require.Equal(t, fiber.StatusOK, code, env.Error)
	assert.Contains(t, string(env.Data), `"total":0`)
}
