package handlers

import (
	"strings"
	"time"

	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	cfg         *config.Config
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, userService *services.UserService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		cfg:         cfg,
	}
}

// Login handles user login
// @Summary Login user
// @Description Authenticate with username and password. The access token carries the caller's role assignments.
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body services.LoginInput true "Login credentials"
// @Success 200 {object} response.Response{data=services.AuthResponse}
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input services.LoginInput
	if ok, err := bind(c, &input); !ok {
		return err
	}
	input.Username = strings.TrimSpace(input.Username)

	result, err := h.authService.Login(c.Context(), &input)
	if err != nil {
		return response.FromError(c, err)
	}

	h.setAuthCookies(c, result.AccessToken, result.RefreshToken)

	return response.Success(c, "Login successful", result)
}

// RefreshToken handles token refresh
// @Summary Refresh access token
// @Description Rotate the refresh token, read from the refresh_token cookie or the body
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body services.RefreshInput false "Refresh token when no cookie is sent"
// @Success 200 {object} response.Response{data=services.AuthResponse}
// @Failure 401 {object} response.Response
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies("refresh_token")
	if refreshToken == "" {
		var input services.RefreshInput
		_ = c.BodyParser(&input)
		refreshToken = input.RefreshToken
	}
	if refreshToken == "" {
		return response.Unauthorized(c, "Refresh token not found")
	}

	result, err := h.authService.RefreshToken(c.Context(), refreshToken)
	if err != nil {
		if k := domain.KindOf(err); k == domain.KindUnauthorized || k == domain.KindForbidden {
			h.clearAuthCookies(c)
		}
		return response.FromError(c, err)
	}

	h.setAuthCookies(c, result.AccessToken, result.RefreshToken)

	return response.Success(c, "Token refreshed successfully", result)
}

// Logout handles user logout
// @Summary Logout user
// @Description Revoke the refresh token and clear the auth cookies
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Response
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if refreshToken := c.Cookies("refresh_token"); refreshToken != "" {
		_ = h.authService.Logout(c.Context(), refreshToken)
	}

	h.clearAuthCookies(c)

	return response.Success(c, "Logged out successfully", nil)
}

// LogoutAll handles logout from all devices
// @Summary Logout from all devices
// @Description Revoke every refresh token of the caller
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	if err := h.authService.LogoutAll(c.Context(), access(c).UserID); err != nil {
		return response.FromError(c, err)
	}

	h.clearAuthCookies(c)

	return response.Success(c, "Logged out from all devices", nil)
}

// Me returns the current user info
// @Summary Get current user
// @Description Get the authenticated user with their assignments
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.UserResponse}
// @Failure 401 {object} response.Response
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.authService.Me(c.Context(), access(c).UserID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, "User retrieved successfully", user)
}

// ChangePassword changes the caller's password
// @Summary Change password
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.ChangePasswordInput true "Old and new password"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /auth/password [put]
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var input services.ChangePasswordInput
	if ok, err := bind(c, &input); !ok {
		return err
	}

	ac := access(c)
	if err := h.userService.ChangePassword(c.Context(), ac.UserID, &input); err != nil {
		return response.FromError(c, err)
	}

	// Other sessions must log in again with the new password
	if err := h.authService.LogoutAll(c.Context(), ac.UserID); err != nil {
		return response.FromError(c, err)
	}
	h.clearAuthCookies(c)

	return response.Success(c, "Password changed, please login again", nil)
}

// setAuthCookies sets access and refresh token cookies
func (h *AuthHandler) setAuthCookies(c *fiber.Ctx, accessToken, refreshToken string) {
	c.Cookie(h.cookie("access_token", accessToken, h.cfg.JWT.AccessTokenMins*60))
	c.Cookie(h.cookie("refresh_token", refreshToken, h.cfg.JWT.RefreshTokenDays*24*60*60))
}

// clearAuthCookies expires both auth cookies
func (h *AuthHandler) clearAuthCookies(c *fiber.Ctx) {
	for _, name := range []string{"access_token", "refresh_token"} {
		ck := h.cookie(name, "", -1)
		ck.Expires = time.Now().Add(-1 * time.Hour)
		c.Cookie(ck)
	}
}

func (h *AuthHandler) cookie(name, value string, maxAge int) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   h.cfg.Cookie.Secure,
		HTTPOnly: true,
		SameSite: h.cfg.Cookie.SameSite,
		Domain:   h.cfg.Cookie.Domain,
	}
}
