package middleware

import (
	"errors"
	"strings"

	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/jwt"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const accessKey = "access"

// AuthMiddleware validates the access token and stores the caller's
// AccessContext in locals
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := tokenFrom(c)
		if accessToken == "" {
			return response.Unauthorized(c, "Access token required")
		}

		claims, err := jwt.ValidateAccessToken(accessToken, cfg.JWT.Secret)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return response.Unauthorized(c, "Access token expired")
			}
			return response.Unauthorized(c, "Invalid access token")
		}

		c.Locals(accessKey, claims.AccessContext())
		return c.Next()
	}
}

// tokenFrom reads the access token from the cookie, then the Authorization
// header. Browsers cannot set headers on websocket upgrades, so those may
// pass it as a query parameter.
func tokenFrom(c *fiber.Ctx) string {
	if token := c.Cookies("access_token"); token != "" {
		return token
	}
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if websocket.IsWebSocketUpgrade(c) {
		return c.Query("access_token")
	}
	return ""
}

// Access returns the AccessContext set by AuthMiddleware
func Access(c *fiber.Ctx) *domain.AccessContext {
	ac, _ := c.Locals(accessKey).(*domain.AccessContext)
	return ac
}

// RequireAssignment rejects callers holding no role in any business unit
func RequireAssignment() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac := Access(c)
		if ac == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		if len(ac.Assignments) == 0 {
			return response.FromError(c, domain.ErrNoAssignment)
		}
		return c.Next()
	}
}
