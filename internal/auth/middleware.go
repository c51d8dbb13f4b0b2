package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"inbox-backend/internal/api"
)

// userKey is the Locals slot the middleware stores the agent under.
const userKey = "user"

// AuthMiddleware authenticates requests with a Bearer access token and
// stores the agent's UserContext on the request for downstream handlers.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return api.UnauthorizedError("Bearer token required")
		}

		claims, err := ParseAccessToken(token, secret)
		if err != nil {
			return api.UnauthorizedError("Access token invalid or expired")
		}

		c.Locals(userKey, &UserContext{
			ID:    claims.Subject,
			Email: claims.Email,
			Roles: claims.Roles,
		})
		return c.Next()
	}
}

// RequireAdmin gates a route to agents carrying the admin role. It assumes
// AuthMiddleware already ran on the chain.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return api.UnauthorizedError("Bearer token required")
		}
		if !user.IsAdmin() {
			return api.ForbiddenError("Admin role required")
		}
		return c.Next()
	}
}

// GetUser returns the authenticated agent, or nil outside an authenticated
// request.
func GetUser(c *fiber.Ctx) *UserContext {
	user, _ := c.Locals(userKey).(*UserContext)
	return user
}

// bearerToken extracts the token from the Authorization header. Returns ""
// for a missing header or any scheme other than Bearer.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
