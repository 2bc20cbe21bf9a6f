package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/danukusuma/auth-service/internal/auth/service"
)

const (
	localAccountID = "account_id"
	localEmail     = "email"
	localRole      = "role"
)

// RequireAuth verifies the bearer access token and stashes the claims in the
// request locals. Storage is never touched here.
func RequireAuth(tokens service.TokenGenerator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}

		claims, err := tokens.VerifyAccess(raw)
		if err != nil {
			return writeError(c, err)
		}

		c.Locals(localAccountID, claims.UserID)
		c.Locals(localEmail, claims.Email)
		c.Locals(localRole, claims.Role)
		return c.Next()
	}
}

// RequireRole gates a route on the role claim. Chain it after RequireAuth.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if got, _ := c.Locals(localRole).(string); got != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient role"})
		}
		return c.Next()
	}
}

func accountID(c *fiber.Ctx) string {
	id, _ := c.Locals(localAccountID).(string)
	return id
}
