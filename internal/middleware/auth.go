package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerpay/ledgerpay/internal/token"
)

const (
	localUserID = "user_id"
	localRole   = "role"
)

// Auth extracts the verified principal from a bearer token. Identity
// verification and session issuance happen upstream; the ledger core
// trusts the resulting (user id, role) pair and never re-verifies it.
func Auth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := token.Verify(strings.TrimSpace(authz[len("Bearer "):]), []byte(secret))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		role, _ := claims["role"].(string)

		c.Locals(localUserID, sub)
		c.Locals(localRole, role)
		return c.Next()
	}
}

// UserID returns the authenticated user id set by Auth.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(localUserID).(string)
	return uid
}

// Role returns the authenticated role set by Auth.
func Role(c *fiber.Ctx) string {
	role, _ := c.Locals(localRole).(string)
	return role
}
