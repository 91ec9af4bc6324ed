package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// AdminKeyHeader carries the shared admin API key.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware guards the admin API. An empty configured key disables it entirely.
func AdminKeyMiddleware(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return fiber.NewError(fiber.StatusForbidden, "admin API is disabled")
		}
		got := c.Get(AdminKeyHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid admin key")
		}
		return c.Next()
	}
}
