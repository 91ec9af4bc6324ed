package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/autolead/internal/utils"
)

const userContextKey = "currentUserID"

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AuthMiddleware validates JWT tokens and loads the authenticated user ID into context.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}
		token, ok := bearerToken(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		userID, err := utils.ParseToken(secret, token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(userContextKey, userID)
		return c.Next()
	}
}

// OptionalAuth loads the user ID when a valid session token is present and otherwise lets
// the request through anonymously. The wizards work for both.
func OptionalAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := bearerToken(c); ok {
			if userID, err := utils.ParseToken(secret, token); err == nil {
				c.Locals(userContextKey, userID)
			}
		}
		return c.Next()
	}
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(userContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok {
		return id, true
	}

	return uuid.Nil, false
}
