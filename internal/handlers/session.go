package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/autolead/internal/flow"
	"github.com/example/autolead/internal/middleware"
	"github.com/example/autolead/internal/utils"
)

// Tokens signs session and phone-verification JWTs.
type Tokens struct {
	Secret          string
	SessionTTL      time.Duration
	VerificationTTL time.Duration
}

func (t Tokens) session(userID uuid.UUID) (string, error) {
	return utils.GenerateToken(t.Secret, userID, t.SessionTTL)
}

func (t Tokens) verification(userID uuid.UUID) (string, error) {
	return utils.GenerateVerificationToken(t.Secret, userID, t.VerificationTTL)
}

func sessionOf(c *fiber.Ctx) flow.Session {
	if id, ok := middleware.GetCurrentUserID(c); ok {
		return flow.Session{UserID: &id}
	}
	return flow.Session{}
}

// verifiedResponse adds the token the password setup step needs.
func (t Tokens) verifiedResponse(data any, nextStep string, userID *uuid.UUID) (fiber.Map, error) {
	resp := fiber.Map{"success": true, "data": data}
	if nextStep == flow.NextPasswordSetup && userID != nil {
		token, err := t.verification(*userID)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
		}
		resp["verification_token"] = token
	}
	return resp, nil
}

func success(data any) fiber.Map {
	return fiber.Map{"success": true, "data": data}
}

func withWarnings(m fiber.Map, warnings []string) fiber.Map {
	if len(warnings) > 0 {
		m["warnings"] = warnings
	}
	return m
}
