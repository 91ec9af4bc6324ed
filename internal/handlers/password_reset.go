package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/utils"
	"github.com/example/autolead/internal/verification"
)

// CodeSender is the slice of the verification manager the reset flow uses.
type CodeSender interface {
	Start(ctx context.Context, t verification.Target) (*verification.Status, error)
	Verify(ctx context.Context, t verification.Target, input string) (bool, error)
}

// PasswordResetHandler manages forgot-password endpoints. The code goes out over the same
// SMS channel the wizards use.
type PasswordResetHandler struct {
	users  AccountStore
	codes  CodeSender
	tokens Tokens
}

// NewPasswordResetHandler constructs a PasswordResetHandler.
func NewPasswordResetHandler(users AccountStore, codes CodeSender, tokens Tokens) *PasswordResetHandler {
	return &PasswordResetHandler{users: users, codes: codes, tokens: tokens}
}

type forgotPasswordRequest struct {
	Phone       string `json:"phone" validate:"required,phone10"`
	CountryCode string `json:"country_code" validate:"omitempty,country_code"`
}

// ForgotPassword sends a reset code to an account that already has a password.
func (h *PasswordResetHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	target := verification.NewTarget(req.Phone, req.CountryCode).For(verification.PurposeReset)
	user, err := h.users.FindByPhone(c.UserContext(), target.Phone, target.CountryCode)
	if errors.Is(err, repository.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "user not found")
	}
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return fiber.NewError(fiber.StatusConflict, "account has no password yet")
	}

	status, err := h.codes.Start(c.UserContext(), target)
	if err != nil {
		return err
	}
	return c.JSON(success(status))
}

type verifyResetCodeRequest struct {
	Phone       string `json:"phone" validate:"required,phone10"`
	CountryCode string `json:"country_code" validate:"omitempty,country_code"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
}

// VerifyResetCode exchanges a correct code for a short-lived reset token.
func (h *PasswordResetHandler) VerifyResetCode(c *fiber.Ctx) error {
	var req verifyResetCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	target := verification.NewTarget(req.Phone, req.CountryCode).For(verification.PurposeReset)
	user, err := h.users.FindByPhone(c.UserContext(), target.Phone, target.CountryCode)
	if errors.Is(err, repository.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "user not found")
	}
	if err != nil {
		return err
	}

	ok, err := h.codes.Verify(c.UserContext(), target, req.Code)
	if err != nil {
		return err
	}
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "invalid verification code")
	}

	token, err := utils.GeneratePasswordResetToken(h.tokens.Secret, user.ID, h.tokens.VerificationTTL)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"verified": true,
		"token":    token,
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// ResetPassword updates the user's password after successful code verification.
func (h *PasswordResetHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	userID, err := utils.ParsePasswordResetToken(h.tokens.Secret, req.Token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired reset token")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	if err := h.users.SetPasswordHash(c.UserContext(), userID, hash); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "password updated successfully",
	})
}
