package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/autolead/internal/middleware"
	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/utils"
)

// AccountStore is the slice of the user repository the auth endpoints need.
type AccountStore interface {
	FindByPhone(ctx context.Context, phone, countryCode string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	users  AccountStore
	tokens Tokens
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users AccountStore, tokens Tokens) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type registerRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"required,phone10"`
	CountryCode string `json:"country_code" validate:"omitempty,country_code"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
}

// Register creates an account that has not verified its phone yet.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	phone := utils.NormalizePhone(req.Phone)
	cc := utils.NormalizeCountryCode(req.CountryCode)

	if _, err := h.users.FindByPhone(c.UserContext(), phone, cc); err == nil {
		return fiber.NewError(fiber.StatusConflict, "user already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        phone,
		CountryCode:  cc,
		Role:         models.RoleBuyer,
		PasswordHash: passwordHash,
	}
	if err := h.users.Create(c.UserContext(), &user); err != nil {
		return err
	}

	token, err := h.tokens.session(user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user":    user,
		"token":   token,
	})
}

type loginRequest struct {
	Phone       string `json:"phone" validate:"required,phone10"`
	CountryCode string `json:"country_code" validate:"omitempty,country_code"`
	Password    string `json:"password" validate:"required"`
}

// Login authenticates an existing user.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := h.users.FindByPhone(c.UserContext(), utils.NormalizePhone(req.Phone), utils.NormalizeCountryCode(req.CountryCode))
	if errors.Is(err, repository.ErrNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return err
	}
	if !user.HasPassword() || !utils.CheckPassword(user.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := h.tokens.session(user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
		"token":   token,
	})
}

type setupPasswordRequest struct {
	VerificationToken string `json:"verification_token" validate:"required"`
	Password          string `json:"password" validate:"required,min=8,max=72"`
}

// SetupPassword finishes the account of a user who just verified their phone in a wizard.
func (h *AuthHandler) SetupPassword(c *fiber.Ctx) error {
	var req setupPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	userID, err := utils.ParseVerificationToken(h.tokens.Secret, req.VerificationToken)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired verification token")
	}
	user, err := h.users.FindByID(c.UserContext(), userID)
	if err != nil {
		return err
	}
	if user.HasPassword() {
		return fiber.NewError(fiber.StatusConflict, "password already set, sign in instead")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	if err := h.users.SetPasswordHash(c.UserContext(), user.ID, passwordHash); err != nil {
		return err
	}

	token, err := h.tokens.session(user.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
		"token":   token,
	})
}

// Session returns the user behind the bearer token.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	user, err := h.users.FindByID(c.UserContext(), userID)
	if errors.Is(err, repository.ErrNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	if err != nil {
		return err
	}
	return c.JSON(success(user))
}
