package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/autolead/internal/middleware"
	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/utils"
)

// ProfileStore covers the account and listing reads behind the profile endpoints.
type ProfileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, patch models.User) (*models.User, error)
}

// ListingLister pages through one user's listings.
type ListingLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.VehicleListing, int64, error)
}

// ProfileHandler manages user profile endpoints.
type ProfileHandler struct {
	users    ProfileStore
	listings ListingLister
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(users ProfileStore, listings ListingLister) *ProfileHandler {
	return &ProfileHandler{users: users, listings: listings}
}

// GetProfile returns authenticated user profile.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	user, err := h.users.FindByID(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(success(user))
}

type updateProfileRequest struct {
	Name  string `json:"name" validate:"max=120"`
	Email string `json:"email" validate:"omitempty,email"`
}

// UpdateProfile updates name and email. The phone is the identity and cannot change here.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Name == "" && req.Email == "" {
		return fiber.NewError(fiber.StatusBadRequest, "nothing to update")
	}

	user, err := h.users.Update(c.UserContext(), userID, models.User{Name: req.Name, Email: req.Email})
	if err != nil {
		return err
	}
	return c.JSON(success(user))
}

// ListListings returns the caller's valuation listings, drafts included.
func (h *ProfileHandler) ListListings(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	listings, total, err := h.listings.ListForUser(c.UserContext(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       listings,
		"pagination": pg.Meta(total),
	})
}
