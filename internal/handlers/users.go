package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/utils"
)

// UserAdminStore is the user repository as seen by the admin CRUD endpoints.
type UserAdminStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id uuid.UUID, patch models.User) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]models.User, int64, error)
}

// UserHandler is the generic user table CRUD used by back-office tooling.
type UserHandler struct {
	users UserAdminStore
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(users UserAdminStore) *UserHandler {
	return &UserHandler{users: users}
}

type userRequest struct {
	Name        string `json:"name" validate:"max=120"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"omitempty,phone10"`
	CountryCode string `json:"country_code" validate:"omitempty,country_code"`
	Role        string `json:"role" validate:"omitempty,oneof=buyer seller both"`
}

func (r userRequest) model() models.User {
	u := models.User{Name: r.Name, Email: r.Email, Role: r.Role}
	if r.Phone != "" {
		u.Phone = utils.NormalizePhone(r.Phone)
	}
	if r.CountryCode != "" {
		u.CountryCode = utils.NormalizeCountryCode(r.CountryCode)
	}
	return u
}

// ListUsers returns users with pagination, newest first.
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	users, total, err := h.users.List(c.UserContext(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       users,
		"pagination": pg.Meta(total),
	})
}

// GetUser returns a single user.
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	user, err := h.users.FindByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(success(user))
}

// CreateUser inserts a user row. Phone is mandatory here since it is the identity key.
func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req userRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Phone == "" {
		return utils.FieldErrors{"phone": "is required"}
	}
	user := req.model()
	if user.CountryCode == "" {
		user.CountryCode = utils.DefaultCountryCode
	}
	if err := h.users.Create(c.UserContext(), &user); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(success(user))
}

// UpdateUser patches the non-empty fields.
func (h *UserHandler) UpdateUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req userRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.users.Update(c.UserContext(), id, req.model())
	if err != nil {
		return err
	}
	return c.JSON(success(user))
}

// DeleteUser removes a user.
func (h *UserHandler) DeleteUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.users.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
