package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/utils"
)

// CarCatalog reads synced catalog cars.
type CarCatalog interface {
	CarLookup
	List(ctx context.Context, f repository.CarFilter, limit, offset int) ([]models.Car, int64, error)
}

// CarHandler exposes the synced car catalog to the car selection step.
type CarHandler struct {
	cars CarCatalog
}

// NewCarHandler constructs CarHandler.
func NewCarHandler(cars CarCatalog) *CarHandler {
	return &CarHandler{cars: cars}
}

// ListCars returns paginated catalog cars filtered by brand, year and max_price.
func (h *CarHandler) ListCars(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	filter := repository.CarFilter{Brand: c.Query("brand")}
	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid year")
		}
		filter.Year = year
	}
	if raw := c.Query("max_price"); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid max_price")
		}
		filter.MaxPrice = price
	}

	cars, total, err := h.cars.List(c.UserContext(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       cars,
		"pagination": pg.Meta(total),
	})
}

// GetCar returns a single car by ID.
func (h *CarHandler) GetCar(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	car, err := h.cars.FindByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(success(car))
}
