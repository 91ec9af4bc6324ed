package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/autolead/internal/diagnostics"
	"github.com/example/autolead/internal/services"
)

// Counters aggregates the numbers shown on the admin dashboard.
type Counters struct {
	Users      func(ctx context.Context) (int64, error)
	Quotations func(ctx context.Context) (total, verified int64, err error)
	Listings   func(ctx context.Context) (map[string]int64, error)
	Cars       func(ctx context.Context) (int64, error)
}

// Syncer runs one catalog sync pass.
type Syncer interface {
	Sync(ctx context.Context) (services.SyncResult, error)
}

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	counters Counters
	ring     *diagnostics.Ring
	syncer   Syncer
	log      *zap.Logger
}

// NewAdminHandler constructs AdminHandler. syncer may be nil when no catalog feed is configured.
func NewAdminHandler(counters Counters, ring *diagnostics.Ring, syncer Syncer, log *zap.Logger) *AdminHandler {
	return &AdminHandler{counters: counters, ring: ring, syncer: syncer, log: log}
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	totalUsers, err := h.counters.Users(ctx)
	if err != nil {
		return err
	}
	totalQuotes, verifiedQuotes, err := h.counters.Quotations(ctx)
	if err != nil {
		return err
	}
	listingsByStatus, err := h.counters.Listings(ctx)
	if err != nil {
		return err
	}
	totalCars, err := h.counters.Cars(ctx)
	if err != nil {
		return err
	}

	var totalListings int64
	for _, n := range listingsByStatus {
		totalListings += n
	}

	return c.JSON(success(fiber.Map{
		"total_users":         totalUsers,
		"total_quotations":    totalQuotes,
		"verified_quotations": verifiedQuotes,
		"total_listings":      totalListings,
		"listings_by_status":  listingsByStatus,
		"total_cars":          totalCars,
	}))
}

// Diagnostics returns the most recent notification attempts, newest first.
func (h *AdminHandler) Diagnostics(c *fiber.Ctx) error {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.ring.Recent(limit),
		"size":    h.ring.Len(),
	})
}

// CatalogSync pulls the external catalog feed on demand.
func (h *AdminHandler) CatalogSync(c *fiber.Ctx) error {
	if h.syncer == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "catalog feed not configured")
	}
	result, err := h.syncer.Sync(c.UserContext())
	if err != nil {
		h.log.Error("admin: catalog sync failed", zap.Error(err))
		return fiber.NewError(fiber.StatusBadGateway, "catalog sync failed")
	}
	return c.JSON(success(result))
}
