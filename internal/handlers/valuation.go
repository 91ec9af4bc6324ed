package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/autolead/internal/drafts"
	"github.com/example/autolead/internal/flow"
	"github.com/example/autolead/internal/middleware"
	"github.com/example/autolead/internal/pricing"
	"github.com/example/autolead/internal/wizard"
)

// ValuationHandler serves the seller valuation wizard.
type ValuationHandler struct {
	flow   *flow.ValuationFlow
	tokens Tokens
}

// NewValuationHandler constructs a ValuationHandler.
func NewValuationHandler(f *flow.ValuationFlow, tokens Tokens) *ValuationHandler {
	return &ValuationHandler{flow: f, tokens: tokens}
}

type vehicleRequest struct {
	Brand     string   `json:"brand" validate:"required,max=60"`
	Model     string   `json:"model" validate:"required,max=60"`
	Year      int      `json:"year" validate:"required,gte=1980,lte=2100"`
	Version   string   `json:"version" validate:"max=120"`
	Mileage   int64    `json:"mileage" validate:"gte=0"`
	Condition string   `json:"condition" validate:"omitempty,condition"`
	Location  string   `json:"location" validate:"max=120"`
	Features  []string `json:"features" validate:"max=30,dive,max=60"`
	ClientKey string   `json:"client_key" validate:"max=64"`
}

func (r vehicleRequest) vehicle() wizard.Vehicle {
	return wizard.Vehicle{
		Brand:     r.Brand,
		Model:     r.Model,
		Year:      r.Year,
		Version:   r.Version,
		Mileage:   r.Mileage,
		Condition: r.Condition,
		Location:  r.Location,
		Features:  r.Features,
	}
}

// Estimate prices a vehicle without starting a flow.
func (h *ValuationHandler) Estimate(c *fiber.Ctx) error {
	var req vehicleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return c.JSON(success(h.flow.Estimate(req.vehicle())))
}

// StartFlow opens a valuation flow at the seller info step.
func (h *ValuationHandler) StartFlow(c *fiber.Ctx) error {
	var req vehicleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.flow.Start(c.UserContext(), flow.StartValuation{
		Vehicle:   req.vehicle(),
		ClientKey: req.ClientKey,
		Session:   sessionOf(c),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(withWarnings(success(view), view.Warnings))
}

// SubmitSeller records the seller and sends a code unless the phone was verified recently.
func (h *ValuationHandler) SubmitSeller(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req contactRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.flow.SubmitSeller(c.UserContext(), id, req.contact(), sessionOf(c))
	if err != nil {
		return err
	}
	return h.respond(c, view)
}

// Verify checks the submitted code.
func (h *ValuationHandler) Verify(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req verifyCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.flow.Verify(c.UserContext(), id, req.Code, sessionOf(c))
	if err != nil {
		return err
	}
	return h.respond(c, view)
}

// Resend issues a new code after the cooldown.
func (h *ValuationHandler) Resend(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	view, err := h.flow.Resend(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(success(view))
}

type selectTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=quick balanced premium"`
}

// SelectTier stores the chosen price tier on the listing.
func (h *ValuationHandler) SelectTier(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req selectTierRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tier, err := pricing.ParseTier(req.Tier)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	view, err := h.flow.SelectTier(c.UserContext(), id, tier)
	if err != nil {
		return err
	}
	return c.JSON(withWarnings(success(view), view.Warnings))
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=continue save_and_exit"`
}

// Decide continues to photos or parks the listing as a draft.
func (h *ValuationHandler) Decide(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	decision, err := wizard.ParseDecision(req.Decision)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	view, err := h.flow.Decide(c.UserContext(), id, decision)
	if err != nil {
		return err
	}
	return c.JSON(withWarnings(success(view), view.Warnings))
}

// Resume recovers a valuation in progress from navigation state, the account or the device.
func (h *ValuationHandler) Resume(c *fiber.Ctx) error {
	req := drafts.ResolveRequest{
		ClientKey: c.Query("client_key"),
		UserID:    sessionOf(c).UserID,
	}
	if raw := c.Query("flow_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid flow_id")
		}
		req.FlowID = &id
	}
	if req.FlowID == nil && req.ClientKey == "" && req.UserID == nil {
		return fiber.NewError(fiber.StatusBadRequest, "flow_id, client_key or a session is required")
	}
	view, err := h.flow.Resume(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(withWarnings(success(view), view.Warnings))
}

type photosRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,max=20,dive,url"`
}

// AddPhotos attaches uploaded photos to the caller's listing.
func (h *ValuationHandler) AddPhotos(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req photosRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	listing, err := h.flow.AddPhotos(c.UserContext(), userID, id, req.URLs)
	if err != nil {
		return err
	}
	return c.JSON(success(listing))
}

func (h *ValuationHandler) respond(c *fiber.Ctx, view *flow.ValuationView) error {
	resp, err := h.tokens.verifiedResponse(view, view.NextStep, view.UserID)
	if err != nil {
		return err
	}
	return c.JSON(withWarnings(resp, view.Warnings))
}
