package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/autolead/internal/flow"
	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/utils"
	"github.com/example/autolead/internal/wizard"
)

// CarLookup resolves catalog cars picked on the car selection step.
type CarLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Car, error)
}

// QuoteHandler serves the loan quote wizard.
type QuoteHandler struct {
	flow   *flow.QuoteFlow
	cars   CarLookup
	tokens Tokens
}

// NewQuoteHandler constructs a QuoteHandler.
func NewQuoteHandler(f *flow.QuoteFlow, cars CarLookup, tokens Tokens) *QuoteHandler {
	return &QuoteHandler{flow: f, cars: cars, tokens: tokens}
}

type calculateRequest struct {
	CarPrice              int64 `json:"car_price" validate:"required,gte=50000"`
	DownPaymentPercentage int   `json:"down_payment_percentage" validate:"gte=10,lte=50,step5"`
	Term                  int   `json:"term" validate:"loan_term"`
}

// Calculate prices a car for every term without starting a flow.
func (h *QuoteHandler) Calculate(c *fiber.Ctx) error {
	var req calculateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	quote, terms := h.flow.Calculate(wizard.CarChoice{
		Price:                 req.CarPrice,
		DownPaymentPercentage: req.DownPaymentPercentage,
		Term:                  req.Term,
	})
	return c.JSON(success(fiber.Map{"quote": quote, "terms": terms}))
}

type startQuoteRequest struct {
	CarID                 *uuid.UUID `json:"car_id"`
	Brand                 string     `json:"brand" validate:"max=60"`
	Model                 string     `json:"model" validate:"max=60"`
	Year                  int        `json:"year" validate:"omitempty,gte=1980,lte=2100"`
	CarPrice              int64      `json:"car_price" validate:"omitempty,gte=50000"`
	DownPaymentPercentage int        `json:"down_payment_percentage" validate:"gte=10,lte=50,step5"`
	Term                  int        `json:"term" validate:"loan_term"`
	ClientKey             string     `json:"client_key" validate:"omitempty,max=64"`
}

// StartFlow opens a quote flow at the buyer info step.
func (h *QuoteHandler) StartFlow(c *fiber.Ctx) error {
	var req startQuoteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	car := wizard.CarChoice{
		Brand:                 req.Brand,
		Model:                 req.Model,
		Year:                  req.Year,
		Price:                 req.CarPrice,
		DownPaymentPercentage: req.DownPaymentPercentage,
		Term:                  req.Term,
	}
	if req.CarID != nil {
		listed, err := h.cars.FindByID(c.UserContext(), *req.CarID)
		if errors.Is(err, repository.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "car not found")
		}
		if err != nil {
			return err
		}
		car.CatalogID = &listed.ID
		car.Brand, car.Model, car.Year, car.Price = listed.Brand, listed.Model, listed.Year, listed.Price
	} else if missing := manualCarErrors(req); len(missing) > 0 {
		return missing
	}

	view, err := h.flow.Start(c.UserContext(), flow.StartQuote{Car: car, ClientKey: req.ClientKey, Session: sessionOf(c)})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(withWarnings(success(view), view.Warnings))
}

// manualCarErrors checks the fields a free-form car needs when no catalog id is sent.
func manualCarErrors(req startQuoteRequest) utils.FieldErrors {
	out := utils.FieldErrors{}
	if req.Brand == "" {
		out["brand"] = "is required"
	}
	if req.Model == "" {
		out["model"] = "is required"
	}
	if req.CarPrice == 0 {
		out["car_price"] = "is required"
	}
	return out
}

type contactRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"required,phone10"`
	CountryCode string `json:"country_code" validate:"omitempty,country_code"`
}

func (r contactRequest) contact() wizard.Contact {
	return wizard.Contact{Name: r.Name, Email: r.Email, Phone: r.Phone, CountryCode: r.CountryCode}
}

// SubmitBuyer records the buyer and sends a code unless the phone was verified recently.
func (h *QuoteHandler) SubmitBuyer(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req contactRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.flow.SubmitBuyer(c.UserContext(), id, req.contact(), sessionOf(c))
	if err != nil {
		return err
	}
	return h.respond(c, view)
}

type verifyCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Verify checks the submitted code.
func (h *QuoteHandler) Verify(c *fiber.Ctx) error {
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
func (h *QuoteHandler) Resend(c *fiber.Ctx) error {
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

type termRequest struct {
	Term int `json:"term" validate:"loan_term"`
}

// ChangeTerm switches the quote tab.
func (h *QuoteHandler) ChangeTerm(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req termRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	view, err := h.flow.ChangeTerm(c.UserContext(), id, req.Term)
	if err != nil {
		return err
	}
	return c.JSON(withWarnings(success(view), view.Warnings))
}

// Get returns a saved quotation for the shared results link.
func (h *QuoteHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	saved, err := h.flow.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(success(saved))
}

type emailQuoteRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// Email queues the quote summary mail.
func (h *QuoteHandler) Email(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req emailQuoteRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	if err := h.flow.EmailQuote(c.UserContext(), id, req.Email); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
}

func (h *QuoteHandler) respond(c *fiber.Ctx, view *flow.QuoteView) error {
	resp, err := h.tokens.verifiedResponse(view, view.NextStep, view.UserID)
	if err != nil {
		return err
	}
	return c.JSON(withWarnings(resp, view.Warnings))
}
