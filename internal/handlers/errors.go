package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/autolead/internal/drafts"
	"github.com/example/autolead/internal/flow"
	"github.com/example/autolead/internal/pricing"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/utils"
	"github.com/example/autolead/internal/verification"
	"github.com/example/autolead/internal/wizard"
)

// Recovery actions offered by the client's error view.
var stepRecovery = []string{"retry", "back", "home"}

// StepError is a load-bearing failure that blocks the current wizard step.
type StepError struct {
	Status     int
	Message    string
	Recovery   []string
	RetryAfter int
}

func (e *StepError) Error() string { return e.Message }

func stepFailure(status int, msg string) *StepError {
	return &StepError{Status: status, Message: msg, Recovery: stepRecovery}
}

// mapError translates domain errors into HTTP errors. Unknown errors pass through.
func mapError(err error) error {
	var (
		fields   utils.FieldErrors
		cooldown *verification.CooldownError
	)
	switch {
	case errors.As(err, &fields):
		return fields
	case errors.As(err, &cooldown):
		return &StepError{
			Status:     fiber.StatusTooManyRequests,
			Message:    "a new code can be requested shortly",
			RetryAfter: int(cooldown.Remaining.Seconds() + 0.999),
		}
	case errors.Is(err, drafts.ErrNoDraft):
		return stepFailure(fiber.StatusNotFound, "no draft to continue, please start again")
	case errors.Is(err, wizard.ErrIncompleteSnapshot):
		return stepFailure(fiber.StatusConflict, "the saved draft is incomplete, please start again")
	case errors.Is(err, flow.ErrListingUnresolved):
		return stepFailure(fiber.StatusConflict, "the listing for this valuation could not be found")
	case errors.Is(err, verification.ErrNoActiveChallenge):
		return stepFailure(fiber.StatusGone, "the verification code expired, request a new one")
	case errors.Is(err, verification.ErrDispatchFailed):
		return stepFailure(fiber.StatusBadGateway, "the verification code could not be sent")
	case errors.Is(err, flow.ErrSelectionInProgress):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, flow.ErrWrongKind), errors.Is(err, wizard.ErrIllegalTransition),
		errors.Is(err, repository.ErrStatusConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, wizard.ErrCarPriceTooLow):
		return utils.FieldErrors{"car_price": fmt.Sprintf("must be at least %d", pricing.MinCarPrice)}
	case errors.Is(err, flow.ErrNoEmail):
		return utils.FieldErrors{"email": "is required"}
	case errors.Is(err, repository.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "not found")
	}
	return err
}

// ErrorHandler renders every error as {"success": false, "error": ...}.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		err = mapError(err)

		var (
			fields utils.FieldErrors
			step   *StepError
			fe     *fiber.Error
		)
		switch {
		case errors.As(err, &fields):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"success": false,
				"error":   "validation failed",
				"fields":  fields,
			})
		case errors.As(err, &step):
			body := fiber.Map{"success": false, "error": step.Message}
			if len(step.Recovery) > 0 {
				body["recovery"] = step.Recovery
			}
			if step.RetryAfter > 0 {
				body["retry_after"] = step.RetryAfter
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(step.RetryAfter))
			}
			return c.Status(step.Status).JSON(body)
		case errors.As(err, &fe):
			return c.Status(fe.Code).JSON(fiber.Map{"success": false, "error": fe.Message})
		}

		log.Error("unhandled request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "internal server error",
		})
	}
}

// parseBody decodes and validates the JSON body into req.
func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return utils.ValidateStruct(req)
}

func parseID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}
