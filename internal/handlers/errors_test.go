package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/autolead/internal/drafts"
	"github.com/example/autolead/internal/flow"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/utils"
	"github.com/example/autolead/internal/verification"
	"github.com/example/autolead/internal/wizard"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		recovery bool
	}{
		{"field errors", utils.FieldErrors{"term": "is invalid"}, http.StatusUnprocessableEntity, false},
		{"no draft", fmt.Errorf("load: %w", drafts.ErrNoDraft), http.StatusNotFound, true},
		{"incomplete snapshot", wizard.ErrIncompleteSnapshot, http.StatusConflict, true},
		{"listing unresolved", flow.ErrListingUnresolved, http.StatusConflict, true},
		{"code expired", verification.ErrNoActiveChallenge, http.StatusGone, true},
		{"sms down", fmt.Errorf("%w: timeout", verification.ErrDispatchFailed), http.StatusBadGateway, true},
		{"selection in progress", flow.ErrSelectionInProgress, http.StatusConflict, false},
		{"illegal transition", fmt.Errorf("%w: verify in quoted", wizard.ErrIllegalTransition), http.StatusConflict, false},
		{"sold listing", repository.ErrStatusConflict, http.StatusConflict, false},
		{"no email", flow.ErrNoEmail, http.StatusUnprocessableEntity, false},
		{"cheap car", wizard.ErrCarPriceTooLow, http.StatusUnprocessableEntity, false},
		{"not found", repository.ErrNotFound, http.StatusNotFound, false},
		{"fiber error", fiber.NewError(http.StatusTeapot, "short and stout"), http.StatusTeapot, false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
			app.Get("/", func(*fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, false, body["success"])
			_, hasRecovery := body["recovery"]
			assert.Equal(t, tt.recovery, hasRecovery)
		})
	}
}

func TestErrorHandlerCooldown(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/", func(*fiber.Ctx) error {
		return &verification.CooldownError{Remaining: 41500 * time.Millisecond}
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "42", resp.Header.Get(fiber.HeaderRetryAfter))
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 42, body["retry_after"])
}

func TestVerifiedResponse(t *testing.T) {
	tokens := Tokens{Secret: "s", SessionTTL: time.Hour, VerificationTTL: time.Minute}
	id := uuid.New()

	resp, err := tokens.verifiedResponse("view", flow.NextPasswordSetup, &id)
	require.NoError(t, err)
	token, ok := resp["verification_token"].(string)
	require.True(t, ok)
	got, err := utils.ParseVerificationToken("s", token)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	resp, err = tokens.verifiedResponse("view", flow.NextResults, &id)
	require.NoError(t, err)
	assert.NotContains(t, resp, "verification_token")
}

func TestWithWarnings(t *testing.T) {
	assert.NotContains(t, withWarnings(success(1), nil), "warnings")
	assert.Equal(t, []string{flow.WarnDraftNotSaved}, withWarnings(success(1), []string{flow.WarnDraftNotSaved})["warnings"])
}
