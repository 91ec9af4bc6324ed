package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autolead/internal/utils"
)

const secret = "test-secret"

func whoAmI(c *fiber.Ctx) error {
	id, ok := GetCurrentUserID(c)
	if !ok {
		return c.SendString("anonymous")
	}
	return c.SendString(id.String())
}

func send(t *testing.T, app *fiber.App, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	return resp.StatusCode, string(buf[:n])
}

func TestAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", AuthMiddleware(secret), whoAmI)

	userID := uuid.New()
	session, err := utils.GenerateToken(secret, userID, time.Hour)
	require.NoError(t, err)
	proof, err := utils.GenerateVerificationToken(secret, userID, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"verification token is not a session", "Bearer " + proof, http.StatusUnauthorized},
		{"valid session", "Bearer " + session, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			status, body := send(t, app, headers)
			assert.Equal(t, tt.status, status)
			if tt.status == http.StatusOK {
				assert.Equal(t, userID.String(), body)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/", OptionalAuth(secret), whoAmI)

	userID := uuid.New()
	session, err := utils.GenerateToken(secret, userID, time.Hour)
	require.NoError(t, err)

	status, body := send(t, app, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anonymous", body)

	status, body = send(t, app, map[string]string{"Authorization": "Bearer broken"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "anonymous", body)

	status, body = send(t, app, map[string]string{"Authorization": "Bearer " + session})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, userID.String(), body)
}

func TestAdminKeyMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", AdminKeyMiddleware("k3y"), whoAmI)

	status, _ := send(t, app, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = send(t, app, map[string]string{AdminKeyHeader: "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = send(t, app, map[string]string{AdminKeyHeader: "k3y"})
	assert.Equal(t, http.StatusOK, status)

	disabled := fiber.New()
	disabled.Get("/", AdminKeyMiddleware(""), whoAmI)
	status, _ = send(t, disabled, map[string]string{AdminKeyHeader: ""})
	assert.Equal(t, http.StatusForbidden, status)
}
