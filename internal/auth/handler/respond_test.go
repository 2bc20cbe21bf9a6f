package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	autherror "github.com/danukusuma/auth-service/internal/errors"
)

func performError(t *testing.T, err error) *http.Response {
	t.Helper()
	app := fiber.New()
	app.Get("/err", func(c *fiber.Ctx) error { return writeError(c, err) })

	resp, aerr := app.Test(httptest.NewRequest(http.MethodGet, "/err", nil))
	require.NoError(t, aerr)
	return resp
}

func TestWriteErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid credentials", autherror.ErrInvalidCredentials, fiber.StatusUnauthorized},
		{"token expired", autherror.ErrTokenExpired, fiber.StatusUnauthorized},
		{"token revoked", autherror.ErrTokenRevoked, fiber.StatusUnauthorized},
		{"token malformed", autherror.ErrTokenMalformed, fiber.StatusUnauthorized},
		{"two-factor invalid", autherror.ErrTwoFactorInvalid, fiber.StatusUnauthorized},
		{"two-factor required", autherror.ErrTwoFactorRequired, fiber.StatusUnauthorized},
		{"account disabled", autherror.ErrAccountDisabled, fiber.StatusForbidden},
		{"ip not allowed", autherror.ErrIPNotAllowed, fiber.StatusForbidden},
		{"backup codes exhausted", autherror.ErrBackupCodeExhausted, fiber.StatusForbidden},
		{"counter regression", autherror.ErrCounterRegression, fiber.StatusForbidden},
		{"email in use", autherror.ErrEmailAlreadyInUse, fiber.StatusConflict},
		{"credential exists", autherror.ErrCredentialExists, fiber.StatusConflict},
		{"weak password", autherror.ErrWeakPassword, fiber.StatusBadRequest},
		{"weak password wrapped", fmt.Errorf("%w: too short", autherror.ErrWeakPassword), fiber.StatusBadRequest},
		{"challenge invalid", autherror.ErrChallengeInvalid, fiber.StatusBadRequest},
		{"two-factor not enabled", autherror.ErrTwoFactorNotEnabled, fiber.StatusBadRequest},
		{"account not found", autherror.ErrAccountNotFound, fiber.StatusNotFound},
		{"session not found", autherror.ErrSessionNotFound, fiber.StatusNotFound},
		{"encryption unavailable", autherror.ErrEncryptionUnavailable, fiber.StatusServiceUnavailable},
		{"unclassified", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := performError(t, tt.err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestWriteErrorLocked(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })

	resp := performError(t, &autherror.AccountLockedError{
		Until: now.Add(12*time.Minute + 30*time.Second),
	})
	assert.Equal(t, fiber.StatusLocked, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	// Rounded up so clients never retry early.
	assert.Equal(t, float64(13), body["retry_after_min"])
	assert.Contains(t, body, "locked_until_utc")
}

func TestWriteErrorRateLimited(t *testing.T) {
	resp := performError(t, &autherror.RateLimitedError{RetryAfter: 42 * time.Second})

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "43", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestWriteErrorTwoFactorRequiredFlag(t *testing.T) {
	resp := performError(t, autherror.ErrTwoFactorRequired)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["two_factor_required"])
}
