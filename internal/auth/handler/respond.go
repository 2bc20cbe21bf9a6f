package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	autherror "github.com/danukusuma/auth-service/internal/errors"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

// writeError maps service errors onto the HTTP contract: 401 for credential
// and token failures, 423 for lockout, 429 with Retry-After for rate
// limiting, 403 for policy rejections, 503 when a required key is missing.
func writeError(c *fiber.Ctx, err error) error {
	if locked, ok := autherror.IsLocked(err); ok {
		return c.Status(fiber.StatusLocked).JSON(fiber.Map{
			"error":            "account locked",
			"retry_after_min":  locked.RemainingMinutes(timeNow()),
			"locked_until_utc": locked.Until.UTC(),
		})
	}
	if limited, ok := autherror.IsRateLimited(err); ok {
		c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(limited.RetryAfter.Seconds())+1))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "too many requests",
		})
	}

	switch {
	case errors.Is(err, autherror.ErrInvalidCredentials),
		errors.Is(err, autherror.ErrTokenExpired),
		errors.Is(err, autherror.ErrTokenRevoked),
		errors.Is(err, autherror.ErrTokenMalformed),
		errors.Is(err, autherror.ErrTwoFactorInvalid):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, autherror.ErrTwoFactorRequired):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":               err.Error(),
			"two_factor_required": true,
		})

	case errors.Is(err, autherror.ErrAccountDisabled),
		errors.Is(err, autherror.ErrIPNotAllowed),
		errors.Is(err, autherror.ErrBackupCodeExhausted),
		errors.Is(err, autherror.ErrCounterRegression):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, autherror.ErrEmailAlreadyInUse),
		errors.Is(err, autherror.ErrCredentialExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, autherror.ErrWeakPassword),
		errors.Is(err, autherror.ErrChallengeInvalid),
		errors.Is(err, autherror.ErrTwoFactorNotEnabled):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, autherror.ErrAccountNotFound),
		errors.Is(err, autherror.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, autherror.ErrEncryptionUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})

	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
