package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/danukusuma/auth-service/internal/auth/dto"
	"github.com/danukusuma/auth-service/internal/auth/service"
)

type TwoFactorHandler struct {
	userService *service.UserService
	validate    *validator.Validate
}

func NewTwoFactorHandler(userService *service.UserService) *TwoFactorHandler {
	return &TwoFactorHandler{
		userService: userService,
		validate:    validator.New(),
	}
}

// Enroll generates a fresh secret and provisioning URI. 2FA stays off until
// the caller confirms with a valid code.
func (h *TwoFactorHandler) Enroll(c *fiber.Ctx) error {
	out, err := h.userService.Enroll2FA(c.Context(), accountID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// Confirm enables 2FA and returns the backup codes, this is the only time
// they are ever visible.
func (h *TwoFactorHandler) Confirm(c *fiber.Ctx) error {
	var input dto.ConfirmTwoFactorInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if err := h.validate.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	out, err := h.userService.Confirm2FA(c.Context(), accountID(c), input.Code)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// Verify is the step-up check for sensitive operations outside the login
// pipeline.
func (h *TwoFactorHandler) Verify(c *fiber.Ctx) error {
	var input dto.VerifyTwoFactorInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	ok, err := h.userService.Verify2FA(c.Context(), accountID(c), input)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"verified": ok})
}

func (h *TwoFactorHandler) Disable(c *fiber.Ctx) error {
	var input dto.DisableTwoFactorInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if err := h.validate.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	if err := h.userService.Disable2FA(c.Context(), accountID(c), input); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
