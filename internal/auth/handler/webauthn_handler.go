package handler

import (
	"bytes"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/danukusuma/auth-service/internal/auth/dto"
	"github.com/danukusuma/auth-service/internal/auth/service"
)

// WebAuthnHandler exposes the FIDO2 ceremonies as a step-up factor for an
// already-authenticated account: register a key, then prove possession of it.
type WebAuthnHandler struct {
	userService     *service.UserService
	webauthnService *service.WebAuthnService
	validate        *validator.Validate
}

func NewWebAuthnHandler(userService *service.UserService, webauthnService *service.WebAuthnService) *WebAuthnHandler {
	return &WebAuthnHandler{
		userService:     userService,
		webauthnService: webauthnService,
		validate:        validator.New(),
	}
}

func (h *WebAuthnHandler) BeginRegistration(c *fiber.Ctx) error {
	account, err := h.userService.GetAccount(c.Context(), accountID(c))
	if err != nil {
		return writeError(c, err)
	}

	creation, challengeID, err := h.webauthnService.BeginRegistration(c.Context(), account)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"challenge_id": challengeID,
		"options":      creation,
	})
}

func (h *WebAuthnHandler) FinishRegistration(c *fiber.Ctx) error {
	var input dto.WebAuthnFinishInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if err := h.validate.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	account, err := h.userService.GetAccount(c.Context(), accountID(c))
	if err != nil {
		return writeError(c, err)
	}

	cred, err := h.webauthnService.FinishRegistration(c.Context(), account,
		input.ChallengeID, input.Label, bytes.NewReader(input.Response))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    cred.ID,
		"label": cred.Label,
	})
}

func (h *WebAuthnHandler) BeginLogin(c *fiber.Ctx) error {
	account, err := h.userService.GetAccount(c.Context(), accountID(c))
	if err != nil {
		return writeError(c, err)
	}

	assertion, challengeID, err := h.webauthnService.BeginLogin(c.Context(), account)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"challenge_id": challengeID,
		"options":      assertion,
	})
}

func (h *WebAuthnHandler) FinishLogin(c *fiber.Ctx) error {
	var input dto.WebAuthnFinishInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if err := h.validate.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	account, err := h.userService.GetAccount(c.Context(), accountID(c))
	if err != nil {
		return writeError(c, err)
	}

	cred, err := h.webauthnService.FinishLogin(c.Context(), account,
		input.ChallengeID, bytes.NewReader(input.Response))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"verified":      true,
		"credential_id": cred.ID,
		"label":         cred.Label,
	})
}

func (h *WebAuthnHandler) ListCredentials(c *fiber.Ctx) error {
	creds, err := h.webauthnService.ListCredentials(c.Context(), accountID(c))
	if err != nil {
		return writeError(c, err)
	}

	out := make([]fiber.Map, 0, len(creds))
	for _, cred := range creds {
		out = append(out, fiber.Map{
			"id":           cred.ID,
			"label":        cred.Label,
			"active":       cred.Active,
			"created_at":   cred.CreatedAt,
			"last_used_at": cred.LastUsedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *WebAuthnHandler) DeactivateCredential(c *fiber.Ctx) error {
	id := accountID(c)
	if err := h.webauthnService.DeactivateCredential(c.Context(), id, c.Params("id"), id); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
