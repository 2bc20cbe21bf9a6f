package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/danukusuma/auth-service/internal/auth/domain"
	"github.com/danukusuma/auth-service/internal/auth/dto"
	"github.com/danukusuma/auth-service/internal/auth/service"
)

type AuthHandler struct {
	userService *service.UserService
	validate    *validator.Validate
}

func NewAuthHandler(userService *service.UserService) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		validate:    validator.New(),
	}
}

func (h *AuthHandler) parse(c *fiber.Ctx, input any) error {
	if err := c.BodyParser(input); err != nil {
		return err
	}
	return h.validate.Struct(input)
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := h.parse(c, &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	account, err := h.userService.Register(c.Context(), input)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    account.ID,
		"email": account.Email,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := h.parse(c, &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	// Capture metadata
	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())
	input.Fingerprint = c.Get("X-Device-Fingerprint")

	tokenPair, err := h.userService.Login(c.Context(), input)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokenPair)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var input dto.RefreshInput
	if err := h.parse(c, &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	input.Fingerprint = c.Get("X-Device-Fingerprint")
	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	tokens, err := h.userService.Refresh(c.Context(), input)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokens)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var input dto.LogoutInput
	if err := h.parse(c, &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	if err := h.userService.Logout(c.Context(), input.RefreshToken); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	if err := h.userService.LogoutAll(c.Context(), accountID(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var input dto.ChangePasswordInput
	if err := h.parse(c, &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	currentTokenHash := ""
	if input.RefreshToken != "" {
		currentTokenHash = service.HashToken(input.RefreshToken)
	}
	if err := h.userService.ChangePassword(c.Context(), accountID(c), input, currentTokenHash); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.userService.Sessions().List(c.Context(), accountID(c))
	if err != nil {
		return writeError(c, err)
	}

	out := make([]dto.SessionOutput, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, dto.SessionOutput{
			ID:             s.ID,
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
			CreatedAt:      s.CreatedAt,
			ExpiresAt:      s.ExpiresAt,
			LastActivityAt: s.LastActivityAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *AuthHandler) RevokeSession(c *fiber.Ctx) error {
	id := accountID(c)
	if err := h.userService.Sessions().Revoke(c.Context(), id, c.Params("id"), domain.RevokeReasonUser, id); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) AddAllowedIP(c *fiber.Ctx) error {
	var input dto.AllowlistInput
	if err := h.parse(c, &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	id := accountID(c)
	if err := h.userService.AddAllowedIP(c.Context(), id, input.Entry, id); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) RemoveAllowedIP(c *fiber.Ctx) error {
	var input dto.AllowlistInput
	if err := h.parse(c, &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	id := accountID(c)
	if err := h.userService.RemoveAllowedIP(c.Context(), id, input.Entry, id); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) ListAlerts(c *fiber.Ctx) error {
	unackOnly := c.QueryBool("unacknowledged")
	alerts, err := h.userService.Detector().ListAlerts(c.Context(), accountID(c), unackOnly)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(alerts)
}

// Admin-only endpoints.

func (h *AuthHandler) AdminUnlock(c *fiber.Ctx) error {
	if err := h.userService.Lockout().AdminUnlock(c.Context(), c.Params("id"), accountID(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) ForceLogout(c *fiber.Ctx) error {
	if err := h.userService.LogoutAll(c.Context(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) GetUserSessions(c *fiber.Ctx) error {
	sessions, err := h.userService.Sessions().List(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(sessions)
}

func (h *AuthHandler) AcknowledgeAlert(c *fiber.Ctx) error {
	if err := h.userService.Detector().AcknowledgeAlert(c.Context(), c.Params("id"), accountID(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
