package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/danukusuma/auth-service/internal/auth/service"
)

func RegisterRoutes(app *fiber.App, tokens service.TokenGenerator,
	h *AuthHandler, tf *TwoFactorHandler, wa *WebAuthnHandler) {
	// Coarse per-IP guard on the unauthenticated surface. The service-level
	// limiter still makes the authoritative decision.
	public := app.Group("/api/v1", limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
	}))
	public.Post("/register", h.Register)
	public.Post("/login", h.Login)
	public.Post("/refresh", h.Refresh)
	public.Delete("/session", h.Logout)

	authed := app.Group("/api/v1", RequireAuth(tokens))
	authed.Post("/logout-all", h.LogoutAll)
	authed.Post("/password", h.ChangePassword)
	authed.Get("/sessions", h.ListSessions)
	authed.Delete("/sessions/:id", h.RevokeSession)
	authed.Post("/allowlist", h.AddAllowedIP)
	authed.Delete("/allowlist", h.RemoveAllowedIP)
	authed.Get("/alerts", h.ListAlerts)

	authed.Post("/2fa/enroll", tf.Enroll)
	authed.Post("/2fa/confirm", tf.Confirm)
	authed.Post("/2fa/verify", tf.Verify)
	authed.Post("/2fa/disable", tf.Disable)

	authed.Post("/webauthn/register/begin", wa.BeginRegistration)
	authed.Post("/webauthn/register/finish", wa.FinishRegistration)
	authed.Post("/webauthn/login/begin", wa.BeginLogin)
	authed.Post("/webauthn/login/finish", wa.FinishLogin)
	authed.Get("/webauthn/credentials", wa.ListCredentials)
	authed.Delete("/webauthn/credentials/:id", wa.DeactivateCredential)

	// Admin-only endpoints
	admin := app.Group("/api/v1/admin", RequireAuth(tokens), RequireRole("admin"))
	admin.Post("/user/:id/unlock", h.AdminUnlock)
	admin.Delete("/user/:id/sessions", h.ForceLogout)
	admin.Get("/user/:id/sessions", h.GetUserSessions)
	admin.Patch("/alerts/:id/ack", h.AcknowledgeAlert)
}
