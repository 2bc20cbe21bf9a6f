package dto

import "time"

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginInput struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	TwoFactorCode string `json:"two_factor_code,omitempty"`
	BackupCode    string `json:"backup_code,omitempty"`
	Fingerprint   string `json:"-"`
	IPAddress     string `json:"-"`
	UserAgent     string `json:"-"`
}

type RefreshInput struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	Fingerprint  string `json:"-"`
	IPAddress    string `json:"-"`
	UserAgent    string `json:"-"`
}

type LogoutInput struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"session_id"`
	RiskLevel    string    `json:"risk_level,omitempty"`
	RiskReasons  []string  `json:"risk_reasons,omitempty"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	// RefreshToken identifies the caller's own session, which survives the
	// revoke-everything sweep. Empty means no session is spared.
	RefreshToken string `json:"refresh_token,omitempty"`
}
