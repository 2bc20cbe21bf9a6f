package domain

import "time"

const (
	RevokeReasonUser        = "user_revoked"
	RevokeReasonAdmin       = "admin_revoked"
	RevokeReasonMaxSessions = "max_sessions_exceeded"
	RevokeReasonPassword    = "password_changed"
)

type Session struct {
	ID              string
	AccountID       string
	TokenHash       string // hash of the refresh token bound to this device
	FingerprintHash string
	Fingerprint     string // raw fingerprint payload as sent by the client
	IPAddress       string
	UserAgent       string
	Active          bool
	RevokedReason   string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastActivityAt  time.Time
}

func (s *Session) Live(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type WebAuthnCredential struct {
	ID           string
	AccountID    string
	CredentialID []byte // opaque authenticator-assigned id, unique per account
	PublicKey    []byte
	SignCount    uint32
	Label        string
	Transports   []string
	Active       bool
	LastUsedAt   *time.Time
	CreatedAt    time.Time
}
