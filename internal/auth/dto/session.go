package dto

import "time"

type SessionOutput struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type AllowlistInput struct {
	Entry string `json:"entry" validate:"required"`
}

type WebAuthnFinishInput struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Label       string `json:"label,omitempty"`
	// Response is the raw authenticator payload, forwarded verbatim to the
	// ceremony parser.
	Response []byte `json:"response" validate:"required"`
}
