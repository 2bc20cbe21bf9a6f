package domain

import "time"

type Account struct {
	ID              string
	Email           string
	PasswordHash    string
	RoleID          int
	RoleName        string
	Active          bool
	TOTPSecretEnc   string // AES-GCM ciphertext, empty when 2FA never enrolled
	TwoFactorOn     bool
	BackupCodes     []string // sha256 digests, never the plaintext codes
	AllowedIPs      []string // exact IPs or CIDR ranges; empty = unrestricted
	LastKnownIP     string
	FailedLogins    int
	LockedUntil     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Locked reports whether the account is inside an open lockout window.
// The Locked -> Unlocked transition is lazy: callers treat an elapsed
// expiry as unlocked without waiting for a counter reset.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

type RefreshToken struct {
	ID        string
	AccountID string
	TokenHash string // sha256 hex of the raw token; raw value is never persisted
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

type LoginAttempt struct {
	ID            string
	AccountID     string
	IPAddress     string
	UserAgent     string
	Successful    bool
	FailureReason string
	AttemptTime   time.Time
}
