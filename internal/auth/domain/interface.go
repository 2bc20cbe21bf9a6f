package domain

//go:generate mockgen -destination=../../mocks/mock_repositories.go -package=mocks github.com/danukusuma/auth-service/internal/auth/domain AccountRepository,TokenRepository,SessionRepository,SecurityRepository,WebAuthnRepository

import (
	"context"
	"time"
)

// AccountRepository owns the accounts table. Lookups return (nil, nil) when
// the row is absent so callers can fold "unknown account" and "wrong password"
// into the same external failure.
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetActive(ctx context.Context, id string, active bool) error

	// RegisterFailedAttempt increments the failed-login counter and, when the
	// post-increment value reaches threshold, sets the lockout expiry, all in
	// a single conditional update. It returns the post-increment counter and
	// the lockout expiry (nil while still unlocked). Concurrent failures for
	// the same account must each observe a distinct counter value.
	RegisterFailedAttempt(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error)

	// ResetLockout zeroes the counter, clears the expiry and records the
	// origin of the successful login.
	ResetLockout(ctx context.Context, id, lastKnownIP string) error

	SetTwoFactor(ctx context.Context, id, secretEnc string, enabled bool) error
	SetBackupCodes(ctx context.Context, id string, hashes []string) error
	SetAllowedIPs(ctx context.Context, id string, entries []string) error
}

// TokenRepository stores refresh tokens, keyed only by digest.
type TokenRepository interface {
	Store(ctx context.Context, token *RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForAccount(ctx context.Context, accountID string) (int64, error)
	ActiveCount(ctx context.Context, accountID string) (int, error)
	DeleteOldestForAccount(ctx context.Context, accountID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type SessionRepository interface {
	// CreateWithCap inserts the session after evicting the oldest live one if
	// the account already holds cap live sessions. The count-evict-insert
	// sequence runs inside one transaction holding the account row lock, so
	// concurrent creations cannot transiently exceed the cap. It returns the
	// id of the evicted session, if any.
	CreateWithCap(ctx context.Context, session *Session, cap int) (string, error)

	GetByID(ctx context.Context, id string) (*Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	ListForAccount(ctx context.Context, accountID string, activeOnly bool) ([]Session, error)
	Revoke(ctx context.Context, id, reason string) error
	RevokeAllForAccount(ctx context.Context, accountID, exceptTokenHash, reason string) (int64, error)
	TouchActivity(ctx context.Context, tokenHash string, at time.Time) error

	// RotateToken rebinds a session to the refresh token that replaced the
	// one it was created with, bumping last-activity but never the expiry.
	RotateToken(ctx context.Context, oldTokenHash, newTokenHash string, at time.Time) error
}

// SecurityRepository is the append-only audit trail: login attempts and alerts.
type SecurityRepository interface {
	RecordAttempt(ctx context.Context, attempt *LoginAttempt) error
	RecentAttempts(ctx context.Context, accountID string, since time.Time) ([]LoginAttempt, error)
	DistinctSuccessIPs(ctx context.Context, accountID string, since time.Time) ([]string, error)
	CreateAlert(ctx context.Context, alert *SecurityAlert) error
	ListAlerts(ctx context.Context, accountID string, unacknowledgedOnly bool) ([]SecurityAlert, error)
	AcknowledgeAlert(ctx context.Context, alertID string) error
}

type WebAuthnRepository interface {
	CreateCredential(ctx context.Context, cred *WebAuthnCredential) error
	CredentialsForAccount(ctx context.Context, accountID string) ([]WebAuthnCredential, error)
	UpdateSignCount(ctx context.Context, id string, signCount uint32, lastUsedAt time.Time) error
	DeactivateCredential(ctx context.Context, accountID, id string) error
}
