package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountDisabled       = errors.New("account disabled")
	ErrEmailAlreadyInUse     = errors.New("email already in use")
	ErrWeakPassword          = errors.New("password does not meet strength requirements")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenRevoked          = errors.New("token revoked")
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTwoFactorRequired     = errors.New("two-factor code required")
	ErrTwoFactorInvalid      = errors.New("two-factor code invalid")
	ErrTwoFactorNotEnabled   = errors.New("two-factor authentication not enabled")
	ErrBackupCodeExhausted   = errors.New("no backup codes remaining")
	ErrChallengeInvalid      = errors.New("challenge expired or invalid")
	ErrCounterRegression     = errors.New("authenticator signature counter regression")
	ErrCredentialExists      = errors.New("credential already registered")
	ErrIPNotAllowed          = errors.New("origin IP not allowed")
	ErrEncryptionUnavailable = errors.New("encryption key not configured")
	ErrSessionNotFound       = errors.New("session not found")
	ErrAccountNotFound       = errors.New("account not found")
)

// AccountLockedError carries how long the caller has to wait. It is returned
// for every attempt made while the lockout window is open, including attempts
// with the correct password.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.Until.Format(time.RFC3339))
}

// RemainingMinutes is rounded up so a caller never retries early.
func (e *AccountLockedError) RemainingMinutes(now time.Time) int {
	rem := e.Until.Sub(now)
	if rem <= 0 {
		return 0
	}
	return int((rem + time.Minute - 1) / time.Minute)
}

// RateLimitedError is returned when the sliding-window limiter denies a key.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// IsLocked unwraps err as an AccountLockedError.
func IsLocked(err error) (*AccountLockedError, bool) {
	var le *AccountLockedError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsRateLimited unwraps err as a RateLimitedError.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var re *RateLimitedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
