package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danukusuma/auth-service/internal/audit"
	"github.com/danukusuma/auth-service/internal/auth/domain"
	autherror "github.com/danukusuma/auth-service/internal/errors"
)

// LockoutService owns the failed-attempt counter and the timed lockout
// transition. The counter increment and the threshold check happen in one
// conditional update inside the repository, so two concurrent failures can
// never both observe "below threshold".
type LockoutService struct {
	accounts  domain.AccountRepository
	security  domain.SecurityRepository
	audit     audit.Sink
	clock     domain.Clock
	threshold int
	duration  time.Duration
	log       zerolog.Logger
}

func NewLockoutService(accounts domain.AccountRepository, security domain.SecurityRepository,
	sink audit.Sink, clock domain.Clock, threshold, lockoutMinutes int, log zerolog.Logger) *LockoutService {
	return &LockoutService{
		accounts:  accounts,
		security:  security,
		audit:     sink,
		clock:     clock,
		threshold: threshold,
		duration:  time.Duration(lockoutMinutes) * time.Minute,
		log:       log.With().Str("component", "lockout").Logger(),
	}
}

// Check rejects while the lockout window is open, without consuming an
// attempt or touching the hasher. An elapsed window counts as unlocked; the
// counter reset happens on the next successful login.
func (s *LockoutService) Check(account *domain.Account) error {
	if account.Locked(s.clock.Now()) {
		return &autherror.AccountLockedError{Until: *account.LockedUntil}
	}
	return nil
}

// RecordFailure counts a failed verify. The attempt that pushes the counter
// to the threshold flips the account to locked and emits the critical alert;
// later concurrent failures see a higher counter and stay quiet.
func (s *LockoutService) RecordFailure(ctx context.Context, account *domain.Account, ip, userAgent, reason string) error {
	count, lockedUntil, err := s.accounts.RegisterFailedAttempt(ctx, account.ID, s.threshold, s.duration)
	if err != nil {
		return fmt.Errorf("register failed attempt: %w", err)
	}
	account.FailedLogins = count
	account.LockedUntil = lockedUntil

	if err := s.security.RecordAttempt(ctx, &domain.LoginAttempt{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Successful:    false,
		FailureReason: reason,
		AttemptTime:   s.clock.Now(),
	}); err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("record login attempt failed")
	}

	if count == s.threshold {
		s.emitLockAlert(ctx, account, ip, count)
	}
	return nil
}

// RecordSuccess resets the counter and remembers the origin.
func (s *LockoutService) RecordSuccess(ctx context.Context, account *domain.Account, ip, userAgent string) error {
	if err := s.accounts.ResetLockout(ctx, account.ID, ip); err != nil {
		return fmt.Errorf("reset lockout: %w", err)
	}
	account.FailedLogins = 0
	account.LockedUntil = nil
	account.LastKnownIP = ip

	if err := s.security.RecordAttempt(ctx, &domain.LoginAttempt{
		ID:          uuid.NewString(),
		AccountID:   account.ID,
		IPAddress:   ip,
		UserAgent:   userAgent,
		Successful:  true,
		AttemptTime: s.clock.Now(),
	}); err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("record login attempt failed")
	}
	return nil
}

// AdminUnlock clears the lockout on behalf of an administrator. The admin
// identity lands in the audit trail.
func (s *LockoutService) AdminUnlock(ctx context.Context, accountID, adminID string) error {
	if err := s.accounts.ResetLockout(ctx, accountID, ""); err != nil {
		return fmt.Errorf("admin unlock: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{
		AccountID:  adminID,
		Action:     "account.unlock",
		Resource:   "account",
		ResourceID: accountID,
		Severity:   string(domain.SeverityWarning),
	})
	return nil
}

func (s *LockoutService) emitLockAlert(ctx context.Context, account *domain.Account, ip string, attempts int) {
	alert := &domain.SecurityAlert{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Type:      domain.AlertAccountLocked,
		Severity:  domain.SeverityCritical,
		IPAddress: ip,
		Details: map[string]any{
			"failed_attempts": attempts,
			"locked_until":    account.LockedUntil,
		},
		CreatedAt: s.clock.Now(),
	}
	if err := s.security.CreateAlert(ctx, alert); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("persist lockout alert failed")
	}
	s.audit.Record(ctx, audit.Entry{
		AccountID:  account.ID,
		Action:     "account.locked",
		Resource:   "account",
		ResourceID: account.ID,
		Details:    map[string]any{"ip": ip, "failed_attempts": attempts},
		Severity:   string(domain.SeverityCritical),
	})
}
