package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danukusuma/auth-service/internal/audit"
	"github.com/danukusuma/auth-service/internal/auth/domain"
	"github.com/danukusuma/auth-service/internal/auth/dto"
	"github.com/danukusuma/auth-service/internal/auth/ratelimit"
	autherror "github.com/danukusuma/auth-service/internal/errors"
)

const minStrengthScore = 40

// UserService is the login pipeline: rate limit, verify, lockout accounting,
// optional second factor, session creation, token issuance, intrusion scoring.
type UserService struct {
	accounts        domain.AccountRepository
	security        domain.SecurityRepository
	tokenStore      domain.TokenRepository
	passwords       *PasswordService
	tokens          TokenGenerator
	lockout         *LockoutService
	network         *NetworkPolicy
	limiter         ratelimit.Limiter
	twoFactor       *TwoFactorService
	sessions        *SessionManager
	detector        *IntrusionDetector
	audit           audit.Sink
	clock           domain.Clock
	maxActiveTokens int
	log             zerolog.Logger
}

type UserServiceDeps struct {
	Accounts        domain.AccountRepository
	Security        domain.SecurityRepository
	TokenStore      domain.TokenRepository
	Passwords       *PasswordService
	Tokens          TokenGenerator
	Lockout         *LockoutService
	Network         *NetworkPolicy
	Limiter         ratelimit.Limiter
	TwoFactor       *TwoFactorService
	Sessions        *SessionManager
	Detector        *IntrusionDetector
	Audit           audit.Sink
	Clock           domain.Clock
	MaxActiveTokens int
	Log             zerolog.Logger
}

func NewUserService(deps UserServiceDeps) *UserService {
	return &UserService{
		accounts:        deps.Accounts,
		security:        deps.Security,
		tokenStore:      deps.TokenStore,
		passwords:       deps.Passwords,
		tokens:          deps.Tokens,
		lockout:         deps.Lockout,
		network:         deps.Network,
		limiter:         deps.Limiter,
		twoFactor:       deps.TwoFactor,
		sessions:        deps.Sessions,
		detector:        deps.Detector,
		audit:           deps.Audit,
		clock:           deps.Clock,
		maxActiveTokens: deps.MaxActiveTokens,
		log:             deps.Log.With().Str("component", "users").Logger(),
	}
}

func (s *UserService) Register(ctx context.Context, input dto.RegisterInput) (*domain.Account, error) {
	existing, err := s.accounts.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, autherror.ErrEmailAlreadyInUse
	}

	report := s.passwords.ScoreStrength(input.Password)
	if report.Score < minStrengthScore {
		return nil, fmt.Errorf("%w: %v", autherror.ErrWeakPassword, report.Issues)
	}
	// Breach lookup fails open: a degraded corpus never blocks registration,
	// a confirmed hit does.
	if breach := s.passwords.CheckBreach(ctx, input.Password); breach.Breached {
		return nil, fmt.Errorf("%w: found in %d known breaches", autherror.ErrWeakPassword, breach.Count)
	}

	hash, err := s.passwords.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	account := &domain.Account{
		ID:           uuid.NewString(),
		Email:        input.Email,
		PasswordHash: hash,
		RoleID:       1,
		RoleName:     "user",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		AccountID:  account.ID,
		Action:     "account.register",
		Resource:   "account",
		ResourceID: account.ID,
		Severity:   string(domain.SeverityInfo),
	})
	return account, nil
}

// Login runs the full pipeline. Unknown account and wrong password are
// externally indistinguishable.
func (s *UserService) Login(ctx context.Context, input dto.LoginInput) (*dto.TokenResponse, error) {
	if !s.limiter.Allow("login:" + input.IPAddress) {
		return nil, &autherror.RateLimitedError{RetryAfter: s.limiter.RetryAfter("login:" + input.IPAddress)}
	}

	account, err := s.accounts.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, autherror.ErrInvalidCredentials
	}
	if !account.Active {
		return nil, autherror.ErrAccountDisabled
	}

	if !s.network.IsAllowed(account, input.IPAddress) {
		s.audit.Record(ctx, audit.Entry{
			AccountID:  account.ID,
			Action:     "login.ip_rejected",
			Resource:   "account",
			ResourceID: account.ID,
			Details:    map[string]any{"ip": input.IPAddress},
			Severity:   string(domain.SeverityWarning),
		})
		return nil, autherror.ErrIPNotAllowed
	}

	// Locked accounts reject before the hasher runs and without consuming
	// an attempt.
	if err := s.lockout.Check(account); err != nil {
		return nil, err
	}

	if !s.passwords.Verify(input.Password, account.PasswordHash) {
		if err := s.lockout.RecordFailure(ctx, account, input.IPAddress, input.UserAgent, "invalid_password"); err != nil {
			s.log.Error().Err(err).Str("account_id", account.ID).Msg("failure accounting failed")
		}
		if account.Locked(s.clock.Now()) {
			return nil, &autherror.AccountLockedError{Until: *account.LockedUntil}
		}
		return nil, autherror.ErrInvalidCredentials
	}

	if account.TwoFactorOn {
		if err := s.completeTwoFactor(ctx, account, input); err != nil {
			return nil, err
		}
	}

	if err := s.lockout.RecordSuccess(ctx, account, input.IPAddress, input.UserAgent); err != nil {
		return nil, err
	}

	return s.establishSession(ctx, account, input.Fingerprint, input.IPAddress, input.UserAgent)
}

func (s *UserService) completeTwoFactor(ctx context.Context, account *domain.Account, input dto.LoginInput) error {
	switch {
	case input.TwoFactorCode != "":
		ok, err := s.twoFactor.VerifyCode(account.TOTPSecretEnc, input.TwoFactorCode)
		if err != nil {
			return err
		}
		if !ok {
			if rerr := s.lockout.RecordFailure(ctx, account, input.IPAddress, input.UserAgent, "invalid_totp"); rerr != nil {
				s.log.Error().Err(rerr).Str("account_id", account.ID).Msg("failure accounting failed")
			}
			return autherror.ErrTwoFactorInvalid
		}
		return nil

	case input.BackupCode != "":
		if len(account.BackupCodes) == 0 {
			return autherror.ErrBackupCodeExhausted
		}
		ok, idx := s.twoFactor.VerifyBackupCode(account.BackupCodes, input.BackupCode)
		if !ok {
			if rerr := s.lockout.RecordFailure(ctx, account, input.IPAddress, input.UserAgent, "invalid_backup_code"); rerr != nil {
				s.log.Error().Err(rerr).Str("account_id", account.ID).Msg("failure accounting failed")
			}
			return autherror.ErrTwoFactorInvalid
		}
		// Mandatory single use: the matched digest is removed before the
		// login proceeds.
		remaining := s.twoFactor.RemoveUsedBackupCode(account.BackupCodes, idx)
		if err := s.accounts.SetBackupCodes(ctx, account.ID, remaining); err != nil {
			return fmt.Errorf("consume backup code: %w", err)
		}
		account.BackupCodes = remaining
		return nil

	default:
		return autherror.ErrTwoFactorRequired
	}
}

func (s *UserService) establishSession(ctx context.Context, account *domain.Account,
	fingerprint, ip, userAgent string) (*dto.TokenResponse, error) {
	rawRefresh, _, err := s.tokens.IssueRefresh(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if err := s.enforceTokenCap(ctx, account.ID); err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("refresh token cap enforcement failed")
	}

	priors, err := s.sessions.List(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	history, err := s.security.RecentAttempts(ctx, account.ID, s.clock.Now().Add(-velocityWindow))
	if err != nil {
		return nil, err
	}
	riskLevel, riskReasons := s.sessions.AssessRisk(fingerprint, ip, userAgent, priors, history)

	session, err := s.sessions.Create(ctx, account.ID, fingerprint, ip, userAgent, HashToken(rawRefresh))
	if err != nil {
		return nil, err
	}

	access, expiresAt, err := s.tokens.IssueAccess(account.ID, account.Email, account.RoleName)
	if err != nil {
		return nil, err
	}

	s.detector.Inspect(ctx, account.ID, ip)

	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresAt:    expiresAt,
		SessionID:    session.ID,
		RiskLevel:    string(riskLevel),
		RiskReasons:  riskReasons,
	}, nil
}

func (s *UserService) enforceTokenCap(ctx context.Context, accountID string) error {
	count, err := s.tokenStore.ActiveCount(ctx, accountID)
	if err != nil {
		return err
	}
	if count > s.maxActiveTokens {
		return s.tokenStore.DeleteOldestForAccount(ctx, accountID)
	}
	return nil
}

// Refresh rotates the presented token: old revoked, new pair issued, the
// session follows the new credential.
func (s *UserService) Refresh(ctx context.Context, input dto.RefreshInput) (*dto.TokenResponse, error) {
	record, err := s.tokens.VerifyRefresh(ctx, input.RefreshToken)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.Active {
		return nil, autherror.ErrTokenRevoked
	}

	if err := s.tokens.Revoke(ctx, record); err != nil {
		return nil, fmt.Errorf("revoke rotated token: %w", err)
	}

	rawRefresh, _, err := s.tokens.IssueRefresh(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Rotate(ctx, record.TokenHash, HashToken(rawRefresh)); err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("session rebind failed")
	}

	access, expiresAt, err := s.tokens.IssueAccess(account.ID, account.Email, account.RoleName)
	if err != nil {
		return nil, err
	}

	s.detector.Inspect(ctx, account.ID, input.IPAddress)

	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresAt:    expiresAt,
	}, nil
}

// Logout revokes the presented refresh token and its session.
func (s *UserService) Logout(ctx context.Context, rawRefresh string) error {
	record, err := s.tokens.VerifyRefresh(ctx, rawRefresh)
	if err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, record); err != nil {
		return err
	}
	session, err := s.sessions.FindByTokenHash(ctx, record.TokenHash)
	if err != nil {
		return err
	}
	if session != nil {
		if err := s.sessions.Revoke(ctx, session.AccountID, session.ID, domain.RevokeReasonUser, session.AccountID); err != nil {
			return err
		}
	}
	return nil
}

// LogoutAll revokes every refresh token and session the account holds.
func (s *UserService) LogoutAll(ctx context.Context, accountID string) error {
	if _, err := s.tokens.RevokeAll(ctx, accountID); err != nil {
		return err
	}
	_, err := s.sessions.RevokeAll(ctx, accountID, "", domain.RevokeReasonAdmin)
	return err
}

// Enroll2FA generates a fresh secret. 2FA stays off until Confirm2FA proves
// the authenticator can produce a valid code.
func (s *UserService) Enroll2FA(ctx context.Context, accountID string) (*dto.EnrollTwoFactorOutput, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	secret, encrypted, err := s.twoFactor.GenerateSecret(account.Email)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetTwoFactor(ctx, account.ID, encrypted, false); err != nil {
		return nil, err
	}
	return &dto.EnrollTwoFactorOutput{
		Secret:          secret,
		ProvisioningURI: s.twoFactor.ProvisioningURI(secret, account.Email),
	}, nil
}

// Confirm2FA enables 2FA after one valid code and hands back the backup codes
// exactly once.
func (s *UserService) Confirm2FA(ctx context.Context, accountID, code string) (*dto.ConfirmTwoFactorOutput, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TOTPSecretEnc == "" {
		return nil, autherror.ErrTwoFactorNotEnabled
	}
	ok, err := s.twoFactor.VerifyCode(account.TOTPSecretEnc, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, autherror.ErrTwoFactorInvalid
	}

	plain, hashed, err := s.twoFactor.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetTwoFactor(ctx, account.ID, account.TOTPSecretEnc, true); err != nil {
		return nil, err
	}
	if err := s.accounts.SetBackupCodes(ctx, account.ID, hashed); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		AccountID:  account.ID,
		Action:     "twofactor.enable",
		Resource:   "account",
		ResourceID: account.ID,
		Severity:   string(domain.SeverityInfo),
	})
	return &dto.ConfirmTwoFactorOutput{BackupCodes: plain}, nil
}

// Verify2FA checks a TOTP code or consumes a backup code outside the login
// pipeline (step-up checks on sensitive operations).
func (s *UserService) Verify2FA(ctx context.Context, accountID string, input dto.VerifyTwoFactorInput) (bool, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	if !account.TwoFactorOn {
		return false, autherror.ErrTwoFactorNotEnabled
	}

	if input.Code != "" {
		return s.twoFactor.VerifyCode(account.TOTPSecretEnc, input.Code)
	}
	if input.BackupCode != "" {
		if len(account.BackupCodes) == 0 {
			return false, autherror.ErrBackupCodeExhausted
		}
		ok, idx := s.twoFactor.VerifyBackupCode(account.BackupCodes, input.BackupCode)
		if !ok {
			return false, nil
		}
		remaining := s.twoFactor.RemoveUsedBackupCode(account.BackupCodes, idx)
		if err := s.accounts.SetBackupCodes(ctx, account.ID, remaining); err != nil {
			return false, fmt.Errorf("consume backup code: %w", err)
		}
		return true, nil
	}
	return false, autherror.ErrTwoFactorRequired
}

// Disable2FA requires the password and a current code, then clears the secret
// and backup codes.
func (s *UserService) Disable2FA(ctx context.Context, accountID string, input dto.DisableTwoFactorInput) error {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorOn {
		return autherror.ErrTwoFactorNotEnabled
	}
	if !s.passwords.Verify(input.Password, account.PasswordHash) {
		return autherror.ErrInvalidCredentials
	}
	ok, err := s.twoFactor.VerifyCode(account.TOTPSecretEnc, input.Code)
	if err != nil {
		return err
	}
	if !ok {
		return autherror.ErrTwoFactorInvalid
	}

	if err := s.accounts.SetTwoFactor(ctx, account.ID, "", false); err != nil {
		return err
	}
	if err := s.accounts.SetBackupCodes(ctx, account.ID, nil); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		AccountID:  account.ID,
		Action:     "twofactor.disable",
		Resource:   "account",
		ResourceID: account.ID,
		Severity:   string(domain.SeverityWarning),
	})
	return nil
}

// ChangePassword rehashes and invalidates every outstanding credential except
// the session that made the change.
func (s *UserService) ChangePassword(ctx context.Context, accountID string,
	input dto.ChangePasswordInput, currentTokenHash string) error {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.passwords.Verify(input.CurrentPassword, account.PasswordHash) {
		return autherror.ErrInvalidCredentials
	}
	report := s.passwords.ScoreStrength(input.NewPassword)
	if report.Score < minStrengthScore {
		return fmt.Errorf("%w: %v", autherror.ErrWeakPassword, report.Issues)
	}

	hash, err := s.passwords.Hash(input.NewPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return err
	}

	if _, err := s.tokens.RevokeAll(ctx, account.ID); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, account.ID, currentTokenHash, domain.RevokeReasonPassword); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		AccountID:  account.ID,
		Action:     "account.password_change",
		Resource:   "account",
		ResourceID: account.ID,
		Severity:   string(domain.SeverityWarning),
	})
	return nil
}

// CheckAllowedIP exposes the network policy decision for a single origin.
func (s *UserService) CheckAllowedIP(ctx context.Context, accountID, originIP string) (bool, error) {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return s.network.IsAllowed(account, originIP), nil
}

func (s *UserService) AddAllowedIP(ctx context.Context, accountID, entry, actorID string) error {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}
	return s.network.AddEntry(ctx, account, entry, actorID)
}

func (s *UserService) RemoveAllowedIP(ctx context.Context, accountID, entry, actorID string) error {
	account, err := s.requireAccount(ctx, accountID)
	if err != nil {
		return err
	}
	return s.network.RemoveEntry(ctx, account, entry, actorID)
}

// GetAccount loads an account for the handler layer.
func (s *UserService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.requireAccount(ctx, accountID)
}

func (s *UserService) Sessions() *SessionManager    { return s.sessions }
func (s *UserService) Detector() *IntrusionDetector { return s.detector }
func (s *UserService) Lockout() *LockoutService     { return s.lockout }

func (s *UserService) requireAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, autherror.ErrAccountNotFound
	}
	return account, nil
}

// SweepExpiredTokens is the maintenance entry point main wires to a ticker.
func (s *UserService) SweepExpiredTokens(ctx context.Context) {
	n, err := s.tokens.CleanupExpired(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("token sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("removed", n).Msg("expired refresh tokens swept")
	}
}
