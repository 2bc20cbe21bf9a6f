package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danukusuma/auth-service/internal/audit"
	"github.com/danukusuma/auth-service/internal/auth/domain"
)

// Risk weights and band thresholds. The bands are fixed contract values, not
// tunables.
const (
	riskNewFingerprint = 30
	riskNewIP          = 20
	riskOctetMismatch  = 15
	riskNewOS          = 10
	riskNewBrowser     = 10
	riskHighVelocity   = 25

	riskMediumFloor   = 25
	riskHighFloor     = 50
	riskCriticalFloor = 75

	velocityWindow    = time.Hour
	velocityThreshold = 10
)

// SessionManager creates, lists and revokes device-fingerprinted sessions and
// enforces the per-account concurrency cap.
type SessionManager struct {
	sessions domain.SessionRepository
	security domain.SecurityRepository
	audit    audit.Sink
	clock    domain.Clock
	cap      int
	ttl      time.Duration
	log      zerolog.Logger
}

func NewSessionManager(sessions domain.SessionRepository, security domain.SecurityRepository,
	sink audit.Sink, clock domain.Clock, maxSessions int, ttl time.Duration, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		security: security,
		audit:    sink,
		clock:    clock,
		cap:      maxSessions,
		ttl:      ttl,
		log:      log.With().Str("component", "sessions").Logger(),
	}
}

// Create inserts a session. When the account already holds the cap of live
// sessions, the repository evicts the single oldest one inside the same
// transaction before inserting, so concurrent creations never exceed the cap.
func (m *SessionManager) Create(ctx context.Context, accountID, fingerprint, ip, userAgent, tokenHash string) (*domain.Session, error) {
	now := m.clock.Now()
	session := &domain.Session{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		TokenHash:       tokenHash,
		FingerprintHash: FingerprintHash(fingerprint),
		Fingerprint:     fingerprint,
		IPAddress:       ip,
		UserAgent:       userAgent,
		Active:          true,
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.ttl),
		LastActivityAt:  now,
	}

	evictedID, err := m.sessions.CreateWithCap(ctx, session, m.cap)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if evictedID != "" {
		m.log.Info().Str("account_id", accountID).Str("evicted", evictedID).Msg("session cap reached, oldest evicted")
		m.audit.Record(ctx, audit.Entry{
			AccountID:  accountID,
			Action:     "session.evict",
			Resource:   "session",
			ResourceID: evictedID,
			Details:    map[string]any{"reason": domain.RevokeReasonMaxSessions},
			Severity:   string(domain.SeverityInfo),
		})
	}
	return session, nil
}

// AssessRisk scores a login device against the account's history. A first
// device on a fresh account is LOW by definition.
func (m *SessionManager) AssessRisk(fingerprint, ip, userAgent string,
	priors []domain.Session, history []domain.LoginAttempt) (domain.RiskLevel, []string) {
	if len(priors) == 0 && len(history) == 0 {
		return domain.RiskLow, nil
	}

	score := 0
	var reasons []string

	fpHash := FingerprintHash(fingerprint)
	if !priorHas(priors, func(s domain.Session) bool { return s.FingerprintHash == fpHash }) {
		score += riskNewFingerprint
		reasons = append(reasons, "unrecognized device fingerprint")
	}
	if !priorHas(priors, func(s domain.Session) bool { return s.IPAddress == ip }) {
		score += riskNewIP
		reasons = append(reasons, "unrecognized origin IP")
	}
	if octet := firstOctet(ip); octet != "" && !priorHas(priors, func(s domain.Session) bool {
		return firstOctet(s.IPAddress) == octet
	}) {
		score += riskOctetMismatch
		reasons = append(reasons, "origin network differs from prior logins")
	}

	osFam := osFamily(userAgent)
	if osFam != "" && !priorHas(priors, func(s domain.Session) bool { return osFamily(s.UserAgent) == osFam }) {
		score += riskNewOS
		reasons = append(reasons, "unrecognized operating system")
	}
	browser := browserFamily(userAgent)
	if browser != "" && !priorHas(priors, func(s domain.Session) bool { return browserFamily(s.UserAgent) == browser }) {
		score += riskNewBrowser
		reasons = append(reasons, "unrecognized browser")
	}

	cutoff := m.clock.Now().Add(-velocityWindow)
	recent := 0
	for _, attempt := range history {
		if attempt.AttemptTime.After(cutoff) {
			recent++
		}
	}
	if recent >= velocityThreshold {
		score += riskHighVelocity
		reasons = append(reasons, "abnormally high login velocity")
	}

	switch {
	case score >= riskCriticalFloor:
		return domain.RiskCritical, reasons
	case score >= riskHighFloor:
		return domain.RiskHigh, reasons
	case score >= riskMediumFloor:
		return domain.RiskMedium, reasons
	default:
		return domain.RiskLow, reasons
	}
}

func (m *SessionManager) List(ctx context.Context, accountID string) ([]domain.Session, error) {
	return m.sessions.ListForAccount(ctx, accountID, true)
}

func (m *SessionManager) Revoke(ctx context.Context, accountID, sessionID, reason, actorID string) error {
	session, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil || session.AccountID != accountID {
		// Revoking someone else's session is reported the same as a missing
		// one, nothing to enumerate.
		return nil
	}
	if !session.Live(m.clock.Now()) {
		// Already revoked or expired, nothing to deactivate.
		return nil
	}
	if err := m.sessions.Revoke(ctx, sessionID, reason); err != nil {
		return err
	}
	m.audit.Record(ctx, audit.Entry{
		AccountID:  actorID,
		Action:     "session.revoke",
		Resource:   "session",
		ResourceID: sessionID,
		Details:    map[string]any{"reason": reason},
		Severity:   string(domain.SeverityInfo),
	})
	return nil
}

// RevokeAll deactivates every live session, optionally sparing the one bound
// to exceptTokenHash (the caller's own device on password change).
func (m *SessionManager) RevokeAll(ctx context.Context, accountID, exceptTokenHash, reason string) (int64, error) {
	n, err := m.sessions.RevokeAllForAccount(ctx, accountID, exceptTokenHash, reason)
	if err != nil {
		return 0, err
	}
	m.audit.Record(ctx, audit.Entry{
		AccountID:  accountID,
		Action:     "session.revoke_all",
		Resource:   "session",
		ResourceID: accountID,
		Details:    map[string]any{"count": n, "reason": reason},
		Severity:   string(domain.SeverityWarning),
	})
	return n, nil
}

// UpdateActivity bumps last-activity; expiry is never extended here.
func (m *SessionManager) UpdateActivity(ctx context.Context, tokenHash string) error {
	return m.sessions.TouchActivity(ctx, tokenHash, m.clock.Now())
}

// Rotate follows a refresh-token rotation: the session stays the same device,
// bound to the replacement credential.
func (m *SessionManager) Rotate(ctx context.Context, oldTokenHash, newTokenHash string) error {
	return m.sessions.RotateToken(ctx, oldTokenHash, newTokenHash, m.clock.Now())
}

func (m *SessionManager) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	return m.sessions.GetByTokenHash(ctx, tokenHash)
}

// FingerprintHash is the stable digest used to compare device fingerprints.
func FingerprintHash(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}

func priorHas(priors []domain.Session, match func(domain.Session) bool) bool {
	for _, s := range priors {
		if match(s) {
			return true
		}
	}
	return false
}

func firstOctet(ip string) string {
	head, _, ok := strings.Cut(ip, ".")
	if !ok {
		return ""
	}
	return head
}

// osFamily and browserFamily are coarse buckets: a change of family is a risk
// signal, nothing here needs full user-agent parsing.
func osFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		return "ios"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "linux"):
		return "linux"
	default:
		return ""
	}
}

func browserFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg/"):
		return "edge"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "chrome"):
		return "chrome"
	case strings.Contains(ua, "safari"):
		return "safari"
	default:
		return ""
	}
}
