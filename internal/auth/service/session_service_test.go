package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danukusuma/auth-service/internal/audit"
	"github.com/danukusuma/auth-service/internal/auth/domain"
	"github.com/danukusuma/auth-service/internal/auth/service"
	"github.com/danukusuma/auth-service/internal/mocks"
)

const (
	windowsChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
	macFirefox    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 13.5) Gecko/20100101 Firefox/115.0"
)

func newTestSessionManager(t *testing.T, clock *stepClock) (*service.SessionManager, *mocks.MockSessionRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	sessions := mocks.NewMockSessionRepository(ctrl)
	security := mocks.NewMockSecurityRepository(ctrl)
	mgr := service.NewSessionManager(sessions, security, audit.NopSink{}, clock,
		5, 24*time.Hour, zerolog.Nop())
	return mgr, sessions
}

func knownSession(fingerprint, ip, userAgent string) domain.Session {
	return domain.Session{
		ID:              "sess-prior",
		AccountID:       "acc-1",
		FingerprintHash: service.FingerprintHash(fingerprint),
		Fingerprint:     fingerprint,
		IPAddress:       ip,
		UserAgent:       userAgent,
		Active:          true,
	}
}

func TestAssessRisk(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC))
	mgr, _ := newTestSessionManager(t, clock)
	prior := knownSession("fp-known", "10.0.0.1", windowsChrome)

	t.Run("first device on fresh account is low", func(t *testing.T) {
		level, reasons := mgr.AssessRisk("fp-new", "10.0.0.1", windowsChrome, nil, nil)
		assert.Equal(t, domain.RiskLow, level)
		assert.Empty(t, reasons)
	})

	t.Run("known device is low", func(t *testing.T) {
		level, reasons := mgr.AssessRisk("fp-known", "10.0.0.1", windowsChrome,
			[]domain.Session{prior}, nil)
		assert.Equal(t, domain.RiskLow, level)
		assert.Empty(t, reasons)
	})

	t.Run("new fingerprint alone is medium", func(t *testing.T) {
		level, reasons := mgr.AssessRisk("fp-new", "10.0.0.1", windowsChrome,
			[]domain.Session{prior}, nil)
		assert.Equal(t, domain.RiskMedium, level)
		assert.Contains(t, reasons, "unrecognized device fingerprint")
	})

	t.Run("new fingerprint and new ip on known network is high", func(t *testing.T) {
		level, _ := mgr.AssessRisk("fp-new", "10.0.9.9", windowsChrome,
			[]domain.Session{prior}, nil)
		assert.Equal(t, domain.RiskHigh, level)
	})

	t.Run("everything unfamiliar is critical", func(t *testing.T) {
		level, reasons := mgr.AssessRisk("fp-new", "203.0.113.50", macFirefox,
			[]domain.Session{prior}, nil)
		assert.Equal(t, domain.RiskCritical, level)
		assert.Contains(t, reasons, "unrecognized origin IP")
		assert.Contains(t, reasons, "origin network differs from prior logins")
		assert.Contains(t, reasons, "unrecognized operating system")
		assert.Contains(t, reasons, "unrecognized browser")
	})

	t.Run("login velocity raises the band", func(t *testing.T) {
		history := make([]domain.LoginAttempt, 10)
		for i := range history {
			history[i] = domain.LoginAttempt{
				AccountID:   "acc-1",
				AttemptTime: clock.Now().Add(-time.Duration(i+1) * time.Minute),
			}
		}

		level, reasons := mgr.AssessRisk("fp-known", "10.0.0.1", windowsChrome,
			[]domain.Session{prior}, history)
		assert.Equal(t, domain.RiskMedium, level)
		assert.Contains(t, reasons, "abnormally high login velocity")
	})

	t.Run("stale attempts do not count toward velocity", func(t *testing.T) {
		history := make([]domain.LoginAttempt, 10)
		for i := range history {
			history[i] = domain.LoginAttempt{
				AccountID:   "acc-1",
				AttemptTime: clock.Now().Add(-2 * time.Hour),
			}
		}

		level, _ := mgr.AssessRisk("fp-known", "10.0.0.1", windowsChrome,
			[]domain.Session{prior}, history)
		assert.Equal(t, domain.RiskLow, level)
	})
}

func TestSessionCreate(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC))

	t.Run("under the cap", func(t *testing.T) {
		mgr, sessions := newTestSessionManager(t, clock)

		sessions.EXPECT().
			CreateWithCap(gomock.Any(), gomock.Any(), 5).
			DoAndReturn(func(_ context.Context, s *domain.Session, _ int) (string, error) {
				assert.Equal(t, "acc-1", s.AccountID)
				assert.Equal(t, service.FingerprintHash("fp-1"), s.FingerprintHash)
				assert.Equal(t, "token-hash", s.TokenHash)
				assert.True(t, s.Active)
				assert.Equal(t, clock.Now().Add(24*time.Hour), s.ExpiresAt)
				return "", nil
			})

		session, err := mgr.Create(context.Background(), "acc-1", "fp-1", "10.0.0.1", windowsChrome, "token-hash")
		require.NoError(t, err)
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, clock.Now(), session.LastActivityAt)
	})

	t.Run("at the cap the oldest is evicted", func(t *testing.T) {
		mgr, sessions := newTestSessionManager(t, clock)

		sessions.EXPECT().
			CreateWithCap(gomock.Any(), gomock.Any(), 5).
			Return("sess-oldest", nil)

		session, err := mgr.Create(context.Background(), "acc-1", "fp-1", "10.0.0.1", windowsChrome, "token-hash")
		require.NoError(t, err)
		assert.NotEqual(t, "sess-oldest", session.ID)
	})
}

func TestSessionRevokeOwnership(t *testing.T) {
	clock := newStepClock(time.Now())

	t.Run("owner revokes", func(t *testing.T) {
		mgr, sessions := newTestSessionManager(t, clock)

		sessions.EXPECT().GetByID(gomock.Any(), "sess-1").
			Return(&domain.Session{
				ID: "sess-1", AccountID: "acc-1",
				Active: true, ExpiresAt: clock.Now().Add(time.Hour),
			}, nil)
		sessions.EXPECT().Revoke(gomock.Any(), "sess-1", domain.RevokeReasonUser).Return(nil)

		require.NoError(t, mgr.Revoke(context.Background(), "acc-1", "sess-1", domain.RevokeReasonUser, "acc-1"))
	})

	t.Run("dead session is a quiet no-op", func(t *testing.T) {
		mgr, sessions := newTestSessionManager(t, clock)

		// Already revoked: no second deactivation, no audit noise.
		sessions.EXPECT().GetByID(gomock.Any(), "sess-1").
			Return(&domain.Session{
				ID: "sess-1", AccountID: "acc-1",
				Active: false, ExpiresAt: clock.Now().Add(time.Hour),
			}, nil)

		require.NoError(t, mgr.Revoke(context.Background(), "acc-1", "sess-1", domain.RevokeReasonUser, "acc-1"))
	})

	t.Run("expired session is a quiet no-op", func(t *testing.T) {
		mgr, sessions := newTestSessionManager(t, clock)

		sessions.EXPECT().GetByID(gomock.Any(), "sess-1").
			Return(&domain.Session{
				ID: "sess-1", AccountID: "acc-1",
				Active: true, ExpiresAt: clock.Now().Add(-time.Minute),
			}, nil)

		require.NoError(t, mgr.Revoke(context.Background(), "acc-1", "sess-1", domain.RevokeReasonUser, "acc-1"))
	})

	t.Run("foreign session is not revoked and not enumerated", func(t *testing.T) {
		mgr, sessions := newTestSessionManager(t, clock)

		sessions.EXPECT().GetByID(gomock.Any(), "sess-1").
			Return(&domain.Session{ID: "sess-1", AccountID: "acc-2"}, nil)

		require.NoError(t, mgr.Revoke(context.Background(), "acc-1", "sess-1", domain.RevokeReasonUser, "acc-1"))
	})

	t.Run("missing session is a quiet no-op", func(t *testing.T) {
		mgr, sessions := newTestSessionManager(t, clock)

		sessions.EXPECT().GetByID(gomock.Any(), "sess-1").Return(nil, nil)

		require.NoError(t, mgr.Revoke(context.Background(), "acc-1", "sess-1", domain.RevokeReasonUser, "acc-1"))
	})
}

func TestSessionRevokeAllSparesCaller(t *testing.T) {
	clock := newStepClock(time.Now())
	mgr, sessions := newTestSessionManager(t, clock)

	sessions.EXPECT().
		RevokeAllForAccount(gomock.Any(), "acc-1", "keep-hash", domain.RevokeReasonPassword).
		Return(int64(3), nil)

	n, err := mgr.RevokeAll(context.Background(), "acc-1", "keep-hash", domain.RevokeReasonPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSessionRotate(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC))
	mgr, sessions := newTestSessionManager(t, clock)

	sessions.EXPECT().RotateToken(gomock.Any(), "old-hash", "new-hash", clock.Now()).Return(nil)

	require.NoError(t, mgr.Rotate(context.Background(), "old-hash", "new-hash"))
}
