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
	autherror "github.com/danukusuma/auth-service/internal/errors"
	"github.com/danukusuma/auth-service/internal/mocks"
)

const (
	testThreshold      = 5
	testLockoutMinutes = 30
)

func newTestLockoutService(t *testing.T, clock *stepClock) (*service.LockoutService, *mocks.MockAccountRepository, *mocks.MockSecurityRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	accounts := mocks.NewMockAccountRepository(ctrl)
	security := mocks.NewMockSecurityRepository(ctrl)
	svc := service.NewLockoutService(accounts, security, audit.NopSink{}, clock,
		testThreshold, testLockoutMinutes, zerolog.Nop())
	return svc, accounts, security
}

func TestLockoutCheck(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	svc, _, _ := newTestLockoutService(t, clock)

	t.Run("unlocked account passes", func(t *testing.T) {
		assert.NoError(t, svc.Check(&domain.Account{ID: "acc-1"}))
	})

	t.Run("open window rejects with remaining time", func(t *testing.T) {
		until := clock.Now().Add(12 * time.Minute)
		err := svc.Check(&domain.Account{ID: "acc-1", LockedUntil: &until})

		var locked *autherror.AccountLockedError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, until, locked.Until)
		assert.Equal(t, 12, locked.RemainingMinutes(clock.Now()))
	})

	t.Run("elapsed window counts as unlocked", func(t *testing.T) {
		until := clock.Now().Add(-time.Minute)
		assert.NoError(t, svc.Check(&domain.Account{ID: "acc-1", LockedUntil: &until}))
	})
}

func TestRecordFailureBelowThreshold(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	svc, accounts, security := newTestLockoutService(t, clock)
	account := &domain.Account{ID: "acc-1"}

	accounts.EXPECT().
		RegisterFailedAttempt(gomock.Any(), "acc-1", testThreshold, 30*time.Minute).
		Return(3, nil, nil)
	security.EXPECT().
		RecordAttempt(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, attempt *domain.LoginAttempt) error {
			assert.Equal(t, "acc-1", attempt.AccountID)
			assert.False(t, attempt.Successful)
			assert.Equal(t, "invalid_credentials", attempt.FailureReason)
			return nil
		})

	require.NoError(t, svc.RecordFailure(context.Background(), account, "203.0.113.7", "test-agent", "invalid_credentials"))
	assert.Equal(t, 3, account.FailedLogins)
	assert.Nil(t, account.LockedUntil)
}

func TestRecordFailureHitsThreshold(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	svc, accounts, security := newTestLockoutService(t, clock)
	account := &domain.Account{ID: "acc-1"}
	until := clock.Now().Add(30 * time.Minute)

	accounts.EXPECT().
		RegisterFailedAttempt(gomock.Any(), "acc-1", testThreshold, 30*time.Minute).
		Return(testThreshold, &until, nil)
	security.EXPECT().RecordAttempt(gomock.Any(), gomock.Any()).Return(nil)
	security.EXPECT().
		CreateAlert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, alert *domain.SecurityAlert) error {
			assert.Equal(t, domain.AlertAccountLocked, alert.Type)
			assert.Equal(t, domain.SeverityCritical, alert.Severity)
			assert.Equal(t, "203.0.113.7", alert.IPAddress)
			assert.Equal(t, testThreshold, alert.Details["failed_attempts"])
			return nil
		})

	require.NoError(t, svc.RecordFailure(context.Background(), account, "203.0.113.7", "test-agent", "invalid_credentials"))
	require.NotNil(t, account.LockedUntil)
	assert.Equal(t, until, *account.LockedUntil)
	assert.True(t, account.Locked(clock.Now()))
}

func TestRecordFailureBeyondThresholdStaysQuiet(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	svc, accounts, security := newTestLockoutService(t, clock)
	account := &domain.Account{ID: "acc-1"}
	until := clock.Now().Add(30 * time.Minute)

	// Count past the threshold: the lock alert fired earlier, no duplicate.
	accounts.EXPECT().
		RegisterFailedAttempt(gomock.Any(), "acc-1", testThreshold, 30*time.Minute).
		Return(testThreshold+1, &until, nil)
	security.EXPECT().RecordAttempt(gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, svc.RecordFailure(context.Background(), account, "203.0.113.7", "test-agent", "invalid_credentials"))
}

func TestRecordSuccessResetsCounter(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	svc, accounts, security := newTestLockoutService(t, clock)
	account := &domain.Account{ID: "acc-1", FailedLogins: 4}

	accounts.EXPECT().ResetLockout(gomock.Any(), "acc-1", "203.0.113.7").Return(nil)
	security.EXPECT().
		RecordAttempt(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, attempt *domain.LoginAttempt) error {
			assert.True(t, attempt.Successful)
			return nil
		})

	require.NoError(t, svc.RecordSuccess(context.Background(), account, "203.0.113.7", "test-agent"))
	assert.Zero(t, account.FailedLogins)
	assert.Nil(t, account.LockedUntil)
	assert.Equal(t, "203.0.113.7", account.LastKnownIP)
}

func TestAdminUnlock(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	svc, accounts, _ := newTestLockoutService(t, clock)

	accounts.EXPECT().ResetLockout(gomock.Any(), "acc-1", "").Return(nil)

	require.NoError(t, svc.AdminUnlock(context.Background(), "acc-1", "admin-9"))
}
