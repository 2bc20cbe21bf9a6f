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

func newTestDetector(t *testing.T, clock *stepClock, cfg service.DetectorConfig) (*service.IntrusionDetector, *mocks.MockSecurityRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	security := mocks.NewMockSecurityRepository(ctrl)
	return service.NewIntrusionDetector(security, audit.NopSink{}, clock, cfg, zerolog.Nop()), security
}

func TestDetectMultipleOrigins(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC))
	cfg := service.DetectorConfig{MultiOrigin: true}

	t.Run("three distinct origins fire a warning", func(t *testing.T) {
		detector, security := newTestDetector(t, clock, cfg)

		security.EXPECT().
			DistinctSuccessIPs(gomock.Any(), "acc-1", clock.Now().Add(-15*time.Minute)).
			Return([]string{"198.51.100.7", "203.0.113.1", "192.0.2.9"}, nil)
		security.EXPECT().
			CreateAlert(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, alert *domain.SecurityAlert) error {
				assert.Equal(t, domain.AlertMultipleIPs, alert.Type)
				assert.Equal(t, domain.SeverityWarning, alert.Severity)
				return nil
			})

		fired := detector.Inspect(context.Background(), "acc-1", "192.0.2.9")
		require.Len(t, fired, 1)
		assert.Equal(t, domain.AlertMultipleIPs, fired[0].Type)
	})

	t.Run("two origins stay quiet", func(t *testing.T) {
		detector, security := newTestDetector(t, clock, cfg)

		security.EXPECT().
			DistinctSuccessIPs(gomock.Any(), "acc-1", gomock.Any()).
			Return([]string{"198.51.100.7", "203.0.113.1"}, nil)

		assert.Empty(t, detector.Inspect(context.Background(), "acc-1", "203.0.113.1"))
	})
}

func TestDetectUnusualHours(t *testing.T) {
	cfg := service.DetectorConfig{UnusualHours: true, NightStartHour: 1, NightEndHour: 5}

	t.Run("nocturnal login flagged", func(t *testing.T) {
		clock := newStepClock(time.Date(2024, 6, 1, 3, 12, 0, 0, time.UTC))
		detector, security := newTestDetector(t, clock, cfg)

		security.EXPECT().
			CreateAlert(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, alert *domain.SecurityAlert) error {
				assert.Equal(t, domain.AlertUnusualHours, alert.Type)
				assert.Equal(t, domain.SeverityInfo, alert.Severity)
				assert.Equal(t, 3, alert.Details["hour"])
				return nil
			})

		fired := detector.Inspect(context.Background(), "acc-1", "198.51.100.7")
		require.Len(t, fired, 1)
	})

	t.Run("daytime login passes", func(t *testing.T) {
		clock := newStepClock(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC))
		detector, _ := newTestDetector(t, clock, cfg)

		assert.Empty(t, detector.Inspect(context.Background(), "acc-1", "198.51.100.7"))
	})

	t.Run("band end is exclusive", func(t *testing.T) {
		clock := newStepClock(time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC))
		detector, _ := newTestDetector(t, clock, cfg)

		assert.Empty(t, detector.Inspect(context.Background(), "acc-1", "198.51.100.7"))
	})
}

func TestDetectRapidRequests(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC))
	detector, security := newTestDetector(t, clock, service.DetectorConfig{RapidRequests: true})

	security.EXPECT().
		CreateAlert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, alert *domain.SecurityAlert) error {
			assert.Equal(t, domain.AlertRapidRequests, alert.Type)
			assert.Equal(t, domain.SeverityWarning, alert.Severity)
			return nil
		})

	for i := 0; i < 20; i++ {
		assert.Empty(t, detector.Inspect(context.Background(), "acc-1", "198.51.100.7"))
		clock.Advance(time.Second)
	}
	fired := detector.Inspect(context.Background(), "acc-1", "198.51.100.7")
	require.Len(t, fired, 1)

	// After the window slides past the burst the account goes quiet again.
	clock.Advance(2 * time.Minute)
	assert.Empty(t, detector.Inspect(context.Background(), "acc-1", "198.51.100.7"))
}

func TestDetectorDisabledHeuristics(t *testing.T) {
	clock := newStepClock(time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC))
	detector, _ := newTestDetector(t, clock, service.DetectorConfig{})

	// Nocturnal hour and heavy burst, all toggles off: nothing fires and the
	// repository is never touched.
	for i := 0; i < 30; i++ {
		assert.Empty(t, detector.Inspect(context.Background(), "acc-1", "198.51.100.7"))
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	clock := newStepClock(time.Now())
	detector, security := newTestDetector(t, clock, service.DefaultDetectorConfig())

	security.EXPECT().AcknowledgeAlert(gomock.Any(), "alert-1").Return(nil)

	require.NoError(t, detector.AcknowledgeAlert(context.Background(), "alert-1", "admin-9"))
}

func TestListAlerts(t *testing.T) {
	clock := newStepClock(time.Now())
	detector, security := newTestDetector(t, clock, service.DefaultDetectorConfig())

	want := []domain.SecurityAlert{{ID: "alert-1", Type: domain.AlertMultipleIPs}}
	security.EXPECT().ListAlerts(gomock.Any(), "acc-1", true).Return(want, nil)

	got, err := detector.ListAlerts(context.Background(), "acc-1", true)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
