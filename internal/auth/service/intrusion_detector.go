package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danukusuma/auth-service/internal/audit"
	"github.com/danukusuma/auth-service/internal/auth/domain"
)

const (
	multiIPWindow    = 15 * time.Minute
	multiIPThreshold = 3

	rapidWindow    = time.Minute
	rapidThreshold = 20
)

// DetectorConfig toggles each heuristic independently; firing one never
// suppresses another.
type DetectorConfig struct {
	MultiOrigin   bool
	UnusualHours  bool
	RapidRequests bool
	// Nocturnal band, inclusive start / exclusive end, local hours.
	NightStartHour int
	NightEndHour   int
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MultiOrigin:    true,
		UnusualHours:   true,
		RapidRequests:  true,
		NightStartHour: 1,
		NightEndHour:   5,
	}
}

// IntrusionDetector scores every authenticated action with three independent
// heuristics. The rapid-request window is in-process state, same caveat as
// the rate limiter: not durable, per instance.
type IntrusionDetector struct {
	security domain.SecurityRepository
	audit    audit.Sink
	clock    domain.Clock
	cfg      DetectorConfig
	log      zerolog.Logger

	mu       sync.Mutex
	requests map[string][]time.Time
}

func NewIntrusionDetector(security domain.SecurityRepository, sink audit.Sink,
	clock domain.Clock, cfg DetectorConfig, log zerolog.Logger) *IntrusionDetector {
	return &IntrusionDetector{
		security: security,
		audit:    sink,
		clock:    clock,
		cfg:      cfg,
		log:      log.With().Str("component", "intrusion").Logger(),
		requests: make(map[string][]time.Time),
	}
}

// Inspect runs all enabled heuristics for one authenticated action and
// returns the alerts it raised.
func (d *IntrusionDetector) Inspect(ctx context.Context, accountID, originIP string) []domain.SecurityAlert {
	var fired []domain.SecurityAlert

	if d.cfg.MultiOrigin {
		if alert := d.checkMultiOrigin(ctx, accountID, originIP); alert != nil {
			fired = append(fired, *alert)
		}
	}
	if d.cfg.UnusualHours {
		if alert := d.checkUnusualHours(ctx, accountID, originIP); alert != nil {
			fired = append(fired, *alert)
		}
	}
	if d.cfg.RapidRequests {
		if alert := d.checkRapidRequests(ctx, accountID, originIP); alert != nil {
			fired = append(fired, *alert)
		}
	}
	return fired
}

func (d *IntrusionDetector) checkMultiOrigin(ctx context.Context, accountID, originIP string) *domain.SecurityAlert {
	since := d.clock.Now().Add(-multiIPWindow)
	ips, err := d.security.DistinctSuccessIPs(ctx, accountID, since)
	if err != nil {
		d.log.Warn().Err(err).Str("account_id", accountID).Msg("distinct IP lookup failed")
		return nil
	}
	if len(ips) < multiIPThreshold {
		return nil
	}
	return d.raise(ctx, accountID, originIP, domain.AlertMultipleIPs, domain.SeverityWarning,
		map[string]any{"origins": ips, "window_minutes": int(multiIPWindow.Minutes())})
}

func (d *IntrusionDetector) checkUnusualHours(ctx context.Context, accountID, originIP string) *domain.SecurityAlert {
	hour := d.clock.Now().Hour()
	if hour < d.cfg.NightStartHour || hour >= d.cfg.NightEndHour {
		return nil
	}
	return d.raise(ctx, accountID, originIP, domain.AlertUnusualHours, domain.SeverityInfo,
		map[string]any{"hour": hour})
}

func (d *IntrusionDetector) checkRapidRequests(ctx context.Context, accountID, originIP string) *domain.SecurityAlert {
	now := d.clock.Now()
	cutoff := now.Add(-rapidWindow)

	d.mu.Lock()
	kept := d.requests[accountID][:0]
	for _, t := range d.requests[accountID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	d.requests[accountID] = kept
	count := len(kept)
	d.mu.Unlock()

	if count <= rapidThreshold {
		return nil
	}
	return d.raise(ctx, accountID, originIP, domain.AlertRapidRequests, domain.SeverityWarning,
		map[string]any{"requests": count, "window_seconds": int(rapidWindow.Seconds())})
}

// AcknowledgeAlert marks an alert as handled; the acknowledging admin lands
// in the audit trail.
func (d *IntrusionDetector) AcknowledgeAlert(ctx context.Context, alertID, adminID string) error {
	if err := d.security.AcknowledgeAlert(ctx, alertID); err != nil {
		return err
	}
	d.audit.Record(ctx, audit.Entry{
		AccountID:  adminID,
		Action:     "alert.acknowledge",
		Resource:   "security_alert",
		ResourceID: alertID,
		Severity:   string(domain.SeverityInfo),
	})
	return nil
}

func (d *IntrusionDetector) ListAlerts(ctx context.Context, accountID string, unackOnly bool) ([]domain.SecurityAlert, error) {
	return d.security.ListAlerts(ctx, accountID, unackOnly)
}

func (d *IntrusionDetector) raise(ctx context.Context, accountID, originIP string,
	alertType domain.AlertType, severity domain.Severity, details map[string]any) *domain.SecurityAlert {
	alert := &domain.SecurityAlert{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Type:      alertType,
		Severity:  severity,
		IPAddress: originIP,
		Details:   details,
		CreatedAt: d.clock.Now(),
	}
	if err := d.security.CreateAlert(ctx, alert); err != nil {
		d.log.Error().Err(err).Str("type", string(alertType)).Msg("persist alert failed")
	}
	d.audit.Record(ctx, audit.Entry{
		AccountID:  accountID,
		Action:     "intrusion." + string(alertType),
		Resource:   "security_alert",
		ResourceID: alert.ID,
		Details:    details,
		Severity:   string(severity),
	})
	return alert
}
