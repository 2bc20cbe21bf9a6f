package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/danukusuma/auth-service/internal/auth/domain"
)

// SecurityRepo is the append-only trail: login attempts and security alerts.
type SecurityRepo struct {
	db PgxIface
}

func NewSecurityRepo(db PgxIface) *SecurityRepo {
	return &SecurityRepo{db: db}
}

func (r *SecurityRepo) RecordAttempt(ctx context.Context, attempt *domain.LoginAttempt) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO login_attempts (id, account_id, ip_address, user_agent, successful, failure_reason, attempt_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, attempt.ID, attempt.AccountID, attempt.IPAddress, attempt.UserAgent,
		attempt.Successful, attempt.FailureReason, attempt.AttemptTime)
	return err
}

func (r *SecurityRepo) RecentAttempts(ctx context.Context, accountID string, since time.Time) ([]domain.LoginAttempt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, ip_address, user_agent, successful, failure_reason, attempt_time
		FROM login_attempts
		WHERE account_id = $1 AND attempt_time >= $2
		ORDER BY attempt_time DESC
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.LoginAttempt
	for rows.Next() {
		var a domain.LoginAttempt
		if err := rows.Scan(&a.ID, &a.AccountID, &a.IPAddress, &a.UserAgent,
			&a.Successful, &a.FailureReason, &a.AttemptTime); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (r *SecurityRepo) DistinctSuccessIPs(ctx context.Context, accountID string, since time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ip_address FROM login_attempts
		WHERE account_id = $1 AND successful AND attempt_time >= $2
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("distinct IPs: %w", err)
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, err
		}
		ips = append(ips, ip)
	}
	return ips, rows.Err()
}

func (r *SecurityRepo) CreateAlert(ctx context.Context, alert *domain.SecurityAlert) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO security_alerts (id, account_id, alert_type, severity, ip_address, details, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, alert.ID, alert.AccountID, string(alert.Type), string(alert.Severity),
		alert.IPAddress, alert.Details, alert.Acknowledged, alert.CreatedAt)
	return err
}

func (r *SecurityRepo) ListAlerts(ctx context.Context, accountID string, unacknowledgedOnly bool) ([]domain.SecurityAlert, error) {
	query := `
		SELECT id, account_id, alert_type, severity, ip_address, details, acknowledged, created_at
		FROM security_alerts WHERE account_id = $1`
	if unacknowledgedOnly {
		query += ` AND NOT acknowledged`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.SecurityAlert
	for rows.Next() {
		var a domain.SecurityAlert
		var alertType, severity string
		if err := rows.Scan(&a.ID, &a.AccountID, &alertType, &severity,
			&a.IPAddress, &a.Details, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = domain.AlertType(alertType)
		a.Severity = domain.Severity(severity)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *SecurityRepo) AcknowledgeAlert(ctx context.Context, alertID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE security_alerts SET acknowledged = true WHERE id = $1
	`, alertID)
	return err
}
