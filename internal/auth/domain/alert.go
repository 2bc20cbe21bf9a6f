package domain

import "time"

type AlertType string

const (
	AlertAccountLocked  AlertType = "ACCOUNT_LOCKED"
	AlertMultipleIPs    AlertType = "MULTIPLE_IPS"
	AlertUnusualHours   AlertType = "UNUSUAL_HOURS"
	AlertRapidRequests  AlertType = "RAPID_REQUESTS"
	AlertClonedAuth     AlertType = "CLONED_AUTHENTICATOR"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type SecurityAlert struct {
	ID           string
	AccountID    string
	Type         AlertType
	Severity     Severity
	IPAddress    string
	Details      map[string]any
	Acknowledged bool
	CreatedAt    time.Time
}
