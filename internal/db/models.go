package db

import (
	"time"
)

// MonitorType is the kind of probe a monitor runs.
type MonitorType string

const (
	TypeHTTP  MonitorType = "http"
	TypeHTTPS MonitorType = "https"
	TypeTCP   MonitorType = "tcp"
	TypePing  MonitorType = "ping"
)

// Status is the last observed health of a monitor.
type Status string

const (
	StatusUp      Status = "up"
	StatusDown    Status = "down"
	StatusUnknown Status = "unknown"
)

// SSLStatus classifies a monitor's certificate state.
type SSLStatus string

const (
	SSLValid         SSLStatus = "valid"
	SSLExpiringSoon  SSLStatus = "expiring_soon"
	SSLExpired       SSLStatus = "expired"
	SSLInvalid       SSLStatus = "invalid"
	SSLNotApplicable SSLStatus = "n/a"
)

// Severity ranks an active condition on a monitor.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = "none"
)

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
)

// Uptime windows reported in MonitorStats and Monitor.UptimeStats.
const (
	Window24h = "24h"
	Window7d  = "7d"
	Window30d = "30d"
)

type Monitor struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	URL                  string      `json:"url"`
	Name                 string      `json:"name"`
	Type                 MonitorType `json:"type"`
	Interval             int         `json:"interval"` // seconds between checks
	Timeout              int         `json:"timeout"`  // seconds per probe
	Retries              int         `json:"retries"`
	ExpectedStatusCode   int         `json:"expected_status_code"`
	Tags                 []string    `json:"tags,omitempty"`
	IsActive             bool        `json:"is_active"`
	IsPublic             bool        `json:"is_public"`
	SSLMonitoringEnabled bool        `json:"ssl_monitoring_enabled"`

	Status                 Status             `json:"status"`
	LastCheck              *time.Time         `json:"last_check,omitempty"`
	LastResponseTime       int64              `json:"last_response_time"` // ms
	LastStatusCode         int                `json:"last_status_code"`
	FailuresInARow         int                `json:"failures_in_a_row"`
	UptimeStats            map[string]float64 `json:"uptime_stats,omitempty"`
	SSLStatus              SSLStatus          `json:"ssl_status"`
	SSLCertDaysUntilExpiry int                `json:"ssl_cert_days_until_expiry"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckResult is the immutable record of one probe outcome.
type CheckResult struct {
	ID           string    `json:"id"`
	MonitorID    string    `json:"monitor_id"`
	Status       bool      `json:"status"`        // true = up
	ResponseTime int64     `json:"response_time"` // ms
	StatusCode   int       `json:"status_code,omitempty"`
	Message      string    `json:"message"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Incident spans a monitor's down period or an SSL alert condition.
type Incident struct {
	ID          string         `json:"id"`
	MonitorID   string         `json:"monitor_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Status      IncidentStatus `json:"status"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MonitorStats is the on-demand aggregate for one monitor. ChecksSampled
// reports how many results backed the numbers so callers can tell an
// optimistic default apart from measured uptime.
type MonitorStats struct {
	MonitorID           string             `json:"monitor_id"`
	Uptime              map[string]float64 `json:"uptime"`                // window -> percentage
	AverageResponseTime float64            `json:"average_response_time"` // ms
	TotalChecks         int                `json:"total_checks"`
	ChecksSampled       int                `json:"checks_sampled"`
}

// MonitorSummary aggregates the live monitor set for one owner.
type MonitorSummary struct {
	Total               int     `json:"total"`
	Up                  int     `json:"up"`
	Down                int     `json:"down"`
	Paused              int     `json:"paused"`
	AverageUptime       float64 `json:"average_uptime"`
	AverageResponseTime float64 `json:"average_response_time"`
}

// SSLInfo is the inspector's view of a monitor's certificate.
type SSLInfo struct {
	MonitorID            string    `json:"monitor_id,omitempty"`
	SSLMonitoringEnabled bool      `json:"ssl_monitoring_enabled"`
	Valid                bool      `json:"valid"`
	SelfSigned           bool      `json:"self_signed"`
	Issuer               string    `json:"issuer,omitempty"`
	Subject              string    `json:"subject,omitempty"`
	DaysUntilExpiry      int       `json:"days_until_expiry"`
	ExpiresAt            time.Time `json:"expires_at,omitempty"`
	Error                string    `json:"error,omitempty"`
}

// ClassifySSL maps inspector output to a monitor SSL status. Expired wins
// over expiring_soon; invalid covers failed validation and self-signed
// certificates.
func ClassifySSL(info SSLInfo) SSLStatus {
	if !info.SSLMonitoringEnabled {
		return SSLNotApplicable
	}
	if info.DaysUntilExpiry <= 0 {
		return SSLExpired
	}
	if !info.Valid || info.SelfSigned {
		return SSLInvalid
	}
	if info.DaysUntilExpiry <= 30 {
		return SSLExpiringSoon
	}
	return SSLValid
}

// ClassifySeverity ranks a monitor's current condition. Down monitors and
// expired certificates are critical; three or more consecutive failures
// while still nominally up count as flapping.
func ClassifySeverity(m *Monitor) Severity {
	if m.Status == StatusDown || m.SSLStatus == SSLExpired {
		return SeverityCritical
	}
	if m.FailuresInARow >= 3 {
		return SeverityHigh
	}
	if m.SSLStatus == SSLExpiringSoon {
		return SeverityMedium
	}
	if m.FailuresInARow >= 1 {
		return SeverityLow
	}
	return SeverityNone
}
