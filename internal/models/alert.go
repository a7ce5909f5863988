package models

import "time"

// Alert severities, ordered low to critical
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert types
const (
	AlertTypeBruteForce         = "brute_force"
	AlertTypeSQLInjection       = "sql_injection"
	AlertTypeSuspiciousActivity = "suspicious_activity"
	AlertTypeUnauthorizedAccess = "unauthorized_access"
)

// Alert statuses. "resolved" and "false_positive" are terminal.
const (
	AlertStatusOpen          = "open"
	AlertStatusInvestigating = "investigating"
	AlertStatusResolved      = "resolved"
	AlertStatusFalsePositive = "false_positive"
)

// Alert is a finding raised for the monitoring team. Alerts are mutated
// only through the status-transition operation and never deleted.
type Alert struct {
	ID          string     `json:"id"`
	Severity    string     `json:"severity"`
	AlertType   string     `json:"alert_type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	IPAddress   *string    `json:"ip_address,omitempty"`
	UserID      *string    `json:"user_id,omitempty"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
	Metadata    Metadata   `json:"metadata,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// ValidSeverity reports whether s is a known severity
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidAlertType reports whether t is a known alert type
func ValidAlertType(t string) bool {
	switch t {
	case AlertTypeBruteForce, AlertTypeSQLInjection, AlertTypeSuspiciousActivity, AlertTypeUnauthorizedAccess:
		return true
	}
	return false
}

// ValidAlertStatus reports whether s is a known status
func ValidAlertStatus(s string) bool {
	switch s {
	case AlertStatusOpen, AlertStatusInvestigating, AlertStatusResolved, AlertStatusFalsePositive:
		return true
	}
	return false
}

// TerminalStatus reports whether s ends an alert's lifecycle
func TerminalStatus(s string) bool {
	return s == AlertStatusResolved || s == AlertStatusFalsePositive
}

// AlertFilter narrows alert listing. Empty fields match everything.
type AlertFilter struct {
	Severity  string
	Status    string
	AlertType string
}

// AlertStats aggregates alert counts for the dashboard
type AlertStats struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	Recent     int            `json:"recent"` // trailing 24h
	ByStatus   map[string]int `json:"by_status"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}
