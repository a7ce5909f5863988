package logger

import (
	"context"
	"log/slog"
	"time"
)

// SecurityRecord is the log-side mirror of a security event. The durable
// copy lives in the event store; this one feeds log pipelines and humans.
type SecurityRecord struct {
	Level       string
	Event       string
	UserID      string
	UserEmail   string
	IPAddress   string
	Description string
	Metadata    map[string]string
}

// SecurityLogger emits structured security telemetry
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger}
}

// LogEvent writes a security event record at a level matching its severity
func (sl *SecurityLogger) LogEvent(rec SecurityRecord) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event", rec.Event),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if rec.UserID != "" {
		attrs = append(attrs, slog.String("user_id", rec.UserID))
	}
	if rec.UserEmail != "" {
		attrs = append(attrs, slog.String("user_email", SanitizedEmail(rec.UserEmail)))
	}
	if rec.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", rec.IPAddress))
	}
	if rec.Description != "" {
		attrs = append(attrs, slog.String("description", rec.Description))
	}
	for key, val := range rec.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	sl.logger.LogAttrs(context.Background(), slogLevel(rec.Level), "security_event", attrs...)
}

// LogAlertRaised mirrors alert creation into the log stream so the
// monitoring team sees findings even if the webhook channel is down
func (sl *SecurityLogger) LogAlertRaised(alertID, severity, alertType, title, ipAddress string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "alert"),
		slog.String("alert_id", alertID),
		slog.String("severity", severity),
		slog.String("alert_type", alertType),
		slog.String("title", title),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	sl.logger.LogAttrs(context.Background(), slogLevel(severity), "ids_alert", attrs...)
}

func slogLevel(level string) slog.Level {
	switch level {
	case "critical", "high", "error":
		return slog.LevelError
	case "warn", "medium":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
