package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	pkglogger "github.com/bastionsec/bastion/pkg/logger"
)

// AlertRepository defines the interface for alert storage
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) (*models.Alert, error)
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error)
	UpdateStatus(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error)
	Stats(ctx context.Context) (*models.AlertStats, error)
}

// HoneypotRepository defines the interface for honeypot interaction storage
type HoneypotRepository interface {
	Create(ctx context.Context, interaction *models.HoneypotInteraction) (*models.HoneypotInteraction, error)
	List(ctx context.Context, filter models.HoneypotFilter, limit, offset int) ([]*models.HoneypotInteraction, error)
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error)
}

// IDSService is the alert and correlation layer: it raises findings for
// the monitoring team, drives the alert lifecycle, and analyzes per-IP
// activity over a trailing window.
type IDSService struct {
	alerts         AlertRepository
	events         SecurityEventRepository
	honeypots      HoneypotRepository
	notifiers      []Notifier
	emailNotifier  Notifier // critical alerts only, nil when unconfigured
	secLogger      *pkglogger.SecurityLogger
	logger         *slog.Logger
	analysisWindow time.Duration
}

func NewIDSService(
	alerts AlertRepository,
	events SecurityEventRepository,
	honeypots HoneypotRepository,
	secLogger *pkglogger.SecurityLogger,
	logger *slog.Logger,
	analysisWindow time.Duration,
) *IDSService {
	return &IDSService{
		alerts:         alerts,
		events:         events,
		honeypots:      honeypots,
		secLogger:      secLogger,
		logger:         logger,
		analysisWindow: analysisWindow,
	}
}

// AddNotifier registers a delivery channel for every raised alert
func (s *IDSService) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// SetEmailNotifier registers the channel reserved for critical alerts
func (s *IDSService) SetEmailNotifier(n Notifier) {
	s.emailNotifier = n
}

// RaiseAlert persists a finding and fans it out to notification channels.
// Raising is best effort from the caller's perspective: a storage failure
// is logged and nil is returned, never an error, because alerts are side
// effects of an already-decided request outcome.
func (s *IDSService) RaiseAlert(ctx context.Context, alert *models.Alert) *models.Alert {
	if !models.ValidSeverity(alert.Severity) {
		s.logger.Error("refusing alert with unknown severity", slog.String("severity", alert.Severity))
		return nil
	}
	if !models.ValidAlertType(alert.AlertType) {
		s.logger.Error("refusing alert with unknown type", slog.String("alert_type", alert.AlertType))
		return nil
	}

	created, err := s.alerts.Create(ctx, alert)
	if err != nil {
		s.logger.Error("failed to persist alert",
			slog.String("alert_type", alert.AlertType),
			slog.Any("error", err))
		return nil
	}

	ip := ""
	if created.IPAddress != nil {
		ip = *created.IPAddress
	}
	s.secLogger.LogAlertRaised(created.ID, created.Severity, created.AlertType, created.Title, ip)

	s.dispatch(created)
	return created
}

// dispatch sends the alert to notification channels without blocking the
// request that raised it
func (s *IDSService) dispatch(alert *models.Alert) {
	notifiers := make([]Notifier, 0, len(s.notifiers)+1)
	notifiers = append(notifiers, s.notifiers...)
	if alert.Severity == models.SeverityCritical && s.emailNotifier != nil {
		notifiers = append(notifiers, s.emailNotifier)
	}
	if len(notifiers) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, n := range notifiers {
			if err := n.NotifyAlert(ctx, alert); err != nil {
				s.logger.Error("alert notification failed",
					slog.String("alert_id", alert.ID),
					slog.Any("error", err))
			}
		}
	}()
}

// ListAlerts returns alerts newest first, narrowed by filter
func (s *IDSService) ListAlerts(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error) {
	if filter.Severity != "" && !models.ValidSeverity(filter.Severity) {
		return nil, models.ErrBadRequest
	}
	if filter.Status != "" && !models.ValidAlertStatus(filter.Status) {
		return nil, models.ErrBadRequest
	}
	if filter.AlertType != "" && !models.ValidAlertType(filter.AlertType) {
		return nil, models.ErrBadRequest
	}

	alerts, err := s.alerts.List(ctx, filter, limit, offset)
	if err != nil {
		s.logger.Error("failed to list alerts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return alerts, nil
}

// Statistics aggregates alert counts for the dashboard
func (s *IDSService) Statistics(ctx context.Context) (*models.AlertStats, error) {
	stats, err := s.alerts.Stats(ctx)
	if err != nil {
		s.logger.Error("failed to aggregate alert statistics", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return stats, nil
}

// UpdateAlertStatus transitions an alert through its lifecycle
func (s *IDSService) UpdateAlertStatus(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error) {
	if !models.ValidAlertStatus(status) {
		return nil, models.ErrBadRequest
	}

	alert, err := s.alerts.UpdateStatus(ctx, id, status, assignedTo)
	if err != nil {
		return nil, err
	}

	s.logger.Info("alert status updated",
		slog.String("alert_id", id),
		slog.String("status", status))
	return alert, nil
}

// ActivityAnalysis summarizes one IP's behavior over the trailing window
type ActivityAnalysis struct {
	IPAddress            string `json:"ip_address"`
	WindowMinutes        int    `json:"window_minutes"`
	TotalEvents          int    `json:"total_events"`
	FailedLogins         int    `json:"failed_logins"`
	InjectionAttempts    int    `json:"injection_attempts"`
	HoneypotInteractions int    `json:"honeypot_interactions"`
	ThreatLevel          string `json:"threat_level"`
}

// AnalyzeActivity grades an IP's recent behavior. Any honeypot contact is
// critical on its own: only an active attacker ever reaches the deception
// layer.
func (s *IDSService) AnalyzeActivity(ctx context.Context, ip string) (*ActivityAnalysis, error) {
	since := time.Now().Add(-s.analysisWindow)

	events, err := s.events.ListByIPSince(ctx, ip, since)
	if err != nil {
		s.logger.Error("failed to load events for analysis",
			slog.String("ip_address", ip),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	honeypotCount, err := s.honeypots.CountByIPSince(ctx, ip, since)
	if err != nil {
		s.logger.Error("failed to count honeypot interactions",
			slog.String("ip_address", ip),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	analysis := &ActivityAnalysis{
		IPAddress:            ip,
		WindowMinutes:        int(s.analysisWindow.Minutes()),
		TotalEvents:          len(events),
		HoneypotInteractions: int(honeypotCount),
	}

	for _, event := range events {
		switch event.Event {
		case models.EventLoginFailure:
			analysis.FailedLogins++
		case models.EventInjectionAttempt:
			analysis.InjectionAttempts++
		}
	}

	analysis.ThreatLevel = threatLevel(analysis)
	return analysis, nil
}

func threatLevel(a *ActivityAnalysis) string {
	switch {
	case a.HoneypotInteractions > 0:
		return models.SeverityCritical
	case a.InjectionAttempts > 3 || a.FailedLogins > 10:
		return models.SeverityHigh
	case a.InjectionAttempts > 0 || a.FailedLogins > 5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// ListHoneypotInteractions returns deception-layer contacts, newest first
func (s *IDSService) ListHoneypotInteractions(ctx context.Context, filter models.HoneypotFilter, limit, offset int) ([]*models.HoneypotInteraction, error) {
	interactions, err := s.honeypots.List(ctx, filter, limit, offset)
	if err != nil {
		s.logger.Error("failed to list honeypot interactions", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return interactions, nil
}
