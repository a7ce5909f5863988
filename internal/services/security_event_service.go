package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	pkglogger "github.com/bastionsec/bastion/pkg/logger"
)

// SecurityEventRepository defines the interface for the append-only event log
type SecurityEventRepository interface {
	Append(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	CountByIPSince(ctx context.Context, ip string, event string, since time.Time) (int64, error)
	ListByIPSince(ctx context.Context, ip string, since time.Time) ([]*models.SecurityEvent, error)
}

// SecurityEventService persists security events and mirrors them into the
// structured log stream. Recording is best effort: a store failure is
// logged and absorbed so telemetry problems never fail the request that
// produced them.
type SecurityEventService struct {
	repo      SecurityEventRepository
	secLogger *pkglogger.SecurityLogger
	logger    *slog.Logger
}

func NewSecurityEventService(repo SecurityEventRepository, secLogger *pkglogger.SecurityLogger, logger *slog.Logger) *SecurityEventService {
	return &SecurityEventService{
		repo:      repo,
		secLogger: secLogger,
		logger:    logger,
	}
}

// RecordEvent appends an event to the store and the log stream
func (s *SecurityEventService) RecordEvent(ctx context.Context, event *models.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if _, err := s.repo.Append(ctx, event); err != nil {
		s.logger.Error("failed to persist security event",
			slog.String("event", event.Event),
			slog.Any("error", err))
	}

	rec := pkglogger.SecurityRecord{
		Level:       event.Level,
		Event:       event.Event,
		Description: event.Description,
	}
	if event.UserID != nil {
		rec.UserID = *event.UserID
	}
	if event.UserEmail != nil {
		rec.UserEmail = *event.UserEmail
	}
	if event.IPAddress != nil {
		rec.IPAddress = *event.IPAddress
	}
	s.secLogger.LogEvent(rec)
}

// CountByIPSince exposes the windowed counting primitive to correlation
// consumers
func (s *SecurityEventService) CountByIPSince(ctx context.Context, ip string, event string, since time.Time) (int64, error) {
	return s.repo.CountByIPSince(ctx, ip, event, since)
}

// ListByIPSince returns the raw events for one IP inside a window
func (s *SecurityEventService) ListByIPSince(ctx context.Context, ip string, since time.Time) ([]*models.SecurityEvent, error) {
	return s.repo.ListByIPSince(ctx, ip, since)
}
