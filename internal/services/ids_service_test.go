package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIDSFixture(alerts *MockAlertRepository, events *MockSecurityEventRepository, honeypots *MockHoneypotRepository) *IDSService {
	return NewIDSService(alerts, events, honeypots, testSecurityLogger(), testLogger(), time.Hour)
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []*models.Alert
	done   chan struct{}
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{done: make(chan struct{}, 4)}
}

func (n *captureNotifier) NotifyAlert(ctx context.Context, alert *models.Alert) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, alert)
	n.mu.Unlock()
	n.done <- struct{}{}
	return nil
}

func (n *captureNotifier) wait(t *testing.T) *models.Alert {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not invoked")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.alerts[len(n.alerts)-1]
}

func TestRaiseAlert_PersistsAndNotifies(t *testing.T) {
	alerts := &MockAlertRepository{}
	svc := newIDSFixture(alerts, &MockSecurityEventRepository{}, &MockHoneypotRepository{})
	notifier := newCaptureNotifier()
	svc.AddNotifier(notifier)

	ip := testIP
	created := svc.RaiseAlert(context.Background(), &models.Alert{
		Severity:    models.SeverityHigh,
		AlertType:   models.AlertTypeBruteForce,
		Title:       "test alert",
		Description: "test",
		IPAddress:   &ip,
	})

	require.NotNil(t, created)
	assert.Equal(t, models.AlertStatusOpen, created.Status)
	require.Len(t, alerts.Created, 1)

	delivered := notifier.wait(t)
	assert.Equal(t, created.ID, delivered.ID)
}

func TestRaiseAlert_EmailOnlyForCritical(t *testing.T) {
	svc := newIDSFixture(&MockAlertRepository{}, &MockSecurityEventRepository{}, &MockHoneypotRepository{})
	email := newCaptureNotifier()
	svc.SetEmailNotifier(email)

	svc.RaiseAlert(context.Background(), &models.Alert{
		Severity:  models.SeverityHigh,
		AlertType: models.AlertTypeBruteForce,
		Title:     "high",
	})
	svc.RaiseAlert(context.Background(), &models.Alert{
		Severity:  models.SeverityCritical,
		AlertType: models.AlertTypeSQLInjection,
		Title:     "critical",
	})

	delivered := email.wait(t)
	assert.Equal(t, models.SeverityCritical, delivered.Severity)

	email.mu.Lock()
	defer email.mu.Unlock()
	assert.Len(t, email.alerts, 1, "non-critical alerts skip the email channel")
}

func TestRaiseAlert_RejectsUnknownEnums(t *testing.T) {
	alerts := &MockAlertRepository{}
	svc := newIDSFixture(alerts, &MockSecurityEventRepository{}, &MockHoneypotRepository{})

	assert.Nil(t, svc.RaiseAlert(context.Background(), &models.Alert{
		Severity:  "urgent",
		AlertType: models.AlertTypeBruteForce,
	}))
	assert.Nil(t, svc.RaiseAlert(context.Background(), &models.Alert{
		Severity:  models.SeverityHigh,
		AlertType: "portscan",
	}))
	assert.Empty(t, alerts.Created)
}

func TestListAlerts_FilterValidation(t *testing.T) {
	svc := newIDSFixture(&MockAlertRepository{}, &MockSecurityEventRepository{}, &MockHoneypotRepository{})

	_, err := svc.ListAlerts(context.Background(), models.AlertFilter{Severity: "urgent"}, 50, 0)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.ListAlerts(context.Background(), models.AlertFilter{Status: "done"}, 50, 0)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.ListAlerts(context.Background(), models.AlertFilter{Severity: models.SeverityHigh}, 50, 0)
	assert.NoError(t, err)
}

func TestUpdateAlertStatus_ValidatesStatus(t *testing.T) {
	alerts := &MockAlertRepository{
		UpdateStatusFunc: func(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error) {
			now := time.Now()
			alert := &models.Alert{ID: id, Status: status}
			if models.TerminalStatus(status) {
				alert.ResolvedAt = &now
			}
			return alert, nil
		},
	}
	svc := newIDSFixture(alerts, &MockSecurityEventRepository{}, &MockHoneypotRepository{})

	_, err := svc.UpdateAlertStatus(context.Background(), "alert_1", "finished", nil)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	updated, err := svc.UpdateAlertStatus(context.Background(), "alert_1", models.AlertStatusResolved, nil)
	require.NoError(t, err)
	assert.NotNil(t, updated.ResolvedAt)
}

func eventOfKind(kind, ip string) *models.SecurityEvent {
	return &models.SecurityEvent{Event: kind, IPAddress: &ip, Timestamp: time.Now()}
}

func TestAnalyzeActivity_ThreatLevels(t *testing.T) {
	tests := []struct {
		name          string
		failedLogins  int
		injections    int
		honeypotCount int64
		want          string
	}{
		{"quiet ip", 0, 0, 0, models.SeverityLow},
		{"few failures", 3, 0, 0, models.SeverityLow},
		{"many failures", 6, 0, 0, models.SeverityMedium},
		{"any injection", 0, 1, 0, models.SeverityMedium},
		{"injection burst", 0, 4, 0, models.SeverityHigh},
		{"failure flood", 11, 0, 0, models.SeverityHigh},
		{"honeypot contact trumps all", 0, 0, 1, models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &MockSecurityEventRepository{}
			for i := 0; i < tt.failedLogins; i++ {
				events.Appended = append(events.Appended, eventOfKind(models.EventLoginFailure, testIP))
			}
			for i := 0; i < tt.injections; i++ {
				events.Appended = append(events.Appended, eventOfKind(models.EventInjectionAttempt, testIP))
			}

			honeypots := &MockHoneypotRepository{
				CountByIPSinceFunc: func(ctx context.Context, ip string, since time.Time) (int64, error) {
					return tt.honeypotCount, nil
				},
			}

			svc := newIDSFixture(&MockAlertRepository{}, events, honeypots)

			analysis, err := svc.AnalyzeActivity(context.Background(), testIP)
			require.NoError(t, err)
			assert.Equal(t, tt.want, analysis.ThreatLevel)
			assert.Equal(t, tt.failedLogins, analysis.FailedLogins)
			assert.Equal(t, tt.injections, analysis.InjectionAttempts)
		})
	}
}
