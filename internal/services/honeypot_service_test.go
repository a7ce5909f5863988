package services

import (
	"context"
	"testing"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	"github.com/bastionsec/bastion/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHoneypotFixture() (*HoneypotService, *MockHoneypotRepository, *MockAlertRepository, *MockSecurityEventRepository) {
	honeypots := &MockHoneypotRepository{}
	alerts := &MockAlertRepository{}
	events := &MockSecurityEventRepository{}
	logger := testLogger()

	eventService := NewSecurityEventService(events, testSecurityLogger(), logger)
	idsService := NewIDSService(alerts, events, honeypots, testSecurityLogger(), logger, time.Hour)
	svc := NewHoneypotService(honeypots, eventService, idsService, logger)

	return svc, honeypots, alerts, events
}

func injectionDetection(payload string) *security.Detection {
	return &security.Detection{
		Detected: true,
		Field:    "username",
		Pattern:  "(?i)'\\s*or\\s+",
		Value:    payload,
	}
}

func testRequestContext() DetectionContext {
	return DetectionContext{
		IPAddress: testIP,
		UserAgent: "sqlmap/1.7",
		Endpoint:  "/auth/login",
		Method:    "POST",
	}
}

func TestDivert_TripleSideEffect(t *testing.T) {
	svc, honeypots, alerts, events := newHoneypotFixture()

	rows := svc.Divert(context.Background(), injectionDetection("' OR 1=1--"), testRequestContext())
	require.NotEmpty(t, rows)

	// Exactly one interaction, one critical alert, one event
	require.Len(t, honeypots.Created, 1)
	interaction := honeypots.Created[0]
	assert.Equal(t, testIP, interaction.IPAddress)
	assert.Equal(t, models.AlertTypeSQLInjection, interaction.AttackType)
	assert.Equal(t, "' OR 1=1--", interaction.Payload)
	assert.NotEmpty(t, interaction.Response)

	created := alerts.AlertsOfType(models.AlertTypeSQLInjection)
	require.Len(t, created, 1)
	assert.Equal(t, models.SeverityCritical, created[0].Severity)

	require.Len(t, events.EventsOfKind(models.EventHoneypotActivated), 1)
}

func TestDivert_StoreFailureStillReturnsData(t *testing.T) {
	svc, honeypots, _, _ := newHoneypotFixture()
	honeypots.CreateFunc = func(ctx context.Context, interaction *models.HoneypotInteraction) (*models.HoneypotInteraction, error) {
		return nil, models.ErrInternalServer
	}

	rows := svc.Divert(context.Background(), injectionDetection("' OR 1=1--"), testRequestContext())
	assert.NotEmpty(t, rows, "attacker gets fabricated data even when recording fails")
}

func TestClassifyDataset(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"default is users", "' OR 1=1--", "users"},
		{"employee vocabulary", "' UNION SELECT * FROM employees--", "employees"},
		{"financial vocabulary", "'; SELECT * FROM financial_records--", "financial"},
		{"account vocabulary", "' union select account_number from x--", "financial"},
		{"secret vocabulary", "' UNION SELECT name, value FROM secrets--", "secrets"},
		{"key vocabulary", "' OR api_key IS NOT NULL--", "secrets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataset, rows := classifyDataset(tt.payload)
			assert.Equal(t, tt.want, dataset)
			assert.NotEmpty(t, rows)
		})
	}
}

func TestFabricatedDataLooksLikeALeak(t *testing.T) {
	_, rows := classifyDataset("' UNION SELECT * FROM employees--")

	for _, row := range rows {
		assert.Contains(t, row, "ssn")
		assert.Contains(t, row, "salary")
	}
}
