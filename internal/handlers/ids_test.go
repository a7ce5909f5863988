package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionsec/bastion/internal/models"
	"github.com/bastionsec/bastion/internal/services"
)

type mockIDSService struct {
	ListAlertsFunc               func(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error)
	StatisticsFunc               func(ctx context.Context) (*models.AlertStats, error)
	UpdateAlertStatusFunc        func(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error)
	AnalyzeActivityFunc          func(ctx context.Context, ip string) (*services.ActivityAnalysis, error)
	ListHoneypotInteractionsFunc func(ctx context.Context, filter models.HoneypotFilter, limit, offset int) ([]*models.HoneypotInteraction, error)
}

func (m *mockIDSService) ListAlerts(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error) {
	if m.ListAlertsFunc != nil {
		return m.ListAlertsFunc(ctx, filter, limit, offset)
	}
	return []*models.Alert{}, nil
}

func (m *mockIDSService) Statistics(ctx context.Context) (*models.AlertStats, error) {
	if m.StatisticsFunc != nil {
		return m.StatisticsFunc(ctx)
	}
	return &models.AlertStats{}, nil
}

func (m *mockIDSService) UpdateAlertStatus(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error) {
	if m.UpdateAlertStatusFunc != nil {
		return m.UpdateAlertStatusFunc(ctx, id, status, assignedTo)
	}
	return nil, models.ErrNotFound
}

func (m *mockIDSService) AnalyzeActivity(ctx context.Context, ip string) (*services.ActivityAnalysis, error) {
	if m.AnalyzeActivityFunc != nil {
		return m.AnalyzeActivityFunc(ctx, ip)
	}
	return &services.ActivityAnalysis{IPAddress: ip}, nil
}

func (m *mockIDSService) ListHoneypotInteractions(ctx context.Context, filter models.HoneypotFilter, limit, offset int) ([]*models.HoneypotInteraction, error) {
	if m.ListHoneypotInteractionsFunc != nil {
		return m.ListHoneypotInteractionsFunc(ctx, filter, limit, offset)
	}
	return []*models.HoneypotInteraction{}, nil
}

// withURLParam injects a chi route parameter for handlers called outside
// a router
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestIDSHandler_ListAlerts(t *testing.T) {
	var gotFilter models.AlertFilter
	var gotLimit, gotOffset int
	service := &mockIDSService{
		ListAlertsFunc: func(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error) {
			gotFilter = filter
			gotLimit = limit
			gotOffset = offset
			return []*models.Alert{
				{ID: "alert_1", Severity: models.SeverityHigh, AlertType: models.AlertTypeBruteForce, Status: models.AlertStatusOpen, CreatedAt: time.Now()},
			}, nil
		},
	}
	handler := NewIDSHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/ids/alerts?severity=high&status=open&limit=10&offset=20", nil)
	rec := httptest.NewRecorder()
	handler.ListAlerts(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AlertFilter{Severity: "high", Status: "open"}, gotFilter)
	assert.Equal(t, 10, gotLimit)
	assert.Equal(t, 20, gotOffset)

	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}

func TestIDSHandler_ListAlertsInvalidFilter(t *testing.T) {
	service := &mockIDSService{
		ListAlertsFunc: func(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error) {
			return nil, models.ErrBadRequest
		},
	}
	handler := NewIDSHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/ids/alerts?severity=extreme", nil)
	rec := httptest.NewRecorder()
	handler.ListAlerts(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIDSHandler_PaginationBounds(t *testing.T) {
	var gotLimit, gotOffset int
	service := &mockIDSService{
		ListAlertsFunc: func(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error) {
			gotLimit = limit
			gotOffset = offset
			return []*models.Alert{}, nil
		},
	}
	handler := NewIDSHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/ids/alerts?limit=5000&offset=-3", nil)
	rec := httptest.NewRecorder()
	handler.ListAlerts(rec, req)

	assert.Equal(t, maxPageSize, gotLimit)
	assert.Equal(t, 0, gotOffset)
}

func TestIDSHandler_UpdateAlert(t *testing.T) {
	service := &mockIDSService{
		UpdateAlertStatusFunc: func(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error) {
			assert.Equal(t, "alert_1", id)
			assert.Equal(t, models.AlertStatusResolved, status)
			require.NotNil(t, assignedTo)
			assert.Equal(t, "analyst@example.com", *assignedTo)
			now := time.Now()
			return &models.Alert{ID: id, Status: status, AssignedTo: assignedTo, ResolvedAt: &now}, nil
		},
	}
	handler := NewIDSHandler(service)

	req := httptest.NewRequest(http.MethodPatch, "/ids/alerts/alert_1", strings.NewReader(`{"status":"resolved","assigned_to":"analyst@example.com"}`))
	req = withURLParam(req, "id", "alert_1")
	rec := httptest.NewRecorder()
	handler.UpdateAlert(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIDSHandler_UpdateAlertInvalidStatus(t *testing.T) {
	handler := NewIDSHandler(&mockIDSService{})

	req := httptest.NewRequest(http.MethodPatch, "/ids/alerts/alert_1", strings.NewReader(`{"status":"closed"}`))
	req = withURLParam(req, "id", "alert_1")
	rec := httptest.NewRecorder()
	handler.UpdateAlert(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIDSHandler_UpdateAlertNotFound(t *testing.T) {
	handler := NewIDSHandler(&mockIDSService{})

	req := httptest.NewRequest(http.MethodPatch, "/ids/alerts/missing", strings.NewReader(`{"status":"resolved"}`))
	req = withURLParam(req, "id", "missing")
	rec := httptest.NewRecorder()
	handler.UpdateAlert(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIDSHandler_AnalyzeIP(t *testing.T) {
	service := &mockIDSService{
		AnalyzeActivityFunc: func(ctx context.Context, ip string) (*services.ActivityAnalysis, error) {
			return &services.ActivityAnalysis{
				IPAddress:    ip,
				FailedLogins: 12,
				ThreatLevel:  "high",
			}, nil
		},
	}
	handler := NewIDSHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/ids/analyze/203.0.113.9", nil)
	req = withURLParam(req, "ip", "203.0.113.9")
	rec := httptest.NewRecorder()
	handler.AnalyzeIP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "203.0.113.9", data["ip_address"])
	assert.Equal(t, "high", data["threat_level"])
}

func TestIDSHandler_AnalyzeIPRejectsGarbage(t *testing.T) {
	handler := NewIDSHandler(&mockIDSService{})

	req := httptest.NewRequest(http.MethodGet, "/ids/analyze/not-an-ip", nil)
	req = withURLParam(req, "ip", "not-an-ip")
	rec := httptest.NewRecorder()
	handler.AnalyzeIP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIDSHandler_ListHoneypotInteractions(t *testing.T) {
	var gotFilter models.HoneypotFilter
	service := &mockIDSService{
		ListHoneypotInteractionsFunc: func(ctx context.Context, filter models.HoneypotFilter, limit, offset int) ([]*models.HoneypotInteraction, error) {
			gotFilter = filter
			return []*models.HoneypotInteraction{
				{ID: "int_1", IPAddress: "203.0.113.9", AttackType: "sql_injection"},
			}, nil
		},
	}
	handler := NewIDSHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/ids/honeypot/interactions?ip=203.0.113.9", nil)
	rec := httptest.NewRecorder()
	handler.ListHoneypotInteractions(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "203.0.113.9", gotFilter.IPAddress)
}
