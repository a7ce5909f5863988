package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bastionsec/bastion/internal/models"
	"github.com/bastionsec/bastion/internal/services"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

// IDSServiceInterface defines the interface for the alert and correlation layer
type IDSServiceInterface interface {
	ListAlerts(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error)
	Statistics(ctx context.Context) (*models.AlertStats, error)
	UpdateAlertStatus(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error)
	AnalyzeActivity(ctx context.Context, ip string) (*services.ActivityAnalysis, error)
	ListHoneypotInteractions(ctx context.Context, filter models.HoneypotFilter, limit, offset int) ([]*models.HoneypotInteraction, error)
}

// IDSHandler exposes the monitoring surface. Every route requires an
// authenticated admin; enforcement lives in the route middleware.
type IDSHandler struct {
	service IDSServiceInterface
}

func NewIDSHandler(service IDSServiceInterface) *IDSHandler {
	return &IDSHandler{service: service}
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// UpdateAlertRequest represents the request body for alert triage
type UpdateAlertRequest struct {
	Status     string  `json:"status" validate:"required,oneof=open investigating resolved false_positive"`
	AssignedTo *string `json:"assigned_to" validate:"omitempty,max=255"`
}

// ListAlerts returns alerts newest first, optionally filtered by
// severity, status and type
func (h *IDSHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := models.AlertFilter{
		Severity:  r.URL.Query().Get("severity"),
		Status:    r.URL.Query().Get("status"),
		AlertType: r.URL.Query().Get("type"),
	}
	limit, offset := pagination(r)

	alerts, err := h.service.ListAlerts(r.Context(), filter, limit, offset)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid filter value")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "", map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Statistics returns aggregate alert counts for the dashboard
func (h *IDSHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "", stats)
}

// UpdateAlert moves an alert through its triage lifecycle
func (h *IDSHandler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	if alertID == "" {
		pkghttp.WriteBadRequest(w, "Alert ID is required")
		return
	}

	var req UpdateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	alert, err := h.service.UpdateAlertStatus(r.Context(), alertID, req.Status, req.AssignedTo)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Alert not found")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid alert status")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Alert updated", alert)
}

// AnalyzeIP returns windowed activity and a threat level for one source IP
func (h *IDSHandler) AnalyzeIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if net.ParseIP(ip) == nil {
		pkghttp.WriteBadRequest(w, "Invalid IP address")
		return
	}

	analysis, err := h.service.AnalyzeActivity(r.Context(), ip)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "", analysis)
}

// ListHoneypotInteractions returns captured deception-engine activity
func (h *IDSHandler) ListHoneypotInteractions(w http.ResponseWriter, r *http.Request) {
	filter := models.HoneypotFilter{
		IPAddress: r.URL.Query().Get("ip"),
	}
	limit, offset := pagination(r)

	interactions, err := h.service.ListHoneypotInteractions(r.Context(), filter, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "", map[string]interface{}{
		"interactions": interactions,
		"count":        len(interactions),
	})
}

// pagination reads limit and offset query parameters with safe bounds
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
