package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/bastionsec/bastion/internal/services"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

// TwoFactorServiceInterface defines the interface for second-factor management
type TwoFactorServiceInterface interface {
	Setup(ctx context.Context, userID string) (*services.SetupResponse, error)
	Verify(ctx context.Context, userID, code, ip string) error
	Disable(ctx context.Context, userID, password, ip string) error
	Status(ctx context.Context, userID string) (bool, error)
}

// TwoFactorHandler handles second-factor enrollment endpoints. All routes
// sit behind authentication; the user acts only on their own account.
type TwoFactorHandler struct {
	service  TwoFactorServiceInterface
	ipConfig *pkghttp.IPConfig
}

func NewTwoFactorHandler(service TwoFactorServiceInterface, ipConfig *pkghttp.IPConfig) *TwoFactorHandler {
	return &TwoFactorHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// VerifyTwoFactorRequest represents the request body for code verification
type VerifyTwoFactorRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// DisableTwoFactorRequest represents the request body for disabling 2FA.
// The current password is required so a hijacked session cannot silently
// strip the second factor.
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
}

// StatusResponse reports whether the second factor is active
type StatusResponse struct {
	Enabled bool `json:"enabled"`
}

// Setup generates a pending secret and returns enrollment artifacts
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	setup, err := h.service.Setup(r.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteForbidden(w, "Account is temporarily locked. Please try again later.")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Scan the QR code with your authenticator app, then verify a code to activate", setup)
}

// Verify activates the pending secret after the user proves possession
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req VerifyTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Verify(r.Context(), claims.UserID, req.Code, ipAddress); err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotConfigured):
			pkghttp.WriteBadRequest(w, "Two-factor authentication has not been set up")
		case errors.Is(err, models.ErrInvalidTwoFactorCode):
			pkghttp.WriteUnauthorized(w, "Invalid two-factor authentication code")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Two-factor authentication enabled", nil)
}

// Disable turns the second factor off after re-verifying the password
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req DisableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Disable(r.Context(), claims.UserID, req.Password, ipAddress); err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotEnabled):
			pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid password")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Two-factor authentication disabled", nil)
}

// Status reports whether the second factor is active for the caller
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	enabled, err := h.service.Status(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "", StatusResponse{Enabled: enabled})
}
