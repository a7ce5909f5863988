package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/bastionsec/bastion/internal/services"
	pkgauth "github.com/bastionsec/bastion/pkg/auth"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

// AuthServiceInterface defines the interface for authentication business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, ip string) (*services.UserResponse, error)
	Login(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error)
	AdminLogin(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error)
	Logout(ctx context.Context, claims *models.TokenClaims, ip string)
	Profile(ctx context.Context, userID string) (*services.UserResponse, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service     AuthServiceInterface
	ipConfig    *pkghttp.IPConfig
	cookies     auth.CookieConfig
	tokenExpiry time.Duration
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, cookies auth.CookieConfig, tokenExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		service:     service,
		ipConfig:    ipConfig,
		cookies:     cookies,
		tokenExpiry: tokenExpiry,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest represents the request body for login. The time-based code
// is optional: accounts with a second factor enabled supply it to complete
// login in a single request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TOTPCode string `json:"totp_code" validate:"omitempty,len=6"`
}

// LoginResponse is the payload returned on a completed login
type LoginResponse struct {
	Token string                 `json:"token"`
	User  *services.UserResponse `json:"user"`
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	user, err := h.service.Register(r.Context(), req.Email, req.Password, ipAddress)
	if err != nil {
		var pve *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pve):
			pkghttp.WriteBadRequest(w, "Password does not meet the security requirements")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account with this email already exists")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid registration request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteSuccess(w, http.StatusCreated, "Account created successfully", user)
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.service.Login)
}

// AdminLogin handles login against the admin surface. Role enforcement
// happens in the service; the handler's error mapping is identical to
// Login so both endpoints fail the same way.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.service.AdminLogin)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, attempt func(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error)) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := attempt(r.Context(), req.Email, req.Password, req.TOTPCode, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteForbidden(w, "Account is temporarily locked. Please try again later.")
		case errors.Is(err, models.ErrInvalidTwoFactorCode):
			pkghttp.WriteUnauthorized(w, "Invalid two-factor authentication code")
		case errors.Is(err, models.ErrUnauthorized):
			// Identical message for unknown email and wrong password
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	if result.RequiresTwoFactor {
		// First factor passed but the login is incomplete: no token yet
		pkghttp.WriteJSON(w, http.StatusOK, pkghttp.Response{
			Success: false,
			Message: "Two-factor authentication code required",
			Data:    map[string]interface{}{"requires_2fa": true},
		})
		return
	}

	auth.SetSessionCookie(w, result.Token, h.tokenExpiry, h.cookies)
	pkghttp.WriteSuccess(w, http.StatusOK, "Login successful", LoginResponse{
		Token: result.Token,
		User:  result.User,
	})
}

// Logout records the logout event and clears the session cookie. The
// token itself is stateless so there is nothing server-side to revoke.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	h.service.Logout(r.Context(), claims, ipAddress)

	auth.ClearSessionCookie(w, h.cookies)
	pkghttp.WriteSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// Profile returns the authenticated user's own account
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.service.Profile(r.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteForbidden(w, "Account is temporarily locked. Please try again later.")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "", user)
}
