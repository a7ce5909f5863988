package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/bastionsec/bastion/internal/services"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
)

type mockAuthService struct {
	RegisterFunc   func(ctx context.Context, email, password, ip string) (*services.UserResponse, error)
	LoginFunc      func(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error)
	AdminLoginFunc func(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error)
	LogoutFunc     func(ctx context.Context, claims *models.TokenClaims, ip string)
	ProfileFunc    func(ctx context.Context, userID string) (*services.UserResponse, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, ip string) (*services.UserResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, password, ip)
	}
	return nil, models.ErrInternalServer
}

func (m *mockAuthService) Login(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, totpCode, ip)
	}
	return nil, models.ErrUnauthorized
}

func (m *mockAuthService) AdminLogin(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error) {
	if m.AdminLoginFunc != nil {
		return m.AdminLoginFunc(ctx, email, password, totpCode, ip)
	}
	return nil, models.ErrUnauthorized
}

func (m *mockAuthService) Logout(ctx context.Context, claims *models.TokenClaims, ip string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, claims, ip)
	}
}

func (m *mockAuthService) Profile(ctx context.Context, userID string) (*services.UserResponse, error) {
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func newAuthHandler(service *mockAuthService) *AuthHandler {
	return NewAuthHandler(service, &pkghttp.IPConfig{}, auth.CookieConfig{}, time.Hour)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) pkghttp.Response {
	t.Helper()
	var resp pkghttp.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func withClaims(r *http.Request, claims *models.TokenClaims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), auth.UserContextKey, claims))
}

func TestAuthHandler_LoginSuccess(t *testing.T) {
	service := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error) {
			assert.Equal(t, "user@example.com", email)
			return &services.LoginResult{
				Token: "session-token",
				User:  &services.UserResponse{ID: "user_1", Email: email, Role: "user"},
			}, nil
		},
	}
	handler := newAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"User@Example.com","password":"Correct1pass"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "session-token", data["token"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session_token", cookies[0].Name)
	assert.Equal(t, "session-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestAuthHandler_LoginFailureMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
	}{
		{"unknown or wrong password", models.ErrUnauthorized, http.StatusUnauthorized, "Invalid email or password"},
		{"locked account", models.ErrAccountLocked, http.StatusForbidden, "Account is temporarily locked. Please try again later."},
		{"bad second factor", models.ErrInvalidTwoFactorCode, http.StatusUnauthorized, "Invalid two-factor authentication code"},
		{"storage failure", models.ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &mockAuthService{
				LoginFunc: func(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error) {
					return nil, tt.err
				},
			}
			handler := newAuthHandler(service)

			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@example.com","password":"whatever1A"}`))
			rec := httptest.NewRecorder()
			handler.Login(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMessage, resp.Message)
			assert.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestAuthHandler_LoginRequiresTwoFactor(t *testing.T) {
	service := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error) {
			return &services.LoginResult{RequiresTwoFactor: true}, nil
		},
	}
	handler := newAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"user@example.com","password":"Correct1pass"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	// 200 but not a success: the first factor passed, the login is pending
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["requires_2fa"])
	assert.Empty(t, rec.Result().Cookies())
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	handler := newAuthHandler(&mockAuthService{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"email": nope`},
		{"missing email", `{"password":"Correct1pass"}`},
		{"invalid email", `{"email":"not-an-email","password":"Correct1pass"}`},
		{"missing password", `{"email":"user@example.com"}`},
		{"short totp code", `{"email":"user@example.com","password":"Correct1pass","totp_code":"123"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.Login(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAuthHandler_AdminLoginUsesAdminPipeline(t *testing.T) {
	adminCalled := false
	service := &mockAuthService{
		AdminLoginFunc: func(ctx context.Context, email, password, totpCode, ip string) (*services.LoginResult, error) {
			adminCalled = true
			return nil, models.ErrUnauthorized
		},
	}
	handler := newAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/admin/login", strings.NewReader(`{"email":"user@example.com","password":"Correct1pass"}`))
	rec := httptest.NewRecorder()
	handler.AdminLogin(rec, req)

	assert.True(t, adminCalled)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decodeResponse(t, rec).Message)
}

func TestAuthHandler_Register(t *testing.T) {
	service := &mockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, ip string) (*services.UserResponse, error) {
			return &services.UserResponse{ID: "user_1", Email: email, Role: "user"}, nil
		},
	}
	handler := newAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"new@example.com","password":"Correct1pass"}`))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestAuthHandler_RegisterConflict(t *testing.T) {
	service := &mockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, ip string) (*services.UserResponse, error) {
			return nil, models.ErrConflict
		},
	}
	handler := newAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"taken@example.com","password":"Correct1pass"}`))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	var gotUserID string
	service := &mockAuthService{
		LogoutFunc: func(ctx context.Context, claims *models.TokenClaims, ip string) {
			gotUserID = claims.UserID
		},
	}
	handler := newAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = withClaims(req, &models.TokenClaims{UserID: "user_1", Email: "user@example.com"})
	rec := httptest.NewRecorder()
	handler.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user_1", gotUserID)

	// Cookie cleared
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session_token", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestAuthHandler_ProfileLockedAccount(t *testing.T) {
	service := &mockAuthService{
		ProfileFunc: func(ctx context.Context, userID string) (*services.UserResponse, error) {
			return nil, models.ErrAccountLocked
		},
	}
	handler := newAuthHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req = withClaims(req, &models.TokenClaims{UserID: "user_1"})
	rec := httptest.NewRecorder()
	handler.Profile(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthHandler_ProfileWithoutClaims(t *testing.T) {
	handler := newAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	rec := httptest.NewRecorder()
	handler.Profile(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
