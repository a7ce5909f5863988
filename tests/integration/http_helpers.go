package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/config"
	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/handlers"
	middlewareCustom "github.com/bastionsec/bastion/internal/middleware"
	"github.com/bastionsec/bastion/internal/routes"
	"github.com/bastionsec/bastion/internal/services"
	pkghttp "github.com/bastionsec/bastion/pkg/http"
	pkglogger "github.com/bastionsec/bastion/pkg/logger"
)

// TestServer wraps httptest.Server with a real database and the full
// middleware and service stack
type TestServer struct {
	Server *httptest.Server
	Pool   *database.DB
	Config *config.Config

	// Service references for inspection in tests
	IDSService *services.IDSService
	logger     *slog.Logger
}

// NewTestServer builds a complete HTTP server backed by the given
// database. No timing delay is configured so login tests run fast.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	secLogger := pkglogger.NewSecurityLogger(logger)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret-32-characters-long-for-testing",
			SessionTokenExpiry: time.Hour,
		},
		Security: config.SecurityConfig{
			LockoutThreshold:    5,
			LockoutDuration:     15 * time.Minute,
			EscalationThreshold: 3,
			IPFailureThreshold:  3,
			IPFailureWindow:     time.Hour,
			AnalysisWindow:      time.Hour,
		},
		TwoFactor: config.TwoFactorConfig{
			Issuer: "BastionTest",
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{},
		},
	}

	userRepo, eventRepo, alertRepo, honeypotRepo := InitializeRepositories(db)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	eventService := services.NewSecurityEventService(eventRepo, secLogger, logger)
	idsService := services.NewIDSService(alertRepo, eventRepo, honeypotRepo, secLogger, logger, cfg.Security.AnalysisWindow)
	honeypotService := services.NewHoneypotService(honeypotRepo, eventService, idsService, logger)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry)
	totpManager := auth.NewTOTPManager(cfg.TwoFactor.Issuer)

	authService := services.NewAuthService(userRepo, eventService, idsService, tokenManager, totpManager, nil, cfg.Security, logger)
	twoFactorService := services.NewTwoFactorService(userRepo, authService, eventService, totpManager, logger)

	cookieConfig := auth.CookieConfig{}
	authHandler := handlers.NewAuthHandler(authService, ipConfig, cookieConfig, tokenManager.Expiry())
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, ipConfig)
	idsHandler := handlers.NewIDSHandler(idsService)

	authMiddleware := auth.NewMiddleware(tokenManager, eventService, ipConfig)
	guard := middlewareCustom.NewInjectionGuard(honeypotService, eventService, ipConfig, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, twoFactorHandler, idsHandler, authMiddleware, guard, userRepo)

	return &TestServer{
		Server:     httptest.NewServer(r),
		Pool:       db,
		Config:     cfg,
		IDSService: idsService,
		logger:     logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a session token
func (ts *TestServer) RequestWithAuth(method, path, token string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses a JSON response body into the target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// Envelope mirrors the response envelope for assertions
type Envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

// ParseEnvelope decodes the standard response envelope
func ParseEnvelope(resp *http.Response) (*Envelope, error) {
	var env Envelope
	if err := ParseJSONResponse(resp, &env); err != nil {
		return nil, fmt.Errorf("failed to parse response envelope: %w", err)
	}
	return &env, nil
}

// ExtractToken pulls the session token from a completed login response
func ExtractToken(resp *http.Response) (string, error) {
	env, err := ParseEnvelope(resp)
	if err != nil {
		return "", err
	}
	token, _ := env.Data["token"].(string)
	if token == "" {
		return "", fmt.Errorf("no token in response (message: %q)", env.Message)
	}
	return token, nil
}
