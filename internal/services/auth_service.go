package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/config"
	"github.com/bastionsec/bastion/internal/models"
	pkgauth "github.com/bastionsec/bastion/pkg/auth"
)

// UserRepository defines the interface for account storage
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	RecordLoginFailure(ctx context.Context, id string, at time.Time) (*models.User, error)
	LockAccount(ctx context.Context, id string, until time.Time) (*models.User, error)
	ClearLock(ctx context.Context, id string) (*models.User, error)
	RecordLoginSuccess(ctx context.Context, id string, ip string, at time.Time) (*models.User, error)
	SetTwoFactorSecret(ctx context.Context, id string, secret string) error
	EnableTwoFactor(ctx context.Context, id string) error
	DisableTwoFactor(ctx context.Context, id string) error
}

// AuthService owns registration, the login/lockout state machine, and the
// events and alerts those paths raise. Two independent counters drive the
// adaptive response: a per-account failure counter that locks the account,
// and a per-IP windowed event count that raises brute-force alerts.
type AuthService struct {
	users  UserRepository
	events *SecurityEventService
	ids    *IDSService
	tm     *auth.TokenManager
	totp   *auth.TOTPManager
	timing *auth.TimingDelay
	cfg    config.SecurityConfig
	logger *slog.Logger
}

func NewAuthService(
	users UserRepository,
	events *SecurityEventService,
	ids *IDSService,
	tm *auth.TokenManager,
	totp *auth.TOTPManager,
	timing *auth.TimingDelay,
	cfg config.SecurityConfig,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		events: events,
		ids:    ids,
		tm:     tm,
		totp:   totp,
		timing: timing,
		cfg:    cfg,
		logger: logger,
	}
}

// UserResponse represents a user in HTTP responses
type UserResponse struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	Role             string  `json:"role"`
	TwoFactorEnabled bool    `json:"two_factor_enabled"`
	LastLoginAt      *string `json:"last_login_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// LoginResult is the outcome of a successful first factor. When the
// account has a second factor enabled and no code was supplied, the result
// carries RequiresTwoFactor and no token: successful but incomplete.
type LoginResult struct {
	Token             string
	User              *UserResponse
	RequiresTwoFactor bool
}

// Register creates a new regular user account
func (s *AuthService) Register(ctx context.Context, email, password, ip string) (*UserResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration rejected: email taken")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         "user",
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.events.RecordEvent(ctx, &models.SecurityEvent{
		Level:       models.LevelInfo,
		Event:       models.EventUserRegistered,
		UserID:      &user.ID,
		UserEmail:   &user.Email,
		IPAddress:   &ip,
		Description: "New account registered",
		Tags:        []string{"auth", "registration"},
	})

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return userToResponse(user), nil
}

// Login runs the full lockout state machine. The error for an unknown
// identity and for a wrong password is the same sentinel with the same
// message shape; only the internal telemetry differs.
func (s *AuthService) Login(ctx context.Context, email, password, totpCode, ip string) (*LoginResult, error) {
	start := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))

	result, err := s.login(ctx, email, password, totpCode, ip, "")
	s.delay(start, err == nil)
	return result, err
}

// AdminLogin is the login pipeline plus a role gate. Valid non-admin
// credentials get the same generic failure as bad credentials so the
// endpoint does not confirm which accounts exist or hold the role.
func (s *AuthService) AdminLogin(ctx context.Context, email, password, totpCode, ip string) (*LoginResult, error) {
	start := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))

	result, err := s.login(ctx, email, password, totpCode, ip, "admin")
	s.delay(start, err == nil)
	return result, err
}

func (s *AuthService) login(ctx context.Context, email, password, totpCode, ip, requiredRole string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, models.ErrUnauthorized
	}

	now := time.Now()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordFailure(ctx, email, nil, ip, "unknown_identity")
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to load user for login", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Lazy lock expiry: the first attempt after the window passes clears
	// the lock and resets the counter, no background sweep involved.
	if user.LockExpired(now) {
		user, err = s.users.ClearLock(ctx, user.ID)
		if err != nil {
			s.logger.Error("failed to clear expired lock",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.logger.Info("expired lock cleared", slog.String("user_id", user.ID))
	}

	if user.Locked(now) {
		s.recordLockedAttempt(ctx, user, ip)
		return nil, models.ErrAccountLocked
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.handleWrongPassword(ctx, user, ip, now)
		return nil, models.ErrUnauthorized
	}

	if requiredRole != "" && user.Role != requiredRole {
		// Correct credentials, wrong role: treat as a failed attempt so a
		// credential-stuffing run against the admin endpoint still trips
		// the counters.
		s.recordFailure(ctx, email, &user.ID, ip, "role_mismatch")
		return nil, models.ErrUnauthorized
	}

	if user.TwoFactorEnabled {
		if totpCode == "" {
			return &LoginResult{RequiresTwoFactor: true}, nil
		}
		if user.TwoFactorSecret == nil {
			s.logger.Error("two-factor enabled without a secret", slog.String("user_id", user.ID))
			return nil, models.ErrInternalServer
		}

		valid, err := s.totp.Validate(*user.TwoFactorSecret, totpCode)
		if err != nil {
			s.logger.Error("two-factor validation error",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if !valid {
			s.recordFailure(ctx, email, &user.ID, ip, "invalid_second_factor")
			return nil, models.ErrInvalidTwoFactorCode
		}
	}

	user, err = s.users.RecordLoginSuccess(ctx, user.ID, ip, now)
	if err != nil {
		s.logger.Error("failed to record login success",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, err := s.tm.GenerateSessionToken(user)
	if err != nil {
		s.logger.Error("failed to generate session token",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.events.RecordEvent(ctx, &models.SecurityEvent{
		Level:       models.LevelInfo,
		Event:       models.EventLoginSuccess,
		UserID:      &user.ID,
		UserEmail:   &user.Email,
		IPAddress:   &ip,
		Description: "Login succeeded",
		Tags:        []string{"auth", "login"},
	})

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return &LoginResult{Token: token, User: userToResponse(user)}, nil
}

// handleWrongPassword advances the per-account counter and applies the
// lock and alert thresholds
func (s *AuthService) handleWrongPassword(ctx context.Context, user *models.User, ip string, now time.Time) {
	updated, err := s.users.RecordLoginFailure(ctx, user.ID, now)
	if err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		updated = user
	}

	s.recordFailure(ctx, user.Email, &user.ID, ip, "invalid_credentials")

	attempts := updated.FailedLoginAttempts

	if attempts >= s.cfg.LockoutThreshold {
		if _, err := s.users.LockAccount(ctx, user.ID, now.Add(s.cfg.LockoutDuration)); err != nil {
			s.logger.Error("failed to lock account",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
			return
		}

		severity := models.SeverityHigh
		if attempts >= 2*s.cfg.LockoutThreshold {
			severity = models.SeverityCritical
		}

		pc := newPostCommit(s.logger)
		pc.add("record_lock_event", func(ctx context.Context) error {
			s.events.RecordEvent(ctx, &models.SecurityEvent{
				Level:       models.LevelCritical,
				Event:       models.EventAccountLocked,
				UserID:      &user.ID,
				UserEmail:   &user.Email,
				IPAddress:   &ip,
				Description: fmt.Sprintf("Account locked after %d failed attempts", attempts),
				Tags:        []string{"auth", "lockout"},
				Metadata: models.Metadata{
					"failed_attempts": attempts,
					"lock_minutes":    int(s.cfg.LockoutDuration.Minutes()),
				},
			})
			return nil
		})
		pc.add("raise_lockout_alert", func(ctx context.Context) error {
			s.ids.RaiseAlert(ctx, &models.Alert{
				Severity:    severity,
				AlertType:   models.AlertTypeBruteForce,
				Title:       "Account locked by repeated login failures",
				Description: fmt.Sprintf("Account reached %d failed attempts and was locked", attempts),
				IPAddress:   &ip,
				UserID:      &user.ID,
				Metadata: models.Metadata{
					"failed_attempts": attempts,
				},
			})
			return nil
		})
		pc.runAll(ctx)
		return
	}

	if attempts >= s.cfg.EscalationThreshold {
		s.ids.RaiseAlert(ctx, &models.Alert{
			Severity:    models.SeverityMedium,
			AlertType:   models.AlertTypeSuspiciousActivity,
			Title:       "Repeated login failures on one account",
			Description: fmt.Sprintf("Account has %d consecutive failed attempts", attempts),
			IPAddress:   &ip,
			UserID:      &user.ID,
			Metadata: models.Metadata{
				"failed_attempts": attempts,
			},
		})
	}
}

// recordFailure appends the login_failure event and runs the IP-keyed
// brute-force correlation over the rolling window
func (s *AuthService) recordFailure(ctx context.Context, email string, userID *string, ip, reason string) {
	s.events.RecordEvent(ctx, &models.SecurityEvent{
		Level:       models.LevelWarn,
		Event:       models.EventLoginFailure,
		UserID:      userID,
		UserEmail:   &email,
		IPAddress:   &ip,
		Description: "Login failed",
		Tags:        []string{"auth", "login"},
		Metadata: models.Metadata{
			"reason": reason,
		},
	})

	since := time.Now().Add(-s.cfg.IPFailureWindow)
	count, err := s.events.CountByIPSince(ctx, ip, models.EventLoginFailure, since)
	if err != nil {
		s.logger.Error("failed to count failures by IP",
			slog.String("ip_address", ip),
			slog.Any("error", err))
		return
	}

	if count >= int64(s.cfg.IPFailureThreshold) {
		severity := models.SeverityMedium
		if count >= 10 {
			severity = models.SeverityHigh
		}

		s.ids.RaiseAlert(ctx, &models.Alert{
			Severity:    severity,
			AlertType:   models.AlertTypeBruteForce,
			Title:       "Login failures concentrated on one IP",
			Description: fmt.Sprintf("IP produced %d failed logins inside the window", count),
			IPAddress:   &ip,
			Metadata: models.Metadata{
				"failure_count":  count,
				"window_minutes": int(s.cfg.IPFailureWindow.Minutes()),
			},
		})
	}
}

// recordLockedAttempt logs a login attempt against a still-locked account
func (s *AuthService) recordLockedAttempt(ctx context.Context, user *models.User, ip string) {
	pc := newPostCommit(s.logger)
	pc.add("record_locked_attempt_event", func(ctx context.Context) error {
		s.events.RecordEvent(ctx, &models.SecurityEvent{
			Level:       models.LevelWarn,
			Event:       models.EventLockedAccountAttempt,
			UserID:      &user.ID,
			UserEmail:   &user.Email,
			IPAddress:   &ip,
			Description: "Login attempted against a locked account",
			Tags:        []string{"auth", "lockout"},
		})
		return nil
	})
	pc.add("raise_locked_attempt_alert", func(ctx context.Context) error {
		s.ids.RaiseAlert(ctx, &models.Alert{
			Severity:    models.SeverityMedium,
			AlertType:   models.AlertTypeSuspiciousActivity,
			Title:       "Login attempt on locked account",
			Description: "A locked account received another login attempt before the lock expired",
			IPAddress:   &ip,
			UserID:      &user.ID,
		})
		return nil
	})
	pc.runAll(ctx)
}

// Logout records the logout event. The session token is stateless, so the
// server-side work is the cookie clear done at the handler layer.
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims, ip string) {
	s.events.RecordEvent(ctx, &models.SecurityEvent{
		Level:       models.LevelInfo,
		Event:       models.EventLogout,
		UserID:      &claims.UserID,
		UserEmail:   &claims.Email,
		IPAddress:   &ip,
		Description: "User logged out",
		Tags:        []string{"auth", "logout"},
	})
	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
}

// Profile returns the current user. The lazy lock rule applies on reads
// too: an expired lock clears, an active lock still blocks access.
func (s *AuthService) Profile(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.currentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userToResponse(user), nil
}

// currentUser fetches a user and enforces the lock state for
// authenticated access paths
func (s *AuthService) currentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to load current user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	if user.LockExpired(now) {
		user, err = s.users.ClearLock(ctx, user.ID)
		if err != nil {
			s.logger.Error("failed to clear expired lock",
				slog.String("user_id", userID),
				slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}
	if user.Locked(now) {
		return nil, models.ErrAccountLocked
	}

	return user, nil
}

func (s *AuthService) delay(start time.Time, success bool) {
	if s.timing != nil {
		s.timing.WaitFrom(start, success)
	}
}

func userToResponse(user *models.User) *UserResponse {
	resp := &UserResponse{
		ID:               user.ID,
		Email:            user.Email,
		Role:             user.Role,
		TwoFactorEnabled: user.TwoFactorEnabled,
		CreatedAt:        user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.LastLoginAt != nil {
		formatted := user.LastLoginAt.UTC().Format(time.RFC3339)
		resp.LastLoginAt = &formatted
	}
	return resp
}
