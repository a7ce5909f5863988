package services

import (
	"context"
	"testing"
	"time"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/config"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIP = "203.0.113.50"

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		LockoutThreshold:    5,
		LockoutDuration:     15 * time.Minute,
		EscalationThreshold: 3,
		IPFailureThreshold:  3,
		IPFailureWindow:     time.Hour,
		AnalysisWindow:      time.Hour,
	}
}

// authFixture wires an AuthService over stateful mocks: the user pointer
// is mutated by the repository closures the way the real store would be.
type authFixture struct {
	user    *models.User
	users   *MockUserRepository
	events  *MockSecurityEventRepository
	alerts  *MockAlertRepository
	service *AuthService
}

func newAuthFixture(t *testing.T, user *models.User) *authFixture {
	t.Helper()

	f := &authFixture{
		user:   user,
		events: &MockSecurityEventRepository{},
		alerts: &MockAlertRepository{},
	}

	f.users = &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if f.user != nil && f.user.Email == email {
				copy := *f.user
				return &copy, nil
			}
			return nil, models.ErrNotFound
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if f.user != nil && f.user.ID == id {
				copy := *f.user
				return &copy, nil
			}
			return nil, models.ErrNotFound
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, at time.Time) (*models.User, error) {
			f.user.FailedLoginAttempts++
			f.user.LastFailedLogin = &at
			copy := *f.user
			return &copy, nil
		},
		LockAccountFunc: func(ctx context.Context, id string, until time.Time) (*models.User, error) {
			f.user.AccountLocked = true
			f.user.LockUntil = &until
			copy := *f.user
			return &copy, nil
		},
		ClearLockFunc: func(ctx context.Context, id string) (*models.User, error) {
			f.user.AccountLocked = false
			f.user.LockUntil = nil
			f.user.FailedLoginAttempts = 0
			copy := *f.user
			return &copy, nil
		},
		RecordLoginSuccessFunc: func(ctx context.Context, id string, ip string, at time.Time) (*models.User, error) {
			f.user.FailedLoginAttempts = 0
			f.user.AccountLocked = false
			f.user.LockUntil = nil
			f.user.LastLoginAt = &at
			f.user.LastLoginIP = &ip
			copy := *f.user
			return &copy, nil
		},
	}

	logger := testLogger()
	eventService := NewSecurityEventService(f.events, testSecurityLogger(), logger)
	idsService := NewIDSService(f.alerts, f.events, &MockHoneypotRepository{}, testSecurityLogger(), logger, time.Hour)
	tm := auth.NewTokenManager("test-secret-that-is-long-enough", time.Hour)
	totpManager := auth.NewTOTPManager("Bastion")

	f.service = NewAuthService(f.users, eventService, idsService, tm, totpManager, nil, testSecurityConfig(), logger)
	return f
}

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t, NewTestUser("user_1", "user@example.com"))

	result, err := f.service.Login(context.Background(), "user@example.com", TestPassword, "", testIP)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Token)
	assert.False(t, result.RequiresTwoFactor)
	assert.Equal(t, "user@example.com", result.User.Email)
	require.Len(t, f.events.EventsOfKind(models.EventLoginSuccess), 1)
	assert.NotNil(t, f.user.LastLoginAt)
	assert.Equal(t, testIP, *f.user.LastLoginIP)
}

func TestLogin_UnknownAndWrongPasswordLookIdentical(t *testing.T) {
	f := newAuthFixture(t, NewTestUser("user_1", "user@example.com"))

	_, unknownErr := f.service.Login(context.Background(), "nobody@example.com", TestPassword, "", testIP)
	_, wrongErr := f.service.Login(context.Background(), "user@example.com", "WrongPass1", "", testIP)

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	// Same sentinel, same message: the caller cannot tell the cases apart
	assert.Equal(t, unknownErr, wrongErr)
	assert.ErrorIs(t, unknownErr, models.ErrUnauthorized)
}

func TestLogin_LockoutSequence(t *testing.T) {
	f := newAuthFixture(t, NewTestUser("user_1", "user@example.com"))
	ctx := context.Background()

	// Four failures: counter rises, escalation alert fires at three, no lock
	for i := 1; i <= 4; i++ {
		_, err := f.service.Login(ctx, "user@example.com", "WrongPass1", "", testIP)
		assert.ErrorIs(t, err, models.ErrUnauthorized, "attempt %d", i)
	}
	assert.Equal(t, 4, f.user.FailedLoginAttempts)
	assert.False(t, f.user.AccountLocked)
	assert.NotEmpty(t, f.alerts.AlertsOfType(models.AlertTypeSuspiciousActivity))

	// Fifth failure locks the account
	_, err := f.service.Login(ctx, "user@example.com", "WrongPass1", "", testIP)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.True(t, f.user.AccountLocked)
	require.NotNil(t, f.user.LockUntil)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *f.user.LockUntil, time.Minute)
	require.Len(t, f.events.EventsOfKind(models.EventAccountLocked), 1)
	assert.NotEmpty(t, f.alerts.AlertsOfType(models.AlertTypeBruteForce))

	// Sixth attempt, even with the correct password, is rejected as locked
	_, err = f.service.Login(ctx, "user@example.com", TestPassword, "", testIP)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	require.Len(t, f.events.EventsOfKind(models.EventLockedAccountAttempt), 1)
}

func TestLogin_ExpiredLockClearsLazily(t *testing.T) {
	user := NewTestUser("user_1", "user@example.com")
	expired := time.Now().Add(-time.Minute)
	user.AccountLocked = true
	user.LockUntil = &expired
	user.FailedLoginAttempts = 5

	f := newAuthFixture(t, user)

	result, err := f.service.Login(context.Background(), "user@example.com", TestPassword, "", testIP)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.False(t, f.user.AccountLocked)
	assert.Nil(t, f.user.LockUntil)
	assert.Equal(t, 0, f.user.FailedLoginAttempts)
}

func TestLogin_IPBruteForceAlert(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	// Three unknown-identity failures from one IP inside the window
	for i := 0; i < 3; i++ {
		_, err := f.service.Login(ctx, "probe@example.com", "WrongPass1", "", testIP)
		assert.ErrorIs(t, err, models.ErrUnauthorized)
	}

	bruteForce := f.alerts.AlertsOfType(models.AlertTypeBruteForce)
	require.NotEmpty(t, bruteForce)
	assert.Equal(t, models.SeverityMedium, bruteForce[0].Severity)
	require.NotNil(t, bruteForce[0].IPAddress)
	assert.Equal(t, testIP, *bruteForce[0].IPAddress)
}

func TestLogin_TwoFactorGate(t *testing.T) {
	totpManager := auth.NewTOTPManager("Bastion")
	setup, err := totpManager.GenerateSetup("user@example.com")
	require.NoError(t, err)

	user := NewTestUser("user_1", "user@example.com")
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = &setup.Secret

	f := newAuthFixture(t, user)
	ctx := context.Background()

	// First factor alone is incomplete: no token, no error
	result, err := f.service.Login(ctx, "user@example.com", TestPassword, "", testIP)
	require.NoError(t, err)
	assert.True(t, result.RequiresTwoFactor)
	assert.Empty(t, result.Token)

	// Wrong code is a 401-class failure
	_, err = f.service.Login(ctx, "user@example.com", TestPassword, "000000", testIP)
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)

	// Valid code completes the login
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	result, err = f.service.Login(ctx, "user@example.com", TestPassword, code, testIP)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.False(t, result.RequiresTwoFactor)
}

func TestAdminLogin_RoleGate(t *testing.T) {
	f := newAuthFixture(t, NewTestUser("user_1", "user@example.com"))

	// Valid credentials, wrong role: generic failure
	_, err := f.service.AdminLogin(context.Background(), "user@example.com", TestPassword, "", testIP)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	f.user.Role = "admin"
	result, err := f.service.AdminLogin(context.Background(), "user@example.com", TestPassword, "", testIP)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestRegister(t *testing.T) {
	f := newAuthFixture(t, nil)

	created, err := f.service.Register(context.Background(), "New@Example.com", "Str0ngpass", testIP)
	require.NoError(t, err)

	assert.Equal(t, "new@example.com", created.Email, "email should be normalized")
	assert.Equal(t, "user", created.Role)
	require.Len(t, f.events.EventsOfKind(models.EventUserRegistered), 1)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, NewTestUser("user_1", "taken@example.com"))

	_, err := f.service.Register(context.Background(), "taken@example.com", "Str0ngpass", testIP)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestRegister_WeakPassword(t *testing.T) {
	f := newAuthFixture(t, nil)

	_, err := f.service.Register(context.Background(), "new@example.com", "short", testIP)
	assert.Error(t, err)
}

func TestProfile_LockedAccountBlocked(t *testing.T) {
	user := NewTestUser("user_1", "user@example.com")
	until := time.Now().Add(10 * time.Minute)
	user.AccountLocked = true
	user.LockUntil = &until

	f := newAuthFixture(t, user)

	_, err := f.service.Profile(context.Background(), "user_1")
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}
