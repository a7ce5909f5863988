package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bastionsec/bastion/internal/models"
	pkgauth "github.com/bastionsec/bastion/pkg/auth"
	pkglogger "github.com/bastionsec/bastion/pkg/logger"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc            func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.User, error)
	CreateFunc             func(ctx context.Context, user *models.User) (*models.User, error)
	RecordLoginFailureFunc func(ctx context.Context, id string, at time.Time) (*models.User, error)
	LockAccountFunc        func(ctx context.Context, id string, until time.Time) (*models.User, error)
	ClearLockFunc          func(ctx context.Context, id string) (*models.User, error)
	RecordLoginSuccessFunc func(ctx context.Context, id string, ip string, at time.Time) (*models.User, error)
	SetTwoFactorSecretFunc func(ctx context.Context, id string, secret string) error
	EnableTwoFactorFunc    func(ctx context.Context, id string) error
	DisableTwoFactorFunc   func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	user.ID = "user_test"
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	return user, nil
}

func (m *MockUserRepository) RecordLoginFailure(ctx context.Context, id string, at time.Time) (*models.User, error) {
	if m.RecordLoginFailureFunc != nil {
		return m.RecordLoginFailureFunc(ctx, id, at)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) LockAccount(ctx context.Context, id string, until time.Time) (*models.User, error) {
	if m.LockAccountFunc != nil {
		return m.LockAccountFunc(ctx, id, until)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) ClearLock(ctx context.Context, id string) (*models.User, error) {
	if m.ClearLockFunc != nil {
		return m.ClearLockFunc(ctx, id)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) RecordLoginSuccess(ctx context.Context, id string, ip string, at time.Time) (*models.User, error) {
	if m.RecordLoginSuccessFunc != nil {
		return m.RecordLoginSuccessFunc(ctx, id, ip, at)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) SetTwoFactorSecret(ctx context.Context, id string, secret string) error {
	if m.SetTwoFactorSecretFunc != nil {
		return m.SetTwoFactorSecretFunc(ctx, id, secret)
	}
	return nil
}

func (m *MockUserRepository) EnableTwoFactor(ctx context.Context, id string) error {
	if m.EnableTwoFactorFunc != nil {
		return m.EnableTwoFactorFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	if m.DisableTwoFactorFunc != nil {
		return m.DisableTwoFactorFunc(ctx, id)
	}
	return nil
}

// MockSecurityEventRepository implements SecurityEventRepository for
// testing. Appended events are captured for assertions.
type MockSecurityEventRepository struct {
	AppendFunc        func(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	CountByIPSinceFunc func(ctx context.Context, ip string, event string, since time.Time) (int64, error)
	ListByIPSinceFunc func(ctx context.Context, ip string, since time.Time) ([]*models.SecurityEvent, error)
	Appended          []*models.SecurityEvent
}

func (m *MockSecurityEventRepository) Append(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, event)
	}
	m.Appended = append(m.Appended, event)
	return event, nil
}

func (m *MockSecurityEventRepository) CountByIPSince(ctx context.Context, ip string, event string, since time.Time) (int64, error) {
	if m.CountByIPSinceFunc != nil {
		return m.CountByIPSinceFunc(ctx, ip, event, since)
	}
	// Default: count captured appends matching ip and event kind
	var count int64
	for _, e := range m.Appended {
		if e.Event == event && e.IPAddress != nil && *e.IPAddress == ip {
			count++
		}
	}
	return count, nil
}

func (m *MockSecurityEventRepository) ListByIPSince(ctx context.Context, ip string, since time.Time) ([]*models.SecurityEvent, error) {
	if m.ListByIPSinceFunc != nil {
		return m.ListByIPSinceFunc(ctx, ip, since)
	}
	events := make([]*models.SecurityEvent, 0)
	for _, e := range m.Appended {
		if e.IPAddress != nil && *e.IPAddress == ip {
			events = append(events, e)
		}
	}
	return events, nil
}

// EventsOfKind returns captured events matching an event kind
func (m *MockSecurityEventRepository) EventsOfKind(kind string) []*models.SecurityEvent {
	var out []*models.SecurityEvent
	for _, e := range m.Appended {
		if e.Event == kind {
			out = append(out, e)
		}
	}
	return out
}

// MockAlertRepository implements AlertRepository for testing
type MockAlertRepository struct {
	CreateFunc       func(ctx context.Context, alert *models.Alert) (*models.Alert, error)
	GetByIDFunc      func(ctx context.Context, id string) (*models.Alert, error)
	ListFunc         func(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error)
	UpdateStatusFunc func(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error)
	StatsFunc        func(ctx context.Context) (*models.AlertStats, error)
	Created          []*models.Alert
}

func (m *MockAlertRepository) Create(ctx context.Context, alert *models.Alert) (*models.Alert, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, alert)
	}
	alert.ID = "alert_test"
	alert.Status = models.AlertStatusOpen
	alert.CreatedAt = time.Now()
	m.Created = append(m.Created, alert)
	return alert, nil
}

func (m *MockAlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAlertRepository) List(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter, limit, offset)
	}
	return []*models.Alert{}, nil
}

func (m *MockAlertRepository) UpdateStatus(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status, assignedTo)
	}
	return nil, models.ErrNotFound
}

func (m *MockAlertRepository) Stats(ctx context.Context) (*models.AlertStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &models.AlertStats{
		ByStatus:   map[string]int{},
		BySeverity: map[string]int{},
		ByType:     map[string]int{},
	}, nil
}

// AlertsOfType returns captured alerts matching an alert type
func (m *MockAlertRepository) AlertsOfType(alertType string) []*models.Alert {
	var out []*models.Alert
	for _, a := range m.Created {
		if a.AlertType == alertType {
			out = append(out, a)
		}
	}
	return out
}

// MockHoneypotRepository implements HoneypotRepository for testing
type MockHoneypotRepository struct {
	CreateFunc         func(ctx context.Context, interaction *models.HoneypotInteraction) (*models.HoneypotInteraction, error)
	ListFunc           func(ctx context.Context, filter models.HoneypotFilter, limit, offset int) ([]*models.HoneypotInteraction, error)
	CountByIPSinceFunc func(ctx context.Context, ip string, since time.Time) (int64, error)
	Created            []*models.HoneypotInteraction
}

func (m *MockHoneypotRepository) Create(ctx context.Context, interaction *models.HoneypotInteraction) (*models.HoneypotInteraction, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, interaction)
	}
	interaction.ID = "interaction_test"
	interaction.Timestamp = time.Now()
	m.Created = append(m.Created, interaction)
	return interaction, nil
}

func (m *MockHoneypotRepository) List(ctx context.Context, filter models.HoneypotFilter, limit, offset int) ([]*models.HoneypotInteraction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter, limit, offset)
	}
	return []*models.HoneypotInteraction{}, nil
}

func (m *MockHoneypotRepository) CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	if m.CountByIPSinceFunc != nil {
		return m.CountByIPSinceFunc(ctx, ip, since)
	}
	var count int64
	for _, i := range m.Created {
		if i.IPAddress == ip {
			count++
		}
	}
	return count, nil
}

// testLogger builds a logger that discards output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSecurityLogger() *pkglogger.SecurityLogger {
	return pkglogger.NewSecurityLogger(testLogger())
}

// TestPassword is the password every test account accepts
const TestPassword = "Correct1pass"

var (
	testHashOnce sync.Once
	testHash     string
)

// TestPasswordHash returns a bcrypt hash of TestPassword, computed once
// per test binary so each test does not pay the hashing cost
func TestPasswordHash() string {
	testHashOnce.Do(func() {
		hash, err := pkgauth.HashPassword(TestPassword)
		if err != nil {
			panic(err)
		}
		testHash = hash
	})
	return testHash
}

// NewTestUser builds an active account that accepts TestPassword
func NewTestUser(id, email string) *models.User {
	now := time.Now()
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: TestPasswordHash(),
		Role:         "user",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
