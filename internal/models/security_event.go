package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Event kinds for the append-only security log
const (
	EventUserRegistered       = "user_registered"
	EventLoginSuccess         = "login_success"
	EventLoginFailure         = "login_failure"
	EventLogout               = "logout"
	EventAccountLocked        = "account_locked"
	EventLockedAccountAttempt = "login_attempt_locked_account"
	EventInjectionAttempt     = "injection_attempt"
	EventHoneypotActivated    = "honeypot_activated"
	EventInvalidToken         = "invalid_token"
	EventTwoFactorEnabled     = "two_factor_enabled"
	EventTwoFactorDisabled    = "two_factor_disabled"
)

// Event levels
const (
	LevelInfo     = "info"
	LevelWarn     = "warn"
	LevelCritical = "critical"
)

// SecurityEvent is a write-once log entry. Events are never updated or
// deleted; the correlation layer reads them back for windowed analysis.
type SecurityEvent struct {
	ID          string
	Level       string
	Event       string
	UserID      *string
	UserEmail   *string
	IPAddress   *string
	Description string
	Tags        []string
	Metadata    Metadata
	Timestamp   time.Time
}

// Metadata holds free-form context stored as JSONB
type Metadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(bytes, &decoded); err != nil {
		return err
	}
	*m = Metadata(decoded)
	return nil
}

// Value implements driver.Valuer for JSONB
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// MarshalJSON implements json.Marshaler
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(m))
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*m = Metadata(decoded)
	return nil
}
