package models

import (
	"time"
)

type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Role                string // "user", "admin"
	FailedLoginAttempts int
	AccountLocked       bool
	LockUntil           *time.Time // Non-nil iff AccountLocked
	LastFailedLogin     *time.Time
	LastLoginAt         *time.Time
	LastLoginIP         *string
	TwoFactorSecret     *string // Base32 TOTP secret, nil until setup
	TwoFactorEnabled    bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LockExpired reports whether a lock exists but its window has passed.
// Expired locks are cleared lazily on the next read path, there is no
// background sweep.
func (u *User) LockExpired(now time.Time) bool {
	return u.AccountLocked && u.LockUntil != nil && !u.LockUntil.After(now)
}

// Locked reports whether the account is locked and the lock is still active.
func (u *User) Locked(now time.Time) bool {
	return u.AccountLocked && u.LockUntil != nil && u.LockUntil.After(now)
}
