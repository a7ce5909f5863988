package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountLocked = errors.New("account is temporarily locked")

	// Second-factor errors
	ErrTwoFactorNotEnabled    = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorNotConfigured = errors.New("two-factor authentication has not been set up")
	ErrInvalidTwoFactorCode   = errors.New("invalid two-factor authentication code")
)
