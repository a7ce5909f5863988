package services

import (
	"context"
	"log/slog"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/models"
	pkgauth "github.com/bastionsec/bastion/pkg/auth"
)

// TwoFactorService manages the second-factor lifecycle. Setup stores a
// secret but leaves the capability disabled; only a verified code flips it
// on, proving the authenticator actually holds the secret.
type TwoFactorService struct {
	users  UserRepository
	auth   *AuthService
	events *SecurityEventService
	totp   *auth.TOTPManager
	logger *slog.Logger
}

func NewTwoFactorService(users UserRepository, authService *AuthService, events *SecurityEventService, totp *auth.TOTPManager, logger *slog.Logger) *TwoFactorService {
	return &TwoFactorService{
		users:  users,
		auth:   authService,
		events: events,
		totp:   totp,
		logger: logger,
	}
}

// SetupResponse carries the enrollment artifacts for the client
type SetupResponse struct {
	Secret    string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode    string `json:"qr_code"`
}

// Setup issues a fresh secret and QR code. Re-running setup before
// verification replaces the pending secret; running it while 2FA is
// already enabled is rejected.
func (s *TwoFactorService) Setup(ctx context.Context, userID string) (*SetupResponse, error) {
	user, err := s.auth.currentUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		return nil, models.ErrConflict
	}

	setup, err := s.totp.GenerateSetup(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP setup",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.users.SetTwoFactorSecret(ctx, userID, setup.Secret); err != nil {
		s.logger.Error("failed to store TOTP secret",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("two-factor setup issued", slog.String("user_id", userID))
	return &SetupResponse{
		Secret:    setup.Secret,
		OTPAuthURL: setup.URL,
		QRCode:    setup.QRDataURL,
	}, nil
}

// Verify validates a code against the pending secret and enables the
// second factor
func (s *TwoFactorService) Verify(ctx context.Context, userID, code, ip string) error {
	user, err := s.auth.currentUser(ctx, userID)
	if err != nil {
		return err
	}

	if user.TwoFactorSecret == nil {
		return models.ErrTwoFactorNotConfigured
	}

	valid, err := s.totp.Validate(*user.TwoFactorSecret, code)
	if err != nil {
		s.logger.Error("failed to validate TOTP code",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !valid {
		return models.ErrInvalidTwoFactorCode
	}

	if !user.TwoFactorEnabled {
		if err := s.users.EnableTwoFactor(ctx, userID); err != nil {
			s.logger.Error("failed to enable two-factor",
				slog.String("user_id", userID),
				slog.Any("error", err))
			return models.ErrInternalServer
		}

		s.events.RecordEvent(ctx, &models.SecurityEvent{
			Level:       models.LevelInfo,
			Event:       models.EventTwoFactorEnabled,
			UserID:      &user.ID,
			UserEmail:   &user.Email,
			IPAddress:   &ip,
			Description: "Second factor enabled",
			Tags:        []string{"auth", "2fa"},
		})
		s.logger.Info("two-factor enabled", slog.String("user_id", userID))
	}

	return nil
}

// Disable turns the second factor off. Requires the current password so a
// hijacked session cannot silently weaken the account.
func (s *TwoFactorService) Disable(ctx context.Context, userID, password, ip string) error {
	user, err := s.auth.currentUser(ctx, userID)
	if err != nil {
		return err
	}

	if !user.TwoFactorEnabled {
		return models.ErrTwoFactorNotEnabled
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return models.ErrUnauthorized
	}

	if err := s.users.DisableTwoFactor(ctx, userID); err != nil {
		s.logger.Error("failed to disable two-factor",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.events.RecordEvent(ctx, &models.SecurityEvent{
		Level:       models.LevelWarn,
		Event:       models.EventTwoFactorDisabled,
		UserID:      &user.ID,
		UserEmail:   &user.Email,
		IPAddress:   &ip,
		Description: "Second factor disabled",
		Tags:        []string{"auth", "2fa"},
	})
	s.logger.Info("two-factor disabled", slog.String("user_id", userID))
	return nil
}

// Status reports whether the second factor is enabled
func (s *TwoFactorService) Status(ctx context.Context, userID string) (bool, error) {
	user, err := s.auth.currentUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.TwoFactorEnabled, nil
}
