package repositories

import (
	"context"
	"time"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports pgx.Row and pgx.Rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, password_hash, role, failed_login_attempts, account_locked,
	lock_until, last_failed_login, last_login_at, last_login_ip,
	two_factor_secret, two_factor_enabled, created_at, updated_at`

// scanUserRow handles nullable lockout and 2FA fields and populates a User
// model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.FailedLoginAttempts, &user.AccountLocked,
		&user.LockUntil, &user.LastFailedLogin, &user.LastLoginAt, &user.LastLoginIP,
		&user.TwoFactorSecret, &user.TwoFactorEnabled,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "user"
	}

	query := `
		INSERT INTO users (id, email, password_hash, role, two_factor_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Role,
		user.TwoFactorEnabled, user.CreatedAt, user.UpdatedAt,
	))
}

// RecordLoginFailure increments the failure counter atomically and returns
// the updated user, so concurrent failed attempts never lose counts.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, at time.Time) (*models.User, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    last_failed_login = $1,
		    updated_at = $1
		WHERE id = $2
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, at, id))
}

// LockAccount sets the lock flag and expiry without touching the counter,
// which stays as evidence of how many attempts triggered the lock.
func (r *UserRepository) LockAccount(ctx context.Context, id string, until time.Time) (*models.User, error) {
	query := `
		UPDATE users
		SET account_locked = TRUE,
		    lock_until = $1,
		    updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, until, id))
}

// ClearLock removes an expired lock and resets the failure counter.
func (r *UserRepository) ClearLock(ctx context.Context, id string) (*models.User, error) {
	query := `
		UPDATE users
		SET account_locked = FALSE,
		    lock_until = NULL,
		    failed_login_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// RecordLoginSuccess resets the failure state and stamps the login.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id string, ip string, at time.Time) (*models.User, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    account_locked = FALSE,
		    lock_until = NULL,
		    last_login_at = $1,
		    last_login_ip = $2,
		    updated_at = $1
		WHERE id = $3
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, at, ip, id))
}

func (r *UserRepository) SetTwoFactorSecret(ctx context.Context, id string, secret string) error {
	query := `
		UPDATE users
		SET two_factor_secret = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.pool.Exec(ctx, query, secret, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) EnableTwoFactor(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET two_factor_enabled = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) DisableTwoFactor(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET two_factor_enabled = FALSE, two_factor_secret = NULL, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
