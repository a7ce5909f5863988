package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bastionsec/bastion/internal/database"
	"github.com/bastionsec/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityEventRepository handles the append-only security event log
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

const securityEventColumns = `id, level, event, user_id, user_email, ip_address,
	description, tags, metadata, timestamp`

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent

	err := row.Scan(
		&event.ID, &event.Level, &event.Event,
		&event.UserID, &event.UserEmail, &event.IPAddress,
		&event.Description, &event.Tags, &event.Metadata,
		&event.Timestamp,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// Append writes a new log entry. There is no update or delete path.
func (r *SecurityEventRepository) Append(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	event.ID = uuid.New().String()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	query := `
		INSERT INTO security_events (id, level, event, user_id, user_email, ip_address, description, tags, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + securityEventColumns

	result, err := scanSecurityEventRow(r.pool.QueryRow(
		ctx, query,
		event.ID, event.Level, event.Event,
		event.UserID, event.UserEmail, event.IPAddress,
		event.Description, event.Tags, event.Metadata, event.Timestamp,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to append security event: %w", err)
	}

	return result, nil
}

// CountByIPSince counts events of a given kind from one IP inside a rolling
// window. The brute-force correlator keys on this.
func (r *SecurityEventRepository) CountByIPSince(ctx context.Context, ip string, event string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM security_events
		WHERE ip_address = $1 AND event = $2 AND timestamp >= $3
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, ip, event, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}

	return count, nil
}

// ListByIPSince retrieves all events from one IP inside a rolling window,
// newest first.
func (r *SecurityEventRepository) ListByIPSince(ctx context.Context, ip string, since time.Time) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE ip_address = $1 AND timestamp >= $2
		ORDER BY timestamp DESC
	`

	rows, err := r.pool.Query(ctx, query, ip, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// ListByUserID retrieves events attributed to a user, newest first.
func (r *SecurityEventRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT ` + securityEventColumns + `
		FROM security_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}
