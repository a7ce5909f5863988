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

// AlertRepository handles intrusion alert data access
type AlertRepository struct {
	pool *pgxpool.Pool
}

func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{pool: db.Pool}
}

const alertColumns = `id, severity, alert_type, title, description, status,
	ip_address, user_id, assigned_to, metadata, created_at, resolved_at`

func scanAlertRow(row rowScanner) (*models.Alert, error) {
	var alert models.Alert

	err := row.Scan(
		&alert.ID, &alert.Severity, &alert.AlertType,
		&alert.Title, &alert.Description, &alert.Status,
		&alert.IPAddress, &alert.UserID, &alert.AssignedTo,
		&alert.Metadata, &alert.CreatedAt, &alert.ResolvedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &alert, nil
}

func scanAlertRows(rows pgx.Rows) ([]*models.Alert, error) {
	defer rows.Close()

	alerts := make([]*models.Alert, 0)

	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}

	return alerts, nil
}

func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) (*models.Alert, error) {
	alert.ID = uuid.New().String()
	alert.Status = models.AlertStatusOpen
	alert.CreatedAt = time.Now()

	query := `
		INSERT INTO ids_alerts (id, severity, alert_type, title, description, status, ip_address, user_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + alertColumns

	result, err := scanAlertRow(r.pool.QueryRow(
		ctx, query,
		alert.ID, alert.Severity, alert.AlertType,
		alert.Title, alert.Description, alert.Status,
		alert.IPAddress, alert.UserID, alert.Metadata, alert.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	return result, nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM ids_alerts WHERE id = $1`

	return scanAlertRow(r.pool.QueryRow(ctx, query, id))
}

// List retrieves alerts newest first, narrowed by the filter's non-empty
// fields.
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM ids_alerts
		WHERE ($1 = '' OR severity = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR alert_type = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.pool.Query(ctx, query, filter.Severity, filter.Status, filter.AlertType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	return scanAlertRows(rows)
}

// UpdateStatus transitions an alert, stamping resolved_at when the new
// status is terminal and clearing it otherwise so reopened alerts do not
// keep a stale resolution time.
func (r *AlertRepository) UpdateStatus(ctx context.Context, id string, status string, assignedTo *string) (*models.Alert, error) {
	var resolvedAt *time.Time
	if models.TerminalStatus(status) {
		now := time.Now()
		resolvedAt = &now
	}

	query := `
		UPDATE ids_alerts
		SET status = $1,
		    assigned_to = COALESCE($2, assigned_to),
		    resolved_at = $3
		WHERE id = $4
		RETURNING ` + alertColumns

	return scanAlertRow(r.pool.QueryRow(ctx, query, status, assignedTo, resolvedAt, id))
}

// Stats aggregates alert counts in a single round trip.
func (r *AlertRepository) Stats(ctx context.Context) (*models.AlertStats, error) {
	stats := &models.AlertStats{
		ByStatus:   make(map[string]int),
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'open'),
		       COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '24 hours')
		FROM ids_alerts
	`
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.Total, &stats.Open, &stats.Recent); err != nil {
		return nil, fmt.Errorf("failed to aggregate alert totals: %w", err)
	}

	groupQuery := `
		SELECT status, severity, alert_type, COUNT(*)
		FROM ids_alerts
		GROUP BY status, severity, alert_type
	`
	rows, err := r.pool.Query(ctx, groupQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate alert groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, severity, alertType string
		var count int
		if err := rows.Scan(&status, &severity, &alertType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan alert group: %w", err)
		}
		stats.ByStatus[status] += count
		stats.BySeverity[severity] += count
		stats.ByType[alertType] += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert groups: %w", err)
	}

	return stats, nil
}
