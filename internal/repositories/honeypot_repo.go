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

// HoneypotRepository handles honeypot interaction data access
type HoneypotRepository struct {
	pool *pgxpool.Pool
}

func NewHoneypotRepository(db *database.DB) *HoneypotRepository {
	return &HoneypotRepository{pool: db.Pool}
}

const honeypotColumns = `id, ip_address, user_agent, attack_type, payload,
	endpoint, method, response, metadata, timestamp`

func scanHoneypotRow(row rowScanner) (*models.HoneypotInteraction, error) {
	var interaction models.HoneypotInteraction

	err := row.Scan(
		&interaction.ID, &interaction.IPAddress, &interaction.UserAgent,
		&interaction.AttackType, &interaction.Payload,
		&interaction.Endpoint, &interaction.Method, &interaction.Response,
		&interaction.Metadata, &interaction.Timestamp,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &interaction, nil
}

func scanHoneypotRows(rows pgx.Rows) ([]*models.HoneypotInteraction, error) {
	defer rows.Close()

	interactions := make([]*models.HoneypotInteraction, 0)

	for rows.Next() {
		interaction, err := scanHoneypotRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan honeypot interaction: %w", err)
		}
		interactions = append(interactions, interaction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating honeypot rows: %w", err)
	}

	return interactions, nil
}

func (r *HoneypotRepository) Create(ctx context.Context, interaction *models.HoneypotInteraction) (*models.HoneypotInteraction, error) {
	interaction.ID = uuid.New().String()
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = time.Now()
	}

	query := `
		INSERT INTO honeypot_interactions (id, ip_address, user_agent, attack_type, payload, endpoint, method, response, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + honeypotColumns

	result, err := scanHoneypotRow(r.pool.QueryRow(
		ctx, query,
		interaction.ID, interaction.IPAddress, interaction.UserAgent,
		interaction.AttackType, interaction.Payload,
		interaction.Endpoint, interaction.Method, interaction.Response,
		interaction.Metadata, interaction.Timestamp,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create honeypot interaction: %w", err)
	}

	return result, nil
}

// List retrieves interactions newest first, optionally narrowed to one IP.
func (r *HoneypotRepository) List(ctx context.Context, filter models.HoneypotFilter, limit, offset int) ([]*models.HoneypotInteraction, error) {
	query := `
		SELECT ` + honeypotColumns + `
		FROM honeypot_interactions
		WHERE ($1 = '' OR ip_address = $1)
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, filter.IPAddress, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query honeypot interactions: %w", err)
	}

	return scanHoneypotRows(rows)
}

// CountByIPSince counts interactions from one IP inside a rolling window.
func (r *HoneypotRepository) CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM honeypot_interactions
		WHERE ip_address = $1 AND timestamp >= $2
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, ip, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count honeypot interactions: %w", err)
	}

	return count, nil
}
