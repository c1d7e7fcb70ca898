package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

// ErrAlertNotFound is returned when an alert lookup matches no row
var ErrAlertNotFound = errors.New("alert not found")

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *PostgresDB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *PostgresDB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create persists a new alert
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	conditionsJSON, err := json.Marshal(alert.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal alert conditions: %w", err)
	}

	query := `
		INSERT INTO alerts (id, user_id, category, conditions, method, webhook_url, email, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		alert.ID,
		alert.UserID,
		string(alert.Category),
		conditionsJSON,
		string(alert.Method),
		alert.WebhookURL,
		alert.Email,
		alert.Active,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by id
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `
		SELECT id, user_id, category, conditions, method, webhook_url, email, active, created_at
		FROM alerts
		WHERE id = $1
	`
	return r.scanOne(r.db.Pool().QueryRow(ctx, query, id))
}

// ListByUser returns all alerts owned by a user, newest first
func (r *AlertRepository) ListByUser(ctx context.Context, userID string) ([]*models.Alert, error) {
	query := `
		SELECT id, user_id, category, conditions, method, webhook_url, email, active, created_at
		FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID)
}

// ListActiveByCategory returns all active alerts of the given category.
// The evaluation engine uses this to scope each evaluation pass.
func (r *AlertRepository) ListActiveByCategory(ctx context.Context, category types.AlertCategory) ([]*models.Alert, error) {
	query := `
		SELECT id, user_id, category, conditions, method, webhook_url, email, active, created_at
		FROM alerts
		WHERE active = TRUE AND category = $1
		ORDER BY created_at
	`
	return r.list(ctx, query, string(category))
}

// SetActive toggles an alert's active flag
func (r *AlertRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE alerts SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// Delete removes an alert and, via cascade, its notification history
func (r *AlertRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (r *AlertRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var result []*models.Alert
	for rows.Next() {
		alert, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, alert)
	}
	return result, rows.Err()
}

func (r *AlertRepository) scanOne(row pgx.Row) (*models.Alert, error) {
	var alert models.Alert
	var category, method string
	var conditionsJSON []byte

	err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&category,
		&conditionsJSON,
		&method,
		&alert.WebhookURL,
		&alert.Email,
		&alert.Active,
		&alert.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	alert.Category = types.AlertCategory(category)
	alert.Method = types.DeliveryMethod(method)
	if err := json.Unmarshal(conditionsJSON, &alert.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert conditions: %w", err)
	}

	return &alert, nil
}
