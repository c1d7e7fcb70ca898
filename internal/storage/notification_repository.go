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
)

// NotificationRepository handles alert notification persistence
type NotificationRepository struct {
	db *PostgresDB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *PostgresDB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a triggered alert notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.AlertNotification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.TriggeredAt.IsZero() {
		n.TriggeredAt = time.Now()
	}

	var detailsJSON []byte
	var err error
	if n.Details != nil {
		detailsJSON, err = json.Marshal(n.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal notification details: %w", err)
		}
	}

	query := `
		INSERT INTO alert_notifications (id, alert_id, message, details, triggered_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.Pool().Exec(ctx, query, n.ID, n.AlertID, n.Message, detailsJSON, n.TriggeredAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByAlert returns notifications for an alert, newest first
func (r *NotificationRepository) ListByAlert(ctx context.Context, alertID string, limit, offset int) ([]*models.AlertNotification, error) {
	query := `
		SELECT id, alert_id, message, details, triggered_at
		FROM alert_notifications
		WHERE alert_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, alertID, limit, offset)
}

// ListByUser returns notifications across all of a user's alerts, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AlertNotification, error) {
	query := `
		SELECT n.id, n.alert_id, n.message, n.details, n.triggered_at
		FROM alert_notifications n
		JOIN alerts a ON a.id = n.alert_id
		WHERE a.user_id = $1
		ORDER BY n.triggered_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, userID, limit, offset)
}

func (r *NotificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.AlertNotification, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var result []*models.AlertNotification
	for rows.Next() {
		n, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *NotificationRepository) scanOne(row pgx.Row) (*models.AlertNotification, error) {
	var n models.AlertNotification
	var detailsJSON []byte

	err := row.Scan(&n.ID, &n.AlertID, &n.Message, &detailsJSON, &n.TriggeredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("notification not found")
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &n.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification details: %w", err)
		}
	}
	return &n, nil
}
