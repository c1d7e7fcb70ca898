// Package alert provides alert rule management and the evaluation engine
// that turns indexed chain activity into notifications.
package alert

import (
	"context"
	"net/url"
	"strings"

	apperrors "github.com/shielded-scanner/internal/errors"
	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/storage"
	"github.com/shielded-scanner/internal/types"
)

// Service manages alert rules. Condition payloads are validated once at
// creation; the engine trusts stored alerts.
type Service struct {
	alertRepo        *storage.AlertRepository
	notificationRepo *storage.NotificationRepository
}

// NewService creates a new alert service
func NewService(alertRepo *storage.AlertRepository, notificationRepo *storage.NotificationRepository) *Service {
	return &Service{alertRepo: alertRepo, notificationRepo: notificationRepo}
}

// CreateAlertInput holds the user-supplied fields of a new alert
type CreateAlertInput struct {
	UserID     string                 `json:"userId"`
	Category   types.AlertCategory    `json:"category"`
	Conditions models.AlertConditions `json:"conditions"`
	Method     types.DeliveryMethod   `json:"method"`
	WebhookURL string                 `json:"webhookUrl,omitempty"`
	Email      string                 `json:"email,omitempty"`
}

// CreateAlert validates and persists a new alert. New alerts start active.
func (s *Service) CreateAlert(ctx context.Context, input *CreateAlertInput) (*models.Alert, error) {
	if input.UserID == "" {
		return nil, apperrors.NewValidationError("userId", "cannot be empty")
	}
	if !types.ValidAlertCategory(input.Category) {
		return nil, apperrors.NewValidationError("category", "must be one of: transaction, threshold, address, network")
	}
	if !types.ValidDeliveryMethod(input.Method) {
		return nil, apperrors.NewValidationError("method", "must be one of: ui, email, webhook")
	}

	if err := validateDestination(input); err != nil {
		return nil, err
	}
	if err := validateConditions(input.Category, &input.Conditions); err != nil {
		return nil, err
	}

	alert := &models.Alert{
		UserID:     input.UserID,
		Category:   input.Category,
		Conditions: input.Conditions,
		Method:     input.Method,
		WebhookURL: input.WebhookURL,
		Email:      input.Email,
		Active:     true,
	}

	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return nil, apperrors.NewDatabaseError("create alert", err)
	}
	return alert, nil
}

// GetUserAlerts returns all alerts owned by the user
func (s *Service) GetUserAlerts(ctx context.Context, userID string) ([]*models.Alert, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId", "cannot be empty")
	}
	alerts, err := s.alertRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list alerts", err)
	}
	return alerts, nil
}

// UpdateAlertStatus flips an alert's active flag. The caller must own the alert.
func (s *Service) UpdateAlertStatus(ctx context.Context, userID, alertID string, active bool) (*models.Alert, error) {
	alert, err := s.ownedAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}

	if err := s.alertRepo.SetActive(ctx, alertID, active); err != nil {
		return nil, apperrors.NewDatabaseError("update alert", err)
	}
	alert.Active = active
	return alert, nil
}

// DeleteAlert removes an alert and its notification history. The caller
// must own the alert.
func (s *Service) DeleteAlert(ctx context.Context, userID, alertID string) error {
	if _, err := s.ownedAlert(ctx, userID, alertID); err != nil {
		return err
	}
	if err := s.alertRepo.Delete(ctx, alertID); err != nil {
		return apperrors.NewDatabaseError("delete alert", err)
	}
	return nil
}

// GetUserNotifications returns notifications across the user's alerts,
// newest first
func (s *Service) GetUserNotifications(ctx context.Context, userID string, limit, offset int) ([]*models.AlertNotification, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId", "cannot be empty")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := s.notificationRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list notifications", err)
	}
	return notifications, nil
}

func (s *Service) ownedAlert(ctx context.Context, userID, alertID string) (*models.Alert, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId", "cannot be empty")
	}
	if alertID == "" {
		return nil, apperrors.NewValidationError("alertId", "cannot be empty")
	}

	alert, err := s.alertRepo.GetByID(ctx, alertID)
	if err != nil {
		if err == storage.ErrAlertNotFound {
			return nil, apperrors.NewNotFoundError("alert", alertID)
		}
		return nil, apperrors.NewDatabaseError("get alert", err)
	}
	if alert.UserID != userID {
		return nil, apperrors.NewForbiddenError("alert", alertID)
	}
	return alert, nil
}

func validateDestination(input *CreateAlertInput) error {
	switch input.Method {
	case types.MethodWebhook:
		if input.WebhookURL == "" {
			return apperrors.NewValidationError("webhookUrl", "required for webhook delivery")
		}
		u, err := url.Parse(input.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.NewValidationError("webhookUrl", "must be a valid http(s) URL")
		}
	case types.MethodEmail:
		if input.Email == "" {
			return apperrors.NewValidationError("email", "required for email delivery")
		}
		at := strings.Index(input.Email, "@")
		if at <= 0 || at == len(input.Email)-1 {
			return apperrors.NewValidationError("email", "must be a valid address")
		}
	}
	return nil
}

func validateConditions(category types.AlertCategory, c *models.AlertConditions) error {
	switch category {
	case types.CategoryTransaction:
		if c.TransactionType != "" {
			switch c.TransactionType {
			case types.TypeSpend, types.TypeOutput, types.TypeBinding:
			default:
				return apperrors.NewValidationError("conditions.transactionType", "must be one of: spend, output, binding")
			}
		}
		if c.MinAmount != nil && *c.MinAmount < 0 {
			return apperrors.NewValidationError("conditions.minAmount", "must be non-negative")
		}
		if c.MaxAmount != nil && *c.MaxAmount < 0 {
			return apperrors.NewValidationError("conditions.maxAmount", "must be non-negative")
		}
		if c.MinAmount != nil && c.MaxAmount != nil && *c.MinAmount > *c.MaxAmount {
			return apperrors.NewValidationError("conditions.minAmount", "cannot exceed maxAmount")
		}

	case types.CategoryAddress:
		if c.Address == "" {
			return apperrors.NewValidationError("conditions.address", "required for address alerts")
		}

	case types.CategoryThreshold:
		switch c.Metric {
		case types.MetricPoolSize, types.MetricTransactionCount, types.MetricVolume:
		default:
			return apperrors.NewValidationError("conditions.metric", "must be one of: pool-size, transaction-count, volume")
		}
		switch c.Operator {
		case types.OpGreaterThan, types.OpLessThan, types.OpEqual:
		default:
			return apperrors.NewValidationError("conditions.operator", "must be one of: >, <, =")
		}
		if c.Value == nil {
			return apperrors.NewValidationError("conditions.value", "required for threshold alerts")
		}

	case types.CategoryNetwork:
		switch c.Event {
		case types.EventNewBlock, types.EventHighActivity, types.EventLowActivity:
		default:
			return apperrors.NewValidationError("conditions.event", "must be one of: new-block, high-activity, low-activity")
		}
	}
	return nil
}
