package models

import (
	"time"

	"github.com/shielded-scanner/internal/types"
)

// AlertConditions is the category-specific condition payload of an alert.
// Which fields are required depends on the alert's category; the shape is
// validated once at creation time and never re-validated afterwards.
type AlertConditions struct {
	// transaction category
	TransactionType types.TransactionType `json:"transactionType,omitempty"`
	MinAmount       *float64              `json:"minAmount,omitempty"`
	MaxAmount       *float64              `json:"maxAmount,omitempty"`

	// address category
	Address string `json:"address,omitempty"`

	// threshold category
	Metric   types.ThresholdMetric    `json:"metric,omitempty"`
	Operator types.ComparisonOperator `json:"operator,omitempty"`
	Value    *float64                 `json:"value,omitempty"`

	// network category
	Event types.NetworkEvent `json:"event,omitempty"`
}

// Alert represents a user-configured alert rule.
type Alert struct {
	ID         string               `json:"id" db:"id"`
	UserID     string               `json:"userId" db:"user_id"`
	Category   types.AlertCategory  `json:"category" db:"category"`
	Conditions AlertConditions      `json:"conditions" db:"conditions"`
	Method     types.DeliveryMethod `json:"method" db:"method"`
	// WebhookURL is required iff Method is webhook; Email iff Method is email.
	WebhookURL string    `json:"webhookUrl,omitempty" db:"webhook_url"`
	Email      string    `json:"email,omitempty" db:"email"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// AlertNotification represents one triggered alert occurrence.
// Rows are append-only: created by the evaluation engine, never mutated.
type AlertNotification struct {
	ID          string                 `json:"id" db:"id"`
	AlertID     string                 `json:"alertId" db:"alert_id"`
	Message     string                 `json:"message" db:"message"`
	Details     map[string]interface{} `json:"details,omitempty" db:"details"`
	TriggeredAt time.Time              `json:"triggeredAt" db:"triggered_at"`
}
