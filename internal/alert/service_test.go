package alert

import (
	"context"
	"testing"

	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

func TestValidateConditions(t *testing.T) {
	tests := []struct {
		name       string
		category   types.AlertCategory
		conditions models.AlertConditions
		wantErr    bool
	}{
		{
			name:     "transaction with no filter",
			category: types.CategoryTransaction,
		},
		{
			name:       "transaction with valid filter",
			category:   types.CategoryTransaction,
			conditions: models.AlertConditions{TransactionType: types.TypeSpend},
		},
		{
			name:       "transaction with unknown filter",
			category:   types.CategoryTransaction,
			conditions: models.AlertConditions{TransactionType: "transparent"},
			wantErr:    true,
		},
		{
			name:       "transaction with valid amount bounds",
			category:   types.CategoryTransaction,
			conditions: models.AlertConditions{MinAmount: floatPtr(1), MaxAmount: floatPtr(10)},
		},
		{
			name:       "transaction with inverted amount bounds",
			category:   types.CategoryTransaction,
			conditions: models.AlertConditions{MinAmount: floatPtr(10), MaxAmount: floatPtr(1)},
			wantErr:    true,
		},
		{
			name:       "transaction with negative amount",
			category:   types.CategoryTransaction,
			conditions: models.AlertConditions{MinAmount: floatPtr(-1)},
			wantErr:    true,
		},
		{
			name:       "address with identifier",
			category:   types.CategoryAddress,
			conditions: models.AlertConditions{Address: "abc123"},
		},
		{
			name:     "address without identifier",
			category: types.CategoryAddress,
			wantErr:  true,
		},
		{
			name:     "threshold complete",
			category: types.CategoryThreshold,
			conditions: models.AlertConditions{
				Metric:   types.MetricPoolSize,
				Operator: types.OpGreaterThan,
				Value:    floatPtr(100),
			},
		},
		{
			name:     "threshold missing value",
			category: types.CategoryThreshold,
			conditions: models.AlertConditions{
				Metric:   types.MetricPoolSize,
				Operator: types.OpGreaterThan,
			},
			wantErr: true,
		},
		{
			name:     "threshold unknown metric",
			category: types.CategoryThreshold,
			conditions: models.AlertConditions{
				Metric:   "fee-rate",
				Operator: types.OpGreaterThan,
				Value:    floatPtr(1),
			},
			wantErr: true,
		},
		{
			name:     "threshold unknown operator",
			category: types.CategoryThreshold,
			conditions: models.AlertConditions{
				Metric:   types.MetricVolume,
				Operator: ">=",
				Value:    floatPtr(1),
			},
			wantErr: true,
		},
		{
			name:       "network with valid event",
			category:   types.CategoryNetwork,
			conditions: models.AlertConditions{Event: types.EventNewBlock},
		},
		{
			name:       "network with unknown event",
			category:   types.CategoryNetwork,
			conditions: models.AlertConditions{Event: "halving"},
			wantErr:    true,
		},
		{
			name:     "network without event",
			category: types.CategoryNetwork,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConditions(tt.category, &tt.conditions)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConditions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDestination(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateAlertInput
		wantErr bool
	}{
		{
			name:  "ui needs no destination",
			input: CreateAlertInput{Method: types.MethodUI},
		},
		{
			name:  "webhook with valid url",
			input: CreateAlertInput{Method: types.MethodWebhook, WebhookURL: "https://example.com/hook"},
		},
		{
			name:    "webhook without url",
			input:   CreateAlertInput{Method: types.MethodWebhook},
			wantErr: true,
		},
		{
			name:    "webhook with bad scheme",
			input:   CreateAlertInput{Method: types.MethodWebhook, WebhookURL: "ftp://example.com"},
			wantErr: true,
		},
		{
			name:  "email with valid address",
			input: CreateAlertInput{Method: types.MethodEmail, Email: "ops@example.com"},
		},
		{
			name:    "email without address",
			input:   CreateAlertInput{Method: types.MethodEmail},
			wantErr: true,
		},
		{
			name:    "email without domain",
			input:   CreateAlertInput{Method: types.MethodEmail, Email: "ops@"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDestination(&tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateDestination() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateAlert_InputValidation(t *testing.T) {
	s := NewService(nil, nil)

	tests := []struct {
		name  string
		input CreateAlertInput
	}{
		{
			name:  "missing user",
			input: CreateAlertInput{Category: types.CategoryNetwork, Method: types.MethodUI},
		},
		{
			name:  "unknown category",
			input: CreateAlertInput{UserID: "u1", Category: "mempool", Method: types.MethodUI},
		},
		{
			name:  "unknown method",
			input: CreateAlertInput{UserID: "u1", Category: types.CategoryNetwork, Method: "sms"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateAlert(context.Background(), &tt.input); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
