package alert

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

// Trailing-hour activity watermarks for network alerts
const (
	highActivityThreshold = 100
	lowActivityThreshold  = 10
)

// AlertSource lists the active alerts to evaluate
type AlertSource interface {
	ListActiveByCategory(ctx context.Context, category types.AlertCategory) ([]*models.Alert, error)
}

// NotificationSink persists triggered notifications
type NotificationSink interface {
	Create(ctx context.Context, n *models.AlertNotification) error
}

// TransactionSource provides the indexed data alert conditions read
type TransactionSource interface {
	GetByID(ctx context.Context, id string) (*models.ShieldedTransaction, error)
	CountAll(ctx context.Context) (int64, error)
	CountInWindow(ctx context.Context, window time.Duration) (int64, error)
	ShieldedOutputVolumeInWindow(ctx context.Context, window time.Duration) (int64, error)
}

// AssociationSource answers viewing-key linkage queries for address alerts
type AssociationSource interface {
	IsAssociated(ctx context.Context, keyHash, transactionID string) (bool, error)
}

// Notifier delivers a triggered notification. Returns whether the channel
// accepted it; the notification row exists either way.
type Notifier interface {
	Deliver(ctx context.Context, alert *models.Alert, n *models.AlertNotification) bool
}

// EvaluationContext is the trigger a pass evaluates alerts against.
// TransactionID scopes transaction and address alerts; BlockHeight marks a
// new-block event; NetworkSnapshot carries the precomputed trailing-hour
// activity for network alerts.
type EvaluationContext struct {
	TransactionID   string
	BlockHeight     int64
	NetworkSnapshot *NetworkSnapshot
}

// NetworkSnapshot is the chain activity view shared by one evaluation pass
type NetworkSnapshot struct {
	TrailingHourCount int64
}

// Engine evaluates active alerts against trigger contexts and dispatches
// notifications for those that fire. One alert's failure never escapes its
// own evaluation.
type Engine struct {
	alerts        AlertSource
	notifications NotificationSink
	transactions  TransactionSource
	associations  AssociationSource
	notifier      Notifier
}

// NewEngine creates a new evaluation engine
func NewEngine(alerts AlertSource, notifications NotificationSink, transactions TransactionSource, associations AssociationSource, notifier Notifier) (*Engine, error) {
	if alerts == nil || notifications == nil || transactions == nil || associations == nil {
		return nil, fmt.Errorf("engine dependencies cannot be nil")
	}
	return &Engine{
		alerts:        alerts,
		notifications: notifications,
		transactions:  transactions,
		associations:  associations,
		notifier:      notifier,
	}, nil
}

// EvaluateTransaction runs a pass scoped to one newly indexed transaction:
// transaction and address alerts see the record. New-block alerts fire from
// EvaluateBlock so a block triggers them once, however many shielded
// transactions it carries.
func (e *Engine) EvaluateTransaction(ctx context.Context, transactionID string) error {
	tx, err := e.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}

	ec := &EvaluationContext{
		TransactionID: transactionID,
		BlockHeight:   tx.BlockHeight,
	}

	e.evaluateCategory(ctx, types.CategoryTransaction, ec, tx)
	e.evaluateCategory(ctx, types.CategoryAddress, ec, tx)
	return nil
}

// EvaluateBlock runs the new-block pass for one advanced height. Called
// once per block the indexer moves past, including blocks without shielded
// transactions.
func (e *Engine) EvaluateBlock(ctx context.Context, height int64) error {
	if height <= 0 {
		return fmt.Errorf("invalid block height %d", height)
	}

	ec := &EvaluationContext{BlockHeight: height}
	e.evaluateCategory(ctx, types.CategoryNetwork, ec, nil)
	return nil
}

// EvaluateAggregates runs the periodic pass over the aggregate categories:
// threshold alerts and the activity-level network alerts.
func (e *Engine) EvaluateAggregates(ctx context.Context) error {
	count, err := e.transactions.CountInWindow(ctx, time.Hour)
	if err != nil {
		return fmt.Errorf("failed to compute network snapshot: %w", err)
	}

	ec := &EvaluationContext{
		NetworkSnapshot: &NetworkSnapshot{TrailingHourCount: count},
	}

	e.evaluateCategory(ctx, types.CategoryThreshold, ec, nil)
	e.evaluateCategory(ctx, types.CategoryNetwork, ec, nil)
	return nil
}

// evaluateCategory runs every active alert of one category against the
// context. Errors and panics are contained per alert.
func (e *Engine) evaluateCategory(ctx context.Context, category types.AlertCategory, ec *EvaluationContext, tx *models.ShieldedTransaction) {
	alerts, err := e.alerts.ListActiveByCategory(ctx, category)
	if err != nil {
		log.Printf("[AlertEngine] Failed to list %s alerts: %v", category, err)
		return
	}

	for _, alert := range alerts {
		e.evaluateOne(ctx, alert, ec, tx)
	}
}

func (e *Engine) evaluateOne(ctx context.Context, alert *models.Alert, ec *EvaluationContext, tx *models.ShieldedTransaction) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[AlertEngine] Alert %s evaluation panicked: %v", alert.ID, r)
		}
	}()

	fired, message, details, err := e.check(ctx, alert, ec, tx)
	if err != nil {
		log.Printf("[AlertEngine] Alert %s evaluation failed: %v", alert.ID, err)
		return
	}
	if !fired {
		return
	}

	notification := &models.AlertNotification{
		AlertID: alert.ID,
		Message: message,
		Details: details,
	}
	if err := e.notifications.Create(ctx, notification); err != nil {
		log.Printf("[AlertEngine] Alert %s: failed to store notification: %v", alert.ID, err)
		return
	}

	if e.notifier != nil {
		e.notifier.Deliver(ctx, alert, notification)
	}
}

func (e *Engine) check(ctx context.Context, alert *models.Alert, ec *EvaluationContext, tx *models.ShieldedTransaction) (bool, string, map[string]interface{}, error) {
	switch alert.Category {
	case types.CategoryTransaction:
		return e.checkTransaction(alert, ec, tx)
	case types.CategoryAddress:
		return e.checkAddress(ctx, alert, ec)
	case types.CategoryThreshold:
		return e.checkThreshold(ctx, alert)
	case types.CategoryNetwork:
		return e.checkNetwork(alert, ec)
	}
	return false, "", nil, fmt.Errorf("unknown category %s", alert.Category)
}

// checkTransaction fires when a shielded transaction in context matches the
// optional type filter. A spend filter matches any transaction with shielded
// inputs, an output filter any with shielded outputs, binding requires both.
// Amount bounds are validated at creation but not evaluated here: shielded
// values are hidden, so there is no amount to extract from the proof.
func (e *Engine) checkTransaction(alert *models.Alert, ec *EvaluationContext, tx *models.ShieldedTransaction) (bool, string, map[string]interface{}, error) {
	if ec.TransactionID == "" || tx == nil {
		return false, "", nil, nil
	}
	if !tx.IsShielded() {
		return false, "", nil, nil
	}

	switch alert.Conditions.TransactionType {
	case types.TypeSpend:
		if tx.ShieldedInputs == 0 {
			return false, "", nil, nil
		}
	case types.TypeOutput:
		if tx.ShieldedOutputs == 0 {
			return false, "", nil, nil
		}
	case types.TypeBinding:
		if tx.ShieldedInputs == 0 || tx.ShieldedOutputs == 0 {
			return false, "", nil, nil
		}
	}

	message := fmt.Sprintf("Shielded %s transaction %s indexed at height %d",
		tx.Proof.Type, tx.Txid, tx.BlockHeight)
	details := map[string]interface{}{
		"transactionId":   tx.ID,
		"txid":            tx.Txid,
		"blockHeight":     tx.BlockHeight,
		"transactionType": string(tx.Proof.Type),
		"shieldedInputs":  tx.ShieldedInputs,
		"shieldedOutputs": tx.ShieldedOutputs,
	}
	return true, message, details, nil
}

// checkAddress fires when the transaction in context is linked to the
// watched identifier through a viewing-key association
func (e *Engine) checkAddress(ctx context.Context, alert *models.Alert, ec *EvaluationContext) (bool, string, map[string]interface{}, error) {
	if ec.TransactionID == "" {
		return false, "", nil, nil
	}

	linked, err := e.associations.IsAssociated(ctx, alert.Conditions.Address, ec.TransactionID)
	if err != nil {
		return false, "", nil, err
	}
	if !linked {
		return false, "", nil, nil
	}

	message := fmt.Sprintf("Watched identifier matched transaction %s", ec.TransactionID)
	details := map[string]interface{}{
		"transactionId": ec.TransactionID,
		"identifier":    alert.Conditions.Address,
	}
	return true, message, details, nil
}

// checkThreshold computes the configured metric and compares it to the bound
func (e *Engine) checkThreshold(ctx context.Context, alert *models.Alert) (bool, string, map[string]interface{}, error) {
	var current int64
	var err error

	switch alert.Conditions.Metric {
	case types.MetricPoolSize:
		current, err = e.transactions.CountAll(ctx)
	case types.MetricTransactionCount:
		current, err = e.transactions.CountInWindow(ctx, 24*time.Hour)
	case types.MetricVolume:
		current, err = e.transactions.ShieldedOutputVolumeInWindow(ctx, 24*time.Hour)
	default:
		return false, "", nil, fmt.Errorf("unknown metric %s", alert.Conditions.Metric)
	}
	if err != nil {
		return false, "", nil, err
	}

	bound := *alert.Conditions.Value
	if !alert.Conditions.Operator.Compare(float64(current), bound) {
		return false, "", nil, nil
	}

	message := fmt.Sprintf("Metric %s is %d (%s %g)",
		alert.Conditions.Metric, current, alert.Conditions.Operator, bound)
	details := map[string]interface{}{
		"metric":       string(alert.Conditions.Metric),
		"operator":     string(alert.Conditions.Operator),
		"bound":        bound,
		"currentValue": current,
	}
	return true, message, details, nil
}

// checkNetwork fires new-block alerts when a block height is in context and
// activity alerts when the trailing-hour count crosses a watermark
func (e *Engine) checkNetwork(alert *models.Alert, ec *EvaluationContext) (bool, string, map[string]interface{}, error) {
	switch alert.Conditions.Event {
	case types.EventNewBlock:
		if ec.BlockHeight <= 0 {
			return false, "", nil, nil
		}
		message := fmt.Sprintf("New block indexed at height %d", ec.BlockHeight)
		details := map[string]interface{}{
			"event":       string(types.EventNewBlock),
			"blockHeight": ec.BlockHeight,
		}
		return true, message, details, nil

	case types.EventHighActivity:
		if ec.NetworkSnapshot == nil || ec.NetworkSnapshot.TrailingHourCount <= highActivityThreshold {
			return false, "", nil, nil
		}
		message := fmt.Sprintf("High shielded activity: %d transactions in the last hour",
			ec.NetworkSnapshot.TrailingHourCount)
		details := map[string]interface{}{
			"event":        string(types.EventHighActivity),
			"currentValue": ec.NetworkSnapshot.TrailingHourCount,
			"threshold":    highActivityThreshold,
		}
		return true, message, details, nil

	case types.EventLowActivity:
		if ec.NetworkSnapshot == nil || ec.NetworkSnapshot.TrailingHourCount >= lowActivityThreshold {
			return false, "", nil, nil
		}
		message := fmt.Sprintf("Low shielded activity: %d transactions in the last hour",
			ec.NetworkSnapshot.TrailingHourCount)
		details := map[string]interface{}{
			"event":        string(types.EventLowActivity),
			"currentValue": ec.NetworkSnapshot.TrailingHourCount,
			"threshold":    lowActivityThreshold,
		}
		return true, message, details, nil
	}

	return false, "", nil, fmt.Errorf("unknown event %s", alert.Conditions.Event)
}
