// Package types provides common type definitions for the shielded scanner system.
package types

// TransactionType classifies a shielded transaction by its proof components
type TransactionType string

const (
	// TypeSpend represents a transaction with only shielded spend components
	TypeSpend TransactionType = "spend"
	// TypeOutput represents a transaction with only shielded output components
	TypeOutput TransactionType = "output"
	// TypeBinding represents a transaction with both spends and outputs,
	// reconciled by a binding signature over the value commitments
	TypeBinding TransactionType = "binding"
	// TypeUnknown represents a transaction whose proof structure could not be classified
	TypeUnknown TransactionType = "unknown"
)

// AlertCategory represents the closed set of alert rule types
type AlertCategory string

const (
	// CategoryTransaction fires on properties of a single indexed transaction
	CategoryTransaction AlertCategory = "transaction"
	// CategoryThreshold fires when an aggregate metric crosses a bound
	CategoryThreshold AlertCategory = "threshold"
	// CategoryAddress fires when a transaction is linked to a watched identifier
	CategoryAddress AlertCategory = "address"
	// CategoryNetwork fires on chain-level events
	CategoryNetwork AlertCategory = "network"
)

// ValidAlertCategory reports whether c is a member of the closed category set
func ValidAlertCategory(c AlertCategory) bool {
	switch c {
	case CategoryTransaction, CategoryThreshold, CategoryAddress, CategoryNetwork:
		return true
	}
	return false
}

// DeliveryMethod represents the channel used to deliver a triggered notification
type DeliveryMethod string

const (
	// MethodUI pushes to the user's live connections
	MethodUI DeliveryMethod = "ui"
	// MethodEmail dispatches through the mail collaborator
	MethodEmail DeliveryMethod = "email"
	// MethodWebhook posts a JSON envelope to a configured URL
	MethodWebhook DeliveryMethod = "webhook"
)

// ValidDeliveryMethod reports whether m is a member of the closed method set
func ValidDeliveryMethod(m DeliveryMethod) bool {
	switch m {
	case MethodUI, MethodEmail, MethodWebhook:
		return true
	}
	return false
}

// ThresholdMetric represents a metric a threshold alert can watch
type ThresholdMetric string

const (
	// MetricPoolSize is the total number of indexed shielded transactions
	MetricPoolSize ThresholdMetric = "pool-size"
	// MetricTransactionCount is the count of transactions indexed in the trailing 24h
	MetricTransactionCount ThresholdMetric = "transaction-count"
	// MetricVolume is the shielded output count indexed in the trailing 24h
	MetricVolume ThresholdMetric = "volume"
)

// ComparisonOperator compares a computed metric against a bound
type ComparisonOperator string

const (
	OpGreaterThan ComparisonOperator = ">"
	OpLessThan    ComparisonOperator = "<"
	OpEqual       ComparisonOperator = "="
)

// Compare applies the operator to (value, bound)
func (op ComparisonOperator) Compare(value, bound float64) bool {
	switch op {
	case OpGreaterThan:
		return value > bound
	case OpLessThan:
		return value < bound
	case OpEqual:
		return value == bound
	}
	return false
}

// NetworkEvent represents a chain-level event a network alert can watch
type NetworkEvent string

const (
	// EventNewBlock fires whenever a new block has been indexed
	EventNewBlock NetworkEvent = "new-block"
	// EventHighActivity fires when trailing-hour transaction count exceeds the high watermark
	EventHighActivity NetworkEvent = "high-activity"
	// EventLowActivity fires when trailing-hour transaction count falls below the low watermark
	EventLowActivity NetworkEvent = "low-activity"
)

// JobType identifies a named job queue task
type JobType string

const (
	// JobIndexBlock indexes a single block by height
	JobIndexBlock JobType = "index-block"
	// JobIndexRange indexes a contiguous block range
	JobIndexRange JobType = "index-range"
	// JobContinuousSync is the repeating keepalive for the continuous sync loop
	JobContinuousSync JobType = "continuous-sync"
	// JobPeriodicReindex is the repeating trailing-window re-index
	JobPeriodicReindex JobType = "periodic-reindex"
	// JobViewingKeyScan associates indexed transactions with a viewing key
	JobViewingKeyScan JobType = "viewing-key-scan"
	// JobAlertCheck evaluates active alerts against a trigger context
	JobAlertCheck JobType = "alert-check"
)

// JobStatus represents the lifecycle state of a queued job
type JobStatus string

const (
	// JobStatusPending represents a job waiting to be picked up
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning represents a job currently held by a worker
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted represents a successfully finished job
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed represents a job that exhausted its attempts
	JobStatusFailed JobStatus = "failed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
