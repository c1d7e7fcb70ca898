package models

import "time"

// ViewingKeyAssociation links an indexed transaction to a viewing key.
// The raw viewing key is never persisted; KeyHash is its one-way SHA-256.
// Identity is the (key hash, transaction id) pair.
type ViewingKeyAssociation struct {
	KeyHash       string    `json:"keyHash" db:"key_hash"`
	TransactionID string    `json:"transactionId" db:"transaction_id"`
	UserID        string    `json:"userId,omitempty" db:"user_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
