package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shielded-scanner/internal/models"
)

// ViewingKeyRepository handles viewing-key association persistence.
// Only the key hash is ever stored, never the raw viewing key.
type ViewingKeyRepository struct {
	db *PostgresDB
}

// NewViewingKeyRepository creates a new viewing key repository
func NewViewingKeyRepository(db *PostgresDB) *ViewingKeyRepository {
	return &ViewingKeyRepository{db: db}
}

// Associate records that a viewing key decrypted a transaction's output.
// Re-scanning the same key over the same range is a no-op on conflict.
func (r *ViewingKeyRepository) Associate(ctx context.Context, assoc *models.ViewingKeyAssociation) error {
	if assoc.CreatedAt.IsZero() {
		assoc.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO viewing_key_associations (key_hash, transaction_id, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key_hash, transaction_id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		assoc.KeyHash, assoc.TransactionID, assoc.UserID, assoc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to associate viewing key: %w", err)
	}
	return nil
}

// IsAssociated reports whether the key hash has been linked to the transaction
func (r *ViewingKeyRepository) IsAssociated(ctx context.Context, keyHash, transactionID string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM viewing_key_associations WHERE key_hash = $1 AND transaction_id = $2)`,
		keyHash, transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check viewing key association: %w", err)
	}
	return exists, nil
}

// ListTransactionIDs returns the transaction ids a key hash was matched to
func (r *ViewingKeyRepository) ListTransactionIDs(ctx context.Context, keyHash string) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx,
		`SELECT transaction_id FROM viewing_key_associations WHERE key_hash = $1 ORDER BY created_at`,
		keyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to list viewing key associations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
