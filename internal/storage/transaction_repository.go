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

// ErrCursorNotFound is returned when no indexing cursor has been persisted yet
var ErrCursorNotFound = errors.New("indexing cursor not found")

// TransactionRepository handles shielded transaction persistence
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Upsert writes a shielded transaction keyed by its txid. Re-indexing the
// same block converges to the same final row (idempotent write, not append).
func (r *TransactionRepository) Upsert(ctx context.Context, tx *models.ShieldedTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	proofJSON, err := json.Marshal(tx.Proof)
	if err != nil {
		return fmt.Errorf("failed to marshal proof payload: %w", err)
	}

	var memoJSON []byte
	if len(tx.MemoData) > 0 {
		memoJSON, err = json.Marshal(tx.MemoData)
		if err != nil {
			return fmt.Errorf("failed to marshal memo data: %w", err)
		}
	}

	query := `
		INSERT INTO shielded_transactions (
			id, txid, block_height, block_hash, timestamp,
			shielded_inputs, shielded_outputs, proof, memo_data, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (txid)
		DO UPDATE SET
			block_height = EXCLUDED.block_height,
			block_hash = EXCLUDED.block_hash,
			timestamp = EXCLUDED.timestamp,
			shielded_inputs = EXCLUDED.shielded_inputs,
			shielded_outputs = EXCLUDED.shielded_outputs,
			proof = EXCLUDED.proof,
			memo_data = EXCLUDED.memo_data
		RETURNING id
	`

	// The RETURNING clause hands back the existing row's id on conflict,
	// so callers always hold the canonical identity
	err = r.db.Pool().QueryRow(ctx, query,
		tx.ID,
		tx.Txid,
		tx.BlockHeight,
		tx.BlockHash,
		tx.Timestamp,
		tx.ShieldedInputs,
		tx.ShieldedOutputs,
		proofJSON,
		memoJSON,
		tx.CreatedAt,
	).Scan(&tx.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert shielded transaction: %w", err)
	}

	return nil
}

// GetByTxid retrieves a shielded transaction by its transaction hash
func (r *TransactionRepository) GetByTxid(ctx context.Context, txid string) (*models.ShieldedTransaction, error) {
	query := `
		SELECT id, txid, block_height, block_hash, timestamp,
			   shielded_inputs, shielded_outputs, proof, memo_data, created_at
		FROM shielded_transactions
		WHERE txid = $1
	`

	return r.scanOne(r.db.Pool().QueryRow(ctx, query, txid))
}

// GetByID retrieves a shielded transaction by its generated id
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.ShieldedTransaction, error) {
	query := `
		SELECT id, txid, block_height, block_hash, timestamp,
			   shielded_inputs, shielded_outputs, proof, memo_data, created_at
		FROM shielded_transactions
		WHERE id = $1
	`

	return r.scanOne(r.db.Pool().QueryRow(ctx, query, id))
}

// ListByHeightRange returns transactions within [start, end] ordered by height
// then txid, paginated by limit/offset. Used by the viewing-key scanner.
func (r *TransactionRepository) ListByHeightRange(ctx context.Context, start, end int64, limit, offset int) ([]*models.ShieldedTransaction, error) {
	query := `
		SELECT id, txid, block_height, block_hash, timestamp,
			   shielded_inputs, shielded_outputs, proof, memo_data, created_at
		FROM shielded_transactions
		WHERE block_height >= $1 AND block_height <= $2
		ORDER BY block_height, txid
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Pool().Query(ctx, query, start, end, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []*models.ShieldedTransaction
	for rows.Next() {
		tx, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}

	return result, rows.Err()
}

// CountAll returns the total number of indexed shielded transactions
func (r *TransactionRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM shielded_transactions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// CountInWindow returns the number of transactions indexed with a block
// timestamp inside the trailing window
func (r *TransactionRepository) CountInWindow(ctx context.Context, window time.Duration) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM shielded_transactions WHERE timestamp >= $1`,
		time.Now().Add(-window),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions in window: %w", err)
	}
	return count, nil
}

// ShieldedOutputVolumeInWindow sums shielded output counts over the trailing
// window. Shielded values are hidden, so output count is the volume proxy.
func (r *TransactionRepository) ShieldedOutputVolumeInWindow(ctx context.Context, window time.Duration) (int64, error) {
	var volume int64
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COALESCE(SUM(shielded_outputs), 0) FROM shielded_transactions WHERE timestamp >= $1`,
		time.Now().Add(-window),
	).Scan(&volume)
	if err != nil {
		return 0, fmt.Errorf("failed to sum output volume: %w", err)
	}
	return volume, nil
}

// DeleteAboveHeight removes transactions above the given height.
// Used by the reorg rewind before re-indexing the replaced blocks.
func (r *TransactionRepository) DeleteAboveHeight(ctx context.Context, height int64) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx,
		`DELETE FROM shielded_transactions WHERE block_height > $1`, height)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions above height %d: %w", height, err)
	}
	return tag.RowsAffected(), nil
}

// BlockHashAtHeight returns the stored block hash for an indexed height,
// or empty string if no transaction at that height was indexed
func (r *TransactionRepository) BlockHashAtHeight(ctx context.Context, height int64) (string, error) {
	var hash string
	err := r.db.Pool().QueryRow(ctx,
		`SELECT block_hash FROM shielded_transactions WHERE block_height = $1 LIMIT 1`,
		height,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get block hash at height %d: %w", height, err)
	}
	return hash, nil
}

// GetCursor returns the highest contiguously indexed block height and hash
func (r *TransactionRepository) GetCursor(ctx context.Context) (int64, string, error) {
	var height int64
	var hash string
	err := r.db.Pool().QueryRow(ctx,
		`SELECT block_height, block_hash FROM indexing_cursor WHERE id = 1`,
	).Scan(&height, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", ErrCursorNotFound
		}
		return 0, "", fmt.Errorf("failed to get cursor: %w", err)
	}
	return height, hash, nil
}

// SaveCursor persists the indexing cursor (single-row upsert)
func (r *TransactionRepository) SaveCursor(ctx context.Context, height int64, hash string) error {
	query := `
		INSERT INTO indexing_cursor (id, block_height, block_hash, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id)
		DO UPDATE SET block_height = $1, block_hash = $2, updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query, height, hash)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// scanOne scans a single transaction row
func (r *TransactionRepository) scanOne(row pgx.Row) (*models.ShieldedTransaction, error) {
	var tx models.ShieldedTransaction
	var proofJSON []byte
	var memoJSON []byte

	err := row.Scan(
		&tx.ID,
		&tx.Txid,
		&tx.BlockHeight,
		&tx.BlockHash,
		&tx.Timestamp,
		&tx.ShieldedInputs,
		&tx.ShieldedOutputs,
		&proofJSON,
		&memoJSON,
		&tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("shielded transaction not found")
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if err := json.Unmarshal(proofJSON, &tx.Proof); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proof payload: %w", err)
	}
	if len(memoJSON) > 0 {
		if err := json.Unmarshal(memoJSON, &tx.MemoData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal memo data: %w", err)
		}
	}

	return &tx, nil
}
