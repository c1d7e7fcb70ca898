// Package scanner matches indexed shielded transactions against user
// viewing keys. Trial decryption itself is a pluggable capability; the
// scanner owns batching, hashing and association persistence.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"

	apperrors "github.com/shielded-scanner/internal/errors"
	"github.com/shielded-scanner/internal/models"
)

// Decryptor attempts to decrypt one shielded output with a viewing key.
// Implementations must be safe for concurrent use.
type Decryptor interface {
	AttemptDecrypt(viewingKey string, output *models.OutputDescription) bool
}

// NoopDecryptor is the placeholder Decryptor: it never matches. The real
// note decryption lives in an external cryptographic collaborator; wiring
// it in is a drop-in replacement.
type NoopDecryptor struct{}

// AttemptDecrypt always reports no match
func (NoopDecryptor) AttemptDecrypt(viewingKey string, output *models.OutputDescription) bool {
	return false
}

// TransactionLister pages through indexed transactions by height range
type TransactionLister interface {
	ListByHeightRange(ctx context.Context, start, end int64, limit, offset int) ([]*models.ShieldedTransaction, error)
}

// AssociationWriter persists key-to-transaction matches
type AssociationWriter interface {
	Associate(ctx context.Context, assoc *models.ViewingKeyAssociation) error
}

// Scanner runs viewing-key scans over the indexed transaction store
type Scanner struct {
	transactions TransactionLister
	associations AssociationWriter
	decryptor    Decryptor
	batchSize    int
}

// ScannerConfig holds configuration for a scanner
type ScannerConfig struct {
	Transactions TransactionLister
	Associations AssociationWriter
	Decryptor    Decryptor // defaults to NoopDecryptor
	BatchSize    int       // transactions loaded per page (default: 100)
}

// NewScanner creates a new scanner
func NewScanner(cfg *ScannerConfig) (*Scanner, error) {
	if cfg.Transactions == nil {
		return nil, fmt.Errorf("transaction lister cannot be nil")
	}
	if cfg.Associations == nil {
		return nil, fmt.Errorf("association writer cannot be nil")
	}

	decryptor := cfg.Decryptor
	if decryptor == nil {
		decryptor = NoopDecryptor{}
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Scanner{
		transactions: cfg.Transactions,
		associations: cfg.Associations,
		decryptor:    decryptor,
		batchSize:    batchSize,
	}, nil
}

// HashViewingKey returns the one-way hash under which a key's associations
// are stored. The raw key never reaches the store.
func HashViewingKey(viewingKey string) string {
	sum := sha256.Sum256([]byte(viewingKey))
	return hex.EncodeToString(sum[:])
}

// ScanRange trial-decrypts every shielded output of the indexed transactions
// in [start, end] against the viewing key, persisting an association per
// matched transaction. Returns the number of transactions matched.
// Re-running a scan is idempotent: associations upsert on conflict.
func (s *Scanner) ScanRange(ctx context.Context, viewingKey, userID string, start, end int64) (int, error) {
	if viewingKey == "" {
		return 0, apperrors.NewValidationError("viewingKey", "cannot be empty")
	}
	if start < 0 || end < start {
		return 0, apperrors.NewInvalidRangeError(start, end)
	}

	keyHash := HashViewingKey(viewingKey)
	matched := 0
	offset := 0

	for {
		select {
		case <-ctx.Done():
			return matched, ctx.Err()
		default:
		}

		batch, err := s.transactions.ListByHeightRange(ctx, start, end, s.batchSize, offset)
		if err != nil {
			return matched, fmt.Errorf("failed to list transactions: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, tx := range batch {
			if !s.matches(viewingKey, tx) {
				continue
			}

			assoc := &models.ViewingKeyAssociation{
				KeyHash:       keyHash,
				TransactionID: tx.ID,
				UserID:        userID,
			}
			if err := s.associations.Associate(ctx, assoc); err != nil {
				log.Printf("[Scanner] Failed to associate transaction %s: %v", tx.ID, err)
				continue
			}
			matched++
		}

		offset += len(batch)
	}

	log.Printf("[Scanner] Scanned heights [%d, %d]: %d transactions matched", start, end, matched)
	return matched, nil
}

// matches reports whether any output of the transaction decrypts under the key
func (s *Scanner) matches(viewingKey string, tx *models.ShieldedTransaction) bool {
	for i := range tx.Proof.Outputs {
		if s.decryptor.AttemptDecrypt(viewingKey, &tx.Proof.Outputs[i]) {
			return true
		}
	}
	return false
}
