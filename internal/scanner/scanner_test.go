package scanner

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shielded-scanner/internal/models"
)

type memLister struct {
	txs []*models.ShieldedTransaction
}

func (m *memLister) ListByHeightRange(ctx context.Context, start, end int64, limit, offset int) ([]*models.ShieldedTransaction, error) {
	var inRange []*models.ShieldedTransaction
	for _, tx := range m.txs {
		if tx.BlockHeight >= start && tx.BlockHeight <= end {
			inRange = append(inRange, tx)
		}
	}
	if offset >= len(inRange) {
		return nil, nil
	}
	endIdx := offset + limit
	if endIdx > len(inRange) {
		endIdx = len(inRange)
	}
	return inRange[offset:endIdx], nil
}

type memWriter struct {
	assocs []*models.ViewingKeyAssociation
}

func (m *memWriter) Associate(ctx context.Context, assoc *models.ViewingKeyAssociation) error {
	m.assocs = append(m.assocs, assoc)
	return nil
}

// prefixDecryptor matches outputs whose ciphertext starts with the key
type prefixDecryptor struct{}

func (prefixDecryptor) AttemptDecrypt(viewingKey string, output *models.OutputDescription) bool {
	return strings.HasPrefix(output.EncCiphertext, viewingKey)
}

func scanTx(id string, height int64, ciphertexts ...string) *models.ShieldedTransaction {
	tx := &models.ShieldedTransaction{
		ID:          id,
		Txid:        "txid-" + id,
		BlockHeight: height,
	}
	for _, ct := range ciphertexts {
		tx.Proof.Outputs = append(tx.Proof.Outputs, models.OutputDescription{EncCiphertext: ct})
		tx.ShieldedOutputs++
	}
	return tx
}

func TestScanRange_Validation(t *testing.T) {
	s, err := NewScanner(&ScannerConfig{Transactions: &memLister{}, Associations: &memWriter{}})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	if _, err := s.ScanRange(context.Background(), "", "u1", 0, 10); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := s.ScanRange(context.Background(), "key", "u1", 10, 5); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestScanRange_NoopNeverMatches(t *testing.T) {
	lister := &memLister{txs: []*models.ShieldedTransaction{
		scanTx("t1", 1, "anything"),
		scanTx("t2", 2, "anything"),
	}}
	writer := &memWriter{}

	s, err := NewScanner(&ScannerConfig{Transactions: lister, Associations: writer})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	matched, err := s.ScanRange(context.Background(), "zxviews1...", "u1", 0, 10)
	if err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	if matched != 0 || len(writer.assocs) != 0 {
		t.Errorf("noop decryptor matched %d transactions, want 0", matched)
	}
}

func TestScanRange_MatchStoresHashOnly(t *testing.T) {
	key := "secretkey"
	lister := &memLister{txs: []*models.ShieldedTransaction{
		scanTx("t1", 1, key+"-note"),
		scanTx("t2", 2, "other-note"),
	}}
	writer := &memWriter{}

	s, err := NewScanner(&ScannerConfig{
		Transactions: lister,
		Associations: writer,
		Decryptor:    prefixDecryptor{},
	})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	matched, err := s.ScanRange(context.Background(), key, "u1", 0, 10)
	if err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	if matched != 1 {
		t.Fatalf("matched %d transactions, want 1", matched)
	}

	assoc := writer.assocs[0]
	if assoc.TransactionID != "t1" {
		t.Errorf("associated %s, want t1", assoc.TransactionID)
	}
	if assoc.UserID != "u1" {
		t.Errorf("userID = %s, want u1", assoc.UserID)
	}
	if assoc.KeyHash == key || strings.Contains(assoc.KeyHash, key) {
		t.Error("raw viewing key leaked into the stored association")
	}
	if assoc.KeyHash != HashViewingKey(key) {
		t.Error("stored hash does not match the key hash")
	}
}

func TestScanRange_RespectsHeightBounds(t *testing.T) {
	key := "k"
	lister := &memLister{txs: []*models.ShieldedTransaction{
		scanTx("below", 4, key),
		scanTx("in1", 5, key),
		scanTx("in2", 7, key),
		scanTx("above", 8, key),
	}}
	writer := &memWriter{}

	s, err := NewScanner(&ScannerConfig{
		Transactions: lister,
		Associations: writer,
		Decryptor:    prefixDecryptor{},
	})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	matched, err := s.ScanRange(context.Background(), key, "u1", 5, 7)
	if err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	if matched != 2 {
		t.Errorf("matched %d transactions, want 2", matched)
	}
}

func TestScanRange_PagesThroughBatches(t *testing.T) {
	key := "k"
	lister := &memLister{}
	for i := 0; i < 25; i++ {
		lister.txs = append(lister.txs, scanTx(fmt.Sprintf("t%d", i), int64(i), key))
	}
	writer := &memWriter{}

	s, err := NewScanner(&ScannerConfig{
		Transactions: lister,
		Associations: writer,
		Decryptor:    prefixDecryptor{},
		BatchSize:    10,
	})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	matched, err := s.ScanRange(context.Background(), key, "u1", 0, 100)
	if err != nil {
		t.Fatalf("ScanRange: %v", err)
	}
	if matched != 25 {
		t.Errorf("matched %d transactions across batches, want 25", matched)
	}
}

func TestHashViewingKey_Deterministic(t *testing.T) {
	a := HashViewingKey("zxviews1abc")
	b := HashViewingKey("zxviews1abc")
	c := HashViewingKey("zxviews1abd")

	if a != b {
		t.Error("hash is not deterministic")
	}
	if a == c {
		t.Error("distinct keys hashed to the same value")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
