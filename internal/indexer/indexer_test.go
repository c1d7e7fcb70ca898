package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shielded-scanner/internal/chain"
	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/storage"
)

// fakeChain serves blocks from an in-memory chain description
type fakeChain struct {
	mu     sync.Mutex
	blocks []*chain.Block              // index = height
	txs    map[string]*chain.RawTransaction
	txErrs map[string]error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:    make(map[string]*chain.RawTransaction),
		txErrs: make(map[string]error),
	}
}

func (f *fakeChain) addBlock(txs ...*chain.RawTransaction) *chain.Block {
	f.mu.Lock()
	defer f.mu.Unlock()

	height := int64(len(f.blocks))
	block := &chain.Block{
		Hash:   fmt.Sprintf("hash-%d", height),
		Height: height,
		Time:   1756700000 + height*75,
	}
	for _, tx := range txs {
		block.Tx = append(block.Tx, tx.Txid)
		f.txs[tx.Txid] = tx
	}
	f.blocks = append(f.blocks, block)
	return block
}

// replaceTip swaps the tip block for a competing one, simulating a reorg
func (f *fakeChain) replaceTip(txs ...*chain.RawTransaction) *chain.Block {
	f.mu.Lock()
	defer f.mu.Unlock()

	height := int64(len(f.blocks) - 1)
	block := &chain.Block{
		Hash:   fmt.Sprintf("hash-%d-fork", height),
		Height: height,
		Time:   1756700000 + height*75,
	}
	for _, tx := range txs {
		block.Tx = append(block.Tx, tx.Txid)
		f.txs[tx.Txid] = tx
	}
	f.blocks[height] = block
	return block
}

func (f *fakeChain) GetBlockCount(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.blocks)) - 1, nil
}

func (f *fakeChain) GetBlockHash(ctx context.Context, height int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if height < 0 || height >= int64(len(f.blocks)) {
		return "", fmt.Errorf("block height %d out of range", height)
	}
	return f.blocks[height].Hash, nil
}

func (f *fakeChain) GetBlock(ctx context.Context, hash string) (*chain.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blocks {
		if b.Hash == hash {
			return b, nil
		}
	}
	return nil, fmt.Errorf("block %s not found", hash)
}

func (f *fakeChain) GetRawTransaction(ctx context.Context, txid string) (*chain.RawTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.txErrs[txid]; ok {
		return nil, err
	}
	tx, ok := f.txs[txid]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", txid)
	}
	return tx, nil
}

// memStore is an in-memory Store for indexer tests
type memStore struct {
	mu           sync.Mutex
	byTxid       map[string]*models.ShieldedTransaction
	upserts      int
	cursorHeight int64
	cursorHash   string
	hasCursor    bool
}

func newMemStore() *memStore {
	return &memStore{byTxid: make(map[string]*models.ShieldedTransaction)}
}

func (s *memStore) Upsert(ctx context.Context, tx *models.ShieldedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	cp := *tx
	s.byTxid[tx.Txid] = &cp
	return nil
}

func (s *memStore) DeleteAboveHeight(ctx context.Context, height int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for txid, tx := range s.byTxid {
		if tx.BlockHeight > height {
			delete(s.byTxid, txid)
			removed++
		}
	}
	return removed, nil
}

func (s *memStore) BlockHashAtHeight(ctx context.Context, height int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.byTxid {
		if tx.BlockHeight == height {
			return tx.BlockHash, nil
		}
	}
	return "", nil
}

func (s *memStore) GetCursor(ctx context.Context) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCursor {
		return 0, "", storage.ErrCursorNotFound
	}
	return s.cursorHeight, s.cursorHash, nil
}

func (s *memStore) SaveCursor(ctx context.Context, height int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursorHeight = height
	s.cursorHash = hash
	s.hasCursor = true
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byTxid)
}

func shieldedTx(txid string) *chain.RawTransaction {
	return &chain.RawTransaction{
		Txid:            txid,
		ShieldedOutputs: []chain.ShieldedOutput{{CMU: "cmu-" + txid}},
	}
}

func transparentTx(txid string) *chain.RawTransaction {
	return &chain.RawTransaction{Txid: txid}
}

func newTestIndexer(t *testing.T, fc *fakeChain, store Store) *BlockIndexer {
	t.Helper()
	ix, err := NewBlockIndexer(&BlockIndexerConfig{Client: fc, Store: store})
	if err != nil {
		t.Fatalf("NewBlockIndexer: %v", err)
	}
	return ix
}

func TestIndexBlock_OnlyShieldedIndexed(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock() // genesis
	fc.addBlock(shieldedTx("s1"), transparentTx("p1"), shieldedTx("s2"))

	store := newMemStore()
	ix := newTestIndexer(t, fc, store)

	count, err := ix.IndexBlock(context.Background(), 1)
	if err != nil {
		t.Fatalf("IndexBlock: %v", err)
	}
	if count != 2 {
		t.Errorf("indexed %d transactions, want 2", count)
	}
	if store.count() != 2 {
		t.Errorf("store holds %d records, want 2", store.count())
	}
	if _, ok := store.byTxid["p1"]; ok {
		t.Error("transparent transaction was indexed")
	}
}

func TestIndexBlock_Idempotent(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()
	fc.addBlock(shieldedTx("s1"))

	store := newMemStore()
	ix := newTestIndexer(t, fc, store)

	for i := 0; i < 3; i++ {
		if _, err := ix.IndexBlock(context.Background(), 1); err != nil {
			t.Fatalf("IndexBlock pass %d: %v", i, err)
		}
	}

	if store.count() != 1 {
		t.Errorf("store holds %d records after re-indexing, want 1", store.count())
	}
}

func TestIndexBlock_FaultContainment(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()
	fc.addBlock(shieldedTx("good1"), shieldedTx("bad"), shieldedTx("good2"))
	fc.txErrs["bad"] = errors.New("connection reset")

	store := newMemStore()
	ix := newTestIndexer(t, fc, store)

	count, err := ix.IndexBlock(context.Background(), 1)
	if err != nil {
		t.Fatalf("IndexBlock: %v", err)
	}
	if count != 2 {
		t.Errorf("indexed %d transactions, want 2 despite one failure", count)
	}
}

func TestIndexBlockRange_InvalidRange(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()
	ix := newTestIndexer(t, fc, newMemStore())

	if _, err := ix.IndexBlockRange(context.Background(), 10, 5); err == nil {
		t.Fatal("expected error for start > end")
	}
	if _, err := ix.IndexBlockRange(context.Background(), -1, 5); err == nil {
		t.Fatal("expected error for negative start")
	}
}

func TestIndexBlockRange_SkipsFailedBlocks(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()
	fc.addBlock(shieldedTx("s1"))
	fc.addBlock(shieldedTx("s2"))

	store := newMemStore()
	ix := newTestIndexer(t, fc, store)

	// Range extends past the tip; out-of-range blocks are skipped
	total, err := ix.IndexBlockRange(context.Background(), 1, 4)
	if err != nil {
		t.Fatalf("IndexBlockRange: %v", err)
	}
	if total != 2 {
		t.Errorf("indexed %d transactions, want 2", total)
	}
}

func TestSyncOnce_AdvancesCursorMonotonically(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()
	fc.addBlock(shieldedTx("s1"))
	fc.addBlock(transparentTx("p1"))
	fc.addBlock(shieldedTx("s2"))

	store := newMemStore()
	ix := newTestIndexer(t, fc, store)

	advanced, err := ix.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if advanced != 3 {
		t.Errorf("advanced %d blocks, want 3", advanced)
	}
	if store.cursorHeight != 3 {
		t.Errorf("cursor at %d, want 3", store.cursorHeight)
	}
	if store.cursorHash != "hash-3" {
		t.Errorf("cursor hash %s, want hash-3", store.cursorHash)
	}

	// At the tip: another cycle is a no-op
	advanced, err = ix.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce at tip: %v", err)
	}
	if advanced != 0 {
		t.Errorf("advanced %d blocks at tip, want 0", advanced)
	}

	// New block: cursor moves forward only
	fc.addBlock(shieldedTx("s3"))
	if _, err := ix.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce after new block: %v", err)
	}
	if store.cursorHeight != 4 {
		t.Errorf("cursor at %d after new block, want 4", store.cursorHeight)
	}
}

func TestSyncOnce_BatchLimit(t *testing.T) {
	fc := newFakeChain()
	for i := 0; i < 10; i++ {
		fc.addBlock()
	}

	store := newMemStore()
	ix, err := NewBlockIndexer(&BlockIndexerConfig{
		Client:    fc,
		Store:     store,
		BatchSize: 4,
	})
	if err != nil {
		t.Fatalf("NewBlockIndexer: %v", err)
	}

	advanced, err := ix.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if advanced != 4 {
		t.Errorf("advanced %d blocks, want batch limit 4", advanced)
	}
	if store.cursorHeight != 4 {
		t.Errorf("cursor at %d, want 4", store.cursorHeight)
	}
}

func TestSyncOnce_ReorgRewind(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()
	fc.addBlock(shieldedTx("s1"))
	fc.addBlock(shieldedTx("s2"))

	store := newMemStore()
	ix := newTestIndexer(t, fc, store)

	if _, err := ix.SyncOnce(context.Background()); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	if store.count() != 2 {
		t.Fatalf("store holds %d records, want 2", store.count())
	}

	// The tip block is replaced by a competing block with different contents
	fc.replaceTip(shieldedTx("s2-fork"))

	if _, err := ix.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync after reorg: %v", err)
	}

	if _, ok := store.byTxid["s2"]; ok {
		t.Error("reorged transaction s2 still in store")
	}
	if _, ok := store.byTxid["s2-fork"]; !ok {
		t.Error("replacement transaction s2-fork not indexed")
	}
	if _, ok := store.byTxid["s1"]; !ok {
		t.Error("pre-fork transaction s1 was removed")
	}
	if store.cursorHeight != 2 {
		t.Errorf("cursor at %d after reorg recovery, want 2", store.cursorHeight)
	}
	if store.cursorHash != "hash-2-fork" {
		t.Errorf("cursor hash %s, want hash-2-fork", store.cursorHash)
	}
}

func TestStartStopSync(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()

	ix := newTestIndexer(t, fc, newMemStore())
	ctx := context.Background()

	if err := ix.StartSync(ctx); err != nil {
		t.Fatalf("StartSync: %v", err)
	}
	if err := ix.StartSync(ctx); err == nil {
		t.Error("expected error starting an already-running indexer")
	}
	if err := ix.StopSync(ctx); err != nil {
		t.Fatalf("StopSync: %v", err)
	}
	if err := ix.StopSync(ctx); err == nil {
		t.Error("expected error stopping an already-stopped indexer")
	}
}

func TestIndexBlock_OnIndexedHook(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()
	fc.addBlock(shieldedTx("s1"), transparentTx("p1"), shieldedTx("s2"))

	store := newMemStore()

	var gotIDs []string
	var gotHeights []int64
	ix, err := NewBlockIndexer(&BlockIndexerConfig{
		Client: fc,
		Store:  store,
		OnIndexed: func(transactionID string, height int64) {
			gotIDs = append(gotIDs, transactionID)
			gotHeights = append(gotHeights, height)
		},
	})
	if err != nil {
		t.Fatalf("NewBlockIndexer: %v", err)
	}

	if _, err := ix.IndexBlock(context.Background(), 1); err != nil {
		t.Fatalf("IndexBlock: %v", err)
	}

	// Fires once per stored shielded transaction, never for transparent ones
	if len(gotIDs) != 2 {
		t.Fatalf("hook fired %d times, want 2", len(gotIDs))
	}
	for _, h := range gotHeights {
		if h != 1 {
			t.Errorf("hook height %d, want 1", h)
		}
	}
}

func TestSyncOnce_OnBlockHook(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()
	fc.addBlock(shieldedTx("s1"), shieldedTx("s2"))
	fc.addBlock() // empty block
	fc.addBlock(shieldedTx("s3"))

	store := newMemStore()

	var gotHeights []int64
	ix, err := NewBlockIndexer(&BlockIndexerConfig{
		Client: fc,
		Store:  store,
		OnBlock: func(height int64) {
			gotHeights = append(gotHeights, height)
		},
	})
	if err != nil {
		t.Fatalf("NewBlockIndexer: %v", err)
	}

	if _, err := ix.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	// Once per advanced height, empty blocks included, regardless of how
	// many shielded transactions each block carried
	want := []int64{1, 2, 3}
	if len(gotHeights) != len(want) {
		t.Fatalf("hook fired for heights %v, want %v", gotHeights, want)
	}
	for i, h := range want {
		if gotHeights[i] != h {
			t.Errorf("hook height[%d] = %d, want %d", i, gotHeights[i], h)
		}
	}
}

func TestGetStatus_RunningFromExternalSyncCycles(t *testing.T) {
	fc := newFakeChain()
	fc.addBlock()
	fc.addBlock(shieldedTx("s1"))

	store := newMemStore()
	ix := newTestIndexer(t, fc, store)

	if ix.GetStatus().Running {
		t.Error("running before any sync cycle")
	}

	// SyncOnce driven externally, without the internal poll loop
	if _, err := ix.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	status := ix.GetStatus()
	if !status.Running {
		t.Error("not running right after a sync cycle")
	}
	if status.LastSyncTime.IsZero() {
		t.Error("lastSyncTime not recorded")
	}
	if status.CursorHeight != 1 || status.ChainHeight != 1 {
		t.Errorf("cursor/chain = %d/%d, want 1/1", status.CursorHeight, status.ChainHeight)
	}

	// A stale cycle no longer counts as running
	ix.mu.Lock()
	ix.lastSyncTime = time.Now().Add(-time.Hour)
	ix.mu.Unlock()
	if ix.GetStatus().Running {
		t.Error("still running an hour after the last sync cycle")
	}
}
