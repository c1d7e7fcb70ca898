package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shielded-scanner/internal/chain"
	apperrors "github.com/shielded-scanner/internal/errors"
	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/storage"
)

// Store is the persistence capability the indexer needs. Satisfied by
// storage.TransactionRepository.
type Store interface {
	Upsert(ctx context.Context, tx *models.ShieldedTransaction) error
	DeleteAboveHeight(ctx context.Context, height int64) (int64, error)
	BlockHashAtHeight(ctx context.Context, height int64) (string, error)
	GetCursor(ctx context.Context) (int64, string, error)
	SaveCursor(ctx context.Context, height int64, hash string) error
}

// BlockIndexer ingests blocks from the chain node and persists the shielded
// transactions they contain. One indexer owns the cursor; run a single
// instance per store.
type BlockIndexer struct {
	client           chain.Client
	store            Store
	pollInterval     time.Duration
	batchSize        int
	reorgRewindLimit int
	startHeight      int64
	onIndexed        func(transactionID string, height int64)
	onBlock          func(height int64)

	running      bool
	lastSyncTime time.Time
	cursorHeight int64
	chainHeight  int64
	mu           sync.RWMutex
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// BlockIndexerConfig holds configuration for a block indexer
type BlockIndexerConfig struct {
	Client           chain.Client
	Store            Store
	PollInterval     time.Duration // default: 10 seconds
	BatchSize        int           // max blocks per sync cycle (default: 50)
	ReorgRewindLimit int           // max blocks to rewind on reorg (default: 20)
	StartHeight      int64         // first block when no cursor exists yet
	// OnIndexed is called after each shielded transaction is stored,
	// typically to post an alert-check job. Must not block.
	OnIndexed func(transactionID string, height int64)
	// OnBlock is called once per block the cursor advances past, whether or
	// not it carried shielded transactions. Must not block.
	OnBlock func(height int64)
}

// NewBlockIndexer creates a new block indexer
func NewBlockIndexer(cfg *BlockIndexerConfig) (*BlockIndexer, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("chain client cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	rewindLimit := cfg.ReorgRewindLimit
	if rewindLimit <= 0 {
		rewindLimit = 20
	}

	return &BlockIndexer{
		client:           cfg.Client,
		store:            cfg.Store,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		reorgRewindLimit: rewindLimit,
		startHeight:      cfg.StartHeight,
		onIndexed:        cfg.OnIndexed,
		onBlock:          cfg.OnBlock,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}, nil
}

// IndexBlock fetches the block at the given height and persists every
// shielded transaction it contains. Returns the number of shielded
// transactions indexed.
//
// A transaction that fails to fetch or decode is logged and skipped; it
// never aborts the rest of the block. Re-indexing the same block upserts
// by txid, so the end state converges regardless of how many times the
// block is processed.
func (ix *BlockIndexer) IndexBlock(ctx context.Context, height int64) (int, error) {
	hash, err := ix.client.GetBlockHash(ctx, height)
	if err != nil {
		return 0, fmt.Errorf("failed to get block hash at height %d: %w", height, err)
	}

	block, err := ix.client.GetBlock(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("failed to get block %s: %w", hash, err)
	}

	indexed := 0
	for _, txid := range block.Tx {
		raw, err := ix.client.GetRawTransaction(ctx, txid)
		if err != nil {
			if apperrors.IsMethodUnsupported(err) {
				return indexed, fmt.Errorf("node does not expose raw transactions: %w", err)
			}
			log.Printf("[Indexer] Block %d: failed to fetch transaction %s: %v", height, txid, err)
			continue
		}

		record := ExtractShieldedTransaction(raw, block)
		if record == nil {
			// Transparent-only transaction, nothing to index
			continue
		}

		if err := ix.store.Upsert(ctx, record); err != nil {
			log.Printf("[Indexer] Block %d: failed to store transaction %s: %v", height, txid, err)
			continue
		}
		indexed++

		if ix.onIndexed != nil {
			ix.onIndexed(record.ID, height)
		}
	}

	return indexed, nil
}

// IndexBlockRange indexes every block in [start, end] inclusive. Returns
// the total number of shielded transactions indexed across the range.
// Individual block failures are logged and skipped.
func (ix *BlockIndexer) IndexBlockRange(ctx context.Context, start, end int64) (int, error) {
	if start < 0 || end < start {
		return 0, apperrors.NewInvalidRangeError(start, end)
	}

	total := 0
	for height := start; height <= end; height++ {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		count, err := ix.IndexBlock(ctx, height)
		if err != nil {
			log.Printf("[Indexer] Range [%d, %d]: failed to index block %d: %v", start, end, height, err)
			continue
		}
		total += count
	}

	return total, nil
}

// StartSync begins the continuous sync loop. The loop alternates between
// idle (at the chain tip, polling) and catch-up (behind the tip, indexing
// up to the batch size per cycle).
func (ix *BlockIndexer) StartSync(ctx context.Context) error {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return fmt.Errorf("indexer is already running")
	}
	ix.running = true
	ix.mu.Unlock()

	log.Printf("[Indexer] Starting sync with poll interval %v, batch size %d", ix.pollInterval, ix.batchSize)

	go ix.syncLoop(ctx)
	return nil
}

// StopSync gracefully stops the sync loop
func (ix *BlockIndexer) StopSync(ctx context.Context) error {
	ix.mu.Lock()
	if !ix.running {
		ix.mu.Unlock()
		return fmt.Errorf("indexer is not running")
	}
	ix.mu.Unlock()

	log.Printf("[Indexer] Stopping sync")
	close(ix.stopCh)

	select {
	case <-ix.doneCh:
		log.Printf("[Indexer] Sync stopped gracefully")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("stop timeout")
	}

	ix.mu.Lock()
	ix.running = false
	ix.mu.Unlock()

	return nil
}

func (ix *BlockIndexer) syncLoop(ctx context.Context) {
	defer close(ix.doneCh)

	ticker := time.NewTicker(ix.pollInterval)
	defer ticker.Stop()

	// Run one cycle immediately instead of waiting a full interval
	if _, err := ix.SyncOnce(ctx); err != nil {
		log.Printf("[Indexer] Initial sync cycle failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Indexer] Context cancelled")
			return
		case <-ix.stopCh:
			log.Printf("[Indexer] Stop signal received")
			return
		case <-ticker.C:
			blocks, err := ix.SyncOnce(ctx)
			if err != nil {
				log.Printf("[Indexer] Sync cycle failed: %v", err)
				continue
			}
			if blocks > 0 {
				log.Printf("[Indexer] Synced %d new blocks", blocks)
			}
		}
	}
}

// SyncOnce runs a single sync cycle: detect reorgs at the cursor, then
// index from the cursor toward the chain tip, at most batchSize blocks.
// Returns the number of blocks advanced.
func (ix *BlockIndexer) SyncOnce(ctx context.Context) (int, error) {
	tip, err := ix.client.GetBlockCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain tip: %w", err)
	}

	cursor, cursorHash, err := ix.store.GetCursor(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrCursorNotFound) {
			return 0, fmt.Errorf("failed to load cursor: %w", err)
		}
		// First run: start one below the configured height so the loop
		// below picks it up as cursor+1
		cursor = ix.startHeight - 1
		cursorHash = ""
	}

	if cursorHash != "" {
		cursor, err = ix.checkReorg(ctx, cursor, cursorHash)
		if err != nil {
			return 0, err
		}
	}

	ix.mu.Lock()
	ix.lastSyncTime = time.Now()
	ix.cursorHeight = cursor
	ix.chainHeight = tip
	ix.mu.Unlock()

	if tip <= cursor {
		return 0, nil
	}

	target := tip
	if tip-cursor > int64(ix.batchSize) {
		target = cursor + int64(ix.batchSize)
		log.Printf("[Indexer] %d blocks behind, processing %d this cycle", tip-cursor, ix.batchSize)
	}

	advanced := 0
	for height := cursor + 1; height <= target; height++ {
		select {
		case <-ctx.Done():
			return advanced, ctx.Err()
		default:
		}

		count, err := ix.IndexBlock(ctx, height)
		if err != nil {
			// Stop the cycle here so the cursor stays contiguous; the
			// next cycle retries this block
			log.Printf("[Indexer] Failed to index block %d, will retry next cycle: %v", height, err)
			break
		}

		hash, err := ix.client.GetBlockHash(ctx, height)
		if err != nil {
			log.Printf("[Indexer] Failed to get hash for indexed block %d: %v", height, err)
			break
		}

		if err := ix.store.SaveCursor(ctx, height, hash); err != nil {
			return advanced, fmt.Errorf("failed to save cursor at height %d: %w", height, err)
		}

		ix.mu.Lock()
		ix.cursorHeight = height
		ix.mu.Unlock()

		if ix.onBlock != nil {
			ix.onBlock(height)
		}

		if count > 0 {
			log.Printf("[Indexer] Block %d: indexed %d shielded transactions", height, count)
		}
		advanced++
	}

	return advanced, nil
}

// ReindexTrailing re-indexes the depth blocks up to and including the
// cursor. Upserts make this safe to run at any time; it repairs records
// missed by transient per-transaction failures during the initial pass.
func (ix *BlockIndexer) ReindexTrailing(ctx context.Context, depth int64) (int, error) {
	if depth <= 0 {
		return 0, apperrors.NewValidationError("depth", "must be positive")
	}

	cursor, _, err := ix.store.GetCursor(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCursorNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	}

	start := cursor - depth + 1
	if start < 0 {
		start = 0
	}

	log.Printf("[Indexer] Re-indexing trailing blocks [%d, %d]", start, cursor)
	return ix.IndexBlockRange(ctx, start, cursor)
}

// checkReorg compares the stored cursor hash with the node's hash at the
// same height. On mismatch it walks back until the hashes agree again
// (bounded by the rewind limit), deletes the replaced rows and resets the
// cursor. Returns the possibly-rewound cursor height.
func (ix *BlockIndexer) checkReorg(ctx context.Context, cursor int64, cursorHash string) (int64, error) {
	nodeHash, err := ix.client.GetBlockHash(ctx, cursor)
	if err != nil {
		return cursor, fmt.Errorf("failed to get node hash at cursor height %d: %w", cursor, err)
	}
	if nodeHash == cursorHash {
		return cursor, nil
	}

	log.Printf("[Indexer] Reorg detected at height %d: stored %s, node %s", cursor, cursorHash, nodeHash)

	rewindTo := cursor - int64(ix.reorgRewindLimit)
	if rewindTo < 0 {
		rewindTo = 0
	}

	common := rewindTo
	for height := cursor - 1; height > rewindTo; height-- {
		stored, err := ix.store.BlockHashAtHeight(ctx, height)
		if err != nil {
			return cursor, fmt.Errorf("failed to read stored hash at height %d: %w", height, err)
		}
		if stored == "" {
			// No shielded transaction indexed at this height, nothing
			// to compare against
			continue
		}
		node, err := ix.client.GetBlockHash(ctx, height)
		if err != nil {
			return cursor, fmt.Errorf("failed to get node hash at height %d: %w", height, err)
		}
		if stored == node {
			common = height
			break
		}
	}

	removed, err := ix.store.DeleteAboveHeight(ctx, common)
	if err != nil {
		return cursor, fmt.Errorf("failed to delete reorged transactions: %w", err)
	}

	commonHash, err := ix.client.GetBlockHash(ctx, common)
	if err != nil {
		return cursor, fmt.Errorf("failed to get hash at rewind height %d: %w", common, err)
	}
	if err := ix.store.SaveCursor(ctx, common, commonHash); err != nil {
		return cursor, fmt.Errorf("failed to reset cursor after reorg: %w", err)
	}

	log.Printf("[Indexer] Rewound to height %d, removed %d transactions", common, removed)
	return common, nil
}

// Status reports the indexer's current sync position
type Status struct {
	Running      bool      `json:"running"`
	CursorHeight int64     `json:"cursorHeight"`
	ChainHeight  int64     `json:"chainHeight"`
	BlocksBehind int64     `json:"blocksBehind"`
	LastSyncTime time.Time `json:"lastSyncTime,omitempty"`
}

// GetStatus returns the current sync status. Running is true while the
// internal poll loop is active, or while sync cycles keep arriving from an
// external driver such as the job queue.
func (ix *BlockIndexer) GetStatus() *Status {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	behind := ix.chainHeight - ix.cursorHeight
	if behind < 0 {
		behind = 0
	}

	running := ix.running
	if !running && !ix.lastSyncTime.IsZero() {
		running = time.Since(ix.lastSyncTime) < 3*ix.pollInterval
	}

	return &Status{
		Running:      running,
		CursorHeight: ix.cursorHeight,
		ChainHeight:  ix.chainHeight,
		BlocksBehind: behind,
		LastSyncTime: ix.lastSyncTime,
	}
}
