// Package chain provides the client adapter for the shielded chain node.
// The node speaks a bitcoind-derived JSON-RPC; verbose transaction results
// additionally carry the shielded proof fields.
package chain

import (
	"context"
	"fmt"
)

// Block is the verbose block result consumed by the indexer: the contained
// transaction ids plus the block header fields the indexer needs.
type Block struct {
	Hash   string   `json:"hash"`
	Height int64    `json:"height"`
	Time   int64    `json:"time"`
	Tx     []string `json:"tx"`
}

// ShieldedSpend is one shielded spend description as returned by the node.
type ShieldedSpend struct {
	CV           string `json:"cv"`
	Anchor       string `json:"anchor"`
	Nullifier    string `json:"nullifier"`
	RK           string `json:"rk"`
	Proof        string `json:"proof"`
	SpendAuthSig string `json:"spendAuthSig"`
}

// ShieldedOutput is one shielded output description as returned by the node.
type ShieldedOutput struct {
	CV            string `json:"cv"`
	CMU           string `json:"cmu"`
	EphemeralKey  string `json:"ephemeralKey"`
	EncCiphertext string `json:"encCiphertext"`
	OutCiphertext string `json:"outCiphertext"`
	Proof         string `json:"proof"`
	Memo          string `json:"memo,omitempty"`
}

// JoinSplit is one legacy joinsplit description as returned by the node.
// Each joinsplit spends via its nullifiers and creates via its commitments.
type JoinSplit struct {
	VPubOld       float64  `json:"vpub_old"`
	VPubNew       float64  `json:"vpub_new"`
	Anchor        string   `json:"anchor"`
	Nullifiers    []string `json:"nullifiers"`
	Commitments   []string `json:"commitments"`
	OneTimePubKey string   `json:"onetimePubKey"`
	RandomSeed    string   `json:"randomSeed"`
	Macs          []string `json:"macs"`
	Proof         string   `json:"proof"`
	Ciphertexts   []string `json:"ciphertexts"`
}

// RawTransaction is the verbose raw transaction result, including the
// shielded components the stock bitcoind result does not have.
type RawTransaction struct {
	Txid            string           `json:"txid"`
	BlockHash       string           `json:"blockhash,omitempty"`
	Height          int64            `json:"height,omitempty"`
	Time            int64            `json:"time,omitempty"`
	ShieldedSpends  []ShieldedSpend  `json:"vShieldedSpend,omitempty"`
	ShieldedOutputs []ShieldedOutput `json:"vShieldedOutput,omitempty"`
	JoinSplits      []JoinSplit      `json:"vjoinsplit,omitempty"`
	BindingSig      string           `json:"bindingSig,omitempty"`
}

// HasShieldedComponents reports whether the transaction carries any
// shielded spend, output or joinsplit.
func (tx *RawTransaction) HasShieldedComponents() bool {
	return len(tx.ShieldedSpends) > 0 || len(tx.ShieldedOutputs) > 0 || len(tx.JoinSplits) > 0
}

// Client defines the chain node capability consumed by the indexer.
// Implementations retry transient failures internally and surface the
// unsupported-method class as errors.ErrMethodUnsupported.
type Client interface {
	// GetBlockCount returns the current chain height
	GetBlockCount(ctx context.Context) (int64, error)

	// GetBlockHash returns the block hash at the given height
	GetBlockHash(ctx context.Context, height int64) (string, error)

	// GetBlock returns the verbose block for the given hash
	GetBlock(ctx context.Context, hash string) (*Block, error)

	// GetRawTransaction returns the verbose raw transaction for the given txid
	GetRawTransaction(ctx context.Context, txid string) (*RawTransaction, error)
}

// ClientError wraps node errors with the failed operation for context
type ClientError struct {
	Op      string
	Err     error
	Details map[string]interface{}
}

func (e *ClientError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain client error [%s]: %v (details: %+v)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain client error [%s]: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}
