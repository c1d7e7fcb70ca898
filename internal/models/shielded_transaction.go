package models

import (
	"time"

	"github.com/shielded-scanner/internal/types"
)

// SpendDescription holds the proof fields attached to one shielded input.
type SpendDescription struct {
	CV           string `json:"cv"`
	Anchor       string `json:"anchor"`
	Nullifier    string `json:"nullifier"`
	RK           string `json:"rk"`
	Proof        string `json:"proof"`
	SpendAuthSig string `json:"spendAuthSig"`
}

// OutputDescription holds the proof fields attached to one shielded output.
type OutputDescription struct {
	CV            string `json:"cv"`
	CMU           string `json:"cmu"`
	EphemeralKey  string `json:"ephemeralKey"`
	EncCiphertext string `json:"encCiphertext"`
	OutCiphertext string `json:"outCiphertext"`
	Proof         string `json:"proof"`
}

// JoinSplitDescription holds the proof fields of one legacy joinsplit,
// which spends through its nullifiers and creates through its commitments.
type JoinSplitDescription struct {
	VPubOld     float64  `json:"vpubOld"`
	VPubNew     float64  `json:"vpubNew"`
	Anchor      string   `json:"anchor"`
	Nullifiers  []string `json:"nullifiers"`
	Commitments []string `json:"commitments"`
	Proof       string   `json:"proof"`
}

// ProofPayload is the closed tagged variant carrying a transaction's proof
// structures. Type selects which description lists are populated:
//
//	spend    -> spend-side components only
//	output   -> output-side components only
//	binding  -> both sides, plus BindingSig when present
//	unknown  -> no component could be decoded
//
// JoinSplits contribute to both sides: their nullifiers count as spends and
// their commitments as outputs. The payload is decoded once at ingestion
// time and persisted as-is; no consumer re-interprets the raw transaction.
type ProofPayload struct {
	Type       types.TransactionType  `json:"type"`
	Spends     []SpendDescription     `json:"spends,omitempty"`
	Outputs    []OutputDescription    `json:"outputs,omitempty"`
	JoinSplits []JoinSplitDescription `json:"joinSplits,omitempty"`
	BindingSig string                 `json:"bindingSig,omitempty"`
}

// ShieldedTransaction represents an indexed shielded transaction.
// A record exists only if ShieldedInputs > 0 or ShieldedOutputs > 0;
// transparent-only transactions are never indexed.
type ShieldedTransaction struct {
	ID              string       `json:"id" db:"id"`
	Txid            string       `json:"txid" db:"txid"`
	BlockHeight     int64        `json:"blockHeight" db:"block_height"`
	BlockHash       string       `json:"blockHash" db:"block_hash"`
	Timestamp       time.Time    `json:"timestamp" db:"timestamp"`
	ShieldedInputs  int          `json:"shieldedInputs" db:"shielded_inputs"`
	ShieldedOutputs int          `json:"shieldedOutputs" db:"shielded_outputs"`
	Proof           ProofPayload `json:"proof" db:"proof"`
	MemoData        []string     `json:"memoData,omitempty" db:"memo_data"`
	CreatedAt       time.Time    `json:"createdAt" db:"created_at"`
}

// IsShielded reports whether the transaction carries any shielded component.
func (t *ShieldedTransaction) IsShielded() bool {
	return t.ShieldedInputs > 0 || t.ShieldedOutputs > 0
}
