// Package indexer ingests blocks from the chain node, extracts shielded
// transactions and maintains the indexing cursor at the chain tip.
package indexer

import (
	"strings"
	"time"

	"github.com/shielded-scanner/internal/chain"
	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

// ExtractShieldedTransaction builds an indexable record from a verbose raw
// transaction. Returns nil for transparent-only transactions: those are
// never indexed.
//
// The proof payload type is derived from which shielded components are
// present: spends only, outputs only, or both (binding). The block fields
// are taken from the enclosing block rather than the transaction so that
// mempool-flavored results without blockhash still index consistently.
func ExtractShieldedTransaction(raw *chain.RawTransaction, block *chain.Block) *models.ShieldedTransaction {
	if raw == nil || !raw.HasShieldedComponents() {
		return nil
	}

	inputs, outputs := shieldedCounts(raw)
	tx := &models.ShieldedTransaction{
		Txid:            raw.Txid,
		BlockHeight:     block.Height,
		BlockHash:       block.Hash,
		Timestamp:       time.Unix(block.Time, 0).UTC(),
		ShieldedInputs:  inputs,
		ShieldedOutputs: outputs,
		Proof:           buildProofPayload(raw),
		MemoData:        extractMemos(raw.ShieldedOutputs),
	}

	return tx
}

// shieldedCounts totals the spend and output sides across both component
// generations: joinsplit nullifiers spend, joinsplit commitments create.
func shieldedCounts(raw *chain.RawTransaction) (inputs, outputs int) {
	inputs = len(raw.ShieldedSpends)
	outputs = len(raw.ShieldedOutputs)
	for _, js := range raw.JoinSplits {
		inputs += len(js.Nullifiers)
		outputs += len(js.Commitments)
	}
	return inputs, outputs
}

// buildProofPayload classifies the transaction and collects its proof
// descriptions into the matching payload variant.
func buildProofPayload(raw *chain.RawTransaction) models.ProofPayload {
	payload := models.ProofPayload{Type: classify(raw)}

	if len(raw.ShieldedSpends) > 0 {
		payload.Spends = make([]models.SpendDescription, 0, len(raw.ShieldedSpends))
		for _, s := range raw.ShieldedSpends {
			payload.Spends = append(payload.Spends, models.SpendDescription{
				CV:           s.CV,
				Anchor:       s.Anchor,
				Nullifier:    s.Nullifier,
				RK:           s.RK,
				Proof:        s.Proof,
				SpendAuthSig: s.SpendAuthSig,
			})
		}
	}

	if len(raw.ShieldedOutputs) > 0 {
		payload.Outputs = make([]models.OutputDescription, 0, len(raw.ShieldedOutputs))
		for _, o := range raw.ShieldedOutputs {
			payload.Outputs = append(payload.Outputs, models.OutputDescription{
				CV:            o.CV,
				CMU:           o.CMU,
				EphemeralKey:  o.EphemeralKey,
				EncCiphertext: o.EncCiphertext,
				OutCiphertext: o.OutCiphertext,
				Proof:         o.Proof,
			})
		}
	}

	if len(raw.JoinSplits) > 0 {
		payload.JoinSplits = make([]models.JoinSplitDescription, 0, len(raw.JoinSplits))
		for _, js := range raw.JoinSplits {
			payload.JoinSplits = append(payload.JoinSplits, models.JoinSplitDescription{
				VPubOld:     js.VPubOld,
				VPubNew:     js.VPubNew,
				Anchor:      js.Anchor,
				Nullifiers:  js.Nullifiers,
				Commitments: js.Commitments,
				Proof:       js.Proof,
			})
		}
	}

	if payload.Type == types.TypeBinding {
		payload.BindingSig = raw.BindingSig
	}

	return payload
}

func classify(raw *chain.RawTransaction) types.TransactionType {
	inputs, outputs := shieldedCounts(raw)

	switch {
	case inputs > 0 && outputs > 0:
		return types.TypeBinding
	case inputs > 0:
		return types.TypeSpend
	case outputs > 0:
		return types.TypeOutput
	default:
		return types.TypeUnknown
	}
}

// extractMemos collects memo fields from outputs, dropping the empty-memo
// sentinel (all-zero hex) and blank values. Returns nil when nothing remains
// so the record omits the field entirely.
func extractMemos(outputs []chain.ShieldedOutput) []string {
	var memos []string
	for _, o := range outputs {
		if o.Memo == "" || isZeroHex(o.Memo) {
			continue
		}
		memos = append(memos, o.Memo)
	}
	return memos
}

func isZeroHex(s string) bool {
	return strings.Trim(s, "0") == ""
}
