package txsign

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Bundle errors, adapted from wyf-ACCEPT-eth2030/pkg/core/mev.go's
// FlashbotsBundle validation (SPEC_FULL §12: "wired into... txsign's
// FlashbotsBundle validation").
var (
	ErrEmptyBundle    = errors.New("txsign: bundle has no transactions")
	ErrBundleTooLarge = errors.New("txsign: bundle exceeds maximum transaction count")
)

// MaxBundleSize bounds a single Flashbots bundle, matching
// core/mev.go's MaxBundleSize.
const MaxBundleSize = 32

// FlashbotsBundle is a set of transactions submitted for atomic
// inclusion in a single target block (spec.md §4.I).
type FlashbotsBundle struct {
	Transactions      []*types.Transaction
	BlockNumber       uint64
	MinTimestamp      uint64
	MaxTimestamp      uint64
	RevertingTxHashes []common.Hash
}

// Validate checks bundle well-formedness before broadcast, the same
// checks core/mev.go's FlashbotsBundle.Validate performs.
func (b *FlashbotsBundle) Validate() error {
	if len(b.Transactions) == 0 {
		return ErrEmptyBundle
	}
	if len(b.Transactions) > MaxBundleSize {
		return ErrBundleTooLarge
	}
	return nil
}

// IsValidAtTime reports whether timestamp falls within the bundle's
// optional validity window.
func (b *FlashbotsBundle) IsValidAtTime(timestamp uint64) bool {
	if b.MinTimestamp != 0 && timestamp < b.MinTimestamp {
		return false
	}
	if b.MaxTimestamp != 0 && timestamp > b.MaxTimestamp {
		return false
	}
	return true
}

// TotalGas sums the gas limit of every transaction in the bundle.
func (b *FlashbotsBundle) TotalGas() uint64 {
	var total uint64
	for _, tx := range b.Transactions {
		total += tx.Gas()
	}
	return total
}

// IsRevertAllowed reports whether txHash may revert without failing the
// whole bundle.
func (b *FlashbotsBundle) IsRevertAllowed(txHash common.Hash) bool {
	for _, h := range b.RevertingTxHashes {
		if h == txHash {
			return true
		}
	}
	return false
}

// NewSingleTxBundle wraps one signed backrun transaction targeting
// blockNumber, the common case for this module (one opportunity, one
// tx, one target block).
func NewSingleTxBundle(tx *types.Transaction, blockNumber uint64) *FlashbotsBundle {
	return &FlashbotsBundle{Transactions: []*types.Transaction{tx}, BlockNumber: blockNumber}
}
