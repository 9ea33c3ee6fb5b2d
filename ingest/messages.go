package ingest

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NewHead is published by the NewHead subscriber for every header the
// provider announces, best-effort ordered but not guaranteed to precede
// the corresponding BlockStateUpdate (spec.md §4.B ordering note).
type NewHead struct {
	BlockHash common.Hash
	Number    uint64
}

// BlockMsg carries a fully fetched block, published by the BlockFetcher.
type BlockMsg struct {
	BlockHash common.Hash
	Block     *types.Block
}

// BlockStateUpdate carries a block's state diff, published by the
// BlockStateFetcher once its debug_traceBlock call resolves.
type BlockStateUpdate struct {
	BlockHash   common.Hash
	StateUpdate *GethStateUpdate
}

// PendingTx is a deduplicated mempool transaction, published by the
// MempoolSubscriber.
type PendingTx struct {
	Hash common.Hash
	Tx   *types.Transaction
}
