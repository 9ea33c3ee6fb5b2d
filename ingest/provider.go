// Package ingest turns a live Ethereum node connection into the four
// broadcast streams the rest of the pipeline consumes: new block hashes,
// full blocks, block state diffs, and deduplicated pending transactions.
package ingest

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider is the subset of an Ethereum client's JSON-RPC surface the
// ingest pipeline needs, modeled on the shapes of go-ethereum's
// ethclient.Client and rpc.Client. Kept as an interface so tests can supply
// an in-memory fake instead of a live node connection.
type Provider interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg CallMsg, blockNumber *big.Int) ([]byte, error)

	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (Subscription, error)
	SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (Subscription, error)
}

// CallMsg mirrors ethereum.CallMsg's fields the core actually needs,
// avoiding a hard dependency on the go-ethereum `ethereum` package's
// unrelated filter-query types.
type CallMsg struct {
	From common.Address
	To   *common.Address
	Data []byte
}

// Subscription mirrors go-ethereum's event.Subscription: Err reports async
// failures, Unsubscribe cancels delivery.
type Subscription interface {
	Err() <-chan error
	Unsubscribe()
}

// DebugProviderExt is the debug-namespace extension used to source
// GethStateUpdate diffs; not every provider implements it (e.g. light
// clients), so it is kept separate from the base Provider capability.
type DebugProviderExt interface {
	TraceBlockPrePostState(ctx context.Context, blockHash common.Hash) (*GethStateUpdate, error)
}

// GethStateUpdate is the ordered account-diff format produced by a
// prestateTracer in diffMode=true, and consumed by the market-state
// mirror (mirror.MarketState.Apply).
type GethStateUpdate struct {
	Accounts []AccountDiff
}

// AccountDiff carries the post-state fields for a single account touched
// by a block, in the order the tracer emitted them.
type AccountDiff struct {
	Address common.Address
	Balance *big.Int // nil if unchanged
	Nonce   *uint64  // nil if unchanged
	Code    []byte   // nil/len<2 means "unchanged" per the mirror's sentinel rule
	Storage map[common.Hash]common.Hash
}
