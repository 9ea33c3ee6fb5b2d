// Package composer turns a decoded topology configuration into a wired
// actor.Runtime: it dials the configured clients, builds the per-package
// actors spec.md §4.A–§4.L describe, and joins them with the dependency
// graph the runtime needs to start them in the right order. This is the
// Go-native counterpart of the teacher's node.New/node.Start composition
// step, generalized from one fixed set of subsystems to whatever a
// topology file names.
package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/eth2030/backrunner/ingest"
)

// ethProvider adapts go-ethereum's ethclient.Client/gethclient.Client pair
// to ingest.Provider/ingest.DebugProviderExt, the shapes ingest.Provider's
// own doc comment says it is modeled on.
type ethProvider struct {
	eth  *ethclient.Client
	geth *gethclient.Client
	rpc  *rpc.Client
}

// dialProvider connects to url. go-ethereum's rpc.DialContext already
// dispatches on URL scheme (ws://, http(s)://, or a filesystem path for
// IPC), so the configured ClientConfig.Transport is descriptive only.
func dialProvider(ctx context.Context, url string) (*ethProvider, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("composer: dial %s: %w", url, err)
	}
	return &ethProvider{
		eth:  ethclient.NewClient(rc),
		geth: gethclient.New(rc),
		rpc:  rc,
	}, nil
}

func (p *ethProvider) BlockNumber(ctx context.Context) (uint64, error) {
	return p.eth.BlockNumber(ctx)
}

func (p *ethProvider) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	return p.eth.BlockByHash(ctx, hash)
}

func (p *ethProvider) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	return p.eth.HeaderByHash(ctx, hash)
}

func (p *ethProvider) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return p.eth.TransactionByHash(ctx, hash)
}

func (p *ethProvider) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return p.eth.BalanceAt(ctx, account, blockNumber)
}

func (p *ethProvider) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return p.eth.NonceAt(ctx, account, blockNumber)
}

func (p *ethProvider) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	return p.eth.StorageAt(ctx, account, key, blockNumber)
}

func (p *ethProvider) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return p.eth.CodeAt(ctx, account, blockNumber)
}

func (p *ethProvider) CallContract(ctx context.Context, msg ingest.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return p.eth.CallContract(ctx, toEthereumCallMsg(msg), blockNumber)
}

func (p *ethProvider) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ingest.Subscription, error) {
	return p.eth.SubscribeNewHead(ctx, ch)
}

func (p *ethProvider) SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ingest.Subscription, error) {
	return p.geth.SubscribePendingTransactions(ctx, ch)
}

// prestateDiffAccount is one account entry of a prestateTracer's
// diffMode=true pre/post output.
type prestateDiffAccount struct {
	Balance *hexutil.Big              `json:"balance"`
	Nonce   *hexutil.Uint64           `json:"nonce"`
	Code    *hexutil.Bytes            `json:"code"`
	Storage map[common.Hash]common.Hash `json:"storage"`
}

type prestateDiffResult struct {
	Pre  map[common.Address]prestateDiffAccount `json:"pre"`
	Post map[common.Address]prestateDiffAccount `json:"post"`
}

type txTraceResult struct {
	Result prestateDiffResult `json:"result"`
}

// TraceBlockPrePostState runs a prestateTracer in diffMode over a block
// and reshapes the post-state half of the result into ingest's
// GethStateUpdate, implementing ingest.DebugProviderExt. Grounded on the
// standard debug_traceBlockByHash/prestateTracer diffMode wire shape;
// only the "post" side is needed since the mirror only ever wants an
// account's new values (spec.md §4.B/§4.C).
func (p *ethProvider) TraceBlockPrePostState(ctx context.Context, blockHash common.Hash) (*ingest.GethStateUpdate, error) {
	cfg := map[string]any{
		"tracer": "prestateTracer",
		"tracerConfig": map[string]any{
			"diffMode": true,
		},
	}
	var raw json.RawMessage
	if err := p.rpc.CallContext(ctx, &raw, "debug_traceBlockByHash", blockHash, cfg); err != nil {
		return nil, fmt.Errorf("composer: debug_traceBlockByHash: %w", err)
	}

	var results []txTraceResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("composer: decode trace result: %w", err)
	}

	update := &ingest.GethStateUpdate{}
	for _, r := range results {
		for addr, post := range r.Result.Post {
			diff := ingest.AccountDiff{Address: addr, Storage: post.Storage}
			if post.Balance != nil {
				diff.Balance = (*big.Int)(post.Balance)
			}
			if post.Nonce != nil {
				n := uint64(*post.Nonce)
				diff.Nonce = &n
			}
			if post.Code != nil {
				diff.Code = *post.Code
			}
			update.Accounts = append(update.Accounts, diff)
		}
	}
	return update, nil
}

func toEthereumCallMsg(msg ingest.CallMsg) ethereum.CallMsg {
	return ethereum.CallMsg{From: msg.From, To: msg.To, Data: msg.Data}
}
