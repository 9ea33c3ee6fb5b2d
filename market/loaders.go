package market

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/pooldef"
)

// PoolHit is a (address, class) pair a loader discovered, awaiting
// materialization into a concrete Pool.
type PoolHit struct {
	Address common.Address
	Class   pooldef.PoolClass
}

// FetchAndAddPoolsTask is the unit of work spec.md §4.D calls
// FetchAndAddPools(Vec<(address,class)>): a batch of pool hits from one
// loader pass.
type FetchAndAddPoolsTask struct {
	Hits []PoolHit
}

// PoolFactory constructs the class-specific Pool object for a discovered
// address. Protocol-specific AMM math is out of scope for this module
// (spec.md Non-goals), so the factory is supplied by the caller — test
// code and any real deployment wires in concrete Uniswap/Curve/Lido
// implementations here.
type PoolFactory interface {
	Build(ctx context.Context, hit PoolHit) (pooldef.Pool, error)
}

// Handler runs the four-step FetchAndAddPools task spec.md §4.D names:
// construct, pre-fetch required state, apply to the mirror at insert=true,
// register in Market. A failure on one pool logs and continues; it never
// aborts the rest of the batch.
type Handler struct {
	factory PoolFactory
	fetcher StateFetcher
	market  *Market
	state   *mirror.MarketState
	logger  *log.Logger
}

// StateFetcher resolves a RequiredState into a GethStateUpdate by issuing
// the underlying eth_call/storage/balance reads at the current tip.
type StateFetcher interface {
	Fetch(ctx context.Context, required *pooldef.RequiredState) (*ingest.GethStateUpdate, error)
}

// NewHandler builds a FetchAndAddPools task handler.
func NewHandler(factory PoolFactory, fetcher StateFetcher, market *Market, state *mirror.MarketState) *Handler {
	return &Handler{factory: factory, fetcher: fetcher, market: market, state: state, logger: log.Default().Module("market.loader")}
}

// Run executes a batch of pool hits.
func (h *Handler) Run(ctx context.Context, task FetchAndAddPoolsTask) {
	for _, hit := range task.Hits {
		if _, exists := h.market.GetPool(hit.Address); exists {
			continue
		}
		if err := h.fetchAndAddPool(ctx, hit); err != nil {
			h.logger.Warn("fetch_and_add_pool failed", "address", hit.Address, "err", err)
		}
	}
}

func (h *Handler) fetchAndAddPool(ctx context.Context, hit PoolHit) error {
	pool, err := h.factory.Build(ctx, hit)
	if err != nil {
		return fmt.Errorf("construct pool: %w", err)
	}

	required, err := pool.RequiredState()
	if err != nil {
		return fmt.Errorf("get_state_required: %w", err)
	}

	update, err := h.fetcher.Fetch(ctx, required)
	if err != nil {
		return fmt.Errorf("fetch required state: %w", err)
	}

	h.state.Apply(update, true /* insert */, false)

	wrapper := pooldef.NewWrapper(pool)
	h.market.AddPool(wrapper)
	return nil
}

// HistoryLoader is an actor that scans a bounded window of recent blocks
// for pool-creation event signatures of each known protocol, emitting a
// FetchAndAddPoolsTask per scan (spec.md §4.D).
type HistoryLoader struct {
	scanner ScanFunc
	handler *Handler
	window  uint64
	logger  *log.Logger
}

// ScanFunc scans the last `window` blocks ending at current tip and
// returns every pool-creation hit found. Abstracted so tests can supply a
// canned scan instead of querying logs over a live RPC endpoint.
type ScanFunc func(ctx context.Context, window uint64) ([]PoolHit, error)

// NewHistoryLoader builds the actor. window defaults to 10000 per spec.md
// §4.D when 0 is passed.
func NewHistoryLoader(scanner ScanFunc, handler *Handler, window uint64) *HistoryLoader {
	if window == 0 {
		window = 10000
	}
	return &HistoryLoader{scanner: scanner, handler: handler, window: window, logger: log.Default().Module("market.history")}
}

func (l *HistoryLoader) Name() string { return "market.history_loader" }

func (l *HistoryLoader) Run(ctx context.Context) error {
	hits, err := l.scanner(ctx, l.window)
	if err != nil {
		return fmt.Errorf("market: history scan: %w", err)
	}
	l.handler.Run(ctx, FetchAndAddPoolsTask{Hits: hits})
	<-ctx.Done()
	return nil
}

// NewPoolLoader is an actor that watches live new-heads for creation logs
// and emits a FetchAndAddPoolsTask per block that contains one (spec.md
// §4.D).
type NewPoolLoader struct {
	in      actor.Consumer[ingest.NewHead]
	scanner func(ctx context.Context, blockHash common.Hash) ([]PoolHit, error)
	handler *Handler
}

func NewNewPoolLoader(in actor.Consumer[ingest.NewHead], scanner func(ctx context.Context, blockHash common.Hash) ([]PoolHit, error), handler *Handler) *NewPoolLoader {
	return &NewPoolLoader{in: in, scanner: scanner, handler: handler}
}

func (l *NewPoolLoader) Name() string { return "market.new_pool_loader" }

func (l *NewPoolLoader) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case head, ok := <-l.in.C():
			if !ok {
				return nil
			}
			hits, err := l.scanner(ctx, head.BlockHash)
			if err != nil {
				continue
			}
			if len(hits) > 0 {
				l.handler.Run(ctx, FetchAndAddPoolsTask{Hits: hits})
			}
		}
	}
}

// ProtocolLoader iterates hard-coded "singleton" pools (Lido stETH/
// wstETH, rETH) and known Curve registry factories (spec.md §4.D). The
// discovery list is supplied by the caller; protocol-specific factory
// enumeration is out of scope for this module.
type ProtocolLoader struct {
	singletons []PoolHit
	handler    *Handler
}

func NewProtocolLoader(singletons []PoolHit, handler *Handler) *ProtocolLoader {
	return &ProtocolLoader{singletons: singletons, handler: handler}
}

func (l *ProtocolLoader) Name() string { return "market.protocol_loader" }

func (l *ProtocolLoader) Run(ctx context.Context) error {
	l.handler.Run(ctx, FetchAndAddPoolsTask{Hits: l.singletons})
	<-ctx.Done()
	return nil
}
