package market

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/pooldef"
)

type stubPool struct {
	addr common.Address
}

func (p *stubPool) Address() common.Address     { return p.addr }
func (p *stubPool) Class() pooldef.PoolClass    { return pooldef.ClassUniswapV2 }
func (p *stubPool) Protocol() pooldef.PoolProtocol { return pooldef.ProtocolUniswapV2 }
func (p *stubPool) Fee() *uint256.Int           { return uint256.NewInt(30) }
func (p *stubPool) Tokens() []common.Address    { return nil }
func (p *stubPool) SwapDirections() []pooldef.TokenPair {
	return []pooldef.TokenPair{{From: common.HexToAddress("0xa"), To: common.HexToAddress("0xb")}}
}
func (p *stubPool) CalculateOutAmount(*mirror.MarketState, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	return nil, 0, pooldef.ErrNotImplemented
}
func (p *stubPool) CalculateInAmount(*mirror.MarketState, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	return nil, 0, pooldef.ErrNotImplemented
}
func (p *stubPool) CanFlashSwap() bool         { return false }
func (p *stubPool) CanCalculateInAmount() bool { return false }
func (p *stubPool) Encoder() pooldef.AbiSwapEncoder { return pooldef.DefaultAbiSwapEncoder{} }
func (p *stubPool) ReadOnlyCells() []common.Hash    { return nil }
func (p *stubPool) RequiredState() (*pooldef.RequiredState, error) {
	return pooldef.NewRequiredState(), nil
}

type stubFactory struct{}

func (stubFactory) Build(ctx context.Context, hit PoolHit) (pooldef.Pool, error) {
	return &stubPool{addr: hit.Address}, nil
}

type stubFetcher struct{ calls int }

func (f *stubFetcher) Fetch(ctx context.Context, required *pooldef.RequiredState) (*ingest.GethStateUpdate, error) {
	f.calls++
	return &ingest.GethStateUpdate{}, nil
}

func TestHandlerFetchAndAddPoolRegistersPoolAndEdges(t *testing.T) {
	m := NewMarket()
	state := mirror.NewMarketState(0)
	fetcher := &stubFetcher{}
	h := NewHandler(stubFactory{}, fetcher, m, state)

	addr := common.HexToAddress("0x1")
	h.Run(context.Background(), FetchAndAddPoolsTask{Hits: []PoolHit{{Address: addr, Class: pooldef.ClassUniswapV2}}})

	if m.Len() != 1 {
		t.Fatalf("expected 1 pool registered, got %d", m.Len())
	}
	edges := m.EdgesFrom(common.HexToAddress("0xa"))
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge from token 0xa, got %d", len(edges))
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 fetch call, got %d", fetcher.calls)
	}
}

func TestHandlerSkipsAlreadyRegisteredPool(t *testing.T) {
	m := NewMarket()
	state := mirror.NewMarketState(0)
	fetcher := &stubFetcher{}
	h := NewHandler(stubFactory{}, fetcher, m, state)

	addr := common.HexToAddress("0x1")
	task := FetchAndAddPoolsTask{Hits: []PoolHit{{Address: addr}}}
	h.Run(context.Background(), task)
	h.Run(context.Background(), task)

	if m.Len() != 1 {
		t.Fatalf("expected pool registered only once, got %d", m.Len())
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected fetch skipped on second pass, got %d calls", fetcher.calls)
	}
}

type failingFactory struct{}

func (failingFactory) Build(ctx context.Context, hit PoolHit) (pooldef.Pool, error) {
	return nil, pooldef.ErrNotImplemented
}

func TestHandlerContinuesPastOneFailingPool(t *testing.T) {
	m := NewMarket()
	state := mirror.NewMarketState(0)
	h := NewHandler(failingFactory{}, &stubFetcher{}, m, state)

	h.Run(context.Background(), FetchAndAddPoolsTask{Hits: []PoolHit{
		{Address: common.HexToAddress("0x1")},
		{Address: common.HexToAddress("0x2")},
	}})

	if m.Len() != 0 {
		t.Fatalf("expected no pools registered when factory always fails, got %d", m.Len())
	}
}
