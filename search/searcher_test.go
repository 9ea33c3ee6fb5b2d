package search

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/market"
	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/pooldef"
)

// cpPool is a zero-fee constant-product pool (x*y=k) used to exercise
// the searcher end to end, matching S2's "UniswapV2 pool... no fee"
// setup.
type cpPool struct {
	addr             common.Address
	tokenA, tokenB   common.Address
	reserveA, reserveB *uint256.Int
}

func (p *cpPool) Address() common.Address        { return p.addr }
func (p *cpPool) Class() pooldef.PoolClass       { return pooldef.ClassUniswapV2 }
func (p *cpPool) Protocol() pooldef.PoolProtocol { return pooldef.ProtocolUniswapV2 }
func (p *cpPool) Fee() *uint256.Int              { return uint256.NewInt(0) }
func (p *cpPool) Tokens() []common.Address       { return []common.Address{p.tokenA, p.tokenB} }
func (p *cpPool) SwapDirections() []pooldef.TokenPair {
	return []pooldef.TokenPair{{From: p.tokenA, To: p.tokenB}, {From: p.tokenB, To: p.tokenA}}
}

func (p *cpPool) CalculateOutAmount(_ *mirror.MarketState, from, to common.Address, in *uint256.Int) (*uint256.Int, uint64, error) {
	var reserveIn, reserveOut *uint256.Int
	switch {
	case from == p.tokenA && to == p.tokenB:
		reserveIn, reserveOut = p.reserveA, p.reserveB
	case from == p.tokenB && to == p.tokenA:
		reserveIn, reserveOut = p.reserveB, p.reserveA
	default:
		return nil, 0, pooldef.ErrNotImplemented
	}
	// out = in*reserveOut / (reserveIn+in), no fee.
	num := new(big.Int).Mul(in.ToBig(), reserveOut.ToBig())
	den := new(big.Int).Add(reserveIn.ToBig(), in.ToBig())
	if den.Sign() == 0 {
		return uint256.NewInt(0), 100000, nil
	}
	out := new(big.Int).Div(num, den)
	outU, overflow := uint256.FromBig(out)
	if overflow {
		return nil, 0, pooldef.ErrNotImplemented
	}
	return outU, 100000, nil
}

func (p *cpPool) CalculateInAmount(*mirror.MarketState, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	return nil, 0, pooldef.ErrNotImplemented
}
func (p *cpPool) CanFlashSwap() bool                  { return false }
func (p *cpPool) CanCalculateInAmount() bool          { return false }
func (p *cpPool) Encoder() pooldef.AbiSwapEncoder     { return pooldef.DefaultAbiSwapEncoder{} }
func (p *cpPool) ReadOnlyCells() []common.Hash        { return nil }
func (p *cpPool) RequiredState() (*pooldef.RequiredState, error) {
	return pooldef.NewRequiredState(), nil
}

func TestSearcherFindsProfitableImbalancedPair(t *testing.T) {
	weth := common.HexToAddress("0xEE")
	tokenX := common.HexToAddress("0xCC")
	addr1 := common.HexToAddress("0x01")
	addr2 := common.HexToAddress("0x02")

	m := market.NewMarket()
	// pool1 is underpriced for X relative to pool2: selling WETH into
	// pool1 and X back through pool2 is profitable.
	pool1 := &cpPool{addr: addr1, tokenA: weth, tokenB: tokenX, reserveA: uint256.MustFromDecimal("1000000000000000000000"), reserveB: uint256.MustFromDecimal("2000000000000000000000")}
	pool2 := &cpPool{addr: addr2, tokenA: tokenX, tokenB: weth, reserveA: uint256.MustFromDecimal("2000000000000000000000"), reserveB: uint256.MustFromDecimal("1500000000000000000000")}
	m.AddPool(pooldef.NewWrapper(pool1))
	m.AddPool(pooldef.NewWrapper(pool2))

	state := mirror.NewMarketState(0)
	s := NewSearcher(m, weth, nil, nil, big.NewInt(0), WithWorkers(2), WithAmountRange(uint256.NewInt(1e15), uint256.MustFromDecimal("100000000000000000000")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	candidates := s.BackrunBlock(ctx, state, []common.Address{addr1})

	if len(candidates) == 0 {
		t.Fatal("expected at least one profitable candidate")
	}
	if candidates[0].ExpectedProfit.Sign() <= 0 {
		t.Fatalf("expected positive profit, got %v", candidates[0].ExpectedProfit)
	}
	if !candidates[0].Path.Includes(addr1) {
		t.Fatal("expected winning candidate to include the trigger pool")
	}
}

func TestSearcherThresholdFiltersUnprofitable(t *testing.T) {
	weth := common.HexToAddress("0xEE")
	tokenX := common.HexToAddress("0xCC")
	addr1 := common.HexToAddress("0x01")
	addr2 := common.HexToAddress("0x02")

	m := market.NewMarket()
	// Both pools priced identically: any round trip is a pure loss.
	pool1 := &cpPool{addr: addr1, tokenA: weth, tokenB: tokenX, reserveA: uint256.MustFromDecimal("1000000000000000000000"), reserveB: uint256.MustFromDecimal("1000000000000000000000")}
	pool2 := &cpPool{addr: addr2, tokenA: tokenX, tokenB: weth, reserveA: uint256.MustFromDecimal("1000000000000000000000"), reserveB: uint256.MustFromDecimal("1000000000000000000000")}
	m.AddPool(pooldef.NewWrapper(pool1))
	m.AddPool(pooldef.NewWrapper(pool2))

	state := mirror.NewMarketState(0)
	s := NewSearcher(m, weth, nil, nil, big.NewInt(0), WithWorkers(1), WithAmountRange(uint256.NewInt(1e15), uint256.MustFromDecimal("100000000000000000000")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	candidates := s.BackrunBlock(ctx, state, []common.Address{addr1})

	if len(candidates) != 0 {
		t.Fatalf("expected no candidates to clear a zero-profit pool pair, got %d", len(candidates))
	}
}
