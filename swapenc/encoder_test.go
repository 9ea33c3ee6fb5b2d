package swapenc

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/pooldef"
	"github.com/eth2030/backrunner/search"
)

type fakeEncoder struct{}

func (fakeEncoder) EncodeSwapInAmountProvided(from, to common.Address, amount *uint256.Int, recipient common.Address, payload []byte) ([]byte, error) {
	buf := make([]byte, 32)
	amount.WriteToSlice(buf)
	return append([]byte{0xAA, 0xBB, 0xCC, 0xDD}, buf...), nil
}
func (fakeEncoder) EncodeSwapOutAmountProvided(common.Address, common.Address, *uint256.Int, common.Address, []byte) ([]byte, error) {
	return nil, pooldef.ErrNotImplemented
}
func (fakeEncoder) PreswapRequirement() pooldef.PreswapRequirement { return pooldef.PreswapTransfer }
func (fakeEncoder) IsNative() bool                                 { return false }
func (fakeEncoder) SwapInAmountOffset(common.Address, common.Address) (uint32, bool)  { return 4, true }
func (fakeEncoder) SwapOutAmountOffset(common.Address, common.Address) (uint32, bool) { return 0, false }
func (fakeEncoder) SwapOutAmountReturnOffset(common.Address, common.Address) (uint32, bool) {
	return 0, true
}
func (fakeEncoder) SwapInAmountReturnOffset(common.Address, common.Address) (uint32, bool) {
	return 0, false
}

type fakeSwapPool struct {
	addr   common.Address
	from   common.Address
	to     common.Address
}

func (p *fakeSwapPool) Address() common.Address        { return p.addr }
func (p *fakeSwapPool) Class() pooldef.PoolClass       { return pooldef.ClassUniswapV2 }
func (p *fakeSwapPool) Protocol() pooldef.PoolProtocol { return pooldef.ProtocolUniswapV2 }
func (p *fakeSwapPool) Fee() *uint256.Int              { return uint256.NewInt(0) }
func (p *fakeSwapPool) Tokens() []common.Address       { return []common.Address{p.from, p.to} }
func (p *fakeSwapPool) SwapDirections() []pooldef.TokenPair {
	return []pooldef.TokenPair{{From: p.from, To: p.to}}
}
func (p *fakeSwapPool) CalculateOutAmount(*mirror.MarketState, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	return nil, 0, pooldef.ErrNotImplemented
}
func (p *fakeSwapPool) CalculateInAmount(*mirror.MarketState, common.Address, common.Address, *uint256.Int) (*uint256.Int, uint64, error) {
	return nil, 0, pooldef.ErrNotImplemented
}
func (p *fakeSwapPool) CanFlashSwap() bool                  { return false }
func (p *fakeSwapPool) CanCalculateInAmount() bool          { return false }
func (p *fakeSwapPool) Encoder() pooldef.AbiSwapEncoder     { return fakeEncoder{} }
func (p *fakeSwapPool) ReadOnlyCells() []common.Hash        { return nil }
func (p *fakeSwapPool) RequiredState() (*pooldef.RequiredState, error) {
	return pooldef.NewRequiredState(), nil
}

func TestEncodePathProducesOneCallPerLeg(t *testing.T) {
	weth := common.HexToAddress("0xWETH")
	tokenX := common.HexToAddress("0xX")
	addr1 := common.HexToAddress("0xPOOL1")
	addr2 := common.HexToAddress("0xPOOL2")

	path := search.Path{
		{Pool: pooldef.NewWrapper(&fakeSwapPool{addr: addr1, from: weth, to: tokenX}), From: weth, To: tokenX},
		{Pool: pooldef.NewWrapper(&fakeSwapPool{addr: addr2, from: tokenX, to: weth}), From: tokenX, To: weth},
	}

	enc := NewSwapStepEncoder(common.HexToAddress("0xMULTICALLER"))
	plan, err := enc.Encode(path, uint256.NewInt(1000))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(plan.Calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(plan.Calls))
	}
	if plan.Calls[0].Target != addr1 || plan.Calls[1].Target != addr2 {
		t.Fatal("expected calls in path order")
	}
	if len(plan.Calldata) == 0 {
		t.Fatal("expected non-empty packed multicall calldata")
	}
}

func TestEncodeEmptyPathFails(t *testing.T) {
	enc := NewSwapStepEncoder(common.Address{})
	if _, err := enc.Encode(nil, uint256.NewInt(1)); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestDecodeRecoversLeadingAmountAndChaining(t *testing.T) {
	weth := common.HexToAddress("0xWETH")
	tokenX := common.HexToAddress("0xX")
	addr1 := common.HexToAddress("0xPOOL1")
	addr2 := common.HexToAddress("0xPOOL2")

	path := search.Path{
		{Pool: pooldef.NewWrapper(&fakeSwapPool{addr: addr1, from: weth, to: tokenX}), From: weth, To: tokenX},
		{Pool: pooldef.NewWrapper(&fakeSwapPool{addr: addr2, from: tokenX, to: weth}), From: tokenX, To: weth},
	}

	enc := NewSwapStepEncoder(common.HexToAddress("0xMULTICALLER"))
	amount := uint256.NewInt(12345)
	plan, err := enc.Encode(path, amount)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := Decode(plan)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded.AmountsIn) != 2 || decoded.AmountsIn[0].Cmp(amount) != 0 {
		t.Fatalf("AmountsIn[0] = %v, want %v", decoded.AmountsIn[0], amount)
	}
	if len(decoded.Offsets) != 2 {
		t.Fatalf("expected 2 offset entries, got %d", len(decoded.Offsets))
	}
	if decoded.Offsets[0].ChainedFromPrior {
		t.Fatal("the first leg must not be reported as chained")
	}
	if !decoded.Offsets[1].ChainedFromPrior {
		t.Fatal("the second leg should reference the first leg's return offset")
	}
}

func TestDecodeEmptyPlanFails(t *testing.T) {
	if _, err := Decode(&Plan{}); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}
