package estimate

import (
	"context"
	"math/big"
	"testing"

	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/swapenc"
)

type fakeSimulator struct {
	gasUsed  uint64
	reverted bool
	err      error
}

func (f *fakeSimulator) Simulate(ctx context.Context, call ingest.CallMsg, state *mirror.MarketState) (uint64, bool, error) {
	return f.gasUsed, f.reverted, f.err
}

func TestTipPolicyComputesMaxFeeAndPriority(t *testing.T) {
	tip := TipPolicy{MinPriorityFee: big.NewInt(2_000_000_000)}
	baseFee := big.NewInt(10_000_000_000)

	maxFee, priority := tip.Compute(baseFee)
	wantMax := big.NewInt(22_000_000_000) // 10e9*2 + 2e9
	if maxFee.Cmp(wantMax) != 0 {
		t.Fatalf("expected max fee %v, got %v", wantMax, maxFee)
	}
	if priority.Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Fatalf("expected priority fee passthrough, got %v", priority)
	}
}

func TestEvmEstimatorDropsOnRevert(t *testing.T) {
	sim := &fakeSimulator{reverted: true}
	target := func(swapenc.MergedSwap) ingest.CallMsg { return ingest.CallMsg{} }
	est := NewEvmEstimator(sim, DefaultTipPolicy(), target)

	state := mirror.NewMarketState(0)
	swap := swapenc.MergedSwap{ExpectedProfit: big.NewInt(1_000_000)}

	_, err := est.Estimate(context.Background(), state, swap, big.NewInt(1_000_000_000))
	if err != ErrReverted {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
}

func TestEvmEstimatorDropsUnprofitable(t *testing.T) {
	sim := &fakeSimulator{gasUsed: 500_000}
	target := func(swapenc.MergedSwap) ingest.CallMsg { return ingest.CallMsg{} }
	est := NewEvmEstimator(sim, DefaultTipPolicy(), target)

	state := mirror.NewMarketState(0)
	// Profit far smaller than gas cost at this base fee.
	swap := swapenc.MergedSwap{ExpectedProfit: big.NewInt(1)}

	_, err := est.Estimate(context.Background(), state, swap, big.NewInt(1_000_000_000))
	if err != ErrUnprofitable {
		t.Fatalf("expected ErrUnprofitable, got %v", err)
	}
}

func TestEvmEstimatorAcceptsProfitable(t *testing.T) {
	sim := &fakeSimulator{gasUsed: 200_000}
	target := func(swapenc.MergedSwap) ingest.CallMsg { return ingest.CallMsg{} }
	est := NewEvmEstimator(sim, DefaultTipPolicy(), target)

	state := mirror.NewMarketState(0)
	swap := swapenc.MergedSwap{ExpectedProfit: big.NewInt(1_000_000_000_000_000)} // 0.001 ETH

	res, err := est.Estimate(context.Background(), state, swap, big.NewInt(1_000_000_000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NetProfit.Sign() <= 0 {
		t.Fatalf("expected positive net profit, got %v", res.NetProfit)
	}
}
