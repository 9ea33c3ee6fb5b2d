// Package estimate turns a merged swap candidate into a gas and fee
// estimate, dropping anything that reverts or nets non-positive profit
// after gas (spec.md §4.H).
package estimate

import (
	"context"
	"errors"
	"math/big"

	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/swapenc"
)

// ErrReverted is returned when the simulated call reverts.
var ErrReverted = errors.New("estimate: simulation reverted")

// ErrUnprofitable is returned when profit net of gas is non-positive.
var ErrUnprofitable = errors.New("estimate: non-positive profit net of gas")

// Simulator dry-runs a call against a mirrored state without touching
// the live chain. A concrete implementation wraps an actual EVM
// (out of scope here per spec.md's Non-goal on "no on-chain multicaller
// bytecode/ABI layout"); this module only defines the boundary and the
// policy built on top of it.
type Simulator interface {
	Simulate(ctx context.Context, call ingest.CallMsg, state *mirror.MarketState) (gasUsed uint64, reverted bool, err error)
}

// TipPolicy derives max fee and priority fee from the current base fee
// (spec.md §4.H: "base_fee × 2 + min_priority").
type TipPolicy struct {
	MinPriorityFee *big.Int
}

// DefaultTipPolicy uses a 2 gwei minimum priority fee.
func DefaultTipPolicy() TipPolicy {
	return TipPolicy{MinPriorityFee: big.NewInt(2_000_000_000)}
}

// Compute returns (maxFeePerGas, priorityFeePerGas) for the given base fee.
func (t TipPolicy) Compute(baseFee *big.Int) (maxFee, priorityFee *big.Int) {
	priority := t.MinPriorityFee
	if priority == nil {
		priority = big.NewInt(0)
	}
	maxFee = new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, priority)
	return maxFee, priority
}

// Result is the outcome of estimating one merged swap.
type Result struct {
	Swap          swapenc.MergedSwap
	GasUsed       uint64
	MaxFee        *big.Int
	PriorityFee   *big.Int
	NetProfit     *big.Int // ExpectedProfit - gas cost at MaxFee (GethEstimator: ExpectedProfit)
}

// EvmEstimator runs a local simulation against a forked clone of
// MarketState and derives fee parameters from a tip policy (spec.md
// §4.H).
type EvmEstimator struct {
	sim    Simulator
	tip    TipPolicy
	target func(swapenc.MergedSwap) ingest.CallMsg
	logger *log.Logger
}

// NewEvmEstimator builds an estimator. target converts a merged swap's
// plan into the call the simulator should run (typically a call to the
// multicaller contract with the swap's encoded calldata).
func NewEvmEstimator(sim Simulator, tip TipPolicy, target func(swapenc.MergedSwap) ingest.CallMsg) *EvmEstimator {
	return &EvmEstimator{sim: sim, tip: tip, target: target, logger: log.Default().Module("estimate.evm")}
}

// Estimate runs the simulation and tip computation for swap against a
// forked state that already reflects any stuffing txs ahead of it.
func (e *EvmEstimator) Estimate(ctx context.Context, state *mirror.MarketState, swap swapenc.MergedSwap, baseFee *big.Int) (*Result, error) {
	forked := state.Clone()
	call := e.target(swap)

	gasUsed, reverted, err := e.sim.Simulate(ctx, call, forked)
	if err != nil {
		return nil, err
	}
	if reverted {
		return nil, ErrReverted
	}

	maxFee, priorityFee := e.tip.Compute(baseFee)
	gasCost := new(big.Int).Mul(maxFee, new(big.Int).SetUint64(gasUsed))
	netProfit := new(big.Int).Sub(swap.ExpectedProfit, gasCost)

	if netProfit.Sign() <= 0 {
		e.logger.Debug("dropping unprofitable candidate", "path_len", len(swap.Path), "net_profit", netProfit)
		return nil, ErrUnprofitable
	}

	return &Result{Swap: swap, GasUsed: gasUsed, MaxFee: maxFee, PriorityFee: priorityFee, NetProfit: netProfit}, nil
}

// GethEstimator forwards the same estimation job to a remote node's
// eth_call for a cross-check against EvmEstimator's
// local simulation (spec.md §4.H: "forwards the same job to a remote
// node for cross-check").
type GethEstimator struct {
	provider ingest.Provider
	tip      TipPolicy
	target   func(swapenc.MergedSwap) ingest.CallMsg
	logger   *log.Logger
}

// NewGethEstimator builds a remote cross-check estimator.
func NewGethEstimator(provider ingest.Provider, tip TipPolicy, target func(swapenc.MergedSwap) ingest.CallMsg) *GethEstimator {
	return &GethEstimator{provider: provider, tip: tip, target: target, logger: log.Default().Module("estimate.geth")}
}

// Estimate calls CallContract against the live node's current head to
// sanity-check that the encoded calldata does not revert out of band of
// the local mirror. Any call error is reported as ErrReverted. It does not
// estimate gas: the Result's GasUsed is zero and NetProfit is the swap's
// ExpectedProfit unchanged.
func (e *GethEstimator) Estimate(ctx context.Context, swap swapenc.MergedSwap, baseFee *big.Int) (*Result, error) {
	call := e.target(swap)
	out, err := e.provider.CallContract(ctx, call, nil)
	if err != nil {
		return nil, ErrReverted
	}
	_ = out

	maxFee, priorityFee := e.tip.Compute(baseFee)
	return &Result{Swap: swap, MaxFee: maxFee, PriorityFee: priorityFee, NetProfit: swap.ExpectedProfit}, nil
}
