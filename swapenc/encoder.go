// Package swapenc turns a candidate path from search into calldata for
// the on-chain multicaller contract, and merges candidates arriving from
// different triggers into fewer, cheaper on-chain calls (spec.md §4.G).
package swapenc

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/pooldef"
	"github.com/eth2030/backrunner/search"
)

// ErrEmptyPath is returned when encoding is attempted on a path with no
// steps.
var ErrEmptyPath = errors.New("swapenc: empty path")

// Call is a single leg of the multicall plan: a target pool, its
// calldata, where in that calldata the multicaller patches in the prior
// leg's return amount (if any), and where in ITS OWN return data the
// resulting amount sits so the next leg can read it in turn.
type Call struct {
	Target   common.Address
	Calldata []byte

	InputOffset    uint32 // byte offset of the amount field this leg reads
	HasInputOffset bool

	ReturnOffset    uint32 // byte offset, in this leg's return data, of the amount it produced
	HasReturnOffset bool

	PreswapReq pooldef.PreswapRequirement
}

// Plan is the fully encoded multicall ready to be packed for broadcast.
type Plan struct {
	Calls    []Call
	Calldata []byte // the outer multicaller call, abi-packed
}

// multicallArgs describes the outer multicaller contract's entrypoint:
// execute(address[] targets, bytes[] calldatas, uint32[] amountOffsets,
// uint32[] returnOffsets). returnOffsets tells the multicaller, for call i,
// where in call i's own return data to find the amount that gets patched
// into call i+1's amountOffsets[i+1] slot. Grounded on parsdao-pars/warp's
// ExtendedABI pattern of driving go-ethereum's accounts/abi package
// directly from argument lists instead of a generated binding, since the
// multicaller contract here has no generated Go binding.
var multicallArgs = abi.Arguments{
	{Type: mustType("address[]")},
	{Type: mustType("bytes[]")},
	{Type: mustType("uint32[]")},
	{Type: mustType("uint32[]")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("swapenc: bad abi type %q: %v", t, err))
	}
	return typ
}

// SwapStepEncoder builds a multicall Plan from a search.Path, asking
// each pool's AbiSwapEncoder for its leg's calldata and amount offset
// and chaining step k's input to step k-1's output (spec.md §4.G).
type SwapStepEncoder struct {
	recipient common.Address
}

// NewSwapStepEncoder builds an encoder that routes every leg's output to
// recipient (the multicaller contract itself for a chained swap).
func NewSwapStepEncoder(recipient common.Address) *SwapStepEncoder {
	return &SwapStepEncoder{recipient: recipient}
}

// Encode builds the multicall plan for path starting with inAmount.
func (e *SwapStepEncoder) Encode(path search.Path, inAmount *uint256.Int) (*Plan, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}

	calls := make([]Call, 0, len(path))
	for i, step := range path {
		pool := step.Pool.Pool
		enc := pool.Encoder()
		req := enc.PreswapRequirement()

		// Only the first leg's amount is real; every later leg's field
		// is overwritten on-chain with the prior leg's return value via
		// InputOffset, so it is encoded with a zero placeholder.
		legAmount := uint256.NewInt(0)
		if i == 0 {
			legAmount = inAmount
		}

		data, err := enc.EncodeSwapInAmountProvided(step.From, step.To, legAmount, e.recipient, nil)
		if err != nil {
			return nil, fmt.Errorf("swapenc: encode leg %s: %w", step.Pool.Address(), err)
		}

		inOffset, hasIn := enc.SwapInAmountOffset(step.From, step.To)
		// This leg was built with EncodeSwapInAmountProvided, so the
		// amount it hands back lives at SwapOutAmountReturnOffset; the
		// next leg's InputOffset is patched from there.
		retOffset, hasRet := enc.SwapOutAmountReturnOffset(step.From, step.To)

		calls = append(calls, Call{
			Target:          step.Pool.Address(),
			Calldata:        data,
			InputOffset:     inOffset,
			HasInputOffset:  hasIn,
			ReturnOffset:    retOffset,
			HasReturnOffset: hasRet,
			PreswapReq:      req,
		})
	}

	calldata, err := packMulticall(calls)
	if err != nil {
		return nil, err
	}
	return &Plan{Calls: calls, Calldata: calldata}, nil
}

func packMulticall(calls []Call) ([]byte, error) {
	targets := make([]common.Address, len(calls))
	datas := make([][]byte, len(calls))
	inputOffsets := make([]uint32, len(calls))
	returnOffsets := make([]uint32, len(calls))
	for i, c := range calls {
		targets[i] = c.Target
		datas[i] = c.Calldata
		if c.HasInputOffset {
			inputOffsets[i] = c.InputOffset
		}
		if c.HasReturnOffset {
			returnOffsets[i] = c.ReturnOffset
		}
	}
	return multicallArgs.Pack(targets, datas, inputOffsets, returnOffsets)
}

// StepOffsets is the per-leg offset wiring Decode recovers from a Plan: where
// a leg reads its input amount from, where it exposes its output amount for
// the next leg, and whether it is actually chained from the prior leg.
type StepOffsets struct {
	InputOffset    uint32
	HasInputOffset bool

	ReturnOffset    uint32
	HasReturnOffset bool

	// ChainedFromPrior is true when this leg has an input offset and the
	// preceding leg exposes a return offset for it to read from. The first
	// leg is never chained: its amount comes from the caller, not a prior
	// call's return data.
	ChainedFromPrior bool
}

// DecodedPlan is what Decode recovers from an already-built Plan: the
// leading amount fed into the first leg, and the offset wiring for every
// leg.
type DecodedPlan struct {
	AmountsIn []*uint256.Int
	Offsets   []StepOffsets
}

// Decode reconstructs the leading amount and per-leg offset wiring from a
// Plan, the inverse of Encode for everything knowable without executing the
// multicall on chain: the amounts a chained leg actually receives depend on
// the prior leg's return data, which only exists once the multicall runs.
// decode(encode(P, A)).AmountsIn[0] == A, and every non-leading leg that was
// encoded as chained reports ChainedFromPrior == true.
func Decode(plan *Plan) (*DecodedPlan, error) {
	if plan == nil || len(plan.Calls) == 0 {
		return nil, ErrEmptyPath
	}

	first := plan.Calls[0]
	if !first.HasInputOffset {
		return nil, fmt.Errorf("swapenc: decode: first leg %s has no input offset", first.Target)
	}
	end := int(first.InputOffset) + 32
	if end > len(first.Calldata) {
		return nil, fmt.Errorf("swapenc: decode: first leg %s input offset %d out of range", first.Target, first.InputOffset)
	}
	leadingAmount := new(uint256.Int).SetBytes(first.Calldata[first.InputOffset:end])

	amounts := make([]*uint256.Int, len(plan.Calls))
	amounts[0] = leadingAmount

	offsets := make([]StepOffsets, len(plan.Calls))
	for i, c := range plan.Calls {
		offsets[i] = StepOffsets{
			InputOffset:     c.InputOffset,
			HasInputOffset:  c.HasInputOffset,
			ReturnOffset:    c.ReturnOffset,
			HasReturnOffset: c.HasReturnOffset,
		}
		if i > 0 {
			prev := plan.Calls[i-1]
			offsets[i].ChainedFromPrior = c.HasInputOffset && prev.HasReturnOffset
		}
	}

	return &DecodedPlan{AmountsIn: amounts, Offsets: offsets}, nil
}
