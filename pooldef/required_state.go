// Package pooldef declares the capability every liquidity pool implements
// (spec.md §3/§4.D): address identity, swap math against the mirrored EVM
// state, an ABI encoding strategy, and the pre-fetch requirements a loader
// must satisfy before the pool can be simulated against.
package pooldef

import (
	"github.com/ethereum/go-ethereum/common"
)

// CallRequest describes a single eth_call that must be resolved and its
// result mirrored before a pool can be simulated (e.g. a Curve pool's
// virtual price, or a Uniswap V3 pool's slot0).
type CallRequest struct {
	To   common.Address
	Data []byte
}

// RequiredState describes which eth_call results and storage slots a pool
// needs pre-fetched into the mirror before it can compute swap amounts
// (spec.md DATA MODEL). Composable by Union so a loader can batch the
// prefetch for many pools discovered in one task into one round trip.
type RequiredState struct {
	Calls    []CallRequest
	Slots    map[common.Address][]common.Hash
	Balances []common.Address
}

// NewRequiredState returns an empty RequiredState.
func NewRequiredState() *RequiredState {
	return &RequiredState{Slots: make(map[common.Address][]common.Hash)}
}

// Union merges other into a new RequiredState, deduplicating slots per
// address. Neither receiver nor argument is mutated.
func (r *RequiredState) Union(other *RequiredState) *RequiredState {
	out := NewRequiredState()
	if r == nil && other == nil {
		return out
	}

	out.Calls = append(out.Calls, safeCalls(r)...)
	out.Calls = append(out.Calls, safeCalls(other)...)
	out.Balances = append(out.Balances, safeBalances(r)...)
	out.Balances = append(out.Balances, safeBalances(other)...)

	for _, src := range []*RequiredState{r, other} {
		if src == nil {
			continue
		}
		for addr, slots := range src.Slots {
			seen := make(map[common.Hash]bool, len(out.Slots[addr]))
			for _, s := range out.Slots[addr] {
				seen[s] = true
			}
			for _, s := range slots {
				if !seen[s] {
					out.Slots[addr] = append(out.Slots[addr], s)
					seen[s] = true
				}
			}
		}
	}
	return out
}

func safeCalls(r *RequiredState) []CallRequest {
	if r == nil {
		return nil
	}
	return r.Calls
}

func safeBalances(r *RequiredState) []common.Address {
	if r == nil {
		return nil
	}
	return r.Balances
}
