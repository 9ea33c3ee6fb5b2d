// Package search implements the backrun path search: enumerate short
// cyclic swap paths through a changed pool and find the input amount
// that maximizes profit along each one (spec.md §4.F).
package search

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/backrunner/market"
	"github.com/eth2030/backrunner/pooldef"
)

// Step is one hop of a candidate path.
type Step struct {
	Pool pooldef.Wrapper
	From common.Address
	To   common.Address
}

// Path is an ordered sequence of swaps starting and ending at the same
// token (the gas token, typically WETH).
type Path []Step

// Addresses returns the pool address sequence, used for tie-break
// ordering.
func (p Path) Addresses() []common.Address {
	out := make([]common.Address, len(p))
	for i, s := range p {
		out[i] = s.Pool.Address()
	}
	return out
}

// Includes reports whether the path uses the given pool.
func (p Path) Includes(addr common.Address) bool {
	for _, s := range p {
		if s.Pool.Address() == addr {
			return true
		}
	}
	return false
}

// maxPathLen is the longest cycle the searcher enumerates (spec.md §4.F:
// "cyclic paths of length 2 or 3").
const maxPathLen = 3

// IsDisabled reports whether a pool has been quarantined and must be
// skipped by path enumeration (spec.md §4.F step 2: "prune by per-pool
// disabled flag"). Implemented by priceman.PoolHealthMonitor.
type IsDisabled func(common.Address) bool

// EnumeratePaths runs BFS on the token graph rooted at gasToken,
// returning every cycle of length 2 or 3 back to gasToken that includes
// trigger, with no pool repeated within a path. Grounded on spec.md
// §4.F steps 1-2; the graph itself is market.Market's byToken index.
func EnumeratePaths(m *market.Market, gasToken, trigger common.Address, disabled IsDisabled) []Path {
	if disabled == nil {
		disabled = func(common.Address) bool { return false }
	}

	var found []Path
	var walk func(current common.Address, path Path, used map[common.Address]bool)
	walk = func(current common.Address, path Path, used map[common.Address]bool) {
		if len(path) >= maxPathLen {
			return
		}
		for _, edge := range m.EdgesFrom(current) {
			addr := edge.Pool.Address()
			if used[addr] || disabled(addr) {
				continue
			}

			next := append(append(Path(nil), path...), Step{Pool: edge.Pool, From: edge.From, To: edge.To})
			nextUsed := make(map[common.Address]bool, len(used)+1)
			for k := range used {
				nextUsed[k] = true
			}
			nextUsed[addr] = true

			if edge.To == gasToken && len(next) >= 2 && next.Includes(trigger) {
				found = append(found, next)
			}
			if edge.To != gasToken || len(next) < 2 {
				walk(edge.To, next, nextUsed)
			}
		}
	}

	walk(gasToken, nil, map[common.Address]bool{})
	return found
}
