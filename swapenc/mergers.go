package swapenc

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/priceman"
	"github.com/eth2030/backrunner/search"
)

// MergedSwap is a candidate that survived merging, ready for the
// estimator (spec.md §4.H).
type MergedSwap struct {
	Path           search.Path
	InAmount       *uint256.Int
	ExpectedProfit *big.Int
	BlockNumber    uint64
	ForkOf         *priceman.TrackedTx // non-nil when forked by SamePathMerger
}

func pathKeyOf(p search.Path) string {
	var b []byte
	for _, s := range p {
		addr := s.Pool.Address()
		b = append(b, addr[:]...)
	}
	return string(b)
}

// window is a sliding, block-number-keyed set of merged swaps a merger
// keeps around to dedup/combine against, discarding anything older than
// keepBlocks (spec.md §4.G: "maintain a sliding window keyed by block
// number to discard stale candidates").
type window struct {
	mu         sync.Mutex
	keepBlocks uint64
	byBlock    map[uint64][]MergedSwap
}

func newWindow(keepBlocks uint64) *window {
	if keepBlocks == 0 {
		keepBlocks = 3
	}
	return &window{keepBlocks: keepBlocks, byBlock: make(map[uint64][]MergedSwap)}
}

func (w *window) add(block uint64, s MergedSwap) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.byBlock[block] = append(w.byBlock[block], s)
	for b := range w.byBlock {
		if block > w.keepBlocks && b < block-w.keepBlocks {
			delete(w.byBlock, b)
		}
	}
}

func (w *window) all() []MergedSwap {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []MergedSwap
	for _, swaps := range w.byBlock {
		out = append(out, swaps...)
	}
	return out
}

// SwapPathMerger dedups identical paths found via different triggers,
// keeping the highest-profit instance (spec.md §4.G).
type SwapPathMerger struct {
	win *window
}

// NewSwapPathMerger builds a deduplicating merger retaining candidates
// for keepBlocks blocks.
func NewSwapPathMerger(keepBlocks uint64) *SwapPathMerger {
	return &SwapPathMerger{win: newWindow(keepBlocks)}
}

// Merge folds in, keeping the best-profit instance of each distinct
// path and returns the current deduplicated set.
func (m *SwapPathMerger) Merge(block uint64, candidates []search.Candidate) []MergedSwap {
	best := make(map[string]MergedSwap)
	for _, c := range candidates {
		key := pathKeyOf(c.Path)
		ms := MergedSwap{Path: c.Path, InAmount: c.InAmount, ExpectedProfit: c.ExpectedProfit, BlockNumber: block}
		if existing, ok := best[key]; !ok || ms.ExpectedProfit.Cmp(existing.ExpectedProfit) > 0 {
			best[key] = ms
		}
	}
	for _, ms := range best {
		m.win.add(block, ms)
	}

	dedup := make(map[string]MergedSwap)
	for _, ms := range m.win.all() {
		key := pathKeyOf(ms.Path)
		if existing, ok := dedup[key]; !ok || ms.ExpectedProfit.Cmp(existing.ExpectedProfit) > 0 {
			dedup[key] = ms
		}
	}
	out := make([]MergedSwap, 0, len(dedup))
	for _, ms := range dedup {
		out = append(out, ms)
	}
	return out
}

// sharedPrefixLen returns how many leading pool addresses two paths
// share.
func sharedPrefixLen(a, b search.Path) int {
	n := 0
	for n < len(a) && n < len(b) && a[n].Pool.Address() == b[n].Pool.Address() && a[n].From == b[n].From {
		n++
	}
	return n
}

// Branch is a DiffPathMerger output: a shared prefix of swaps followed
// by two or more divergent suffixes the multicaller can execute as
// branches off the same intermediate balance (spec.md §4.G: "combine
// into a branch structure... savings: one less transfer + shared gas").
type Branch struct {
	Prefix   search.Path
	Suffixes []search.Path
}

// DiffPathMerger combines paths sharing a prefix into branch structures.
type DiffPathMerger struct{}

// NewDiffPathMerger builds a DiffPathMerger.
func NewDiffPathMerger() *DiffPathMerger { return &DiffPathMerger{} }

// Merge groups paths that share at least a one-hop prefix into
// branches; paths with no shared prefix pass through as single-suffix
// branches with an empty Prefix.
func (m *DiffPathMerger) Merge(swaps []MergedSwap) []Branch {
	var branches []Branch
	used := make([]bool, len(swaps))

	for i := range swaps {
		if used[i] {
			continue
		}
		bestPrefix := 0
		group := []int{i}
		for j := i + 1; j < len(swaps); j++ {
			if used[j] {
				continue
			}
			n := sharedPrefixLen(swaps[i].Path, swaps[j].Path)
			if n > 0 {
				if n > bestPrefix {
					bestPrefix = n
				}
				group = append(group, j)
			}
		}
		if len(group) == 1 {
			branches = append(branches, Branch{Suffixes: []search.Path{swaps[i].Path}})
			used[i] = true
			continue
		}
		var suffixes []search.Path
		for _, idx := range group {
			if sharedPrefixLen(swaps[i].Path, swaps[idx].Path) != bestPrefix {
				continue
			}
			suffixes = append(suffixes, swaps[idx].Path[bestPrefix:])
			used[idx] = true
		}
		branches = append(branches, Branch{Prefix: swaps[i].Path[:bestPrefix], Suffixes: suffixes})
	}
	return branches
}

// ForkedSwap is a SamePathMerger output: the same path re-evaluated
// alongside a specific tracked stuffing tx, so the estimator can pick
// whichever fork still profits once that tx lands first.
type ForkedSwap struct {
	MergedSwap
	AgainstTx common.Hash
}

// SamePathMerger forks a candidate path once per stuffing tx tracked
// against any pool the path touches (spec.md §4.G: "fork a
// per-stuffing version of the same path and let the estimator pick the
// survivor").
type SamePathMerger struct {
	tracked func(pool common.Address) []priceman.TrackedTx
}

// NewSamePathMerger builds a merger sourcing tracked stuffing txs from
// tracked (typically priceman.StuffingMonitor.Tracked).
func NewSamePathMerger(tracked func(pool common.Address) []priceman.TrackedTx) *SamePathMerger {
	return &SamePathMerger{tracked: tracked}
}

// Fork returns one ForkedSwap per stuffing tx recorded against any pool
// on swap's path, plus the unforked original.
func (m *SamePathMerger) Fork(swap MergedSwap) []ForkedSwap {
	out := []ForkedSwap{{MergedSwap: swap}}
	seen := make(map[common.Hash]bool)
	for _, step := range swap.Path {
		for _, tx := range m.tracked(step.Pool.Address()) {
			if seen[tx.Hash] {
				continue
			}
			seen[tx.Hash] = true
			fork := swap
			tx := tx
			out = append(out, ForkedSwap{MergedSwap: mergedSwapWithFork(fork, &tx), AgainstTx: tx.Hash})
		}
	}
	return out
}

func mergedSwapWithFork(swap MergedSwap, tx *priceman.TrackedTx) MergedSwap {
	swap.ForkOf = tx
	return swap
}
