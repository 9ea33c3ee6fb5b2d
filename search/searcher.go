package search

import (
	"context"
	"math/big"
	"runtime"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/market"
	"github.com/eth2030/backrunner/mirror"
)

// Candidate is a profitable path the searcher found, ready for the
// encoder/merger stage (spec.md §4.F step 4).
type Candidate struct {
	Path            Path
	InAmount        *uint256.Int
	ExpectedProfit  *big.Int // signed: out - in - gas_cost
	Gas             uint64
}

// GasCostFunc estimates the wei cost of executing a path, used to turn
// raw swap output into net profit.
type GasCostFunc func(path Path, gas uint64) *big.Int

// Searcher runs the path search described in spec.md §4.F: BFS candidate
// paths rooted at a gas token, golden-section search over input amount
// per path, evaluated on a dedicated CPU worker pool.
type Searcher struct {
	market      *market.Market
	gasToken    common.Address
	disabled    IsDisabled
	gasCost     GasCostFunc
	threshold   *big.Int
	workers     int
	inMin       *uint256.Int
	inMax       *uint256.Int
	logger      *log.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithWorkers overrides the CPU worker pool size. Defaults to
// runtime.NumCPU()-2 (spec.md §4.F: "parallelism = hw_threads - 2"),
// floored at 1.
func WithWorkers(n int) Option {
	return func(s *Searcher) { s.workers = n }
}

// WithAmountRange overrides the golden-section search bounds. Defaults
// to [1e12, 1e24] wei.
func WithAmountRange(min, max *uint256.Int) Option {
	return func(s *Searcher) { s.inMin, s.inMax = min, max }
}

// NewSearcher builds a Searcher. threshold is the minimum net profit (in
// wei) a candidate must clear to be kept (spec.md §4.F step 4).
func NewSearcher(m *market.Market, gasToken common.Address, disabled IsDisabled, gasCost GasCostFunc, threshold *big.Int, opts ...Option) *Searcher {
	workers := runtime.NumCPU() - 2
	if workers < 1 {
		workers = 1
	}
	s := &Searcher{
		market:    m,
		gasToken:  gasToken,
		disabled:  disabled,
		gasCost:   gasCost,
		threshold: threshold,
		workers:   workers,
		inMin:     uint256.NewInt(1e12),
		inMax:     uint256.MustFromDecimal("1000000000000000000000000"),
		logger:    log.Default().Module("search"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type job struct {
	triggers []common.Address
	state    *mirror.MarketState
}

// BackrunBlock triggers a search across every pool whose state changed in
// a settled block (spec.md §4.F: "BackrunBlock"). state is the live
// mirror post-update; each worker clones it so path evaluation never
// races the ingest pipeline's writes.
func (s *Searcher) BackrunBlock(ctx context.Context, state *mirror.MarketState, changedPools []common.Address) []Candidate {
	return s.run(ctx, job{triggers: changedPools, state: state})
}

// BackrunMempool simulates a pending transaction against a cloned mirror
// and triggers a search on the resulting post-tx state (spec.md §4.F:
// "BackrunMempool"). applyTx mutates the clone in place (e.g. by
// replaying the tx's predicted state diff via MarketState.Apply).
func (s *Searcher) BackrunMempool(ctx context.Context, state *mirror.MarketState, tx *types.Transaction, touchedPools []common.Address, applyTx func(*mirror.MarketState) error) []Candidate {
	post := state.Clone()
	if applyTx != nil {
		if err := applyTx(post); err != nil {
			s.logger.Debug("mempool pre-apply failed, skipping search", "tx", tx.Hash(), "err", err)
			return nil
		}
	}
	return s.run(ctx, job{triggers: touchedPools, state: post})
}

// run fans candidate path evaluation out across the worker pool and
// collects results until the deadline in ctx expires or all work
// completes (spec.md §4.F: "orchestrator awaits all or a deadline").
func (s *Searcher) run(ctx context.Context, j job) []Candidate {
	paths := s.enumerate(j.triggers)
	if len(paths) == 0 {
		return nil
	}

	type pathJob struct {
		path Path
	}
	in := make(chan pathJob, len(paths))
	out := make(chan *Candidate, len(paths))

	for _, p := range paths {
		in <- pathJob{path: p}
	}
	close(in)

	workers := s.workers
	if workers > len(paths) {
		workers = len(paths)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("search worker panicked", "panic", r)
				}
			}()
			// Each worker gets its own cheap clone so concurrent
			// evaluations never contend on the mirror's lock (spec.md
			// §4.F: "each worker holds its own cheap clone").
			clone := j.state.Clone()
			for pj := range in {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if c := s.evaluate(clone, pj.path); c != nil {
					out <- c
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	var results []Candidate
collect:
	for {
		select {
		case <-ctx.Done():
			break collect
		case c, ok := <-out:
			if !ok {
				break collect
			}
			results = append(results, *c)
		}
	}

	sortCandidates(results)
	return results
}

func (s *Searcher) enumerate(triggers []common.Address) []Path {
	seen := make(map[string]bool)
	var all []Path
	for _, t := range triggers {
		for _, p := range EnumeratePaths(s.market, s.gasToken, t, s.disabled) {
			key := pathKey(p)
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, p)
		}
	}
	return all
}

func pathKey(p Path) string {
	var b []byte
	for _, step := range p {
		addr := step.Pool.Address()
		b = append(b, addr[:]...)
	}
	return string(b)
}

// evaluate runs golden-section search over a single path and returns a
// Candidate if its net profit clears the threshold.
func (s *Searcher) evaluate(state *mirror.MarketState, path Path) *Candidate {
	if len(path) == 0 {
		return nil
	}

	profitFn := func(in *uint256.Int) (float64, error) {
		amount := in
		var gasTotal uint64
		for _, step := range path {
			out, gas, err := step.Pool.Pool.CalculateOutAmount(state, step.From, step.To, amount)
			if err != nil {
				return 0, err
			}
			amount = out
			gasTotal += gas
		}
		profit := new(big.Int).Sub(amount.ToBig(), in.ToBig())
		if s.gasCost != nil {
			profit.Sub(profit, s.gasCost(path, gasTotal))
		}
		f, _ := new(big.Float).SetInt(profit).Float64()
		return f, nil
	}

	bestIn, _, err := SearchAmount(s.inMin, s.inMax, profitFn)
	if err != nil {
		return nil
	}

	amount := bestIn
	var gasTotal uint64
	for _, step := range path {
		out, gas, cerr := step.Pool.Pool.CalculateOutAmount(state, step.From, step.To, amount)
		if cerr != nil {
			return nil
		}
		amount = out
		gasTotal += gas
	}
	profit := new(big.Int).Sub(amount.ToBig(), bestIn.ToBig())
	if s.gasCost != nil {
		profit.Sub(profit, s.gasCost(path, gasTotal))
	}
	if s.threshold != nil && profit.Cmp(s.threshold) < 0 {
		return nil
	}

	return &Candidate{Path: path, InAmount: bestIn, ExpectedProfit: profit, Gas: gasTotal}
}

// sortCandidates orders by profit descending; within epsilon, by lower
// gas, then lexicographically smaller path address sequence (spec.md
// §4.F: tie-breaking rules).
const profitEpsilonWei = 1 // wei; candidates within this delta are tied

func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		diff := new(big.Int).Sub(cands[i].ExpectedProfit, cands[j].ExpectedProfit)
		if diff.CmpAbs(big.NewInt(profitEpsilonWei)) > 0 {
			return diff.Sign() > 0
		}
		if cands[i].Gas != cands[j].Gas {
			return cands[i].Gas < cands[j].Gas
		}
		return lessAddressSeq(cands[i].Path.Addresses(), cands[j].Path.Addresses())
	})
}

func lessAddressSeq(a, b []common.Address) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return bytesLess(a[i].Bytes(), b[i].Bytes())
		}
	}
	return len(a) < len(b)
}

func bytesLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
