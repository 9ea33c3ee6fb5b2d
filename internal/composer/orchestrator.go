package composer

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/estimate"
	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/market"
	"github.com/eth2030/backrunner/metrics"
	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/search"
	"github.com/eth2030/backrunner/swapenc"
	"github.com/eth2030/backrunner/txsign"
)

// orchestrator is the actor that ties the rest of the pipeline together
// for one blockchain: on every settled block it runs BackrunBlock over
// the pools the block's state diff touched, merges and encodes surviving
// candidates, checks each with an eth_call against the live node, and
// signs and broadcasts it. For each merged swap, the unforked swap and then
// its same-path forks are tried in turn until a relay accepts one. spec.md §4.F–§4.I
// describe each stage as an independent package; this is the glue the
// spec's component breakdown leaves to the composing binary.
type orchestrator struct {
	name        string
	market      *market.Market
	state       *mirror.MarketState
	searcher    *search.Searcher
	pathMerger  *swapenc.SwapPathMerger
	sameMerger  *swapenc.SamePathMerger
	encoder     *swapenc.SwapStepEncoder
	estimator   *estimate.GethEstimator
	signer      *txsign.Signer
	broadcaster *txsign.Broadcaster
	blocks      actor.Consumer[ingest.BlockMsg]
	states      actor.Consumer[ingest.BlockStateUpdate]
	logger      *log.Logger
	core        *metrics.Core
}

func newOrchestrator(
	name string,
	m *market.Market,
	state *mirror.MarketState,
	searcher *search.Searcher,
	pathMerger *swapenc.SwapPathMerger,
	sameMerger *swapenc.SamePathMerger,
	encoder *swapenc.SwapStepEncoder,
	estimator *estimate.GethEstimator,
	signer *txsign.Signer,
	broadcaster *txsign.Broadcaster,
	blocks actor.Consumer[ingest.BlockMsg],
	states actor.Consumer[ingest.BlockStateUpdate],
	core *metrics.Core,
) *orchestrator {
	return &orchestrator{
		name:        name,
		market:      m,
		state:       state,
		searcher:    searcher,
		pathMerger:  pathMerger,
		sameMerger:  sameMerger,
		encoder:     encoder,
		estimator:   estimator,
		signer:      signer,
		broadcaster: broadcaster,
		blocks:      blocks,
		states:      states,
		logger:      log.Default().Module("composer.orchestrator"),
		core:        core,
	}
}

func (o *orchestrator) Name() string { return "composer.orchestrator." + o.name }

func (o *orchestrator) Run(ctx context.Context) error {
	pending := make(map[common.Hash][]common.Address)
	states, blocks := o.states.C(), o.blocks.C()

	for {
		select {
		case <-ctx.Done():
			return nil
		case su, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			pending[su.BlockHash] = touchedPools(o.market, su.StateUpdate)
		case bm, ok := <-blocks:
			if !ok {
				return nil
			}
			if bm.Block == nil {
				continue
			}
			touched := pending[bm.BlockHash]
			delete(pending, bm.BlockHash)
			o.handleBlock(ctx, bm.Block.NumberU64(), touched)
		}
	}
}

// touchedPools intersects a block's changed addresses with the set of
// addresses currently registered as pools, the triggers Searcher.
// BackrunBlock expects (spec.md §4.F: "BackrunBlock").
func touchedPools(m *market.Market, update *ingest.GethStateUpdate) []common.Address {
	if update == nil {
		return nil
	}
	var out []common.Address
	for _, diff := range update.Accounts {
		if _, ok := m.GetPool(diff.Address); ok {
			out = append(out, diff.Address)
		}
	}
	return out
}

func (o *orchestrator) handleBlock(ctx context.Context, blockNumber uint64, touched []common.Address) {
	if len(touched) == 0 {
		return
	}

	start := time.Now()
	candidates := o.searcher.BackrunBlock(ctx, o.state, touched)
	if o.core != nil {
		o.core.SearchLatency.WithLabelValues().Observe(time.Since(start).Seconds())
		o.core.CandidatesFound.WithLabelValues(o.name).Add(float64(len(candidates)))
	}
	if len(candidates) == 0 {
		return
	}

	merged := o.pathMerger.Merge(blockNumber, candidates)
	for _, ms := range merged {
		forks := []swapenc.MergedSwap{ms}
		if o.sameMerger != nil {
			for _, f := range o.sameMerger.Fork(ms) {
				forks = append(forks, f.MergedSwap)
			}
		}
		for _, fork := range forks {
			if o.tryExecute(ctx, fork) {
				break
			}
		}
	}
}

// tryExecute encodes, estimates, signs, and broadcasts one merged swap,
// returning true if it was accepted by at least one relay.
func (o *orchestrator) tryExecute(ctx context.Context, swap swapenc.MergedSwap) bool {
	plan, err := o.encoder.Encode(swap.Path, swap.InAmount)
	if err != nil {
		o.logger.Debug("encode failed", "err", err)
		o.dropped("encode_failed")
		return false
	}

	head, err := o.estimator.Estimate(ctx, swap, currentBaseFee())
	if err != nil {
		o.logger.Debug("estimate rejected candidate", "err", err)
		o.dropped("estimate_rejected")
		return false
	}

	addrs := o.signer.Addresses()
	if len(addrs) == 0 {
		o.logger.Warn("no signer addresses loaded, dropping candidate")
		o.dropped("no_signer")
		return false
	}

	tx, err := o.signer.SignSwap(addrs[0], plan, head, head.GasUsed)
	if err != nil {
		o.logger.Warn("sign failed", "err", err)
		o.dropped("sign_failed")
		return false
	}

	if o.core != nil && swap.ExpectedProfit != nil {
		o.core.ProfitWei.WithLabelValues().Observe(weiToFloat(swap.ExpectedProfit))
	}

	bundle := txsign.NewSingleTxBundle(tx, swap.BlockNumber+1)
	accepted, results := o.broadcaster.Broadcast(ctx, bundle)
	if !accepted {
		o.logger.Debug("bundle rejected by every relay", "results", results)
		o.dropped("relay_rejected")
	}
	if o.core != nil {
		for _, r := range results {
			outcome := "accepted"
			if r.Err != nil {
				outcome = "rejected"
			}
			o.core.RelaySubmissions.WithLabelValues(r.Relay, outcome).Inc()
		}
	}
	return accepted
}

// dropped increments the candidates_dropped_total counter if metrics are
// wired, a no-op otherwise.
func (o *orchestrator) dropped(reason string) {
	if o.core != nil {
		o.core.CandidatesDropped.WithLabelValues(reason).Inc()
	}
}

// weiToFloat converts a wei amount to a float64 for histogram observation,
// losing precision far below what the exponential profit buckets resolve.
func weiToFloat(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	out, _ := f.Float64()
	return out
}

// currentBaseFee is a placeholder until the orchestrator threads the
// latest header's base fee through from blockhist.History; the
// estimator's TipPolicy still derives a conservative max fee from it.
func currentBaseFee() *big.Int {
	return big.NewInt(30_000_000_000)
}
