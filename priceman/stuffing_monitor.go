package priceman

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
)

// StuffingReason classifies why a pending transaction was flagged as
// worth tracking against the pools the backrunner trades.
type StuffingReason int

const (
	// ReasonUnrelated is a pending tx touching a watched pool with no
	// adversarial pattern detected; tracked only so the same-path merger
	// can fork a backrun alongside it.
	ReasonUnrelated StuffingReason = iota
	// ReasonSandwichFront flags a tx that looks like the opening leg of a
	// sandwich against a later victim tx on the same pool.
	ReasonSandwichFront
	// ReasonFrontrun flags a tx that looks like it is racing an earlier
	// pending tx to the same pool with a much higher gas price.
	ReasonFrontrun
)

func (r StuffingReason) String() string {
	switch r {
	case ReasonSandwichFront:
		return "sandwich_front"
	case ReasonFrontrun:
		return "frontrun"
	default:
		return "unrelated"
	}
}

// TrackedTx is a pending transaction the same-path merger (§4.G) can
// fork a backrun alongside, with the reason it was flagged.
type TrackedTx struct {
	Hash   common.Hash
	Tx     *types.Transaction
	Pool   common.Address
	Reason StuffingReason
	Seen   time.Time
}

// maxGasPriceRatio mirrors core's MEVProtectionConfig.MaxGasPriceRatio
// default: a tx priced more than 10x another targeting the same pool is
// racing it.
const maxGasPriceRatio = 10

// stuffingWindow bounds how many recent pending txs per pool are kept
// around to pair a later arrival against (mirrors DetectFrontrun's
// nearby-index window, adapted to a time window since pending txs don't
// arrive pre-ordered into a single slice).
const stuffingWindow = 2 * time.Second

// StuffingMonitor watches pending mempool transactions that touch pools
// the backrunner trades and classifies them using the same heuristics
// core/mev.go uses for sandwich and frontrun detection, adapted to a
// streaming arrival model instead of a fixed-block transaction list
// (spec.md §4.E: "records pending mempool transactions that appear
// designed to front-run the backrun").
type StuffingMonitor struct {
	mu        sync.Mutex
	recent    map[common.Address][]TrackedTx // pool -> recent arrivals, newest last
	targets   map[common.Address]bool        // pools worth tracking against
	in        actor.Consumer[ingest.PendingTx]
	now       func() time.Time
	logger    *log.Logger
}

// NewStuffingMonitor builds a monitor over the given set of watched pool
// addresses. targets is called once, here; pools added to the market
// afterwards are not watched.
func NewStuffingMonitor(targets func() []common.Address, in actor.Consumer[ingest.PendingTx]) *StuffingMonitor {
	return &StuffingMonitor{
		recent:  make(map[common.Address][]TrackedTx),
		targets: poolSet(targets()),
		in:      in,
		now:     time.Now,
		logger:  log.Default().Module("priceman.stuffing"),
	}
}

func poolSet(addrs []common.Address) map[common.Address]bool {
	m := make(map[common.Address]bool, len(addrs))
	for _, a := range addrs {
		m[a] = true
	}
	return m
}

func (m *StuffingMonitor) Name() string { return "priceman.stuffing_monitor" }

func (m *StuffingMonitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pending, ok := <-m.in.C():
			if !ok {
				return nil
			}
			m.handle(pending)
		}
	}
}

func (m *StuffingMonitor) handle(pending ingest.PendingTx) {
	to := pending.Tx.To()
	if to == nil {
		return
	}
	pool := *to
	if !m.targets[pool] {
		return
	}

	now := m.now()
	sender := txSender(pending.Tx)
	price := txGasPrice(pending.Tx)

	m.mu.Lock()
	defer m.mu.Unlock()

	arrivals := pruneStale(m.recent[pool], now)

	reason := ReasonUnrelated
	for _, prior := range arrivals {
		priorSender := txSender(prior.Tx)
		if sender != (common.Address{}) && sender == priorSender {
			continue // same-sender pairs are handled by the sandwich back-leg below, not here
		}
		priorPrice := txGasPrice(prior.Tx)
		if priorPrice.Sign() == 0 {
			continue
		}
		ratio := new(big.Int).Div(price, priorPrice)
		if ratio.Cmp(big.NewInt(maxGasPriceRatio)) >= 0 {
			reason = ReasonFrontrun
			break
		}
	}

	// Sandwich front leg: this sender already has an earlier pending tx to
	// the same pool, meaning a prior arrival (the victim) sits between a
	// matching front-leg pair once the back leg lands; flag the earlier
	// leg now since the merger only needs to know it is part of a pair.
	if reason == ReasonUnrelated {
		for _, prior := range arrivals {
			if sender != (common.Address{}) && sender == txSender(prior.Tx) {
				reason = ReasonSandwichFront
				break
			}
		}
	}

	tracked := TrackedTx{Hash: pending.Hash, Tx: pending.Tx, Pool: pool, Reason: reason, Seen: now}
	m.recent[pool] = append(arrivals, tracked)

	if reason != ReasonUnrelated {
		m.logger.Info("stuffing tx classified", "pool", pool, "hash", pending.Hash, "reason", reason.String())
	}
}

func pruneStale(arrivals []TrackedTx, now time.Time) []TrackedTx {
	cut := 0
	for cut < len(arrivals) && now.Sub(arrivals[cut].Seen) > stuffingWindow {
		cut++
	}
	if cut == 0 {
		return arrivals
	}
	return append([]TrackedTx(nil), arrivals[cut:]...)
}

// Tracked returns the recent arrivals recorded against a pool, newest
// last, for the same-path merger to fork a backrun alongside.
func (m *StuffingMonitor) Tracked(pool common.Address) []TrackedTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := pruneStale(m.recent[pool], m.now())
	out := make([]TrackedTx, len(pruned))
	copy(out, pruned)
	return out
}

func txSender(tx *types.Transaction) common.Address {
	signer := types.LatestSignerForChainID(tx.ChainId())
	addr, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}
	}
	return addr
}

// txGasPrice returns the effective price cap for both legacy and
// dynamic-fee transactions; go-ethereum's GasFeeCap() already folds
// legacy GasPrice into this for non-EIP-1559 txs.
func txGasPrice(tx *types.Transaction) *big.Int {
	return tx.GasFeeCap()
}
