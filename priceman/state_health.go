package priceman

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/mirror"
)

// Drift describes a single mirrored value that no longer matches the
// authoritative provider value.
type Drift struct {
	Address common.Address
	Slot    *common.Hash // nil for a balance drift
	Mirror  *big.Int
	Chain   *big.Int
}

// StateHealthMonitor samples mirrored accounts and re-fetches their
// authoritative balance from the provider, reporting drift (spec.md §4.E,
// SPEC_FULL §12 — grounded on original_source's
// fetch_state/fetch_all_states). Storage is not re-fetched, so every Drift
// it reports is a balance drift with a nil Slot.
type StateHealthMonitor struct {
	provider ingest.Provider
	state    *mirror.MarketState
	sample   func() []common.Address
	interval time.Duration
	onDrift  func(Drift)
	logger   *log.Logger
}

// NewStateHealthMonitor builds the monitor. sample returns the set of
// mirrored addresses to check this cycle (a full scan, or a rotating
// subset for large mirrors).
func NewStateHealthMonitor(provider ingest.Provider, state *mirror.MarketState, sample func() []common.Address, interval time.Duration, onDrift func(Drift)) *StateHealthMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StateHealthMonitor{
		provider: provider,
		state:    state,
		sample:   sample,
		interval: interval,
		onDrift:  onDrift,
		logger:   log.Default().Module("priceman.state_health"),
	}
}

func (m *StateHealthMonitor) Name() string { return "priceman.state_health" }

func (m *StateHealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.fetchAllStates(ctx)
		}
	}
}

// fetchAllStates mirrors original_source's fetch_all_states: iterate every
// sampled account and re-fetch its balance, comparing against the mirror.
func (m *StateHealthMonitor) fetchAllStates(ctx context.Context) {
	for _, addr := range m.sample() {
		if err := m.fetchState(ctx, addr); err != nil {
			m.logger.Warn("fetch_state failed", "address", addr, "err", err)
		}
	}
}

// fetchState mirrors original_source's fetch_state for a single account:
// re-fetch balance from the provider and report a Drift if it no longer
// matches the mirrored value.
func (m *StateHealthMonitor) fetchState(ctx context.Context, addr common.Address) error {
	chainBalance, err := m.provider.BalanceAt(ctx, addr, nil)
	if err != nil {
		return err
	}
	mirrorBalance := m.state.Balance(addr)
	if chainBalance.Cmp(mirrorBalance) != 0 {
		if m.onDrift != nil {
			m.onDrift(Drift{Address: addr, Mirror: mirrorBalance, Chain: chainBalance})
		}
	}
	return nil
}
