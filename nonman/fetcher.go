package nonman

import (
	"context"
	"time"

	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
)

// fetchInterval matches the teacher's nonce/balance re-read cadence
// (accounts_actor.rs's nonce_and_balance_fetcher_worker sleeps 20s
// between passes).
const fetchInterval = 20 * time.Second

// Fetcher re-reads the nonce and ETH balance of every monitored
// address from the provider at the latest block on a fixed schedule
// (spec.md §4.J).
type Fetcher struct {
	provider ingest.Provider
	state    *State
	interval time.Duration
	logger   *log.Logger
}

// NewFetcher builds a Fetcher over state's tracked address set. interval
// defaults to 20s (spec.md §4.J) when 0 is passed.
func NewFetcher(provider ingest.Provider, state *State, interval time.Duration) *Fetcher {
	if interval <= 0 {
		interval = fetchInterval
	}
	return &Fetcher{provider: provider, state: state, interval: interval, logger: log.Default().Module("nonman.fetcher")}
}

func (f *Fetcher) Name() string { return "nonman.fetcher" }

func (f *Fetcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	f.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.pollAll(ctx)
		}
	}
}

func (f *Fetcher) pollAll(ctx context.Context) {
	for _, addr := range f.state.Tracked() {
		nonce, err := f.provider.NonceAt(ctx, addr, nil)
		if err != nil {
			f.logger.Warn("nonce fetch failed", "addr", addr, "err", err)
			continue
		}
		balance, err := f.provider.BalanceAt(ctx, addr, nil)
		if err != nil {
			f.logger.Warn("balance fetch failed", "addr", addr, "err", err)
			continue
		}
		f.state.setFetched(addr, nonce, balance)
		f.logger.Debug("refreshed account", "addr", addr, "nonce", nonce, "balance", balance)
	}
}
