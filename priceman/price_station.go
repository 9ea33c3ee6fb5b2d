// Package priceman maintains token prices against a stable-pool reference
// set and monitors the health of both the pool registry and the market
// mirror, plus tracks mempool transactions that look like they are
// targeting the same pools the backrunner trades (spec.md §4.E).
package priceman

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/pooldef"
)

// StablePool is one configured reference pool the price station prices
// tokens against (spec.md §4.E: "pool list is configured").
type StablePool struct {
	Pool         pooldef.Pool
	BaseToken    common.Address // the stable/ETH-denominated side
	QuotedToken  common.Address
}

// PriceStation maintains token → price_in_eth, recomputed for every
// configured stable pool on every new block.
type PriceStation struct {
	mu      sync.RWMutex
	prices  map[common.Address]*uint256.Int
	stable  []StablePool
	state   *mirror.MarketState
	in      actor.Consumer[ingest.NewHead]
	logger  *log.Logger
}

// NewPriceStation builds a PriceStation that recomputes on every NewHead.
func NewPriceStation(stable []StablePool, state *mirror.MarketState, in actor.Consumer[ingest.NewHead]) *PriceStation {
	return &PriceStation{
		prices: make(map[common.Address]*uint256.Int),
		stable: stable,
		state:  state,
		in:     in,
		logger: log.Default().Module("priceman.station"),
	}
}

func (p *PriceStation) Name() string { return "priceman.price_station" }

func (p *PriceStation) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-p.in.C():
			if !ok {
				return nil
			}
			p.recompute()
		}
	}
}

// PriceInETH returns the last computed price for a token, or nil if never
// priced.
func (p *PriceStation) PriceInETH(token common.Address) (*uint256.Int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.prices[token]
	return v, ok
}

func (p *PriceStation) recompute() {
	for _, sp := range p.stable {
		oneUnit := uint256.NewInt(1e18)
		out, _, err := sp.Pool.CalculateOutAmount(p.state, sp.QuotedToken, sp.BaseToken, oneUnit)
		if err != nil {
			p.logger.Debug("price recompute failed", "pool", sp.Pool.Address(), "err", err)
			continue
		}
		p.mu.Lock()
		p.prices[sp.QuotedToken] = out
		p.mu.Unlock()
	}
}

// wrapErr wraps a price-station failure with package context.
func wrapErr(op string, err error) error {
	return fmt.Errorf("priceman: %s: %w", op, err)
}
