// Package preload seeds the market-state mirror once at startup: the
// UniswapV3 quoter's contract code, the live multicaller's contract
// code, and every signer account's balance and nonce (spec.md §4.K).
// Failure here is fatal, grounded directly on
// original_source/crates/defi-actors/src/market_state/preloader_actor.rs,
// which unwraps every RPC call and propagates the first error.
package preload

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/mirror"
	"github.com/eth2030/backrunner/txsign"
)

// QuoterSeed is the canned UniswapV3 "quoter" contract the preloader
// inserts directly, without a live code fetch. The original source
// embeds this as a hardcoded constant
// (UniswapV3Protocol::get_quoter_v3_state()); since no real contract
// bytecode asset travels with this module, the seed is configured
// instead of compiled in.
type QuoterSeed struct {
	Address common.Address
	Code    []byte
}

// Preloader runs the one-shot startup seed described by spec.md §4.K.
type Preloader struct {
	provider    ingest.Provider
	state       *mirror.MarketState
	quoter      QuoterSeed
	multicaller common.Address
	signers     *txsign.Signer
	logger      *log.Logger
}

// NewPreloader builds a Preloader. quoter may be the zero value to skip
// quoter seeding (e.g. a deployment that doesn't trade UniswapV3 pools).
func NewPreloader(provider ingest.Provider, state *mirror.MarketState, quoter QuoterSeed, multicaller common.Address, signers *txsign.Signer) *Preloader {
	return &Preloader{
		provider:    provider,
		state:       state,
		quoter:      quoter,
		multicaller: multicaller,
		signers:     signers,
		logger:      log.Default().Module("preload"),
	}
}

// Run performs the full seed sequence once. Any failure aborts the
// whole sequence and is returned to the caller, who is expected to
// treat it as a fatal startup error per spec.md §4.K.
func (p *Preloader) Run(ctx context.Context) error {
	if len(p.quoter.Code) > 0 {
		p.seedQuoter()
	}

	if err := p.seedMulticaller(ctx); err != nil {
		return fmt.Errorf("preload: multicaller: %w", err)
	}

	if err := p.seedSigners(ctx); err != nil {
		return fmt.Errorf("preload: signers: %w", err)
	}

	return nil
}

func (p *Preloader) seedQuoter() {
	p.logger.Debug("seeding quoter contract", "addr", p.quoter.Address)
	p.state.InsertAccountInfo(p.quoter.Address, mirror.AccountInfo{
		Balance:  new(big.Int),
		Code:     p.quoter.Code,
		CodeHash: crypto.Keccak256Hash(p.quoter.Code),
	})
}

func (p *Preloader) seedMulticaller(ctx context.Context) error {
	p.logger.Debug("loading multicaller code", "addr", p.multicaller)
	code, err := p.provider.CodeAt(ctx, p.multicaller, nil)
	if err != nil {
		return err
	}
	p.state.InsertAccountInfo(p.multicaller, mirror.AccountInfo{
		Balance:  new(big.Int),
		Code:     code,
		CodeHash: crypto.Keccak256Hash(code),
	})
	return nil
}

func (p *Preloader) seedSigners(ctx context.Context) error {
	if p.signers == nil {
		return nil
	}
	for _, addr := range p.signers.Addresses() {
		nonce, err := p.provider.NonceAt(ctx, addr, nil)
		if err != nil {
			return fmt.Errorf("signer %s: %w", addr, err)
		}
		balance, err := p.provider.BalanceAt(ctx, addr, nil)
		if err != nil {
			return fmt.Errorf("signer %s: %w", addr, err)
		}
		p.logger.Debug("loading signer", "addr", addr, "nonce", nonce, "balance", balance)

		p.state.InsertAccountInfo(addr, mirror.AccountInfo{
			Balance:  balance,
			Nonce:    nonce,
			CodeHash: mirror.KeccakEmpty,
		})
	}
	return nil
}
