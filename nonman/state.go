// Package nonman tracks the nonce and ETH balance of every signer
// address the backrunner controls, so txsign can pick a fresh nonce
// without round-tripping to the node on every signature (spec.md §4.J).
package nonman

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// State holds the last-known nonce and balance for each monitored
// address, kept current by a Fetcher's periodic poll and a Monitor's
// per-block diff. It implements txsign.NonceSource.
type State struct {
	mu       sync.RWMutex
	tracked  map[common.Address]bool
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
}

// NewState builds a State tracking exactly the given addresses.
func NewState(addrs []common.Address) *State {
	s := &State{
		tracked:  make(map[common.Address]bool, len(addrs)),
		balances: make(map[common.Address]*big.Int, len(addrs)),
		nonces:   make(map[common.Address]uint64, len(addrs)),
	}
	for _, a := range addrs {
		s.tracked[a] = true
		s.balances[a] = new(big.Int)
	}
	return s
}

// IsTracked reports whether addr is a monitored signer account.
func (s *State) IsTracked(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracked[addr]
}

// Tracked returns every monitored address.
func (s *State) Tracked() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Address, 0, len(s.tracked))
	for a := range s.tracked {
		out = append(out, a)
	}
	return out
}

// Nonce returns the last-known nonce for addr, satisfying
// txsign.NonceSource. Unknown addresses return 0.
func (s *State) Nonce(addr common.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonces[addr]
}

// Balance returns the last-known balance for addr, or zero if unknown.
func (s *State) Balance(addr common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(b)
}

// setFetched overwrites an address's nonce and balance wholesale, used
// by the Fetcher's periodic re-read.
func (s *State) setFetched(addr common.Address, nonce uint64, balance *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tracked[addr] {
		return
	}
	s.nonces[addr] = nonce
	s.balances[addr] = balance
}

// applyDebit subtracts amount from addr's tracked balance, clamping at
// zero rather than going negative (Open Question: nonce monitor
// underflow — clamp, don't wrap).
func (s *State) applyDebit(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tracked[addr] {
		return
	}
	bal := s.balances[addr]
	if bal == nil {
		bal = new(big.Int)
	}
	next := new(big.Int).Sub(bal, amount)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	s.balances[addr] = next
}

// applyCredit adds amount to addr's tracked balance.
func (s *State) applyCredit(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tracked[addr] {
		return
	}
	bal := s.balances[addr]
	if bal == nil {
		bal = new(big.Int)
	}
	s.balances[addr] = new(big.Int).Add(bal, amount)
}

// setNonce records the nonce of a confirmed transaction sent by addr.
func (s *State) setNonce(addr common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tracked[addr] {
		return
	}
	s.nonces[addr] = nonce
}
