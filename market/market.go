// Package market holds the registry of known pools and the token graph
// derived from them (spec.md DATA MODEL: "Market"), plus the three
// cooperative loaders that populate it (spec.md §4.D).
package market

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/backrunner/pooldef"
)

// Edge is one directed (pool, token_in, token_out) entry in the token
// graph.
type Edge struct {
	Pool pooldef.Wrapper
	From common.Address
	To   common.Address
}

// Market maps pool addresses to pools and indexes them by token, forming
// an undirected multigraph whose nodes are tokens and whose edges are
// directed-token-pair pool entries (spec.md DATA MODEL). Every pool
// referenced by the graph is present in the address map (the Market's
// core invariant) — AddPool is the only way to add an edge, and it always
// registers the address map entry first.
type Market struct {
	mu       sync.RWMutex
	pools    map[common.Address]pooldef.Wrapper
	byToken  map[common.Address][]Edge
}

// NewMarket creates an empty Market.
func NewMarket() *Market {
	return &Market{
		pools:   make(map[common.Address]pooldef.Wrapper),
		byToken: make(map[common.Address][]Edge),
	}
}

// GetPool returns the pool registered at addr, if any.
func (m *Market) GetPool(addr common.Address) (pooldef.Wrapper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.pools[addr]
	return w, ok
}

// Len returns the number of registered pools.
func (m *Market) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// AddPool registers a pool and indexes its swap directions into the token
// graph, atomically with respect to other Market operations (spec.md
// §4.D step iv, "register in Market and token graph atomically").
func (m *Market) AddPool(w pooldef.Wrapper) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := w.Address()
	if _, exists := m.pools[addr]; exists {
		return
	}
	m.pools[addr] = w

	for _, dir := range w.Pool.SwapDirections() {
		edge := Edge{Pool: w, From: dir.From, To: dir.To}
		m.byToken[dir.From] = append(m.byToken[dir.From], edge)
		m.byToken[dir.To] = append(m.byToken[dir.To], edge)
	}
}

// EdgesFrom returns every directed edge whose From token matches token,
// used by the path search to expand a BFS frontier (spec.md §4.F).
func (m *Market) EdgesFrom(token common.Address) []Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edges := m.byToken[token]
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if e.From == token {
			out = append(out, e)
		}
	}
	return out
}

// Pools returns a snapshot slice of every registered pool.
func (m *Market) Pools() []pooldef.Wrapper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]pooldef.Wrapper, 0, len(m.pools))
	for _, w := range m.pools {
		out = append(out, w)
	}
	return out
}
