package priceman

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/market"
	"github.com/eth2030/backrunner/metrics"
	"github.com/eth2030/backrunner/mirror"
)

// PoolHealthMonitor simulates a trivial swap on each registered pool on a
// schedule; a pool that reverts or returns zero output K times in a row
// is quarantined (disabled) and skipped by the path search (spec.md §4.E,
// S5).
type PoolHealthMonitor struct {
	mu          sync.RWMutex
	market      *market.Market
	state       *mirror.MarketState
	interval    time.Duration
	failLimit   int
	probeAmount *uint256.Int
	consecutive map[common.Address]int
	disabled    map[common.Address]bool
	logger      *log.Logger
	core        *metrics.Core
}

// NewPoolHealthMonitor builds the monitor. failLimit defaults to 3 (S5)
// when 0 is passed. core may be nil, in which case the pools_disabled
// gauge is never touched.
func NewPoolHealthMonitor(m *market.Market, state *mirror.MarketState, interval time.Duration, failLimit int, core *metrics.Core) *PoolHealthMonitor {
	if failLimit <= 0 {
		failLimit = 3
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PoolHealthMonitor{
		market:      m,
		state:       state,
		interval:    interval,
		failLimit:   failLimit,
		probeAmount: uint256.NewInt(1e15),
		consecutive: make(map[common.Address]int),
		disabled:    make(map[common.Address]bool),
		logger:      log.Default().Module("priceman.pool_health"),
		core:        core,
	}
}

func (m *PoolHealthMonitor) Name() string { return "priceman.pool_health" }

func (m *PoolHealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.probeAll()
		}
	}
}

// IsDisabled reports whether a pool is currently quarantined.
func (m *PoolHealthMonitor) IsDisabled(addr common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disabled[addr]
}

func (m *PoolHealthMonitor) probeAll() {
	for _, w := range m.market.Pools() {
		dirs := w.Pool.SwapDirections()
		if len(dirs) == 0 {
			continue
		}
		dir := dirs[0]
		pool := w.Pool
		state := m.state
		probeAmount := m.probeAmount
		m.Probe(pool.Address(), func() (*uint256.Int, error) {
			out, _, err := pool.CalculateOutAmount(state, dir.From, dir.To, probeAmount)
			return out, err
		})
	}
}

// Probe runs a single trivial-swap health check against a pool, updating
// its consecutive-failure count and quarantining it once failLimit is
// reached.
func (m *PoolHealthMonitor) Probe(addr common.Address, calcOut func() (*uint256.Int, error)) {
	out, err := calcOut()
	failed := err != nil || out == nil || out.IsZero()

	m.mu.Lock()
	defer m.mu.Unlock()

	if failed {
		m.consecutive[addr]++
		if m.consecutive[addr] >= m.failLimit {
			if !m.disabled[addr] {
				m.logger.Warn("pool quarantined after consecutive failures", "pool", addr, "failures", m.consecutive[addr])
				m.disabled[addr] = true
				m.reportDisabledCount()
			}
		}
		return
	}

	wasDisabled := m.disabled[addr]
	m.consecutive[addr] = 0
	m.disabled[addr] = false
	if wasDisabled {
		m.reportDisabledCount()
	}
}

// reportDisabledCount updates the pools_disabled gauge. Callers must hold
// m.mu.
func (m *PoolHealthMonitor) reportDisabledCount() {
	if m.core == nil {
		return
	}
	n := 0
	for _, d := range m.disabled {
		if d {
			n++
		}
	}
	m.core.PoolsDisabled.WithLabelValues().Set(float64(n))
}
