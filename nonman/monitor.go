package nonman

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
)

// Monitor applies every confirmed block's transactions to the tracked
// account state: a monitored sender is debited (max_fee + max_priority)
// × gas + value and has its nonce set to the transaction's nonce; a
// monitored recipient is credited the transferred value (spec.md §4.J),
// grounded directly on original_source's
// accounts_actor.rs::nonce_and_balance_monitor_worker.
type Monitor struct {
	state   *State
	chainID *big.Int
	in      actor.Consumer[ingest.BlockMsg]
	logger  *log.Logger
}

// NewMonitor builds a Monitor that reacts to every BlockMsg the ingest
// pipeline republishes, the local equivalent of the teacher's
// BlockTxUpdate market event.
func NewMonitor(state *State, chainID *big.Int, in actor.Consumer[ingest.BlockMsg]) *Monitor {
	return &Monitor{state: state, chainID: chainID, in: in, logger: log.Default().Module("nonman.monitor")}
}

func (m *Monitor) Name() string { return "nonman.monitor" }

func (m *Monitor) Run(ctx context.Context) error {
	signer := types.LatestSignerForChainID(m.chainID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-m.in.C():
			if !ok {
				return nil
			}
			m.applyBlock(signer, msg)
		}
	}
}

func (m *Monitor) applyBlock(signer types.Signer, msg ingest.BlockMsg) {
	if msg.Block == nil {
		return
	}
	m.applyTxs(signer, msg.Block.Transactions())
}

// applyTxs runs the per-transaction debit/credit/nonce update for a
// confirmed block's transaction list, split out from applyBlock so it
// can be exercised without constructing a full types.Block.
func (m *Monitor) applyTxs(signer types.Signer, txs []*types.Transaction) {
	for _, tx := range txs {
		from, err := types.Sender(signer, tx)
		if err != nil {
			m.logger.Debug("sender recovery failed", "tx", tx.Hash(), "err", err)
		} else if m.state.IsTracked(from) {
			spent := new(big.Int).Add(tx.GasFeeCap(), tx.GasTipCap())
			spent.Mul(spent, new(big.Int).SetUint64(tx.Gas()))
			spent.Add(spent, tx.Value())
			m.state.applyDebit(from, spent)
			m.state.setNonce(from, tx.Nonce())
		}

		if to := tx.To(); to != nil && m.state.IsTracked(*to) {
			m.state.applyCredit(*to, tx.Value())
		}
	}
}
