package blockhist

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
)

// Writer fans ingest.NewHead/BlockMsg/BlockStateUpdate into a History,
// the actor-pipeline counterpart to the teacher's direct-call loaders:
// a block creates or updates the entry its hash names; a state update
// whose block is not in the ring yet is held until that block arrives;
// heads are only logged.
type Writer struct {
	history  *History
	heads    actor.Consumer[ingest.NewHead]
	blocks   actor.Consumer[ingest.BlockMsg]
	states   actor.Consumer[ingest.BlockStateUpdate]
	logger   *log.Logger
}

// NewWriter builds a Writer over the three ingest streams.
func NewWriter(history *History, heads actor.Consumer[ingest.NewHead], blocks actor.Consumer[ingest.BlockMsg], states actor.Consumer[ingest.BlockStateUpdate]) *Writer {
	return &Writer{history: history, heads: heads, blocks: blocks, states: states, logger: log.Default().Module("blockhist.writer")}
}

func (w *Writer) Name() string { return "blockhist.writer" }

func (w *Writer) Run(ctx context.Context) error {
	heads, blocks, states := w.heads.C(), w.blocks.C(), w.states.C()
	pending := make(map[common.Hash]*ingest.GethStateUpdate)
	for {
		if heads == nil && blocks == nil && states == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case head, ok := <-heads:
			if !ok {
				heads = nil
				continue
			}
			w.logger.Debug("head observed", "block", head.BlockHash, "number", head.Number)
		case msg, ok := <-blocks:
			if !ok {
				blocks = nil
				continue
			}
			w.history.InsertBlock(msg.BlockHash, msg.Block)
			if update, held := pending[msg.BlockHash]; held {
				delete(pending, msg.BlockHash)
				w.history.InsertStateUpdate(msg.BlockHash, update)
			}
		case msg, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			if _, known := w.history.Get(msg.BlockHash); !known {
				if len(pending) < w.history.capacity {
					pending[msg.BlockHash] = msg.StateUpdate
				}
				continue
			}
			w.history.InsertStateUpdate(msg.BlockHash, msg.StateUpdate)
		}
	}
}
