package ingest

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/log"
)

// BlockStateFetcher is an actor that runs a debug_traceBlock-style
// pre+post state capture for every NewHead and republishes the result as a
// BlockStateUpdate (spec.md §4.B). Each head is fetched in its own
// goroutine, so updates may be published out of head order. Concurrent
// requests for the same block hash (a head announced more than once) are
// collapsed with singleflight so the expensive trace call only runs once.
type BlockStateFetcher struct {
	provider DebugProviderExt
	in       actor.Consumer[NewHead]
	out      actor.Producer[BlockStateUpdate]
	logger   *log.Logger
	group    singleflight.Group
}

func NewBlockStateFetcher(provider DebugProviderExt, in actor.Consumer[NewHead], out actor.Producer[BlockStateUpdate]) *BlockStateFetcher {
	return &BlockStateFetcher{provider: provider, in: in, out: out, logger: log.Default().Module("ingest.statefetcher")}
}

func (f *BlockStateFetcher) Name() string { return "ingest.statefetcher" }

func (f *BlockStateFetcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case head, ok := <-f.in.C():
			if !ok {
				return nil
			}
			go f.fetch(ctx, head)
		}
	}
}

func (f *BlockStateFetcher) fetch(ctx context.Context, head NewHead) {
	key := head.BlockHash.Hex()
	v, err, _ := f.group.Do(key, func() (any, error) {
		return f.provider.TraceBlockPrePostState(ctx, head.BlockHash)
	})
	if err != nil {
		f.logger.Warn("trace block failed", "block", head.BlockHash, "err", err)
		return
	}
	update := v.(*GethStateUpdate)
	f.out.Send(BlockStateUpdate{BlockHash: head.BlockHash, StateUpdate: update})
}
