package ingest

import (
	"context"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/log"
)

// BlockFetcher is an actor that, for every NewHead, fetches the full block
// and republishes it as a BlockMsg (spec.md §4.B).
type BlockFetcher struct {
	provider Provider
	in       actor.Consumer[NewHead]
	out      actor.Producer[BlockMsg]
	logger   *log.Logger
}

func NewBlockFetcher(provider Provider, in actor.Consumer[NewHead], out actor.Producer[BlockMsg]) *BlockFetcher {
	return &BlockFetcher{provider: provider, in: in, out: out, logger: log.Default().Module("ingest.blockfetcher")}
}

func (f *BlockFetcher) Name() string { return "ingest.blockfetcher" }

func (f *BlockFetcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case head, ok := <-f.in.C():
			if !ok {
				return nil
			}
			block, err := f.provider.BlockByHash(ctx, head.BlockHash)
			if err != nil {
				f.logger.Warn("fetch block failed", "block", head.BlockHash, "err", err)
				continue
			}
			f.out.Send(BlockMsg{BlockHash: head.BlockHash, Block: block})
		}
	}
}
