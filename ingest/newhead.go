package ingest

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/log"
)

// NewHeadSubscriber is an actor that forwards the provider's new-head feed
// onto the ingest pipeline's internal NewHead broadcaster (spec.md §4.B).
type NewHeadSubscriber struct {
	provider Provider
	out      actor.Producer[NewHead]
	logger   *log.Logger
}

// NewNewHeadSubscriber constructs the actor. out is typically
// Broadcaster[NewHead].Producer().
func NewNewHeadSubscriber(provider Provider, out actor.Producer[NewHead]) *NewHeadSubscriber {
	return &NewHeadSubscriber{provider: provider, out: out, logger: log.Default().Module("ingest.newhead")}
}

func (s *NewHeadSubscriber) Name() string { return "ingest.newhead" }

func (s *NewHeadSubscriber) Run(ctx context.Context) error {
	headers := make(chan *types.Header, 16)
	sub, err := s.provider.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("ingest: subscribe new heads: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err != nil {
				return fmt.Errorf("ingest: new head subscription: %w", err)
			}
		case h := <-headers:
			head := NewHead{BlockHash: h.Hash(), Number: h.Number.Uint64()}
			if !s.out.Send(head) {
				s.logger.Debug("no subscribers for new head", "block", head.BlockHash)
			}
		}
	}
}
