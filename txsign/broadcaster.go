package txsign

import (
	"context"
	"sync"

	"github.com/eth2030/backrunner/log"
)

// Relay submits a bundle to one Flashbots-style relay endpoint.
type Relay interface {
	Name() string
	SubmitBundle(ctx context.Context, bundle *FlashbotsBundle) error
}

// Broadcaster fans a validated bundle out to every configured relay in
// parallel; success is at least one relay accepting it (spec.md §4.I).
// Failures are logged, never retried, since the opportunity is stale
// after one block.
type Broadcaster struct {
	relays []Relay
	logger *log.Logger
}

// NewBroadcaster builds a Broadcaster over the given relay set.
func NewBroadcaster(relays []Relay) *Broadcaster {
	return &Broadcaster{relays: relays, logger: log.Default().Module("txsign.broadcaster")}
}

// Result is one relay's outcome for a broadcast attempt.
type Result struct {
	Relay string
	Err   error
}

// Broadcast validates the bundle, then submits it to every relay
// concurrently, returning per-relay results and whether at least one
// relay accepted it.
func (b *Broadcaster) Broadcast(ctx context.Context, bundle *FlashbotsBundle) (accepted bool, results []Result) {
	if err := bundle.Validate(); err != nil {
		b.logger.Warn("refusing to broadcast invalid bundle", "err", err)
		return false, []Result{{Err: err}}
	}

	results = make([]Result, len(b.relays))
	var wg sync.WaitGroup
	wg.Add(len(b.relays))
	for i, relay := range b.relays {
		go func(i int, relay Relay) {
			defer wg.Done()
			err := relay.SubmitBundle(ctx, bundle)
			results[i] = Result{Relay: relay.Name(), Err: err}
			if err != nil {
				b.logger.Warn("relay submission failed", "relay", relay.Name(), "err", err)
			}
		}(i, relay)
	}
	wg.Wait()

	for _, r := range results {
		if r.Err == nil {
			accepted = true
			break
		}
	}
	return accepted, results
}
