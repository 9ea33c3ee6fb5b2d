package ingest

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/VictoriaMetrics/fastcache"
	"golang.org/x/time/rate"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/log"
)

// MempoolSubscriber is an actor that subscribes to pending transaction
// hashes, deduplicates them against a recently-seen set, fetches the full
// transaction, and republishes it as a PendingTx (spec.md §4.B). A token
// bucket limiter bounds fetch volume during mempool storms so a single
// spike cannot saturate the upstream provider — grounded in the corpus's
// rate-limited RPC client pattern.
type MempoolSubscriber struct {
	provider Provider
	out      actor.Producer[PendingTx]
	logger   *log.Logger
	limiter  *rate.Limiter
	seen     *lru.Cache // bounded recently-seen hash set
}

// NewMempoolSubscriber builds the actor. ratePerSecond/burst bound the
// fetch rate; seenCacheBytes bounds the dedup cache's memory footprint.
func NewMempoolSubscriber(provider Provider, out actor.Producer[PendingTx], ratePerSecond float64, burst int, seenCacheBytes int) *MempoolSubscriber {
	if seenCacheBytes <= 0 {
		seenCacheBytes = 32 * 1024 * 1024
	}
	return &MempoolSubscriber{
		provider: provider,
		out:      out,
		logger:   log.Default().Module("ingest.mempool"),
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		seen:     lru.New(seenCacheBytes),
	}
}

func (m *MempoolSubscriber) Name() string { return "ingest.mempool" }

func (m *MempoolSubscriber) Run(ctx context.Context) error {
	hashes := make(chan common.Hash, 256)
	sub, err := m.provider.SubscribePendingTransactions(ctx, hashes)
	if err != nil {
		return fmt.Errorf("ingest: subscribe pending txs: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err != nil {
				return fmt.Errorf("ingest: mempool subscription: %w", err)
			}
		case h := <-hashes:
			m.handle(ctx, h)
		}
	}
}

func (m *MempoolSubscriber) handle(ctx context.Context, h common.Hash) {
	key := h.Bytes()
	if m.seen.Has(key) {
		return
	}
	m.seen.Set(key, []byte{1})

	if err := m.limiter.Wait(ctx); err != nil {
		return
	}

	tx, isPending, err := m.provider.TransactionByHash(ctx, h)
	if err != nil {
		m.logger.Debug("fetch pending tx failed", "hash", h, "err", err)
		return
	}
	if tx == nil || !isPending {
		return
	}
	m.out.Send(PendingTx{Hash: h, Tx: tx})
}
