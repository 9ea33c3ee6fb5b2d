package ingest

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2030/backrunner/actor"
)

type fakeProvider struct {
	subCh        chan common.Hash
	fetchedCount int
	txByHash     map[common.Hash]*types.Transaction
}

func (f *fakeProvider) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeProvider) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	return nil, nil
}
func (f *fakeProvider) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	return nil, nil
}
func (f *fakeProvider) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.fetchedCount++
	tx, ok := f.txByHash[hash]
	return tx, ok, nil
}
func (f *fakeProvider) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return nil, nil
}
func (f *fakeProvider) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return 0, nil
}
func (f *fakeProvider) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) CallContract(ctx context.Context, msg CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (Subscription, error) {
	return fakeSub{}, nil
}
func (f *fakeProvider) SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (Subscription, error) {
	go func() {
		for h := range f.subCh {
			select {
			case ch <- h:
			case <-ctx.Done():
				return
			}
		}
	}()
	return fakeSub{}, nil
}

type fakeSub struct{}

func (fakeSub) Err() <-chan error { return make(chan error) }
func (fakeSub) Unsubscribe()      {}

func TestMempoolSubscriberDedupsHashes(t *testing.T) {
	h := common.HexToHash("0x1")
	tx := types.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)

	fp := &fakeProvider{
		subCh:    make(chan common.Hash, 8),
		txByHash: map[common.Hash]*types.Transaction{h: tx},
	}

	b := actor.NewBroadcaster[PendingTx](4)
	out, err := b.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sub := NewMempoolSubscriber(fp, b.Producer(), 1000, 1000, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	fp.subCh <- h
	fp.subCh <- h
	fp.subCh <- h

	select {
	case msg := <-out.C():
		if msg.Hash != h {
			t.Fatalf("got hash %v, want %v", msg.Hash, h)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pending tx")
	}

	time.Sleep(50 * time.Millisecond)
	select {
	case <-out.C():
		t.Fatal("received a second message for a duplicate hash")
	default:
	}

	if fp.fetchedCount != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", fp.fetchedCount)
	}
}
