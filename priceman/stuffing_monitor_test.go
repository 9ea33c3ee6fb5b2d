package priceman

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/eth2030/backrunner/actor"
	"github.com/eth2030/backrunner/ingest"
)

func mustKey(t *testing.T, seed byte) *ecdsa.PrivateKey {
	t.Helper()
	var buf [32]byte
	for i := range buf {
		buf[i] = seed
	}
	key, err := crypto.ToECDSA(buf[:])
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	return key
}

func signedTx(t *testing.T, key *ecdsa.PrivateKey, to common.Address, gasFeeCap int64, nonce uint64) *types.Transaction {
	t.Helper()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     nonce,
		To:        &to,
		Gas:       21000,
		GasFeeCap: big.NewInt(gasFeeCap),
		GasTipCap: big.NewInt(1),
		Value:     big.NewInt(0),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(1)), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestStuffingMonitorFlagsFrontrunOnHighGasRatio(t *testing.T) {
	pool := common.HexToAddress("0xPOOL")
	b := actor.NewBroadcaster[ingest.PendingTx](8)
	consumer, err := b.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m := NewStuffingMonitor(func() []common.Address { return []common.Address{pool} }, consumer)

	victim := signedTx(t, mustKey(t, 1), pool, 10, 0)
	attacker := signedTx(t, mustKey(t, 2), pool, 200, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	b.Send(ingest.PendingTx{Hash: victim.Hash(), Tx: victim})
	time.Sleep(10 * time.Millisecond)
	b.Send(ingest.PendingTx{Hash: attacker.Hash(), Tx: attacker})
	time.Sleep(10 * time.Millisecond)

	tracked := m.Tracked(pool)
	if len(tracked) != 2 {
		t.Fatalf("expected 2 tracked txs, got %d", len(tracked))
	}
	if tracked[1].Reason != ReasonFrontrun {
		t.Fatalf("expected second arrival flagged as frontrun, got %v", tracked[1].Reason)
	}
}

func TestStuffingMonitorFlagsSandwichFrontLeg(t *testing.T) {
	pool := common.HexToAddress("0xPOOL")
	b := actor.NewBroadcaster[ingest.PendingTx](8)
	consumer, err := b.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	attackerKey := mustKey(t, 3)
	m := NewStuffingMonitor(func() []common.Address { return []common.Address{pool} }, consumer)

	front := signedTx(t, attackerKey, pool, 50, 0)
	back := signedTx(t, attackerKey, pool, 50, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	b.Send(ingest.PendingTx{Hash: front.Hash(), Tx: front})
	time.Sleep(10 * time.Millisecond)
	b.Send(ingest.PendingTx{Hash: back.Hash(), Tx: back})
	time.Sleep(10 * time.Millisecond)

	tracked := m.Tracked(pool)
	if len(tracked) != 2 {
		t.Fatalf("expected 2 tracked txs, got %d", len(tracked))
	}
	if tracked[1].Reason != ReasonSandwichFront {
		t.Fatalf("expected second same-sender arrival flagged as sandwich front leg, got %v", tracked[1].Reason)
	}
}

func TestStuffingMonitorIgnoresUntrackedPools(t *testing.T) {
	pool := common.HexToAddress("0xPOOL")
	other := common.HexToAddress("0x0123")
	b := actor.NewBroadcaster[ingest.PendingTx](8)
	consumer, err := b.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m := NewStuffingMonitor(func() []common.Address { return []common.Address{pool} }, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	tx := signedTx(t, mustKey(t, 4), other, 10, 0)
	b.Send(ingest.PendingTx{Hash: tx.Hash(), Tx: tx})
	time.Sleep(10 * time.Millisecond)

	if tracked := m.Tracked(other); len(tracked) != 0 {
		t.Fatalf("expected untracked pool to record nothing, got %d", len(tracked))
	}
}
