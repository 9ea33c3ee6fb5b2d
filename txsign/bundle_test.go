package txsign

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func mustSignedLegacyTx(t *testing.T, nonce uint64) *types.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &common.Address{},
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
		Value:    big.NewInt(0),
	})
	signer := types.LatestSignerForChainID(big.NewInt(1))
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestBundleValidateRejectsEmpty(t *testing.T) {
	b := &FlashbotsBundle{}
	if err := b.Validate(); err != ErrEmptyBundle {
		t.Fatalf("expected ErrEmptyBundle, got %v", err)
	}
}

func TestBundleValidateRejectsOverLarge(t *testing.T) {
	txs := make([]*types.Transaction, MaxBundleSize+1)
	for i := range txs {
		txs[i] = mustSignedLegacyTx(t, uint64(i))
	}
	b := &FlashbotsBundle{Transactions: txs}
	if err := b.Validate(); err != ErrBundleTooLarge {
		t.Fatalf("expected ErrBundleTooLarge, got %v", err)
	}
}

func TestBundleValidateAcceptsWellFormed(t *testing.T) {
	b := NewSingleTxBundle(mustSignedLegacyTx(t, 0), 100)
	if err := b.Validate(); err != nil {
		t.Fatalf("expected valid bundle, got %v", err)
	}
}

func TestBundleIsValidAtTimeRespectsWindow(t *testing.T) {
	b := &FlashbotsBundle{MinTimestamp: 100, MaxTimestamp: 200}
	if b.IsValidAtTime(50) {
		t.Fatalf("expected false before MinTimestamp")
	}
	if !b.IsValidAtTime(150) {
		t.Fatalf("expected true inside window")
	}
	if b.IsValidAtTime(250) {
		t.Fatalf("expected false after MaxTimestamp")
	}
}

func TestBundleIsValidAtTimeUnboundedWhenZero(t *testing.T) {
	b := &FlashbotsBundle{}
	if !b.IsValidAtTime(0) || !b.IsValidAtTime(1_000_000) {
		t.Fatalf("expected unbounded window to accept any timestamp")
	}
}

func TestBundleTotalGasSumsAllTransactions(t *testing.T) {
	b := &FlashbotsBundle{Transactions: []*types.Transaction{
		mustSignedLegacyTx(t, 0),
		mustSignedLegacyTx(t, 1),
	}}
	if got := b.TotalGas(); got != 42000 {
		t.Fatalf("expected 42000, got %d", got)
	}
}

func TestBundleIsRevertAllowed(t *testing.T) {
	tx := mustSignedLegacyTx(t, 0)
	b := &FlashbotsBundle{RevertingTxHashes: []common.Hash{tx.Hash()}}
	if !b.IsRevertAllowed(tx.Hash()) {
		t.Fatalf("expected tx hash to be revert-allowed")
	}
	other := mustSignedLegacyTx(t, 1)
	if b.IsRevertAllowed(other.Hash()) {
		t.Fatalf("expected unrelated hash to not be revert-allowed")
	}
}
