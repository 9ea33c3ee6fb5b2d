package txsign

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/eth2030/backrunner/estimate"
	"github.com/eth2030/backrunner/swapenc"
)

type fixedNonces struct{ n uint64 }

func (f fixedNonces) Nonce(common.Address) uint64 { return f.n }

func TestSignSwapProducesRecoverableSender(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	multicaller := common.HexToAddress("0xMULTI")
	chainID := big.NewInt(1)

	s := NewSigner([]*ecdsa.PrivateKey{key}, chainID, fixedNonces{n: 5}, multicaller)

	plan := &swapenc.Plan{Calldata: []byte{0x01, 0x02}}
	est := &estimate.Result{MaxFee: big.NewInt(30_000_000_000), PriorityFee: big.NewInt(2_000_000_000)}

	tx, err := s.SignSwap(from, plan, est, 300_000)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	signer := types.LatestSignerForChainID(chainID)
	sender, err := types.Sender(signer, tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != from {
		t.Fatalf("expected sender %s, got %s", from, sender)
	}
	if tx.Nonce() != 5 {
		t.Fatalf("expected nonce 5, got %d", tx.Nonce())
	}
}

func TestSignSwapUnknownAddressFails(t *testing.T) {
	key, _ := crypto.GenerateKey()
	multicaller := common.HexToAddress("0xMULTI")
	s := NewSigner([]*ecdsa.PrivateKey{key}, big.NewInt(1), fixedNonces{}, multicaller)

	unknown := common.HexToAddress("0xDEAD")
	_, err := s.SignSwap(unknown, &swapenc.Plan{}, &estimate.Result{MaxFee: big.NewInt(1), PriorityFee: big.NewInt(1)}, 21000)
	if err != ErrUnknownAddress {
		t.Fatalf("expected ErrUnknownAddress, got %v", err)
	}
}

func TestSignSwapLegacyProducesRecoverableSender(t *testing.T) {
	key, _ := crypto.GenerateKey()
	from := crypto.PubkeyToAddress(key.PublicKey)
	multicaller := common.HexToAddress("0xMULTI")
	chainID := big.NewInt(1)
	s := NewSigner([]*ecdsa.PrivateKey{key}, chainID, fixedNonces{n: 1}, multicaller)

	tx, err := s.SignSwapLegacy(from, &swapenc.Plan{Calldata: []byte{0xAA}}, big.NewInt(20_000_000_000), 21000)
	if err != nil {
		t.Fatalf("sign legacy failed: %v", err)
	}
	signer := types.LatestSignerForChainID(chainID)
	sender, err := types.Sender(signer, tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != from {
		t.Fatalf("expected sender %s, got %s", from, sender)
	}
}
