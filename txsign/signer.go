// Package txsign builds and signs the multicaller transaction for an
// approved swap and broadcasts it to configured relays (spec.md §4.I).
package txsign

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/eth2030/backrunner/estimate"
	"github.com/eth2030/backrunner/log"
	"github.com/eth2030/backrunner/swapenc"
)

// ErrUnknownAddress is returned when signing is requested for an
// address with no loaded key.
var ErrUnknownAddress = errors.New("txsign: address not in local keystore")

// NonceSource supplies the next nonce for a signer address, backed by
// nonman's fetcher/monitor (spec.md §4.I: "fetch nonce from J").
type NonceSource interface {
	Nonce(addr common.Address) uint64
}

// Signer holds a set of keys, initialized once at startup from an
// encrypted blob external to this package (spec.md §4.I), and signs
// approved swaps into broadcastable transactions. The key-map shape and
// Keccak256-before-sign convention are grounded on
// wyf-ACCEPT-eth2030/pkg/rpc/api_eth_extended.go's EthExtendedAPI.
type Signer struct {
	mu       sync.RWMutex
	keys     map[common.Address]*ecdsa.PrivateKey
	chainID  *big.Int
	nonces   NonceSource
	target   common.Address // the multicaller contract
	logger   *log.Logger
}

// NewSigner builds a Signer over an already-decrypted set of keys (the
// decryption step itself is an ambient startup concern outside this
// package's scope, per spec.md's "initialized once from an encrypted
// blob").
func NewSigner(keys []*ecdsa.PrivateKey, chainID *big.Int, nonces NonceSource, multicaller common.Address) *Signer {
	m := make(map[common.Address]*ecdsa.PrivateKey, len(keys))
	for _, k := range keys {
		m[crypto.PubkeyToAddress(k.PublicKey)] = k
	}
	return &Signer{
		keys:    m,
		chainID: chainID,
		nonces:  nonces,
		target:  multicaller,
		logger:  log.Default().Module("txsign.signer"),
	}
}

// Addresses returns every address the signer holds a key for.
func (s *Signer) Addresses() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Address, 0, len(s.keys))
	for addr := range s.keys {
		out = append(out, addr)
	}
	return out
}

// SignSwap builds and signs an EIP-1559 transaction to the multicaller
// carrying the plan's calldata, using from's key and the next nonce from
// the nonce source (spec.md §4.I).
func (s *Signer) SignSwap(from common.Address, plan *swapenc.Plan, est *estimate.Result, gasLimit uint64) (*types.Transaction, error) {
	s.mu.RLock()
	key, ok := s.keys[from]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAddress
	}

	nonce := s.nonces.Nonce(from)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		To:        &s.target,
		Gas:       gasLimit,
		GasFeeCap: est.MaxFee,
		GasTipCap: est.PriorityFee,
		Value:     big.NewInt(0),
		Data:      plan.Calldata,
	})

	signer := types.LatestSignerForChainID(s.chainID)
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		return nil, fmt.Errorf("txsign: sign: %w", err)
	}
	s.logger.Debug("signed backrun tx", "from", from, "nonce", nonce, "hash", signed.Hash())
	return signed, nil
}

// SignSwapLegacy builds and signs a legacy transaction instead, for
// chains/relays that reject EIP-1559 bundles.
func (s *Signer) SignSwapLegacy(from common.Address, plan *swapenc.Plan, gasPrice *big.Int, gasLimit uint64) (*types.Transaction, error) {
	s.mu.RLock()
	key, ok := s.keys[from]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAddress
	}

	nonce := s.nonces.Nonce(from)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.target,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     plan.Calldata,
	})

	signer := types.LatestSignerForChainID(s.chainID)
	signed, err := types.SignTx(tx, signer, key)
	if err != nil {
		return nil, fmt.Errorf("txsign: sign legacy: %w", err)
	}
	return signed, nil
}
