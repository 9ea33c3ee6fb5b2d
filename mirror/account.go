// Package mirror implements the in-memory EVM state database that the rest
// of the pipeline simulates swaps against: an account/storage mirror kept
// in sync with chain tip by replaying debug-trace state diffs under the
// insert/only_new layering policy (spec.md §4.C).
package mirror

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeccakEmpty is the code hash of an account with no code, the sentinel
// the mirror assigns to every account (contract bytecode is never executed
// by this mirror, so a real code hash is never computed).
var KeccakEmpty = crypto.Keccak256Hash(nil)

// AccountState is the lifecycle marker spec.md §4.C's apply matrix keys
// off of.
type AccountState int

const (
	// NotExisting means the mirror has never heard of this account.
	NotExisting AccountState = iota
	// None means the account slot was created but never written.
	None
	// Touched means at least one state-apply has written this account.
	Touched
	// StorageCleared means the account's storage was wiped (e.g. self-destruct
	// semantics in the traced block), and per the matrix is treated the same
	// as Touched for apply purposes.
	StorageCleared
)

// AccountInfo mirrors a subset of account fields the mirror tracks:
// balance, nonce, and code. Code hash is always KeccakEmpty because the
// mirror never interprets bytecode.
type AccountInfo struct {
	Balance  *big.Int
	Nonce    uint64
	Code     []byte
	CodeHash common.Hash
}

// account is the mirror's internal per-address record.
type account struct {
	info    AccountInfo
	storage map[common.Hash]common.Hash
	state   AccountState
}

func newAccount() *account {
	return &account{
		info:    AccountInfo{Balance: new(big.Int), CodeHash: KeccakEmpty},
		storage: make(map[common.Hash]common.Hash),
		state:   NotExisting,
	}
}

func (a *account) clone() *account {
	cp := &account{
		info: AccountInfo{
			Balance:  new(big.Int).Set(a.info.Balance),
			Nonce:    a.info.Nonce,
			CodeHash: a.info.CodeHash,
		},
		storage: make(map[common.Hash]common.Hash, len(a.storage)),
		state:   a.state,
	}
	if a.info.Code != nil {
		cp.info.Code = append([]byte(nil), a.info.Code...)
	}
	for k, v := range a.storage {
		cp.storage[k] = v
	}
	return cp
}
