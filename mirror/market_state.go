package mirror

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/VictoriaMetrics/fastcache"

	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
)

// MarketState is the in-memory EVM account/storage mirror described in
// spec.md's DATA MODEL and §4.C. All mutation happens under an exclusive
// write lock (Apply, AddForceInsert, DisableCell); reads and clones
// may run concurrently under a read lock.
type MarketState struct {
	mu                  sync.RWMutex
	accounts            map[common.Address]*account
	forceInsertAccounts map[common.Address]bool
	readOnlyCells       *lru.Cache // address||slot -> sentinel byte
	logger              *log.Logger
}

// NewMarketState creates an empty mirror. readOnlyCellsBytes bounds the
// memory used by the read-only-cell set (SPEC_FULL §11: backed by
// VictoriaMetrics/fastcache instead of an unbounded map).
func NewMarketState(readOnlyCellsBytes int) *MarketState {
	if readOnlyCellsBytes <= 0 {
		readOnlyCellsBytes = 8 * 1024 * 1024
	}
	return &MarketState{
		accounts:            make(map[common.Address]*account),
		forceInsertAccounts: make(map[common.Address]bool),
		readOnlyCells:       lru.New(readOnlyCellsBytes),
		logger:              log.Default().Module("mirror"),
	}
}

// AccountsLen returns the number of accounts currently mirrored.
func (m *MarketState) AccountsLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// StorageLen returns the total number of mirrored storage slots across all
// accounts.
func (m *MarketState) StorageLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.accounts {
		n += len(a.storage)
	}
	return n
}

// IsAccount reports whether an address has ever been loaded.
func (m *MarketState) IsAccount(addr common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[addr]
	return ok
}

// IsSlot reports whether a storage slot is present for an address.
func (m *MarketState) IsSlot(addr common.Address, slot common.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[addr]
	if !ok {
		return false
	}
	_, ok = a.storage[slot]
	return ok
}

// AddForceInsert marks an address as bypassing the touched-only update
// policy: its account info is always applied regardless of insert/only_new.
func (m *MarketState) AddForceInsert(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceInsertAccounts[addr] = true
}

// IsForceInsert reports whether an address bypasses the touched-only
// policy.
func (m *MarketState) IsForceInsert(addr common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forceInsertAccounts[addr]
}

// DisableCell marks a storage slot as read-only: state-apply will never
// overwrite it again (spec.md invariant iii).
func (m *MarketState) DisableCell(addr common.Address, slot common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnlyCells.Set(cellKey(addr, slot), []byte{1})
}

// IsReadOnlyCell reports whether a slot has been disabled.
func (m *MarketState) IsReadOnlyCell(addr common.Address, slot common.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readOnlyCells.Has(cellKey(addr, slot))
}

func cellKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, common.AddressLength+common.HashLength)
	copy(key, addr.Bytes())
	copy(key[common.AddressLength:], slot.Bytes())
	return key
}

// loadAccount returns the account record for addr, creating it with state
// NotExisting if it has never been seen. Caller must hold m.mu.
func (m *MarketState) loadAccount(addr common.Address) *account {
	a, ok := m.accounts[addr]
	if !ok {
		a = newAccount()
		m.accounts[addr] = a
	}
	return a
}

// Storage returns a storage slot's mirrored value, or zero if unset.
func (m *MarketState) Storage(addr common.Address, slot common.Hash) common.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[addr]
	if !ok {
		return common.Hash{}
	}
	return a.storage[slot]
}

// Balance returns an account's mirrored balance, or zero if unknown.
func (m *MarketState) Balance(addr common.Address) *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(a.info.Balance)
}

// InsertAccountInfo unconditionally sets an account's info, marking it
// Touched. Used by loaders seeding pool accounts at insert=true.
func (m *MarketState) InsertAccountInfo(addr common.Address, info AccountInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.loadAccount(addr)
	a.info = info
	a.state = Touched
}

// InsertAccountStorage unconditionally sets a storage slot, promoting a
// NotExisting account to Touched (invariant i).
func (m *MarketState) InsertAccountStorage(addr common.Address, slot, value common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnlyCells.Has(cellKey(addr, slot)) {
		return
	}
	a := m.loadAccount(addr)
	a.storage[slot] = value
	if a.state == NotExisting {
		a.state = Touched
	}
}

// Apply replays a GethStateUpdate into the mirror under an exclusive write
// lock, following spec.md §4.C's insert/only_new matrix. Each account diff
// is applied on its own; a nil Balance or Nonce in a diff leaves the
// mirrored value unchanged.
func (m *MarketState) Apply(update *ingest.GethStateUpdate, insert, onlyNew bool) {
	if update == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, diff := range update.Accounts {
		m.applyAccountInfo(diff, insert, onlyNew)
		m.applyAccountStorage(diff, insert, onlyNew)
	}
}

// shouldApply implements the two-boolean matrix from spec.md §4.C:
//
//	NotExisting/None + insert    -> apply
//	NotExisting/None + only_new  -> apply
//	NotExisting/None + neither   -> skip
//	Touched/StorageCleared + insert -> apply
//	Touched/StorageCleared + only_new -> skip
//	Touched/StorageCleared + neither  -> apply
func shouldApply(state AccountState, insert, onlyNew bool) bool {
	if insert {
		return true
	}
	fresh := state == NotExisting || state == None
	if fresh {
		return onlyNew
	}
	return !onlyNew
}

func (m *MarketState) applyAccountInfo(diff ingest.AccountDiff, insert, onlyNew bool) {
	a := m.loadAccount(diff.Address)
	force := m.forceInsertAccounts[diff.Address]

	if force || shouldApply(a.state, insert, onlyNew) {
		code := a.info.Code
		if len(diff.Code) >= 2 {
			code = append([]byte(nil), diff.Code...)
		}

		balance := a.info.Balance
		if diff.Balance != nil {
			balance = new(big.Int).Set(diff.Balance)
		} else if balance == nil {
			balance = new(big.Int)
		}

		nonce := a.info.Nonce
		if diff.Nonce != nil {
			nonce = *diff.Nonce
		}

		a.info = AccountInfo{
			Balance:  balance,
			Nonce:    nonce,
			Code:     code,
			CodeHash: KeccakEmpty,
		}
		a.state = Touched
	} else {
		m.logger.Debug("apply_account_info skipped (matrix)", "address", diff.Address, "state", a.state)
	}
}

func (m *MarketState) applyAccountStorage(diff ingest.AccountDiff, insert, onlyNew bool) {
	if len(diff.Storage) == 0 {
		return
	}
	a := m.loadAccount(diff.Address)

	for slot, value := range diff.Storage {
		if m.readOnlyCells.Has(cellKey(diff.Address, slot)) {
			continue
		}
		if insert {
			a.storage[slot] = value
			continue
		}
		_, present := a.storage[slot]
		if present && !onlyNew {
			a.storage[slot] = value
		} else if !present && onlyNew {
			a.storage[slot] = value
		}
	}
}

// MergeDB composites an external simulation's mirror back into this one:
// every account absent locally is inserted wholesale, and every storage
// slot whose local value differs is overwritten (spec.md §4.C merge_db).
// Read-only cells are still respected.
func (m *MarketState) MergeDB(other *MarketState) {
	other.mu.RLock()
	snapshot := make(map[common.Address]*account, len(other.accounts))
	for addr, a := range other.accounts {
		snapshot[addr] = a.clone()
	}
	other.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	for addr, a := range snapshot {
		if _, ok := m.accounts[addr]; !ok {
			m.accounts[addr] = a.clone()
			continue
		}
		local := m.accounts[addr]
		for slot, value := range a.storage {
			if m.readOnlyCells.Has(cellKey(addr, slot)) {
				continue
			}
			if cur, ok := local.storage[slot]; !ok || cur != value {
				local.storage[slot] = value
			}
		}
	}
}

// Clone returns a cheap independent copy for simulation. Mutations to the
// clone never bleed back into the live mirror (invariant ii).
func (m *MarketState) Clone() *MarketState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp := &MarketState{
		accounts:            make(map[common.Address]*account, len(m.accounts)),
		forceInsertAccounts: make(map[common.Address]bool, len(m.forceInsertAccounts)),
		readOnlyCells:       m.readOnlyCells, // read-only policy is shared, never mutated by simulations
		logger:              m.logger,
	}
	for addr, a := range m.accounts {
		cp.accounts[addr] = a.clone()
	}
	for addr, v := range m.forceInsertAccounts {
		cp.forceInsertAccounts[addr] = v
	}
	return cp
}
