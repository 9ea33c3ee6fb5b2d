// Package blockhist keeps a bounded ring of recently seen blocks keyed
// by hash, with a "tip" pointer naming the current best chain head
// (spec.md §4.L).
package blockhist

import (
	"container/list"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2030/backrunner/ingest"
	"github.com/eth2030/backrunner/log"
)

// Entry is one block's cached record. Block and StateUpdate are
// optional: they're filled in as the corresponding ingest messages
// arrive, which may be after the entry is first created from a header.
type Entry struct {
	Hash        common.Hash
	Header      *types.Header
	Block       *types.Block
	StateUpdate *ingest.GethStateUpdate
}

// History is a bounded, hash-keyed FIFO ring of recent blocks. Eviction
// order and hash lookup are modeled on
// wyf-ACCEPT-eth2030/pkg/p2p/portal/content_db.go's ContentDB: a
// map[hash]*list.Element paired with a container/list for O(1)
// insert/evict/lookup, generalized here from ContentDB's byte-budget
// eviction to a fixed entry-count bound (spec.md §4.L: "size bound is
// configured; oldest evicted FIFO").
type History struct {
	mu       sync.Mutex
	capacity int
	entries  map[common.Hash]*list.Element
	order    *list.List // front = newest, back = oldest
	tip      common.Hash
	logger   *log.Logger
}

// NewHistory builds a History bounded to capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 256
	}
	return &History{
		capacity: capacity,
		entries:  make(map[common.Hash]*list.Element),
		order:    list.New(),
		logger:   log.Default().Module("blockhist"),
	}
}

// Len returns the number of entries currently retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.order.Len()
}

// Tip returns the hash of the current best chain head, and whether one
// has been established yet.
func (h *History) Tip() (common.Hash, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tip == (common.Hash{}) {
		return common.Hash{}, false
	}
	return h.tip, true
}

// Get returns a copy of the entry for hash, if retained.
func (h *History) Get(hash common.Hash) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	elem, ok := h.entries[hash]
	if !ok {
		return Entry{}, false
	}
	return *elem.Value.(*Entry), true
}

// InsertHeader records a new block header, evicting the oldest entry
// if the ring is at capacity, and updates the tip pointer per the
// total-difficulty rule (spec.md S6).
func (h *History) InsertHeader(hash common.Hash, header *types.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if elem, ok := h.entries[hash]; ok {
		elem.Value.(*Entry).Header = header
		h.order.MoveToFront(elem)
		h.updateTipLocked(hash)
		return
	}

	h.evictIfFullLocked()

	elem := h.order.PushFront(&Entry{Hash: hash, Header: header})
	h.entries[hash] = elem
	h.updateTipLocked(hash)
}

// InsertBlock attaches a fully fetched block to an existing or new
// entry.
func (h *History) InsertBlock(hash common.Hash, block *types.Block) {
	h.mu.Lock()
	defer h.mu.Unlock()
	elem := h.loadOrCreateLocked(hash, block.Header())
	entry := elem.Value.(*Entry)
	entry.Block = block
	if entry.Header == nil {
		entry.Header = block.Header()
	}
	h.order.MoveToFront(elem)
	h.updateTipLocked(hash)
}

// InsertStateUpdate attaches a block's state diff to an existing entry.
// An update for a hash not in the ring is dropped; no entry is created.
func (h *History) InsertStateUpdate(hash common.Hash, update *ingest.GethStateUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	elem, ok := h.entries[hash]
	if !ok {
		return
	}
	elem.Value.(*Entry).StateUpdate = update
	h.order.MoveToFront(elem)
}

func (h *History) loadOrCreateLocked(hash common.Hash, header *types.Header) *list.Element {
	if elem, ok := h.entries[hash]; ok {
		return elem
	}
	h.evictIfFullLocked()
	elem := h.order.PushFront(&Entry{Hash: hash, Header: header})
	h.entries[hash] = elem
	return elem
}

func (h *History) evictIfFullLocked() {
	for h.order.Len() >= h.capacity {
		back := h.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*Entry)
		h.order.Remove(back)
		delete(h.entries, entry.Hash)
	}
}

// updateTipLocked recomputes the candidate entry's total difficulty by
// walking parent links still present in the ring, and moves the tip to
// it if that total exceeds the current tip's (spec.md S6: "the 'tip'
// pointer updates to the higher total-difficulty entry").
func (h *History) updateTipLocked(hash common.Hash) {
	if h.tip == (common.Hash{}) {
		h.tip = hash
		return
	}
	if h.totalDifficultyLocked(hash).Cmp(h.totalDifficultyLocked(h.tip)) > 0 {
		h.tip = hash
	}
}

func (h *History) totalDifficultyLocked(hash common.Hash) *big.Int {
	total := new(big.Int)
	seen := make(map[common.Hash]bool)
	for {
		if seen[hash] {
			break
		}
		seen[hash] = true
		elem, ok := h.entries[hash]
		if !ok {
			break
		}
		header := elem.Value.(*Entry).Header
		if header == nil {
			break
		}
		if header.Difficulty != nil {
			total.Add(total, header.Difficulty)
		}
		hash = header.ParentHash
	}
	return total
}
