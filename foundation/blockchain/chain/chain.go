// Package chain maintains the in-memory index of every accepted block, the
// pool of orphan blocks waiting on a parent and the current tip. It owns the
// fork choice rule: the chain with the most cumulative difficulty wins and a
// tie never moves the tip away from the incumbent.
//
// An Index is not safe for concurrent use. The state package owns the one
// lock that guards it.
package chain

import (
	"bytes"
	"sort"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// Entry represents what the index knows about an accepted block. Entries are
// never mutated or removed once inserted, even when they end up on a losing
// fork.
type Entry struct {
	Hash       common.Hash
	PrevHash   common.Hash
	Number     uint32
	Difficulty uint32
	WorkSum    uint64 // Sum of the difficulty along the ancestry, this block included.
	StorageKey uint32 // Key of the block in the block store.
}

// PersistFunc stores a block and returns the key it was stored under.
type PersistFunc func(block database.Block) (uint32, error)

// Index maps block hashes to entries and tracks the orphan pool and tip.
type Index struct {
	entries map[common.Hash]Entry
	orphans map[common.Hash]database.Block
	tip     common.Hash
}

// New constructs an empty index. The tip is the zero hash until the first
// block is accepted.
func New() *Index {
	return &Index{
		entries: make(map[common.Hash]Entry),
		orphans: make(map[common.Hash]database.Block),
		tip:     database.ZeroHash,
	}
}

// Accept inserts the block into the index and moves the tip if the block's
// work sum is strictly greater than the tip's. This is the only place the tip
// changes. Accepting a hash that is already indexed returns the existing entry
// and changes nothing. The bool reports if a new entry was inserted.
func (idx *Index) Accept(block database.Block, storageKey uint32) (Entry, bool) {
	if entry, exists := idx.entries[block.Hash]; exists {
		return entry, false
	}

	// A block can be held as an orphan and also arrive once its parent is
	// known. It only lives in one place.
	delete(idx.orphans, block.Hash)

	var workSum uint64
	if parent, exists := idx.entries[block.Header.PrevHash]; exists {
		workSum = parent.WorkSum
	}
	workSum += uint64(block.Header.Difficulty)

	entry := Entry{
		Hash:       block.Hash,
		PrevHash:   block.Header.PrevHash,
		Number:     block.Header.Number,
		Difficulty: block.Header.Difficulty,
		WorkSum:    workSum,
		StorageKey: storageKey,
	}
	idx.entries[block.Hash] = entry

	tip, exists := idx.entries[idx.tip]
	if !exists || entry.WorkSum > tip.WorkSum {
		idx.tip = block.Hash
	}

	return entry, true
}

// AddOrphan holds a block whose parent is not yet indexed. Adding the same
// hash again replaces the held copy.
func (idx *Index) AddOrphan(block database.Block) {
	idx.orphans[block.Hash] = block
}

// IsOrphan reports if the hash is held in the orphan pool.
func (idx *Index) IsOrphan(hash common.Hash) bool {
	_, exists := idx.orphans[hash]
	return exists
}

// ReconnectOrphans promotes every orphan that descends from the specified
// parent, however deep, into the index. Each promoted block is persisted
// before it is accepted. The promoted blocks are returned in the order they
// were accepted, parents before children. If persist fails, the failing block
// stays in the orphan pool and the blocks promoted so far are returned with
// the error.
func (idx *Index) ReconnectOrphans(parent common.Hash, persist PersistFunc) ([]database.Block, error) {
	var promoted []database.Block

	stack := []common.Hash{parent}
	for len(stack) > 0 {
		hash := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, block := range idx.childrenOf(hash) {
			key, err := persist(block)
			if err != nil {
				return promoted, err
			}

			delete(idx.orphans, block.Hash)
			idx.Accept(block, key)
			promoted = append(promoted, block)

			stack = append(stack, block.Hash)
		}
	}

	return promoted, nil
}

// childrenOf returns the orphans whose parent is the specified hash, ordered
// by hash so a walk over siblings is repeatable.
func (idx *Index) childrenOf(hash common.Hash) []database.Block {
	var children []database.Block
	for _, block := range idx.orphans {
		if block.Header.PrevHash == hash {
			children = append(children, block)
		}
	}

	sort.Slice(children, func(i, j int) bool {
		return bytes.Compare(children[i].Hash[:], children[j].Hash[:]) < 0
	})

	return children
}

// =============================================================================

// Query returns the entry for the specified hash.
func (idx *Index) Query(hash common.Hash) (Entry, bool) {
	entry, exists := idx.entries[hash]
	return entry, exists
}

// Tip returns the hash of the currently selected best block.
func (idx *Index) Tip() common.Hash {
	return idx.tip
}

// TipEntry returns the entry of the currently selected best block. The bool
// is false before any block has been accepted.
func (idx *Index) TipEntry() (Entry, bool) {
	entry, exists := idx.entries[idx.tip]
	return entry, exists
}

// Chain walks from the tip back toward genesis returning at most limit
// entries, tip first. A limit of zero returns the whole chain.
func (idx *Index) Chain(limit int) []Entry {
	var entries []Entry

	hash := idx.tip
	for {
		entry, exists := idx.entries[hash]
		if !exists {
			break
		}

		entries = append(entries, entry)
		if limit > 0 && len(entries) == limit {
			break
		}

		hash = entry.PrevHash
	}

	return entries
}

// OnTipChain reports if the indexed block is an ancestor of, or is, the
// current tip. The walk stops at the block's height.
func (idx *Index) OnTipChain(hash common.Hash) bool {
	target, exists := idx.entries[hash]
	if !exists {
		return false
	}

	entry, exists := idx.entries[idx.tip]
	for exists && entry.Number > target.Number {
		entry, exists = idx.entries[entry.PrevHash]
	}

	return exists && entry.Hash == target.Hash
}

// Orphans returns a copy of the orphan pool ordered by height and then hash.
func (idx *Index) Orphans() []database.Block {
	orphans := make([]database.Block, 0, len(idx.orphans))
	for _, block := range idx.orphans {
		orphans = append(orphans, block)
	}

	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].Header.Number != orphans[j].Header.Number {
			return orphans[i].Header.Number < orphans[j].Header.Number
		}
		return bytes.Compare(orphans[i].Hash[:], orphans[j].Hash[:]) < 0
	})

	return orphans
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// OrphanCount returns the number of blocks held in the orphan pool.
func (idx *Index) OrphanCount() int {
	return len(idx.orphans)
}
