package state

import (
	"github.com/ardanlabs/blocknode/foundation/blockchain/chain"
	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// Status is a summary of the node's view of the chain.
type Status struct {
	Tip              common.Hash
	Height           uint32
	WorkSum          uint64
	Blocks           int
	Orphans          int
	StoredBlocks     uint32
	MiningDifficulty uint32
}

// QueryEntry returns the index entry for the hash.
func (s *State) QueryEntry(hash common.Hash) (chain.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index.Query(hash)
}

// BlockInfo is an indexed block with its place in the chain.
type BlockInfo struct {
	Block      database.Block
	Entry      chain.Entry
	OnTipChain bool
}

// QueryBlock returns the indexed block for the hash with its entry and
// whether it is on the chain ending at the tip. If the block is not indexed
// database.ErrNotFound is returned.
func (s *State) QueryBlock(hash common.Hash) (BlockInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, exists, err := s.readBlock(hash)
	if err != nil {
		return BlockInfo{}, err
	}
	if !exists {
		return BlockInfo{}, database.ErrNotFound
	}

	entry, _ := s.index.Query(hash)

	info := BlockInfo{
		Block:      block,
		Entry:      entry,
		OnTipChain: s.index.OnTipChain(hash),
	}

	return info, nil
}

// QueryChain returns up to limit entries from the tip back toward genesis.
// A limit of zero returns the whole chain.
func (s *State) QueryChain(limit int) []chain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index.Chain(limit)
}

// RetrieveTip returns the entry of the current tip.
func (s *State) RetrieveTip() chain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, _ := s.index.TipEntry()
	return tip
}

// RetrieveOrphans returns a copy of the blocks waiting on a parent.
func (s *State) RetrieveOrphans() []database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index.Orphans()
}

// Status returns a summary of the chain.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, _ := s.index.TipEntry()

	return Status{
		Tip:              tip.Hash,
		Height:           tip.Number,
		WorkSum:          tip.WorkSum,
		Blocks:           s.index.Len(),
		Orphans:          s.index.OrphanCount(),
		StoredBlocks:     s.db.Count(),
		MiningDifficulty: s.genesis.MiningDifficulty,
	}
}
