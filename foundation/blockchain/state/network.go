package state

import (
	"fmt"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ardanlabs/blocknode/foundation/blockchain/pow"
	"github.com/ethereum/go-ethereum/common"
)

// Outcome describes what happened to a block received from a peer.
type Outcome int

// Set of outcomes for a received block.
const (
	OutcomeDuplicate Outcome = iota
	OutcomeAccepted
	OutcomeOrphaned
)

// String implements the fmt.Stringer interface.
func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeOrphaned:
		return "orphaned"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// BlockResult is what the network layer needs to act on after a received
// block is processed.
type BlockResult struct {
	Outcome       Outcome
	Accepted      []database.Block // The block followed by every orphan it reconnected.
	MissingParent common.Hash      // Set when the block was orphaned.
	TipChanged    bool
}

// =============================================================================

// ProcessInv returns the announced hashes that are not in the index, in the
// order announced. One GETDATA is owed for each.
func (s *State) ProcessInv(hashes []common.Hash) []common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()

	var unknown []common.Hash
	for _, hash := range hashes {
		if _, exists := s.index.Query(hash); !exists {
			unknown = append(unknown, hash)
		}
	}

	return unknown
}

// ProcessGetData returns the indexed block for the hash. The bool is false
// when the block is not indexed, orphans are never served.
func (s *State) ProcessGetData(hash common.Hash) (database.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readBlock(hash)
}

// ProcessBlock takes a block received from a peer, validates it and if that
// passes, stores and indexes it. A block whose parent is unknown is held as
// an orphan and the missing parent is reported so it can be requested. A
// validation failure is returned as an error and nothing is stored.
func (s *State) ProcessBlock(block database.Block) (BlockResult, error) {
	result, err := s.processBlock(block)
	if err != nil {
		return BlockResult{}, err
	}

	// A nonce search on the old tip can only be discarded when it finishes,
	// so stop it now. This happens outside the lock.
	if w := s.registeredWorker(); result.TipChanged && w != nil {
		s.evHandler("state: ProcessBlock: signal mining to cancel")
		w.SignalCancelMining()
	}

	return result, nil
}

func (s *State) processBlock(block database.Block) (BlockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index.Query(block.Hash); exists {
		s.evHandler("state: ProcessBlock: duplicate: blk[%s]", block.Hash)
		return BlockResult{Outcome: OutcomeDuplicate}, nil
	}

	if err := pow.Validate(block, s.genesis.MiningDifficulty); err != nil {
		return BlockResult{}, err
	}

	if _, exists := s.index.Query(block.Header.PrevHash); !exists {
		s.index.AddOrphan(block)
		s.evHandler("state: ProcessBlock: orphaned: blk[%s] missing[%s] orphans[%d]", block.Hash, block.Header.PrevHash, s.index.OrphanCount())

		result := BlockResult{
			Outcome:       OutcomeOrphaned,
			MissingParent: block.Header.PrevHash,
		}
		return result, nil
	}

	accepted, tipChanged, err := s.acceptBlock(block)
	if err != nil {
		return BlockResult{}, err
	}

	s.evHandler("state: ProcessBlock: accepted: blk[%s] num[%d] reconnected[%d]", block.Hash, block.Header.Number, len(accepted)-1)

	result := BlockResult{
		Outcome:    OutcomeAccepted,
		Accepted:   accepted,
		TipChanged: tipChanged,
	}
	return result, nil
}

// acceptBlock stores and indexes a block whose parent is indexed and then
// reconnects any orphans waiting on it. The returned blocks start with the
// specified block. The caller must hold the lock.
func (s *State) acceptBlock(block database.Block) ([]database.Block, bool, error) {
	oldTip := s.index.Tip()

	key, err := s.db.Append(block)
	if err != nil {
		return nil, false, fmt.Errorf("storing blk[%s]: %w", block.Hash, err)
	}
	s.index.Accept(block, key)

	accepted := []database.Block{block}

	reconnected, err := s.index.ReconnectOrphans(block.Hash, s.db.Append)
	accepted = append(accepted, reconnected...)
	if err != nil {
		return accepted, s.index.Tip() != oldTip, fmt.Errorf("reconnecting orphans of blk[%s]: %w", block.Hash, err)
	}

	for _, b := range reconnected {
		s.evHandler("state: acceptBlock: reconnected orphan: blk[%s] num[%d]", b.Hash, b.Header.Number)
	}

	return accepted, s.index.Tip() != oldTip, nil
}

// readBlock reads the block for an indexed hash from storage. The caller
// must hold the lock.
func (s *State) readBlock(hash common.Hash) (database.Block, bool, error) {
	entry, exists := s.index.Query(hash)
	if !exists {
		return database.Block{}, false, nil
	}

	block, exists, err := s.db.Read(entry.StorageKey)
	if err != nil {
		return database.Block{}, false, err
	}
	if !exists {
		return database.Block{}, false, fmt.Errorf("%w: blk[%s] missing at key %d", database.ErrCorrupted, hash, entry.StorageKey)
	}

	return block, true, nil
}
