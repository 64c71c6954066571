package state

import (
	"errors"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// ErrTipMoved is returned when a mined block is committed but the tip it was
// mined on is no longer the tip. The block is discarded and mining restarts
// on the new tip.
var ErrTipMoved = errors.New("tip moved while mining")

// Snapshot captures what is needed to mine the next block without holding
// the lock.
type Snapshot struct {
	Tip        common.Hash
	Number     uint32 // Height of the block to mine.
	Difficulty uint32
}

// MiningSnapshot returns the current tip and the height and difficulty of
// the block to mine on top of it.
func (s *State) MiningSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, _ := s.index.TipEntry()

	return Snapshot{
		Tip:        tip.Hash,
		Number:     tip.Number + 1,
		Difficulty: s.genesis.MiningDifficulty,
	}
}

// CommitMinedBlock stores and indexes a block mined on the snapshot. If the
// tip changed while the lock was released the block is discarded and
// ErrTipMoved is returned. The returned blocks start with the mined block and
// are the ones to announce to peers.
func (s *State) CommitMinedBlock(snap Snapshot, block database.Block) ([]database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index.Query(snap.Tip); !exists || s.index.Tip() != snap.Tip {
		s.evHandler("state: CommitMinedBlock: discarded: blk[%s] snapshot[%s] tip[%s]", block.Hash, snap.Tip, s.index.Tip())
		return nil, ErrTipMoved
	}

	accepted, _, err := s.acceptBlock(block)
	if err != nil {
		return accepted, err
	}

	s.evHandler("state: CommitMinedBlock: accepted: blk[%s] num[%d]", block.Hash, block.Header.Number)

	return accepted, nil
}
