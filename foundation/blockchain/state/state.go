// Package state is the core API for the blockchain and implements all the
// business rules and processing. There is one State value per node, shared by
// the mining worker and every peer connection, and one lock guards the chain
// index and block store behind it.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/blocknode/foundation/blockchain/chain"
	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ardanlabs/blocknode/foundation/blockchain/genesis"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and peer updates.
type Worker interface {
	Shutdown()
	SignalCancelMining()
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Storage   database.Storage
	Genesis   genesis.Genesis
	EvHandler EventHandler
}

// State manages the blockchain database.
type State struct {
	evHandler EventHandler
	genesis   genesis.Genesis

	mu    sync.Mutex
	db    *database.Database
	index *chain.Index

	workerMu sync.RWMutex
	worker   Worker
}

// New constructs a new blockchain for data management. The chain index is
// rebuilt from every block in storage. If storage is empty the genesis block
// is created.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	db, err := database.New(cfg.Storage)
	if err != nil {
		return nil, err
	}

	state := State{
		evHandler: ev,
		genesis:   cfg.Genesis,
		db:        db,
		index:     chain.New(),
	}

	if err := state.rebuild(); err != nil {
		return nil, err
	}

	// The Worker is not set here. The call to worker.Run will register itself
	// and start everything up and running for the node.

	return &state, nil
}

// rebuild accepts every stored block into the index in key order. Blocks
// are only ever stored after their parent, so key order replays the same
// sequence of accepts the node made while running and selects the same tip.
func (s *State) rebuild() error {
	s.evHandler("state: rebuild: started")

	iter := s.db.ForEach()
	for key, block, err := iter.Next(); !iter.Done(); key, block, err = iter.Next() {
		if err != nil {
			return fmt.Errorf("rebuild: key[%d]: %w", key, err)
		}

		s.index.Accept(block, key)
	}

	if s.index.Len() == 0 {
		block := s.genesis.Block()

		key, err := s.db.Append(block)
		if err != nil {
			return fmt.Errorf("storing genesis: %w", err)
		}
		s.index.Accept(block, key)

		s.evHandler("state: rebuild: created genesis: blk[%s]", block.Hash)
	}

	tip, _ := s.index.TipEntry()
	s.evHandler("state: rebuild: completed: blocks[%d] tip[%s] height[%d] work[%d]", s.index.Len(), tip.Hash, tip.Number, tip.WorkSum)

	return nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if w := s.registeredWorker(); w != nil {
		w.Shutdown()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Make sure the database file is properly closed.
	return s.db.Close()
}

// RegisterWorker sets the worker the state signals when the tip moves. Peer
// connections may already be calling into the state when this happens.
func (s *State) RegisterWorker(w Worker) {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()

	s.worker = w
}

func (s *State) registeredWorker() Worker {
	s.workerMu.RLock()
	defer s.workerMu.RUnlock()

	return s.worker
}

// Genesis returns the genesis settings the node runs with.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// IsCorruption reports if the error came from a stored record that could not
// be decoded. The node can't run on a corrupt store.
func IsCorruption(err error) bool {
	return errors.Is(err, database.ErrCorrupted)
}
