package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/blocknode/foundation/blockchain/pow"
	"github.com/ardanlabs/blocknode/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common"
)

// miningOperations mines blocks back to back until shutdown.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for !w.isShutdown() {
		w.runMiningOperation()
	}

	w.evHandler("worker: miningOperations: received shut signal")
}

// runMiningOperation mines one block on a snapshot of the tip and commits it.
// The nonce search runs without the chain lock. If the tip moves while it
// runs, the search is cancelled or the commit discards the block.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	snap := w.state.MiningSnapshot()

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-w.shut:
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		block, err := pow.Mine(ctx, snap.Tip, snap.Number, snap.Difficulty, pow.EventHandler(w.evHandler))
		duration := time.Since(t)

		w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", duration)

		if err != nil {
			switch {
			case ctx.Err() != nil:
				w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
			default:
				w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
			}
			return
		}

		accepted, err := w.state.CommitMinedBlock(snap, block)
		if err != nil {
			switch {
			case errors.Is(err, state.ErrTipMoved):
				w.evHandler("worker: runMiningOperation: MINING: tip moved, block discarded")
				return
			default:
				w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
			}
		}

		if len(accepted) == 0 {
			return
		}

		// WOW, we mined a block. Announce it to the network.
		hashes := make([]common.Hash, len(accepted))
		for i, b := range accepted {
			hashes[i] = b.Hash
		}
		w.network.BroadcastInv(hashes)
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
