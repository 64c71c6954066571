// Package worker implements mining and peer updates for the blockchain.
package worker

import (
	"sync"
	"time"

	"github.com/ardanlabs/blocknode/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common"
)

// Network represents the peer operations the worker drives.
type Network interface {
	BroadcastInv(hashes []common.Hash)
	Scan()
}

// Config represents the configuration for the background work.
type Config struct {
	Mine         bool
	ScanInterval time.Duration // Zero disables the periodic rescan.
}

// =============================================================================

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state        *state.State
	network      Network
	cfg          Config
	wg           sync.WaitGroup
	ticker       *time.Ticker
	shut         chan struct{}
	cancelMining chan bool
	evHandler    state.EventHandler
	shutOnce     sync.Once
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, network Network, cfg Config, evHandler state.EventHandler) *Worker {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	w := Worker{
		state:        st,
		network:      network,
		cfg:          cfg,
		shut:         make(chan struct{}),
		cancelMining: make(chan bool, 1),
		evHandler:    evHandler,
	}

	if cfg.ScanInterval > 0 {
		w.ticker = time.NewTicker(cfg.ScanInterval)
	}

	// Register this worker with the state package.
	st.RegisterWorker(&w)

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
	}
	if cfg.Mine {
		operations = append(operations, w.miningOperations)
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work. It is safe to call
// more than once.
func (w *Worker) Shutdown() {
	w.shutOnce.Do(func() {
		w.evHandler("worker: shutdown: started")
		defer w.evHandler("worker: shutdown: completed")

		if w.ticker != nil {
			w.evHandler("worker: shutdown: stop ticker")
			w.ticker.Stop()
		}

		w.evHandler("worker: shutdown: signal cancel mining")
		w.SignalCancelMining()

		w.evHandler("worker: shutdown: terminate goroutines")
		close(w.shut)
		w.wg.Wait()
	})
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately. If a signal is already pending, just return.
func (w *Worker) SignalCancelMining() {
	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
