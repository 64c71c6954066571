package p2p_test

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ardanlabs/blocknode/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/blocknode/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocknode/foundation/blockchain/p2p"
	"github.com/ardanlabs/blocknode/foundation/blockchain/pow"
	"github.com/ardanlabs/blocknode/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// testGenesis keeps mining fast.
var testGenesis = genesis.Genesis{Difficulty: 100, MiningDifficulty: 4}

func ifErrFailNow(t *testing.T, err error) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

// =============================================================================

func Test_InvRequestsUnknown(t *testing.T) {
	t.Log("Given the need to request only the announced blocks we don't have.")
	{
		st := newState(t)
		g := st.RetrieveTip().Hash
		b1 := mineOne(t, st)

		n := startNode(t, st)

		conn, err := net.Dial("tcp", n.Addr())
		ifErrFailNow(t, err)
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))

		unknown := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02"), common.HexToHash("0x03")}
		inv, err := p2p.NewInv([]common.Hash{unknown[0], g, unknown[1], b1.Hash, unknown[2]})
		ifErrFailNow(t, err)

		// The GETDATA for a known block is answered after every reply to the
		// INV, so its BLOCK marks the end of them.
		conn.Write(inv.Format())
		conn.Write(p2p.NewGetData(b1.Hash).Format())

		var requested []common.Hash
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			ifErrFailNow(t, err)

			msg, err := p2p.ParseMessage(line)
			ifErrFailNow(t, err)

			if msg.Command == p2p.CmdBlock {
				block, err := p2p.DecodeBlock(msg.Payload)
				ifErrFailNow(t, err)
				if block != b1 {
					t.Fatalf("\t%s\tShould serve the requested block.", failed)
				}
				break
			}

			if msg.Command != p2p.CmdGetData {
				t.Fatalf("\t%s\tShould only receive GETDATA, got %s.", failed, msg.Command)
			}

			hash, err := p2p.DecodeGetData(msg.Payload)
			ifErrFailNow(t, err)
			requested = append(requested, hash)
		}

		if len(requested) != len(unknown) {
			t.Fatalf("\t%s\tShould send %d GETDATA, got %d.", failed, len(unknown), len(requested))
		}
		for i := range unknown {
			if requested[i] != unknown[i] {
				t.Fatalf("\t%s\tShould request each unknown hash once.", failed)
			}
		}
		t.Logf("\t%s\tShould send one GETDATA per unknown hash.", success)
	}
}

func Test_ConnectAck(t *testing.T) {
	t.Log("Given the need to answer a CONNECT.")
	{
		st := newState(t)
		n := startNode(t, st)

		conn, err := net.Dial("tcp", n.Addr())
		ifErrFailNow(t, err)
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))

		conn.Write(p2p.NewConnect().Format())

		r := bufio.NewReader(conn)

		line, err := r.ReadString('\n')
		ifErrFailNow(t, err)
		tip := st.RetrieveTip()
		if !strings.HasPrefix(line, "ACK "+tip.Hash.Hex()) {
			t.Fatalf("\t%s\tShould reply ACK with the tip, got %q.", failed, line)
		}
		t.Logf("\t%s\tShould reply ACK with the tip.", success)

		line, err = r.ReadString('\n')
		ifErrFailNow(t, err)
		msg, err := p2p.ParseMessage(line)
		ifErrFailNow(t, err)
		hashes, err := p2p.DecodeInv(msg.Payload)
		if err != nil || len(hashes) != 1 || hashes[0] != tip.Hash {
			t.Fatalf("\t%s\tShould announce the tip, got %q.", failed, line)
		}
		t.Logf("\t%s\tShould announce the tip.", success)

		conn.Write([]byte("GARBAGE\nINV not-json\n"))
		conn.Write(p2p.NewConnect().Format())

		line, err = r.ReadString('\n')
		if err != nil || !strings.HasPrefix(line, "ACK ") {
			t.Fatalf("\t%s\tShould keep the connection after bad messages: %v", failed, err)
		}
		t.Logf("\t%s\tShould keep the connection after bad messages.", success)
	}
}

func Test_TwoNodesConverge(t *testing.T) {
	t.Log("Given the need for a new node to catch up and follow.")
	{
		stA := newState(t)
		for i := 0; i < 3; i++ {
			mineOne(t, stA)
		}
		stB := newState(t)

		nA := startNode(t, stA)
		nB := startNode(t, stB)

		t.Log("\tWhen node B connects to node A.")
		{
			ifErrFailNow(t, nB.Connect(nA.Addr()))

			if !waitFor(func() bool { return stB.RetrieveTip() == stA.RetrieveTip() }) {
				t.Fatalf("\t%s\tShould pull the whole chain: got %+v exp %+v", failed, stB.RetrieveTip(), stA.RetrieveTip())
			}
			t.Logf("\t%s\tShould pull the whole chain.", success)

			if len(stB.RetrieveOrphans()) != 0 {
				t.Fatalf("\t%s\tShould leave no orphans.", failed)
			}
			t.Logf("\t%s\tShould leave no orphans.", success)
		}

		t.Log("\tWhen node A mines another block.")
		{
			snap := stA.MiningSnapshot()
			b, err := pow.Mine(context.Background(), snap.Tip, snap.Number, snap.Difficulty, nil)
			ifErrFailNow(t, err)

			accepted, err := stA.CommitMinedBlock(snap, b)
			ifErrFailNow(t, err)

			hashes := make([]common.Hash, len(accepted))
			for i, a := range accepted {
				hashes[i] = a.Hash
			}
			nA.BroadcastInv(hashes)

			if !waitFor(func() bool { return stB.RetrieveTip().Hash == b.Hash }) {
				t.Fatalf("\t%s\tShould follow the new tip.", failed)
			}
			t.Logf("\t%s\tShould follow the new tip.", success)
		}

		if len(nB.Peers()) != 1 || len(nA.Peers()) != 1 {
			t.Fatalf("\t%s\tShould have one peer on each side.", failed)
		}
		t.Logf("\t%s\tShould have one peer on each side.", success)
	}
}

func Test_RegisterWorkerWhileServing(t *testing.T) {
	t.Log("Given the need to register the worker after peers are already connected.")
	{
		src := newState(t)
		b1 := mineOne(t, src)
		b2 := mineOne(t, src)

		st := newState(t)
		n := startNode(t, st)

		conn, err := net.Dial("tcp", n.Addr())
		ifErrFailNow(t, err)
		defer conn.Close()

		msg1, err := p2p.NewBlock(b1)
		ifErrFailNow(t, err)
		msg2, err := p2p.NewBlock(b2)
		ifErrFailNow(t, err)

		// The block is processed on the reader goroutine while the worker
		// is being registered here.
		conn.Write(msg1.Format())

		var w countingWorker
		st.RegisterWorker(&w)

		if !waitFor(func() bool { return st.RetrieveTip().Hash == b1.Hash }) {
			t.Fatalf("\t%s\tShould accept the first block.", failed)
		}
		t.Logf("\t%s\tShould accept the first block.", success)

		conn.Write(msg2.Format())

		if !waitFor(func() bool { return st.RetrieveTip().Hash == b2.Hash && w.cancels.Load() > 0 }) {
			t.Fatalf("\t%s\tShould signal the registered worker when the tip moves: cancels[%d]", failed, w.cancels.Load())
		}
		t.Logf("\t%s\tShould signal the registered worker when the tip moves.", success)
	}
}

func Test_OversizeLine(t *testing.T) {
	t.Log("Given the need to drop a line longer than the limit and keep the peer.")
	{
		st := newState(t)

		n, err := p2p.New(p2p.Config{
			Host:         "127.0.0.1",
			MaxLineBytes: 128,
			Chain:        st,
		})
		ifErrFailNow(t, err)
		ifErrFailNow(t, n.Start())
		defer n.Shutdown()

		conn, err := net.Dial("tcp", n.Addr())
		ifErrFailNow(t, err)
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))

		conn.Write([]byte("INV [\"" + strings.Repeat("a", 20000) + "\"]\n"))
		conn.Write(p2p.NewConnect().Format())

		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil || !strings.HasPrefix(line, "ACK ") {
			t.Fatalf("\t%s\tShould answer the next message after a long line: %q %v", failed, line, err)
		}
		t.Logf("\t%s\tShould answer the next message after a long line.", success)
	}
}

// =============================================================================

func newState(t *testing.T) *state.State {
	st, err := state.New(state.Config{Storage: memory.New(), Genesis: testGenesis})
	ifErrFailNow(t, err)

	return st
}

func startNode(t *testing.T, st *state.State) *p2p.Node {
	n, err := p2p.New(p2p.Config{
		Host:         "127.0.0.1",
		Port:         0,
		WriteTimeout: 5 * time.Second,
		Chain:        st,
		EvHandler:    func(v string, args ...any) { t.Logf(v, args...) },
	})
	ifErrFailNow(t, err)

	ifErrFailNow(t, n.Start())
	t.Cleanup(n.Shutdown)

	return n
}

func mineOne(t *testing.T, st *state.State) database.Block {
	snap := st.MiningSnapshot()

	b, err := pow.Mine(context.Background(), snap.Tip, snap.Number, snap.Difficulty, nil)
	ifErrFailNow(t, err)

	_, err = st.CommitMinedBlock(snap, b)
	ifErrFailNow(t, err)

	return b
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

// countingWorker counts the cancel signals it receives.
type countingWorker struct {
	cancels atomic.Int32
}

func (w *countingWorker) Shutdown()           {}
func (w *countingWorker) SignalCancelMining() { w.cancels.Add(1) }
