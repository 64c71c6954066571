// Package p2p implements the line oriented gossip protocol nodes use to keep
// their chains converging. Every connection, inbound or outbound, gets its
// own reader goroutine. Blocks are announced with INV, requested with
// GETDATA and delivered with BLOCK.
package p2p

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ardanlabs/blocknode/foundation/blockchain/chain"
	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ardanlabs/blocknode/foundation/blockchain/peer"
	"github.com/ardanlabs/blocknode/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common"
)

// dialTimeout bounds an outbound connection attempt.
const dialTimeout = 2 * time.Second

// DefaultMaxLineBytes is the longest line accepted from a peer when the
// config doesn't set one.
const DefaultMaxLineBytes = 1 << 20

// EventHandler defines a function that is called when events
// occur in the processing of peer messages.
type EventHandler func(v string, args ...any)

// Chain represents the chain operations the protocol drives. Each call
// takes and releases the chain lock, replies are written after it returns.
type Chain interface {
	ProcessInv(hashes []common.Hash) []common.Hash
	ProcessGetData(hash common.Hash) (database.Block, bool, error)
	ProcessBlock(block database.Block) (state.BlockResult, error)
	RetrieveTip() chain.Entry
}

// Config represents the configuration required to run the protocol.
type Config struct {
	Host         string
	Port         int
	ScanRange    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxLineBytes int // Zero means DefaultMaxLineBytes.
	Chain        Chain
	EvHandler    EventHandler
}

// Node accepts and makes peer connections and speaks the protocol on them.
type Node struct {
	cfg       Config
	evHandler EventHandler
	peers     *peer.PeerSet

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

// New constructs a protocol node. Nothing is started until Start is called.
func New(cfg Config) (*Node, error) {
	if cfg.Chain == nil {
		return nil, errors.New("p2p: chain is required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}

	n := Node{
		cfg:       cfg,
		evHandler: ev,
		peers:     peer.NewPeerSet(),
	}

	return &n, nil
}

// Start binds the listener and starts accepting inbound connections.
func (n *Node) Start() error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	n.mu.Lock()
	n.listener = l
	n.mu.Unlock()

	n.evHandler("p2p: Start: listening: addr[%s]", l.Addr())

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.acceptLoop(l)
	}()

	return nil
}

// Addr returns the address the node is listening on.
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// Shutdown stops accepting connections, closes every peer and waits for all
// reader goroutines to finish.
func (n *Node) Shutdown() {
	n.evHandler("p2p: Shutdown: started")
	defer n.evHandler("p2p: Shutdown: completed")

	n.mu.Lock()
	n.closed = true
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Unlock()

	for _, p := range n.peers.Copy("") {
		p.Close()
	}

	n.wg.Wait()
}

// =============================================================================

// Connect dials the address and registers the connection as a peer. The
// conversation opens with CONNECT followed by an INV of our tip. Connecting
// to an address already in the peer set does nothing.
func (n *Node) Connect(addr string) error {
	if n.peers.Exists(addr) {
		return nil
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return err
	}

	p := peer.New(conn, addr, false, n.cfg.WriteTimeout)
	if !n.register(p, conn) {
		conn.Close()
		return nil
	}

	n.evHandler("p2p: Connect: connected: peer[%s]", addr)

	n.send(p, NewConnect())
	n.sendTip(p)

	return nil
}

// Scan attempts a connection to every port in the window around our own
// port. This stands in for peer discovery on a single machine.
func (n *Node) Scan() {
	host := n.cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	for port := n.cfg.Port - n.cfg.ScanRange; port <= n.cfg.Port+n.cfg.ScanRange; port++ {
		if port == n.cfg.Port || port <= 0 || port > 65535 {
			continue
		}

		addr := net.JoinHostPort(host, strconv.Itoa(port))
		if err := n.Connect(addr); err != nil {
			n.evHandler("p2p: Scan: no peer: addr[%s]: %s", addr, err)
		}
	}
}

// BroadcastInv announces the hashes to every connected peer. A failed send
// is logged and the peer is kept, only its reader loop removes it.
func (n *Node) BroadcastInv(hashes []common.Hash) {
	if len(hashes) == 0 {
		return
	}

	msg, err := NewInv(hashes)
	if err != nil {
		n.evHandler("p2p: BroadcastInv: ERROR: %s", err)
		return
	}

	for _, p := range n.peers.Copy("") {
		n.send(p, msg)
	}

	n.evHandler("p2p: BroadcastInv: announced: hashes[%d] peers[%d]", len(hashes), n.peers.Len())
}

// Peers returns the status of every connected peer.
func (n *Node) Peers() []peer.PeerStatus {
	peers := n.peers.Copy("")

	status := make([]peer.PeerStatus, len(peers))
	for i, p := range peers {
		status[i] = p.Status()
	}

	return status
}

// =============================================================================

func (n *Node) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			n.evHandler("p2p: acceptLoop: ERROR: %s", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		p := peer.New(conn, conn.RemoteAddr().String(), true, n.cfg.WriteTimeout)
		if !n.register(p, conn) {
			conn.Close()
			continue
		}

		n.evHandler("p2p: acceptLoop: accepted: peer[%s]", p.Addr)
	}
}

// register adds the peer to the set and starts its reader loop. It returns
// false if the node is shutting down or the address is already a peer.
func (n *Node) register(p *peer.Peer, conn net.Conn) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || !n.peers.Add(p) {
		return false
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.readLoop(p, conn)
	}()

	return true
}

// readLoop consumes lines from the peer until the connection ends, then
// removes the peer from the set.
func (n *Node) readLoop(p *peer.Peer, conn net.Conn) {
	defer func() {
		n.peers.Remove(p)
		p.Close()
		n.evHandler("p2p: readLoop: disconnected: peer[%s]", p.Addr)
	}()

	r := bufio.NewReader(conn)
	for {
		if n.cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(n.cfg.ReadTimeout))
		}

		line, err := readLine(r, n.cfg.MaxLineBytes)
		if errors.Is(err, ErrMalformedMessage) {
			n.evHandler("p2p: readLoop: peer[%s]: %s", p.Addr, err)
			continue
		}
		if err != nil && line == "" {
			return
		}

		msg, perr := ParseMessage(line)
		switch {
		case perr != nil:
			n.evHandler("p2p: readLoop: peer[%s]: %s", p.Addr, perr)
		default:
			n.dispatch(p, msg)
		}

		if err != nil {
			return
		}
	}
}

// readLine returns the next line from the peer. A line longer than limit bytes
// is consumed through its newline and reported as ErrMalformedMessage without
// ever being held in memory.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var line []byte
	var oversize bool

	for {
		frag, err := r.ReadSlice('\n')
		if !oversize {
			switch {
			case len(line)+len(frag) > limit:
				oversize = true
				line = nil
			default:
				line = append(line, frag...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err != nil:
			return string(line), err
		case oversize:
			return "", fmt.Errorf("%w: line longer than %d bytes", ErrMalformedMessage, limit)
		default:
			return string(line), nil
		}
	}
}

// dispatch handles one message from the peer. Decode and validation failures
// drop the message and keep the connection.
func (n *Node) dispatch(p *peer.Peer, msg Message) {
	switch msg.Command {
	case CmdConnect:
		tip := n.cfg.Chain.RetrieveTip()
		n.send(p, NewAck(fmt.Sprintf("%s %d", tip.Hash, tip.Number)))
		n.sendTip(p)

	case CmdAck:
		n.evHandler("p2p: dispatch: ACK: peer[%s] %s", p.Addr, msg.Payload)

	case CmdInv:
		hashes, err := DecodeInv(msg.Payload)
		if err != nil {
			n.evHandler("p2p: dispatch: INV: peer[%s]: %s", p.Addr, err)
			return
		}

		for _, hash := range n.cfg.Chain.ProcessInv(hashes) {
			n.send(p, NewGetData(hash))
		}

	case CmdGetData:
		hash, err := DecodeGetData(msg.Payload)
		if err != nil {
			n.evHandler("p2p: dispatch: GETDATA: peer[%s]: %s", p.Addr, err)
			return
		}

		block, exists, err := n.cfg.Chain.ProcessGetData(hash)
		if err != nil {
			n.evHandler("p2p: dispatch: GETDATA: peer[%s]: ERROR: %s", p.Addr, err)
			return
		}
		if !exists {
			return
		}

		reply, err := NewBlock(block)
		if err != nil {
			n.evHandler("p2p: dispatch: GETDATA: peer[%s]: ERROR: %s", p.Addr, err)
			return
		}
		n.send(p, reply)

	case CmdBlock:
		block, err := DecodeBlock(msg.Payload)
		if err != nil {
			n.evHandler("p2p: dispatch: BLOCK: peer[%s]: %s", p.Addr, err)
			return
		}

		result, err := n.cfg.Chain.ProcessBlock(block)
		if err != nil {
			n.evHandler("p2p: dispatch: BLOCK: peer[%s]: blk[%s]: rejected: %s", p.Addr, block.Hash, err)
			return
		}

		switch result.Outcome {
		case state.OutcomeAccepted:
			hashes := make([]common.Hash, len(result.Accepted))
			for i, b := range result.Accepted {
				hashes[i] = b.Hash
			}
			n.BroadcastInv(hashes)

		case state.OutcomeOrphaned:
			n.send(p, NewGetData(result.MissingParent))
		}

	default:
		n.evHandler("p2p: dispatch: peer[%s]: ignored: %s", p.Addr, msg.Command)
	}
}

// sendTip announces our tip to the peer.
func (n *Node) sendTip(p *peer.Peer) {
	inv, err := NewInv([]common.Hash{n.cfg.Chain.RetrieveTip().Hash})
	if err != nil {
		n.evHandler("p2p: sendTip: ERROR: %s", err)
		return
	}
	n.send(p, inv)
}

func (n *Node) send(p *peer.Peer, msg Message) {
	if err := p.Send(msg.Format()); err != nil {
		n.evHandler("p2p: send: peer[%s]: %s: ERROR: %s", p.Addr, msg.Command, err)
	}
}
