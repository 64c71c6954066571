// Package peer maintains the set of live peer connections. The set has its
// own lock, separate from the chain state lock, so connection bookkeeping
// never waits on a chain mutation.
package peer

import (
	"net"
	"sort"
	"sync"
	"time"
)

// Peer represents a live connection to another node in the network.
type Peer struct {
	Addr      string
	Inbound   bool
	Connected time.Time

	conn         net.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// New constructs a peer for the connection. A zero write timeout means
// writes can block forever.
func New(conn net.Conn, addr string, inbound bool, writeTimeout time.Duration) *Peer {
	return &Peer{
		Addr:         addr,
		Inbound:      inbound,
		Connected:    time.Now().UTC(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Match validates if the specified address matches this peer.
func (p *Peer) Match(addr string) bool {
	return p.Addr == addr
}

// Send writes the data to the peer. Writes from different goroutines are
// serialized so lines are never interleaved.
func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return err
		}
	}

	_, err := p.conn.Write(data)
	return err
}

// Close closes the connection which ends the peer's reader loop.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// =============================================================================

// PeerStatus represents information about a connected peer.
type PeerStatus struct {
	Addr      string    `json:"addr"`
	Inbound   bool      `json:"inbound"`
	Connected time.Time `json:"connected"`
}

// Status returns the information about the peer.
func (p *Peer) Status() PeerStatus {
	return PeerStatus{
		Addr:      p.Addr,
		Inbound:   p.Inbound,
		Connected: p.Connected,
	}
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of live peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[string]*Peer
}

// NewPeerSet constructs a new set to manage live peers.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[string]*Peer),
	}
}

// Add adds a new peer to the set. It returns false if a peer with the same
// address is already in the set.
func (ps *PeerSet) Add(peer *Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer.Addr]
	if !exists {
		ps.set[peer.Addr] = peer
		return true
	}

	return false
}

// Remove removes the peer from the set. Only the same peer that was added is
// removed, a later connection from the same address is left alone.
func (ps *PeerSet) Remove(peer *Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if current, exists := ps.set[peer.Addr]; exists && current == peer {
		delete(ps.set, peer.Addr)
		return true
	}

	return false
}

// Exists reports if a peer with the address is in the set.
func (ps *PeerSet) Exists(addr string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	_, exists := ps.set[addr]
	return exists
}

// Len returns the number of peers in the set.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns a list of the peers ordered by address, excluding the
// specified address.
func (ps *PeerSet) Copy(addr string) []*Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]*Peer, 0, len(ps.set))
	for _, peer := range ps.set {
		if !peer.Match(addr) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Addr < peers[j].Addr })

	return peers
}
