package blocksync

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ethsync/blocksync/message"
)

// ConnectionID identifies one live connection to a peer. The connection
// multiplexer (out of scope, spec.md §1) is assumed to hand out identifiers
// that are unique among a peer's simultaneously-open connections.
type ConnectionID uint64

// connection is the Go rendering of spec.md §3's "Connection": a
// multiplexer connection id plus at most one OngoingRequest (I1).
type connection struct {
	id      ConnectionID
	ongoing *message.OngoingRequest
}

// peerTable tracks, per peer, the ordered list of live connections
// (spec.md §3 "Peer table", I2).
type peerTable struct {
	byPeer map[peer.ID][]*connection
}

func newPeerTable() *peerTable {
	return &peerTable{byPeer: make(map[peer.ID][]*connection)}
}

// add appends a new, idle connection for peer (on "connection established").
func (t *peerTable) add(p peer.ID, id ConnectionID) {
	t.byPeer[p] = append(t.byPeer[p], &connection{id: id})
}

// remove deletes the connection id from peer's list, returning the removed
// connection (for inspecting its OngoingRequest) and whether it was found.
// Removes the peer entry entirely if its list becomes empty (I2).
func (t *peerTable) remove(p peer.ID, id ConnectionID) (*connection, bool) {
	conns, ok := t.byPeer[p]
	if !ok {
		return nil, false
	}
	for i, c := range conns {
		if c.id == id {
			t.byPeer[p] = append(conns[:i], conns[i+1:]...)
			if len(t.byPeer[p]) == 0 {
				delete(t.byPeer, p)
			}
			return c, true
		}
	}
	return nil, false
}

// connectionByID finds a peer's connection with the given id.
func (t *peerTable) connectionByID(p peer.ID, id ConnectionID) (*connection, bool) {
	for _, c := range t.byPeer[p] {
		if c.id == id {
			return c, true
		}
	}
	return nil, false
}

// selectForSend implements spec.md §4.1's SendRequest selection rule:
// prefer a connection that already has an OngoingRequest (to replace it),
// otherwise the first connection. Returns nil if the peer is unknown or
// (inconsistently) has an empty connection list.
func (t *peerTable) selectForSend(p peer.ID) *connection {
	conns, ok := t.byPeer[p]
	if !ok || len(conns) == 0 {
		return nil
	}
	for _, c := range conns {
		if c.ongoing != nil {
			return c
		}
	}
	return conns[0]
}

// forEachOngoing visits every connection across every peer that currently
// has an OngoingRequest, in map/slice iteration order. Used by Poll's
// timeout scan (spec.md §4.1 priority 2).
func (t *peerTable) forEachOngoing(fn func(p peer.ID, c *connection) (stop bool)) {
	for p, conns := range t.byPeer {
		for _, c := range conns {
			if c.ongoing == nil {
				continue
			}
			if fn(p, c) {
				return
			}
		}
	}
}

func armDeadline(now time.Time, timeout time.Duration) time.Time {
	return now.Add(timeout)
}
