package blocksync

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ethsync/blocksync/chain"
	"github.com/ethsync/blocksync/message"
	"github.com/ethsync/blocksync/transport"
)

// Behavior is the Go rendering of the original NetworkBehaviour: it owns the
// peer/connection/request state machine of spec.md §3 and exposes exactly
// the operations of spec.md §4.1. It holds no socket of its own — reading
// and writing substreams is transport's job; Behavior only decides what to
// send, what to answer, and when a request has timed out or been cancelled.
type Behavior struct {
	cfg   Config
	chain chain.Client

	mu      sync.Mutex
	table   *peerTable
	pending []action

	outboundDone chan outboundCompletion
}

// outboundCompletion is how the host layer reports back the result of an
// outbound substream upgrade it was asked to perform via a DialInstruction.
type outboundCompletion struct {
	peer   peer.ID
	connID ConnectionID
	result transport.OutboundResult
	err    error
}

// New constructs a Behavior bound to a chain client and configuration.
func New(cfg Config, c chain.Client) *Behavior {
	return &Behavior{
		cfg:          cfg,
		chain:        c,
		table:        newPeerTable(),
		outboundDone: make(chan outboundCompletion, 64),
	}
}

// ProtocolName returns the libp2p protocol identifier this behavior speaks.
func (b *Behavior) ProtocolName() string {
	return string(b.cfg.ProtocolName())
}

// OnConnectionEstablished registers a newly opened connection to p
// (spec.md §3, I2).
func (b *Behavior) OnConnectionEstablished(p peer.ID, id ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table.add(p, id)
}

// OnConnectionClosed removes a closed connection. If it carried an
// OngoingRequest, that request is cancelled and an EventRequestCancelled is
// queued for the next Poll (spec.md §4.1, I3).
func (b *Behavior) OnConnectionClosed(p peer.ID, id ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, ok := b.table.remove(p, id)
	if !ok || conn.ongoing == nil {
		return
	}
	b.pending = append(b.pending, action{event: &Event{
		Kind:            EventRequestCancelled,
		Peer:            p,
		OriginalRequest: conn.ongoing.Request,
		Duration:        conn.ongoing.Elapsed(),
	}})
}

// SendRequest implements spec.md §4.1's send path: pick a connection to p
// (preferring one already carrying an OngoingRequest, which gets replaced),
// encode the request, and queue a DialInstruction for the host to act on.
func (b *Behavior) SendRequest(p peer.ID, req message.Request) SendOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn := b.table.selectForSend(p)
	if conn == nil {
		return SendOutcome{Kind: SendNotConnected}
	}

	serialized, err := marshalRequest(req)
	if err != nil {
		return SendOutcome{Kind: SendEncodeError, Err: err}
	}

	outcome := SendOutcome{Kind: SendOK}
	if conn.ongoing != nil {
		outcome = SendOutcome{
			Kind:            SendReplaced,
			Previous:        conn.ongoing.Request,
			RequestDuration: conn.ongoing.Elapsed(),
		}
	}

	now := time.Now()
	conn.ongoing = &message.OngoingRequest{
		Request:  req,
		Emitted:  now,
		Deadline: armDeadline(now, b.cfg.RequestTimeout),
	}

	b.pending = append(b.pending, action{notify: &DialInstruction{
		Peer:              p,
		ConnectionID:      conn.id,
		SerializedRequest: serialized,
		OriginalRequest:   req,
		MaxResponseLen:    b.cfg.MaxResponseLen,
		ProtocolID:        b.ProtocolName(),
	}})

	return outcome
}

// marshalRequest is the SendRequest-side mirror of message.ToProto plus
// wire marshaling, factored out so SendRequest stays readable.
func marshalRequest(req message.Request) ([]byte, error) {
	wire, err := message.ToProto(req)
	if err != nil {
		return nil, err
	}
	return wire.Marshal()
}

// AnswerInbound runs the responder algorithm of spec.md §4.3 against an
// already-decoded inbound request and writes the response on stream,
// queuing the EventAnsweredRequest for the next Poll. Callers obtain the
// decoded request via transport.UpgradeInbound.
func (b *Behavior) AnswerInbound(p peer.ID, in transport.InboundResult) error {
	resp, err := answerRequest(b.chain, b.cfg, p, in.Request)
	if err != nil {
		log.Debug("Dropping unanswerable block request", "peer", p, "err", err)
		in.Stream.Close()
		return err
	}

	if err := transport.WriteResponse(in.Stream, resp); err != nil {
		log.Debug("Failed to write block response", "peer", p, "err", err)
		return err
	}

	b.mu.Lock()
	b.pending = append(b.pending, action{event: &Event{
		Kind:     EventAnsweredRequest,
		Peer:     p,
		Duration: time.Since(in.HandlingStart),
	}})
	b.mu.Unlock()
	return nil
}

// DeliverOutboundResult is how the host layer reports the outcome of a
// DialInstruction it executed via transport.UpgradeOutbound. Safe to call
// from any goroutine; non-blocking unless the internal buffer is full, in
// which case it blocks briefly rather than drop a result.
func (b *Behavior) DeliverOutboundResult(p peer.ID, connID ConnectionID, res transport.OutboundResult, err error) {
	b.outboundDone <- outboundCompletion{peer: p, connID: connID, result: res, err: err}
}

// Poll implements spec.md §4.1's strict priority order:
//  1. drain pending_events FIFO (includes both Events and DialInstructions),
//  2. scan ongoing requests for an elapsed deadline,
//  3. drain one completed outbound upgrade,
//  4. otherwise report Pending.
//
// Poll returns (ev, true) when ev is a ready Event, (nil, true) with a
// non-nil dial when there's a DialInstruction for the host to act on, or
// (nil, false) when there is nothing to do this tick (Pending).
func (b *Behavior) Poll(now time.Time) (ev *Event, dial *DialInstruction, ready bool) {
	b.mu.Lock()
	if len(b.pending) > 0 {
		act := b.pending[0]
		b.pending = b.pending[1:]
		b.mu.Unlock()
		return act.event, act.notify, true
	}

	var timedOut *Event
	b.table.forEachOngoing(func(p peer.ID, c *connection) bool {
		if !now.Before(c.ongoing.Deadline) {
			timedOut = &Event{
				Kind:            EventRequestTimeout,
				Peer:            p,
				OriginalRequest: c.ongoing.Request,
				Duration:        c.ongoing.Elapsed(),
			}
			c.ongoing = nil
			return true
		}
		return false
	})
	b.mu.Unlock()

	if timedOut != nil {
		return timedOut, nil, true
	}

	select {
	case done := <-b.outboundDone:
		if ev := b.resolveOutbound(done); ev != nil {
			return ev, nil, true
		}
		return nil, nil, false
	default:
	}

	return nil, nil, false
}

// resolveOutbound implements spec.md §4.4: match the completed upgrade
// against the connection's OngoingRequest (I4) and decode the response. A
// completion that doesn't match the live OngoingRequest — because the
// connection is gone, the slot was replaced by a newer SendRequest, or the
// upgrade itself failed — belongs to a request whose outcome was already
// resolved elsewhere (cancelled, timed out, or superseded); it produces no
// event and conn.ongoing is left untouched, mirroring the original's bare
// `return;` in block_requests.rs's inject_event Response arm.
func (b *Behavior) resolveOutbound(done outboundCompletion) *Event {
	b.mu.Lock()
	conn, ok := b.table.connectionByID(done.peer, done.connID)
	if !ok || conn.ongoing == nil {
		b.mu.Unlock()
		return nil
	}
	original := conn.ongoing.Request
	if done.err != nil || !original.Equal(done.result.OriginalRequest) {
		b.mu.Unlock()
		log.Debug("Dropping stale outbound completion", "peer", done.peer, "err", done.err)
		return nil
	}
	elapsed := conn.ongoing.Elapsed()
	conn.ongoing = nil
	b.mu.Unlock()

	resp, err := message.ResponseFromWire(original.ID, done.result.Response, original)
	if err != nil {
		log.Debug("Failed to decode block response", "peer", done.peer, "err", err)
		return nil
	}

	return &Event{Kind: EventResponse, Peer: done.peer, OriginalRequest: original, Response: resp, Duration: elapsed}
}
