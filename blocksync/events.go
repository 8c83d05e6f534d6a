package blocksync

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ethsync/blocksync/message"
)

// Event is emitted to higher layers from Poll (spec.md §6 "Emitted
// events"). Which fields are meaningful depends on Kind: Peer and Duration
// always, OriginalRequest for every kind except EventAnsweredRequest, and
// Response only for EventResponse.
type Event struct {
	Kind EventKind

	Peer            peer.ID
	OriginalRequest message.Request
	Response        message.Response
	Duration        time.Duration // request_duration or total_handling_time
}

// EventKind discriminates the Event payload.
type EventKind int

const (
	// EventAnsweredRequest: an inbound request was answered; Duration is
	// the total handling time from receipt to response write completion.
	EventAnsweredRequest EventKind = iota
	// EventResponse: an outbound request received and decoded a matching
	// response; Duration is the round-trip request duration.
	EventResponse
	// EventRequestCancelled: an outstanding outbound request's connection
	// closed before a response arrived.
	EventRequestCancelled
	// EventRequestTimeout: an outstanding outbound request's deadline
	// elapsed before a response arrived.
	EventRequestTimeout
)

// SendOutcome is the result of Behavior.SendRequest (spec.md §4.1).
type SendOutcome struct {
	Kind SendOutcomeKind

	// Previous/RequestDuration are populated when Kind == SendReplaced.
	Previous        message.Request
	RequestDuration time.Duration

	// Err is populated when Kind == SendEncodeError.
	Err error
}

// SendOutcomeKind discriminates SendOutcome.
type SendOutcomeKind int

const (
	SendOK SendOutcomeKind = iota
	SendReplaced
	SendNotConnected
	SendEncodeError
)

// action is an internal, not-yet-delivered unit of work queued by the
// behavior (spec.md §4.1 "pending_events" / §5 "FIFO"). It is either a
// ready-to-emit Event, or a request to notify the connection-manager layer
// of an outbound substream upgrade to perform.
type action struct {
	event  *Event
	notify *DialInstruction
}

// DialInstruction is the Go rendering of NetworkBehaviourAction::NotifyHandler:
// the behavior asks its host to open an outbound substream on a specific
// connection and run the outbound upgrade with this payload. The host is
// expected to run transport.UpgradeOutbound with these fields and report the
// outcome back via Behavior.DeliverOutboundResult.
type DialInstruction struct {
	Peer              peer.ID
	ConnectionID      ConnectionID
	SerializedRequest []byte
	OriginalRequest   message.Request
	MaxResponseLen    int
	ProtocolID        string
}
