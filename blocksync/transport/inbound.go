package transport

import (
	"fmt"
	"time"

	"github.com/ethsync/blocksync/blocksyncpb"
	"github.com/ethsync/blocksync/framing"
)

// InboundResult is what an inbound upgrade surfaces to the behavior: the
// decoded request, the still-open substream (for writing the response),
// and the instant the read completed (start of "handling time").
type InboundResult struct {
	Request       *blocksyncpb.BlockRequest
	Stream        Substream
	HandlingStart time.Time
}

// UpgradeInbound reads exactly one length-prefixed protobuf BlockRequest
// from stream and decodes it. On success the caller owns stream and is
// responsible for eventually writing the response and closing it
// (spec.md §4.5's substream ownership transfer).
//
// Two distinct bounds apply per spec.md §4.6: inactivityTimeout closes the
// substream if no read progress is made for that long, while requestTimeout
// is a hard ceiling on the whole exchange regardless of progress. Both are
// enforced by resetting the read deadline to whichever bound is nearer
// before every read, so a peer that dribbles bytes in just under the idle
// window still can't outlast the hard deadline.
func UpgradeInbound(stream Substream, maxRequestLen int, inactivityTimeout, requestTimeout time.Duration) (InboundResult, error) {
	hardDeadline := time.Now().Add(requestTimeout)
	reader := &idleResetReader{stream: stream, inactivityTimeout: inactivityTimeout, hardDeadline: hardDeadline}

	raw, err := framing.ReadOne(reader, maxRequestLen)
	if err != nil {
		return InboundResult{}, fmt.Errorf("transport: reading request: %w", err)
	}

	req := &blocksyncpb.BlockRequest{}
	if err := req.Unmarshal(raw); err != nil {
		return InboundResult{}, fmt.Errorf("transport: decoding request: %w", err)
	}

	return InboundResult{Request: req, Stream: stream, HandlingStart: time.Now()}, nil
}

// idleResetReader wraps a Substream so every Read call arms a fresh
// deadline no further out than the idle window, clamped to never exceed
// the absolute hardDeadline. msgio's reader calls Read repeatedly while
// assembling the length-prefixed frame, so this re-arms on each read
// "tick" the way spec.md §4.6's idle-substream-close describes, without
// requiring framing to know about inactivity at all.
type idleResetReader struct {
	stream            Substream
	inactivityTimeout time.Duration
	hardDeadline      time.Time
}

func (r *idleResetReader) Read(p []byte) (int, error) {
	deadline := time.Now().Add(r.inactivityTimeout)
	if r.hardDeadline.Before(deadline) {
		deadline = r.hardDeadline
	}
	if err := r.stream.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("transport: setting read deadline: %w", err)
	}
	return r.stream.Read(p)
}

// WriteResponse writes the single framed response and closes the
// substream, as the final step of the inbound exchange (spec.md §4.5).
func WriteResponse(stream Substream, resp *blocksyncpb.BlockResponse) error {
	defer stream.Close()

	data, err := resp.Marshal()
	if err != nil {
		return fmt.Errorf("transport: encoding response: %w", err)
	}
	if err := framing.WriteOne(stream, data); err != nil {
		return err
	}
	return stream.CloseWrite()
}
