package transport

import (
	"fmt"
	"time"

	"github.com/ethsync/blocksync/blocksyncpb"
	"github.com/ethsync/blocksync/framing"
	"github.com/ethsync/blocksync/message"
)

// OutboundResult is what an outbound upgrade surfaces to the behavior: the
// original request it was issued for, and the decoded wire response.
type OutboundResult struct {
	OriginalRequest message.Request
	Response        *blocksyncpb.BlockResponse
}

// UpgradeOutbound writes the pre-serialized request, then reads and decodes
// exactly one framed response, enforcing requestTimeout as the hard
// substream deadline (spec.md §4.5).
func UpgradeOutbound(stream Substream, serializedRequest []byte, original message.Request, maxResponseLen int, requestTimeout time.Duration) (OutboundResult, error) {
	defer stream.Close()

	deadline := time.Now().Add(requestTimeout)
	if err := stream.SetWriteDeadline(deadline); err != nil {
		return OutboundResult{}, fmt.Errorf("transport: setting write deadline: %w", err)
	}
	if err := framing.WriteOne(stream, serializedRequest); err != nil {
		return OutboundResult{}, fmt.Errorf("transport: writing request: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return OutboundResult{}, fmt.Errorf("transport: closing write half: %w", err)
	}

	if err := stream.SetReadDeadline(deadline); err != nil {
		return OutboundResult{}, fmt.Errorf("transport: setting read deadline: %w", err)
	}
	raw, err := framing.ReadOne(stream, maxResponseLen)
	if err != nil {
		return OutboundResult{}, fmt.Errorf("transport: reading response: %w", err)
	}

	resp := &blocksyncpb.BlockResponse{}
	if err := resp.Unmarshal(raw); err != nil {
		return OutboundResult{}, fmt.Errorf("transport: decoding response: %w", err)
	}

	return OutboundResult{OriginalRequest: original, Response: resp}, nil
}
