package blocksync

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/ethsync/blocksync/blocksyncpb"
	"github.com/ethsync/blocksync/chain"
	"github.com/ethsync/blocksync/framing"
	"github.com/ethsync/blocksync/message"
	"github.com/ethsync/blocksync/transport"
	"github.com/ethsync/blocksync/transport/transporttest"
)

func newTestBehavior() *Behavior {
	return New(DefaultConfig("test"), chain.NewMem())
}

func TestSendRequestNotConnected(t *testing.T) {
	b := newTestBehavior()
	outcome := b.SendRequest(peer.ID("ghost"), message.Request{ID: 1, From: message.FromNumber(0)})
	require.Equal(t, SendNotConnected, outcome.Kind)
}

func TestSendRequestQueuesDialInstruction(t *testing.T) {
	b := newTestBehavior()
	p := peer.ID("p1")
	b.OnConnectionEstablished(p, 1)

	outcome := b.SendRequest(p, message.Request{ID: 1, From: message.FromNumber(0)})
	require.Equal(t, SendOK, outcome.Kind)

	_, dial, ready := b.Poll(time.Now())
	require.True(t, ready)
	require.NotNil(t, dial)
	require.Equal(t, p, dial.Peer)
	require.Equal(t, ConnectionID(1), dial.ConnectionID)
}

func TestSendRequestReplacesExistingOngoing(t *testing.T) {
	b := newTestBehavior()
	p := peer.ID("p1")
	b.OnConnectionEstablished(p, 1)

	first := b.SendRequest(p, message.Request{ID: 1, From: message.FromNumber(0)})
	require.Equal(t, SendOK, first.Kind)
	_, _, _ = b.Poll(time.Now()) // drain the first dial instruction

	second := b.SendRequest(p, message.Request{ID: 2, From: message.FromNumber(1)})
	require.Equal(t, SendReplaced, second.Kind)
	require.Equal(t, uint64(1), second.Previous.ID)
}

func TestOnConnectionClosedCancelsOngoingRequest(t *testing.T) {
	b := newTestBehavior()
	p := peer.ID("p1")
	b.OnConnectionEstablished(p, 1)
	b.SendRequest(p, message.Request{ID: 1, From: message.FromNumber(0)})
	_, _, _ = b.Poll(time.Now()) // drain dial instruction

	b.OnConnectionClosed(p, 1)

	ev, _, ready := b.Poll(time.Now())
	require.True(t, ready)
	require.NotNil(t, ev)
	require.Equal(t, EventRequestCancelled, ev.Kind)
}

func TestPollReportsPendingWhenIdle(t *testing.T) {
	b := newTestBehavior()
	_, _, ready := b.Poll(time.Now())
	require.False(t, ready)
}

func TestPollTimesOutOngoingRequest(t *testing.T) {
	b := newTestBehavior()
	p := peer.ID("p1")
	b.OnConnectionEstablished(p, 1)
	b.SendRequest(p, message.Request{ID: 1, From: message.FromNumber(0)})
	_, _, _ = b.Poll(time.Now()) // drain dial instruction

	future := time.Now().Add(b.cfg.RequestTimeout + time.Second)
	ev, _, ready := b.Poll(future)
	require.True(t, ready)
	require.Equal(t, EventRequestTimeout, ev.Kind)
}

func TestDeliverOutboundResultMatchesAndEmitsResponse(t *testing.T) {
	b := newTestBehavior()
	p := peer.ID("p1")
	b.OnConnectionEstablished(p, 1)

	req := message.Request{ID: 1, From: message.FromNumber(0)}
	b.SendRequest(p, req)
	_, _, _ = b.Poll(time.Now()) // drain dial instruction

	b.DeliverOutboundResult(p, 1, transport.OutboundResult{
		OriginalRequest: req,
		Response:        &blocksyncpb.BlockResponse{},
	}, nil)

	ev, _, ready := b.Poll(time.Now())
	require.True(t, ready)
	require.Equal(t, EventResponse, ev.Kind)
}

func TestDeliverOutboundResultIgnoresStaleCompletionAfterReplace(t *testing.T) {
	b := newTestBehavior()
	p := peer.ID("p1")
	b.OnConnectionEstablished(p, 1)

	r1 := message.Request{ID: 1, From: message.FromNumber(0)}
	b.SendRequest(p, r1)
	_, _, _ = b.Poll(time.Now()) // drain r1's dial instruction

	r2 := message.Request{ID: 2, From: message.FromNumber(1)}
	replaced := b.SendRequest(p, r2)
	require.Equal(t, SendReplaced, replaced.Kind)
	_, _, _ = b.Poll(time.Now()) // drain r2's dial instruction

	// r1's outbound upgrade finally completes after being superseded by r2.
	// It must be dropped with no event at all, not turned into a bogus
	// RequestCancelled for r2.
	b.DeliverOutboundResult(p, 1, transport.OutboundResult{OriginalRequest: r1}, nil)
	_, _, ready := b.Poll(time.Now())
	require.False(t, ready, "a stale completion for a replaced request must produce no event")

	// r2's genuine response must still be reported correctly afterwards.
	b.DeliverOutboundResult(p, 1, transport.OutboundResult{
		OriginalRequest: r2,
		Response:        &blocksyncpb.BlockResponse{},
	}, nil)
	ev, _, ready := b.Poll(time.Now())
	require.True(t, ready)
	require.Equal(t, EventResponse, ev.Kind)
	require.Equal(t, r2.ID, ev.OriginalRequest.ID)
}

func TestDeliverOutboundResultIgnoresCompletionAfterConnectionClosed(t *testing.T) {
	b := newTestBehavior()
	p := peer.ID("p1")
	b.OnConnectionEstablished(p, 1)
	req := message.Request{ID: 1, From: message.FromNumber(0)}
	b.SendRequest(p, req)
	_, _, _ = b.Poll(time.Now()) // drain dial instruction

	b.OnConnectionClosed(p, 1)
	ev, _, ready := b.Poll(time.Now())
	require.True(t, ready)
	require.Equal(t, EventRequestCancelled, ev.Kind)

	// The in-flight outbound upgrade completes after the close already
	// reported the cancellation; it must not produce a second one.
	b.DeliverOutboundResult(p, 1, transport.OutboundResult{
		OriginalRequest: req,
		Response:        &blocksyncpb.BlockResponse{},
	}, nil)
	_, _, ready = b.Poll(time.Now())
	require.False(t, ready, "a completion arriving after the connection closed must produce no event")
}

func TestAnswerInboundEmitsEventOverPipe(t *testing.T) {
	m := chain.NewMem()
	m.AppendBlock(0, common.Hash{}, nil)
	b := New(DefaultConfig("test"), m)

	client, server := transporttest.NewPipe()
	defer client.Close()

	req := message.Request{ID: 1, Fields: message.Header, From: message.FromNumber(0), Max: 1}
	wire, err := message.ToProto(req)
	require.NoError(t, err)
	raw, err := wire.Marshal()
	require.NoError(t, err)

	go func() {
		_ = framing.WriteOne(client, raw)
		_, _ = framing.ReadOne(client, b.cfg.MaxResponseLen) // drain the response so the server's write doesn't block
	}()

	in, err := transport.UpgradeInbound(server, b.cfg.MaxRequestLen, b.cfg.InactivityTimeout, b.cfg.RequestTimeout)
	require.NoError(t, err)

	require.NoError(t, b.AnswerInbound(peer.ID("p1"), in))

	ev, _, ready := b.Poll(time.Now())
	require.True(t, ready)
	require.Equal(t, EventAnsweredRequest, ev.Kind)
}
