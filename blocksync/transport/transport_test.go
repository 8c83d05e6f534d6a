package transport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethsync/blocksync/blocksyncpb"
	"github.com/ethsync/blocksync/message"
	"github.com/ethsync/blocksync/transport"
	"github.com/ethsync/blocksync/transport/transporttest"
)

func TestUpgradeOutboundAndInboundRoundTrip(t *testing.T) {
	client, server := transporttest.NewPipe()

	req := &blocksyncpb.BlockRequest{HasNumber: true, Number: []byte{0}, MaxBlocks: 1}
	raw, err := req.Marshal()
	require.NoError(t, err)

	serverDone := make(chan transport.InboundResult, 1)
	go func() {
		in, err := transport.UpgradeInbound(server, 1<<20, time.Second, time.Second)
		require.NoError(t, err)
		serverDone <- in

		resp := &blocksyncpb.BlockResponse{Blocks: []*blocksyncpb.BlockData{{Hash: []byte{1, 2, 3}}}}
		require.NoError(t, transport.WriteResponse(in.Stream, resp))
	}()

	original := message.Request{ID: 1, From: message.FromNumber(0), Max: 1}
	result, err := transport.UpgradeOutbound(client, raw, original, 1<<20, time.Second)
	require.NoError(t, err)
	require.Len(t, result.Response.Blocks, 1)
	require.Equal(t, []byte{1, 2, 3}, result.Response.Blocks[0].Hash)

	in := <-serverDone
	require.Equal(t, req.Number, in.Request.Number)
}
