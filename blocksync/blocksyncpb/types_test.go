package blocksyncpb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockRequestRoundTrip(t *testing.T) {
	req := &BlockRequest{
		Fields:    7,
		HasHash:   true,
		Hash:      []byte{1, 2, 3},
		ToBlock:   []byte{9},
		Direction: Descending,
		MaxBlocks: 64,
	}
	data, err := req.Marshal()
	require.NoError(t, err)

	var got BlockRequest
	require.NoError(t, got.Unmarshal(data))
	require.Equal(t, req, &got)
}

func TestBlockRequestOneofSwitchesBranch(t *testing.T) {
	req := &BlockRequest{HasHash: true, Hash: []byte{1}}
	data, err := req.Marshal()
	require.NoError(t, err)

	var got BlockRequest
	require.NoError(t, got.Unmarshal(data))
	require.True(t, got.HasHash)
	require.False(t, got.HasNumber)

	req2 := &BlockRequest{HasNumber: true, Number: []byte{2}}
	data2, err := req2.Marshal()
	require.NoError(t, err)

	var got2 BlockRequest
	require.NoError(t, got2.Unmarshal(data2))
	require.True(t, got2.HasNumber)
	require.False(t, got2.HasHash)
}

func TestBlockResponseRoundTripWithMultipleBlocks(t *testing.T) {
	resp := &BlockResponse{Blocks: []*BlockData{
		{Hash: []byte{1}, HeaderBytes: []byte("h1"), Body: [][]byte{{1}, {2}}},
		{Hash: []byte{2}, IsEmptyJustification: true},
	}}
	data, err := resp.Marshal()
	require.NoError(t, err)

	var got BlockResponse
	require.NoError(t, got.Unmarshal(data))
	require.Len(t, got.Blocks, 2)
	require.Equal(t, resp.Blocks[0].Body, got.Blocks[0].Body)
	require.True(t, got.Blocks[1].IsEmptyJustification)
}

func TestBlockResponseEmptyMarshalsToEmptyBytes(t *testing.T) {
	resp := &BlockResponse{}
	data, err := resp.Marshal()
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestUnmarshalTruncatedDataErrors(t *testing.T) {
	var got BlockRequest
	err := got.Unmarshal([]byte{0xff})
	require.Error(t, err)
}
