package message

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ethsync/blocksync/blocksyncpb"
)

func TestToProtoFromHash(t *testing.T) {
	to := common.HexToHash("0xaa")
	req := Request{ID: 7, Fields: Header, From: FromHash(common.HexToHash("0x01")), To: &to, Dir: Descending, Max: 10}

	wire, err := ToProto(req)
	require.NoError(t, err)
	require.True(t, wire.HasHash)
	require.False(t, wire.HasNumber)
	require.Equal(t, blocksyncpb.Descending, wire.Direction)

	from, err := FromBlockID(wire)
	require.NoError(t, err)
	require.True(t, from.IsHash)
	require.Equal(t, common.HexToHash("0x01"), from.Hash)
}

func TestToProtoFromNumber(t *testing.T) {
	req := Request{ID: 1, Fields: Body, From: FromNumber(100), Dir: Ascending}

	wire, err := ToProto(req)
	require.NoError(t, err)
	require.True(t, wire.HasNumber)

	from, err := FromBlockID(wire)
	require.NoError(t, err)
	require.False(t, from.IsHash)
	require.Equal(t, uint64(100), from.Number)
}

func TestFromBlockIDMissingBothBranches(t *testing.T) {
	_, err := FromBlockID(&blocksyncpb.BlockRequest{})
	require.ErrorIs(t, err, ErrMissingFromBlock)
}

func TestDirectionFromWireRejectsUnknown(t *testing.T) {
	_, err := DirectionFromWire(blocksyncpb.Direction(7))
	require.ErrorIs(t, err, ErrBadDirection)
}

func TestAttributesFromWireRejectsUnknownBits(t *testing.T) {
	_, err := AttributesFromWire(uint32(allAttributes) | (1 << 31))
	require.Error(t, err)
}

func TestResponseFromWirePreservesReceiptQuirk(t *testing.T) {
	original := Request{ID: 5, Fields: Header | Body | Receipt | MessageQueue}

	// Receipt alone, no message_queue: must NOT surface, per the preserved
	// source quirk (receipt presence is keyed off message_queue).
	wire := &blocksyncpb.BlockResponse{Blocks: []*blocksyncpb.BlockData{
		{Hash: common.HexToHash("0x01").Bytes(), Receipt: []byte("r")},
	}}
	resp, err := ResponseFromWire(5, wire, original)
	require.NoError(t, err)
	require.Nil(t, resp.Blocks[0].Receipt)
	require.Nil(t, resp.Blocks[0].MessageQueue)

	// Both present: both surface.
	wire2 := &blocksyncpb.BlockResponse{Blocks: []*blocksyncpb.BlockData{
		{Hash: common.HexToHash("0x01").Bytes(), Receipt: []byte("r"), MessageQueue: []byte("q")},
	}}
	resp2, err := ResponseFromWire(5, wire2, original)
	require.NoError(t, err)
	require.Equal(t, []byte("r"), resp2.Blocks[0].Receipt)
	require.Equal(t, []byte("q"), resp2.Blocks[0].MessageQueue)
}

func TestResponseFromWireJustificationStates(t *testing.T) {
	original := Request{ID: 1, Fields: Justification}
	hash := common.HexToHash("0x01").Bytes()

	absent := &blocksyncpb.BlockResponse{Blocks: []*blocksyncpb.BlockData{{Hash: hash}}}
	resp, err := ResponseFromWire(1, absent, original)
	require.NoError(t, err)
	require.False(t, resp.Blocks[0].Justification.Present)

	empty := &blocksyncpb.BlockResponse{Blocks: []*blocksyncpb.BlockData{{Hash: hash, IsEmptyJustification: true}}}
	resp, err = ResponseFromWire(1, empty, original)
	require.NoError(t, err)
	require.True(t, resp.Blocks[0].Justification.Present)
	require.True(t, resp.Blocks[0].Justification.Empty)

	present := &blocksyncpb.BlockResponse{Blocks: []*blocksyncpb.BlockData{{Hash: hash, JustificationBytes: []byte("j")}}}
	resp, err = ResponseFromWire(1, present, original)
	require.NoError(t, err)
	require.True(t, resp.Blocks[0].Justification.Present)
	require.False(t, resp.Blocks[0].Justification.Empty)
	require.Equal(t, []byte("j"), resp.Blocks[0].Justification.Data)
}

func TestBuildWireBlockDataNeverServesReceiptOrQueue(t *testing.T) {
	d := BuildWireBlockData(common.HexToHash("0x01"), []byte("h"), nil, Justification{})
	require.Nil(t, d.Receipt)
	require.Nil(t, d.MessageQueue)
}
