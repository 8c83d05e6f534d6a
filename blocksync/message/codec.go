package message

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethsync/blocksync/blocksyncpb"
)

// ErrMissingFromBlock is returned when a wire BlockRequest carries neither
// branch of the from_block oneof.
var ErrMissingFromBlock = errors.New("message: missing from_block field")

// ErrBadDirection is returned when a wire BlockRequest's direction is
// neither Ascending nor Descending.
var ErrBadDirection = errors.New("message: invalid direction value")

// ToProto builds the wire request for req. Hash/number encoding uses the
// same RLP codec as headers and extrinsics (see EncodeHeader).
func ToProto(req Request) (*blocksyncpb.BlockRequest, error) {
	out := &blocksyncpb.BlockRequest{
		Fields:    uint32(req.Fields),
		Direction: blocksyncpb.Direction(req.Dir),
		MaxBlocks: req.Max,
	}
	if req.From.IsHash {
		out.HasHash = true
		out.Hash = req.From.Hash.Bytes()
	} else {
		b, err := rlpEncodeUint64(req.From.Number)
		if err != nil {
			return nil, fmt.Errorf("message: encoding from_block number: %w", err)
		}
		out.HasNumber = true
		out.Number = b
	}
	if req.To != nil {
		out.ToBlock = req.To.Bytes()
	}
	return out, nil
}

// FromBlockID decodes a wire BlockRequest's from_block oneof into a
// FromBlock, validating that exactly one branch is present.
func FromBlockID(wire *blocksyncpb.BlockRequest) (FromBlock, error) {
	switch {
	case wire.HasHash:
		return FromHash(common.BytesToHash(wire.Hash)), nil
	case wire.HasNumber:
		n, err := rlpDecodeUint64(wire.Number)
		if err != nil {
			return FromBlock{}, fmt.Errorf("message: decoding from_block number: %w", err)
		}
		return FromNumber(n), nil
	default:
		return FromBlock{}, ErrMissingFromBlock
	}
}

// DirectionFromWire validates and converts a wire direction value.
func DirectionFromWire(v blocksyncpb.Direction) (Direction, error) {
	switch v {
	case blocksyncpb.Ascending:
		return Ascending, nil
	case blocksyncpb.Descending:
		return Descending, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrBadDirection, v)
	}
}

// AttributesFromWire validates a big-endian u32 attribute bitset, rejecting
// any bit outside the recognized set (spec.md §6).
func AttributesFromWire(fields uint32) (Attributes, error) {
	a := Attributes(fields)
	if a&^allAttributes != 0 {
		return 0, fmt.Errorf("message: unknown attribute bits set: %#x", fields&^uint32(allAttributes))
	}
	return a, nil
}

// BuildWireBlockData assembles the wire BlockData for one response record,
// given the already-gathered per-record fields. Called by the responder.
func BuildWireBlockData(hash common.Hash, header []byte, body [][]byte, justification Justification) *blocksyncpb.BlockData {
	d := &blocksyncpb.BlockData{
		Hash:        hash.Bytes(),
		HeaderBytes: header,
		Body:        body,
		// The responder never serves receipts or message queues (§9).
		Receipt:      nil,
		MessageQueue: nil,
	}
	if justification.Present {
		d.JustificationBytes = justification.Data
		d.IsEmptyJustification = justification.Empty
	}
	return d
}

// ResponseFromWire decodes a wire BlockResponse back into the internal
// representation, honoring the original request's attribute flags per
// spec.md §4.4 (including the preserved receipt/message_queue quirk).
func ResponseFromWire(id uint64, wire *blocksyncpb.BlockResponse, original Request) (Response, error) {
	resp := Response{ID: id}
	for _, wd := range wire.Blocks {
		var hash common.Hash
		if err := decodeHash(wd.Hash, &hash); err != nil {
			return Response{}, fmt.Errorf("message: decoding block hash: %w", err)
		}

		bd := BlockData{Hash: hash}

		if len(wd.HeaderBytes) > 0 {
			h, err := DecodeHeader(wd.HeaderBytes)
			if err != nil {
				return Response{}, fmt.Errorf("message: decoding header: %w", err)
			}
			bd.HeaderData = &h
		}

		if original.Fields.Contains(Body) {
			body := make([]Extrinsic, 0, len(wd.Body))
			for _, raw := range wd.Body {
				e, err := DecodeExtrinsic(raw)
				if err != nil {
					return Response{}, fmt.Errorf("message: decoding extrinsic: %w", err)
				}
				body = append(body, e)
			}
			bd.Body = body
		}

		// Preserved source quirk (spec.md §9): receipt presence is keyed
		// off message_queue's emptiness, not receipt's own bytes.
		if len(wd.MessageQueue) > 0 {
			bd.Receipt = wd.Receipt
			bd.MessageQueue = wd.MessageQueue
		}

		switch {
		case len(wd.JustificationBytes) > 0:
			bd.Justification = Justification{Present: true, Data: wd.JustificationBytes}
		case wd.IsEmptyJustification:
			bd.Justification = Justification{Present: true, Empty: true, Data: []byte{}}
		}

		resp.Blocks = append(resp.Blocks, bd)
	}
	return resp, nil
}

func decodeHash(b []byte, out *common.Hash) error {
	if len(b) == 0 {
		return errors.New("empty hash")
	}
	*out = common.BytesToHash(b)
	return nil
}

// rlpEncodeUint64/rlpDecodeUint64 encode the from_block number branch with
// the same codec used for headers/extrinsics, so the whole schema uses one
// canonical encoding end to end.
func rlpEncodeUint64(n uint64) ([]byte, error) {
	return EncodeExtrinsic(uint64ToBytes(n))
}

func rlpDecodeUint64(b []byte) (uint64, error) {
	e, err := DecodeExtrinsic(b)
	if err != nil {
		return 0, err
	}
	return bytesToUint64(e), nil
}

func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

func bytesToUint64(b []byte) uint64 {
	var n uint64
	for _, v := range b {
		n = n<<8 | uint64(v)
	}
	return n
}
